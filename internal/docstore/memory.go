package docstore

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore keeps documents in process memory. The CLI uses it for dry runs
// and the import tests use it as the reference backend.
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string]map[string]Document
	commits int
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]Document)}
}

func (m *MemoryStore) Get(ctx context.Context, collection, id string) (Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return Sanitize(doc), nil
}

func (m *MemoryStore) Query(ctx context.Context, q Query) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	m.mu.RLock()
	coll := m.data[q.Collection]
	ids := make([]string, 0, len(coll))
	for id := range coll {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []Snapshot
	for _, id := range ids {
		if matches(coll[id], q.Filters) {
			out = append(out, Snapshot{ID: id, Data: Sanitize(coll[id])})
		}
	}
	m.mu.RUnlock()
	return sortAndLimit(out, q), nil
}

func (m *MemoryStore) CommitBatch(ctx context.Context, writes []Write) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateBatch(writes); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range writes {
		m.apply(w)
	}
	m.commits++
	return nil
}

func (m *MemoryStore) Add(ctx context.Context, collection string, doc Document) (string, error) {
	id := uuid.NewString()
	return id, m.Set(ctx, collection, id, doc, false)
}

func (m *MemoryStore) Set(ctx context.Context, collection, id string, doc Document, mergeFields bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if collection == "" || id == "" {
		return ErrEmptyDocumentKey
	}
	kind := WriteSet
	if mergeFields {
		kind = WriteMerge
	}
	m.mu.Lock()
	m.apply(Write{Kind: kind, Collection: collection, ID: id, Data: doc})
	m.mu.Unlock()
	return nil
}

// Commits reports how many batches were committed.
func (m *MemoryStore) Commits() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.commits
}

// Len reports how many documents a collection holds.
func (m *MemoryStore) Len(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[collection])
}

func (m *MemoryStore) apply(w Write) {
	coll, ok := m.data[w.Collection]
	if !ok {
		coll = make(map[string]Document)
		m.data[w.Collection] = coll
	}
	doc := Sanitize(w.Data)
	if w.Kind == WriteMerge {
		if existing, ok := coll[w.ID]; ok {
			doc = merge(existing, doc)
		}
	}
	if doc == nil {
		doc = Document{}
	}
	coll[w.ID] = doc
}
