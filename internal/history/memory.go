package history

import (
	"context"
	"sync"

	"github.com/ignite/loadboard/internal/domain"
)

// MemoryStore is the process-local variant used by the CLI without Redis.
type MemoryStore struct {
	mu         sync.Mutex
	posted     map[string][]domain.PostedLoad
	lastImport map[string]string
	progress   map[string]domain.Progress
	previews   map[string]domain.Preview
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posted:     make(map[string][]domain.PostedLoad),
		lastImport: make(map[string]string),
		progress:   make(map[string]domain.Progress),
		previews:   make(map[string]domain.Preview),
	}
}

func (m *MemoryStore) AppendPosted(_ context.Context, userID string, loads []domain.PostedLoad) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := make([]domain.PostedLoad, 0, len(loads)+len(m.posted[userID]))
	for i := len(loads) - 1; i >= 0; i-- {
		list = append(list, loads[i])
	}
	list = append(list, m.posted[userID]...)
	if len(list) > MaxPostedLoads {
		list = list[:MaxPostedLoads]
	}
	m.posted[userID] = list
	return nil
}

func (m *MemoryStore) RecentUploads(_ context.Context, userID string, limit int) ([]domain.PostedLoad, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.posted[userID]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return append([]domain.PostedLoad(nil), list...), nil
}

func (m *MemoryStore) RemovePosted(_ context.Context, userID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []domain.PostedLoad
	for _, l := range m.posted[userID] {
		if l.BulkImportID != sessionID {
			kept = append(kept, l)
		}
	}
	m.posted[userID] = kept
	return nil
}

func (m *MemoryStore) SetLastImport(_ context.Context, userID, sessionID string) error {
	m.mu.Lock()
	m.lastImport[userID] = sessionID
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) LastImport(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastImport[userID], nil
}

func (m *MemoryStore) ClearLastImport(_ context.Context, userID, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastImport[userID] == sessionID {
		delete(m.lastImport, userID)
	}
	return nil
}

func (m *MemoryStore) SetProgress(_ context.Context, sessionID string, p domain.Progress) error {
	m.mu.Lock()
	m.progress[sessionID] = p
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Progress(_ context.Context, sessionID string) (domain.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.progress[sessionID], nil
}

func (m *MemoryStore) SavePreview(_ context.Context, p *domain.Preview) error {
	m.mu.Lock()
	cp := *p
	cp.Rows = append([]domain.NormalizedRow(nil), p.Rows...)
	m.previews[p.ID] = cp
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) LoadPreview(_ context.Context, previewID string) (*domain.Preview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.previews[previewID]
	if !ok {
		return nil, ErrPreviewNotFound
	}
	p.Rows = append([]domain.NormalizedRow(nil), p.Rows...)
	return &p, nil
}
