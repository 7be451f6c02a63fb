package bulkimport

import (
	"context"
	"fmt"

	"github.com/ignite/loadboard/internal/docstore"
	"github.com/ignite/loadboard/internal/domain"
)

// Document store collections used by the pipeline.
const (
	CollectionLoads     = "loads"
	CollectionSessions  = "import_sessions"
	CollectionUndos     = "import_undos"
	CollectionPreflight = "_preflight"
)

// HashLookup reports which fingerprints already belong to persisted, non-deleted loads.
type HashLookup interface {
	ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error)
}

// LoadRepository reads persisted loads from the document store.
type LoadRepository struct {
	store     docstore.Store
	chunkSize int
}

// NewLoadRepository queries at most chunkSize fingerprints per call (capped at docstore.MaxInValues).
func NewLoadRepository(store docstore.Store, chunkSize int) *LoadRepository {
	if chunkSize <= 0 || chunkSize > docstore.MaxInValues {
		chunkSize = docstore.MaxInValues
	}
	return &LoadRepository{store: store, chunkSize: chunkSize}
}

// ExistingHashes looks hashes up in chunks. Blank and repeated hashes are queried once.
func (r *LoadRepository) ExistingHashes(ctx context.Context, hashes []string) (map[string]bool, error) {
	seen := make(map[string]bool, len(hashes))
	unique := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if h != "" && !seen[h] {
			seen[h] = true
			unique = append(unique, h)
		}
	}

	found := make(map[string]bool)
	for start := 0; start < len(unique); start += r.chunkSize {
		chunk := unique[start:min(start+r.chunkSize, len(unique))]
		snaps, err := r.store.Query(ctx, docstore.Query{
			Collection: CollectionLoads,
			Filters: []docstore.Filter{
				docstore.Where("rowHash", docstore.OpIn, chunk),
				docstore.Where("status", docstore.OpNotEq, string(domain.LoadDeleted)),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("look up existing loads: %w", err)
		}
		for _, s := range snaps {
			if h, ok := s.Data["rowHash"].(string); ok {
				found[h] = true
			}
		}
	}
	return found, nil
}

// ByImport returns every load written by one import session.
func (r *LoadRepository) ByImport(ctx context.Context, sessionID string) ([]docstore.Snapshot, error) {
	snaps, err := r.store.Query(ctx, docstore.Query{
		Collection: CollectionLoads,
		Filters:    []docstore.Filter{docstore.Where("bulkImportId", docstore.OpEq, sessionID)},
	})
	if err != nil {
		return nil, fmt.Errorf("list loads of import %s: %w", sessionID, err)
	}
	return snaps, nil
}

// Expired returns the user's open loads whose expiry passed before now.
func (r *LoadRepository) Expired(ctx context.Context, userID, now string, limit int) ([]docstore.Snapshot, error) {
	return r.store.Query(ctx, docstore.Query{
		Collection: CollectionLoads,
		Filters: []docstore.Filter{
			docstore.Where("createdBy", docstore.OpEq, userID),
			docstore.Where("status", docstore.OpEq, string(domain.LoadOpen)),
			docstore.Where("expiresAt", docstore.OpLt, now),
		},
		Limit: limit,
	})
}
