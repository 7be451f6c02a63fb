package bulkimport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/loadboard/internal/docstore"
	"github.com/ignite/loadboard/internal/domain"
	"github.com/ignite/loadboard/internal/pkg/logger"
)

// Undoer soft-deletes the loads of an import session.
type Undoer struct {
	store     docstore.Store
	loads     *LoadRepository
	history   History
	batchSize int
	now       func() time.Time
}

// NewUndoer wires an undoer. history may be nil.
func NewUndoer(store docstore.Store, loads *LoadRepository, history History, batchSize int) *Undoer {
	if batchSize <= 0 || batchSize > docstore.MaxBatchOps {
		batchSize = DefaultBatchSize
	}
	return &Undoer{store: store, loads: loads, history: history, batchSize: batchSize, now: time.Now}
}

// Session loads an import receipt.
func (u *Undoer) Session(ctx context.Context, sessionID string) (*domain.ImportSession, error) {
	doc, err := u.store.Get(ctx, CollectionSessions, sessionID)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load import session %s: %w", sessionID, err)
	}
	var s domain.ImportSession
	if err := docstore.Decode(doc, &s); err != nil {
		return nil, fmt.Errorf("decode import session %s: %w", sessionID, err)
	}
	s.ID = sessionID
	return &s, nil
}

// Undo flips every load of the session to deleted, in batches, and records
// an undo receipt. Only the user who ran the import may undo it, and only once.
func (u *Undoer) Undo(ctx context.Context, sessionID, actor string) (*domain.UndoReceipt, error) {
	session, err := u.Session(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != actor {
		return nil, ErrNotOwner
	}
	if _, err := u.store.Get(ctx, CollectionUndos, sessionID); err == nil {
		return nil, ErrAlreadyUndone
	} else if !errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("check undo receipt %s: %w", sessionID, err)
	}
	if err := Transition(session.Status, domain.StateUndone); err != nil {
		return nil, err
	}

	snaps, err := u.loads.ByImport(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, s := range snaps {
		if s.Data["status"] != string(domain.LoadDeleted) {
			ids = append(ids, s.ID)
		}
	}

	now := u.now()
	flipped := 0
	for start := 0; start < len(ids); start += u.batchSize {
		chunk := ids[start:min(start+u.batchSize, len(ids))]
		writes := make([]docstore.Write, len(chunk))
		for i, id := range chunk {
			writes[i] = docstore.Write{
				Kind:       docstore.WriteMerge,
				Collection: CollectionLoads,
				ID:         id,
				Data: docstore.Document{
					"status":    string(domain.LoadDeleted),
					"deletedAt": now,
					"deletedBy": actor,
				},
			}
		}
		if err := u.store.CommitBatch(ctx, writes); err != nil {
			return nil, &BatchError{BatchIndex: start / u.batchSize, Written: flipped, Err: err}
		}
		flipped += len(chunk)
	}

	receipt := &domain.UndoReceipt{SessionID: sessionID, UndoneBy: actor, UndoneAt: now, Records: flipped}
	err = u.store.Set(ctx, CollectionUndos, sessionID, docstore.Document{
		"sessionId": sessionID,
		"undoneBy":  actor,
		"undoneAt":  now,
		"records":   flipped,
	}, false)
	if err != nil {
		return nil, fmt.Errorf("record undo of %s: %w", sessionID, err)
	}

	if u.history != nil {
		if err := u.history.ClearLastImport(ctx, actor, sessionID); err != nil {
			logger.Warn("bulkimport: clear last import", "user", actor, "session", sessionID, "error", err)
		}
		if err := u.history.RemovePosted(ctx, actor, sessionID); err != nil {
			logger.Warn("bulkimport: prune posted loads", "user", actor, "session", sessionID, "error", err)
		}
	}
	logger.Info("bulkimport: import undone", "session", sessionID, "user", actor, "loads", flipped)
	return receipt, nil
}
