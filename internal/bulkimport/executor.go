package bulkimport

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loadboard/internal/docstore"
	"github.com/ignite/loadboard/internal/domain"
	"github.com/ignite/loadboard/internal/pkg/distlock"
	"github.com/ignite/loadboard/internal/pkg/logger"
)

// Default executor settings.
const (
	DefaultBatchSize   = 400
	DefaultExpiryGrace = 24 * time.Hour
)

// ExecutorConfig tunes the executor. Zero values pick the defaults.
type ExecutorConfig struct {
	BatchSize          int
	RetryFailedBatches int
	ExpiryGrace        time.Duration
}

// Executor writes valid rows to the document store in ordered batches.
type Executor struct {
	store   docstore.Store
	loads   *LoadRepository
	locks   distlock.Locker
	history History
	cfg     ExecutorConfig
	now     func() time.Time
	newID   func() (string, error)
}

// NewExecutor wires an executor. history may be nil.
func NewExecutor(store docstore.Store, loads *LoadRepository, locks distlock.Locker, history History, cfg ExecutorConfig) *Executor {
	if cfg.BatchSize <= 0 || cfg.BatchSize > docstore.MaxBatchOps {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.RetryFailedBatches < 0 {
		cfg.RetryFailedBatches = 0
	}
	if cfg.ExpiryGrace <= 0 {
		cfg.ExpiryGrace = DefaultExpiryGrace
	}
	if locks == nil {
		locks = distlock.NewLocalLocker()
	}
	return &Executor{
		store:   store,
		loads:   loads,
		locks:   locks,
		history: history,
		cfg:     cfg,
		now:     time.Now,
		newID:   newSessionID,
	}
}

func newSessionID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// ImportRequest is one import run.
type ImportRequest struct {
	UserID   string
	FileName string
	Template domain.TemplateType
	Rows     []domain.NormalizedRow
	// ProgressKey names the progress entry in History; defaults to the session id.
	ProgressKey string
	OnProgress  func(domain.Progress)
}

// ImportResult summarizes a run. It is returned alongside a *BatchError
// when the run stopped part way.
type ImportResult struct {
	SessionID         string                `json:"sessionId"`
	Status            domain.State          `json:"status"`
	Imported          int                   `json:"imported"`
	SkippedDuplicates int                   `json:"skippedDuplicates"`
	Batches           int                   `json:"batches"`
	Session           *domain.ImportSession `json:"session,omitempty"`
}

// Execute imports the valid rows of req. Batches run strictly in order; a
// failed batch (after the configured retries) stops the run and leaves the
// earlier batches committed.
func (e *Executor) Execute(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	started := e.now()

	lock := e.locks.Lock(req.UserID)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire import lock: %w", err)
	}
	if !ok {
		return nil, ErrImportInFlight
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, distlock.ErrNotHeld) {
			logger.Warn("bulkimport: release import lock", "user", req.UserID, "error", err)
		}
	}()

	var valid []domain.NormalizedRow
	for _, r := range req.Rows {
		if r.Status == domain.RowValid {
			valid = append(valid, r)
		}
	}
	if len(valid) == 0 {
		return nil, ErrNothingToImport
	}

	if err := e.Preflight(ctx, req.UserID); err != nil {
		recordRun("preflight_failed", started)
		return nil, err
	}

	sessionID, err := e.newID()
	if err != nil {
		return nil, fmt.Errorf("new session id: %w", err)
	}
	progressKey := req.ProgressKey
	if progressKey == "" {
		progressKey = sessionID
	}

	res := &ImportResult{SessionID: sessionID}
	createdAt := e.now()
	written := make(map[string]bool)
	var posted []domain.PostedLoad
	progress := domain.Progress{Total: len(valid)}

	var runErr error
	for batchIndex, start := 0, 0; start < len(valid); batchIndex, start = batchIndex+1, start+e.cfg.BatchSize {
		batch := valid[start:min(start+e.cfg.BatchSize, len(valid))]

		n, skipped, entries, err := e.writeBatch(ctx, req, sessionID, createdAt, batch, written)
		res.Batches++
		progress.Current += len(batch)
		e.reportProgress(ctx, progressKey, progress, req.OnProgress)

		if err != nil {
			batchesTotal.WithLabelValues("failed").Inc()
			runErr = &BatchError{BatchIndex: batchIndex, Written: res.Imported, Err: err}
			logger.Error("bulkimport: batch failed, aborting import",
				"session", sessionID, "batch", batchIndex+1, "written", res.Imported, "error", err)
			break
		}
		batchesTotal.WithLabelValues("committed").Inc()
		res.Imported += n
		res.SkippedDuplicates += skipped
		posted = append(posted, entries...)
	}

	if runErr == nil && res.Imported == 0 {
		res.Status = domain.StatePreviewing
		recordRun("already_imported", started)
		logger.Info("bulkimport: every valid row is already on the board", "session", sessionID, "user", req.UserID,
			"skippedDuplicates", res.SkippedDuplicates)
		return res, ErrAlreadyImported
	}

	res.Status = domain.StateCompleted
	if runErr != nil {
		if res.Imported == 0 {
			res.Status = domain.StatePreviewing
			recordRun("failed", started)
			return res, runErr
		}
		res.Status = domain.StatePartiallyCompleted
	}

	session := &domain.ImportSession{
		ID:           sessionID,
		UserID:       req.UserID,
		CreatedAt:    createdAt,
		TemplateType: req.Template,
		FileName:     req.FileName,
		Totals: domain.SessionTotals{
			Valid:   len(valid),
			Skipped: len(req.Rows) - len(valid) + res.SkippedDuplicates,
			Written: res.Imported,
		},
		Status: res.Status,
	}
	res.Session = session
	if err := e.store.Set(ctx, CollectionSessions, sessionID, sessionDocument(session), false); err != nil {
		recordRun("receipt_failed", started)
		return res, errors.Join(runErr, fmt.Errorf("record import session %s: %w", sessionID, err))
	}

	e.recordHistory(ctx, req.UserID, sessionID, posted)
	e.sweepExpired(ctx, req.UserID)

	recordRun(string(res.Status), started)
	logger.Info("bulkimport: import finished", "session", sessionID, "user", req.UserID,
		"imported", res.Imported, "skippedDuplicates", res.SkippedDuplicates, "batches", res.Batches, "status", res.Status)
	return res, runErr
}

// writeBatch re-checks the batch against persisted loads, then commits it as one unit.
func (e *Executor) writeBatch(ctx context.Context, req ImportRequest, sessionID string, createdAt time.Time,
	batch []domain.NormalizedRow, written map[string]bool) (int, int, []domain.PostedLoad, error) {

	hashes := make([]string, len(batch))
	for i, r := range batch {
		hashes[i] = r.RowHash
	}
	existing, err := e.loads.ExistingHashes(ctx, hashes)
	if err != nil {
		return 0, 0, nil, err
	}

	writes := make([]docstore.Write, 0, len(batch))
	entries := make([]domain.PostedLoad, 0, len(batch))
	skipped := 0
	batchHashes := make(map[string]bool, len(batch))
	for _, r := range batch {
		if existing[r.RowHash] || written[r.RowHash] || batchHashes[r.RowHash] {
			skipped++
			continue
		}
		batchHashes[r.RowHash] = true
		rec := e.buildRecord(req.UserID, sessionID, createdAt, r)
		writes = append(writes, docstore.Write{
			Kind:       docstore.WriteSet,
			Collection: CollectionLoads,
			ID:         rec.ID,
			Data:       docstore.Sanitize(recordDocument(rec)),
		})
		entries = append(entries, domain.PostedLoad{
			ID:           rec.ID,
			BulkImportID: sessionID,
			Title:        rec.Title,
			Origin:       deref(rec.Origin),
			Destination:  deref(rec.Destination),
			PickupDate:   deref(rec.PickupDate),
			Rate:         rec.Rate,
			PostedAt:     createdAt,
		})
	}
	if len(writes) == 0 {
		return 0, skipped, nil, nil
	}

	for attempt := 0; ; attempt++ {
		err = e.store.CommitBatch(ctx, writes)
		if err == nil || attempt >= e.cfg.RetryFailedBatches || ctx.Err() != nil {
			break
		}
		logger.Warn("bulkimport: retrying batch", "session", sessionID, "attempt", attempt+1, "error", err)
	}
	if err != nil {
		return 0, skipped, nil, err
	}
	for h := range batchHashes {
		written[h] = true
	}
	return len(writes), skipped, entries, nil
}

func (e *Executor) buildRecord(userID, sessionID string, createdAt time.Time, r domain.NormalizedRow) domain.LoadRecord {
	expires := createdAt.Add(e.cfg.ExpiryGrace)
	if d, ok := parseDate(deref(r.DeliveryDate)); ok {
		expires = d.Add(e.cfg.ExpiryGrace)
	}
	return domain.LoadRecord{
		ID:                  sessionID + "_" + strconv.Itoa(r.RowNumber),
		BulkImportID:        sessionID,
		RowHash:             r.RowHash,
		Status:              domain.LoadOpen,
		Title:               r.Title,
		Description:         r.Description,
		EquipmentType:       r.EquipmentType,
		Origin:              r.Origin,
		Destination:         r.Destination,
		PickupDate:          r.PickupDate,
		DeliveryDate:        r.DeliveryDate,
		Rate:                r.Rate,
		Weight:              r.Weight,
		VehicleCount:        r.VehicleCount,
		ContactName:         r.ContactName,
		ContactEmail:        r.ContactEmail,
		ContactPhone:        r.ContactPhone,
		SpecialInstructions: r.SpecialInstructions,
		CreatedBy:           userID,
		CreatedAt:           createdAt,
		ExpiresAt:           expires,
	}
}

// Preflight probes read and write access before anything is written.
func (e *Executor) Preflight(ctx context.Context, userID string) error {
	_, err := e.store.Query(ctx, docstore.Query{
		Collection: CollectionLoads,
		Filters:    []docstore.Filter{docstore.Where("createdBy", docstore.OpEq, userID)},
		Limit:      1,
	})
	if err != nil {
		return &PreflightError{Op: "read", Err: err}
	}
	err = e.store.Set(ctx, CollectionPreflight, userID, docstore.Document{
		"userId":    userID,
		"checkedAt": e.now(),
	}, true)
	if err != nil {
		return &PreflightError{Op: "write", Err: err}
	}
	return nil
}

func (e *Executor) reportProgress(ctx context.Context, key string, p domain.Progress, cb func(domain.Progress)) {
	if cb != nil {
		cb(p)
	}
	if e.history == nil {
		return
	}
	if err := e.history.SetProgress(ctx, key, p); err != nil {
		logger.Warn("bulkimport: write progress", "key", key, "error", err)
	}
}

func (e *Executor) recordHistory(ctx context.Context, userID, sessionID string, posted []domain.PostedLoad) {
	if e.history == nil {
		return
	}
	if err := e.history.AppendPosted(ctx, userID, posted); err != nil {
		logger.Warn("bulkimport: append posted loads", "user", userID, "session", sessionID, "error", err)
	}
	if err := e.history.SetLastImport(ctx, userID, sessionID); err != nil {
		logger.Warn("bulkimport: set last import", "user", userID, "session", sessionID, "error", err)
	}
}

// sweepExpired archives the user's open loads past their expiry. Housekeeping only.
func (e *Executor) sweepExpired(ctx context.Context, userID string) {
	now := e.now()
	snaps, err := e.loads.Expired(ctx, userID, docstore.FormatTime(now), e.cfg.BatchSize)
	if err != nil {
		logger.Warn("bulkimport: expiry sweep query", "user", userID, "error", err)
		return
	}
	if len(snaps) == 0 {
		return
	}
	writes := make([]docstore.Write, len(snaps))
	for i, s := range snaps {
		writes[i] = docstore.Write{
			Kind:       docstore.WriteMerge,
			Collection: CollectionLoads,
			ID:         s.ID,
			Data:       docstore.Document{"status": string(domain.LoadArchived), "archivedAt": now},
		}
	}
	if err := e.store.CommitBatch(ctx, writes); err != nil {
		logger.Warn("bulkimport: expiry sweep write", "user", userID, "loads", len(writes), "error", err)
		return
	}
	logger.Info("bulkimport: archived expired loads", "user", userID, "loads", len(writes))
}

func recordDocument(r domain.LoadRecord) docstore.Document {
	return docstore.Document{
		"bulkImportId":        r.BulkImportID,
		"rowHash":             r.RowHash,
		"status":              string(r.Status),
		"title":               r.Title,
		"description":         r.Description,
		"equipmentType":       r.EquipmentType,
		"origin":              r.Origin,
		"destination":         r.Destination,
		"pickupDate":          r.PickupDate,
		"deliveryDate":        r.DeliveryDate,
		"rate":                r.Rate,
		"weight":              r.Weight,
		"vehicleCount":        r.VehicleCount,
		"contactName":         r.ContactName,
		"contactEmail":        r.ContactEmail,
		"contactPhone":        r.ContactPhone,
		"specialInstructions": r.SpecialInstructions,
		"createdBy":           r.CreatedBy,
		"createdAt":           r.CreatedAt,
		"expiresAt":           r.ExpiresAt,
	}
}

func sessionDocument(s *domain.ImportSession) docstore.Document {
	return docstore.Document{
		"userId":       s.UserID,
		"createdAt":    s.CreatedAt,
		"templateType": string(s.TemplateType),
		"fileName":     s.FileName,
		"totals": map[string]any{
			"valid":   s.Totals.Valid,
			"skipped": s.Totals.Skipped,
			"written": s.Totals.Written,
		},
		"status": string(s.Status),
	}
}
