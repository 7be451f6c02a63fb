package bulkimport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/ignite/loadboard/internal/domain"
	"github.com/ignite/loadboard/internal/history"
	"github.com/ignite/loadboard/internal/pkg/logger"
)

// sniffLen is how much of a file the type gate inspects.
const sniffLen = 3072

// ServiceDeps are the collaborators of a Service. Archive is optional.
type ServiceDeps struct {
	Normalizer *Normalizer
	Detector   *DuplicateDetector
	Executor   *Executor
	Undoer     *Undoer
	Previews   PreviewCache
	History    History
	Archive    SkippedArchive
	MaxRows    int
}

// Service runs the whole flow: preview, commit, undo, and the read-side helpers.
type Service struct {
	ServiceDeps
	now func() time.Time
}

func NewService(deps ServiceDeps) *Service {
	if deps.Normalizer == nil {
		deps.Normalizer = NewNormalizer(nil)
	}
	return &Service{ServiceDeps: deps, now: time.Now}
}

// PreviewRequest carries an uploaded file.
type PreviewRequest struct {
	UserID   string
	FileName string
	Template domain.TemplateType
	Data     []byte
}

// Preview gates, parses, classifies and duplicate-checks a file, then caches
// the result for Commit. Header and parse problems abort before any lookup.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (*domain.Preview, error) {
	if !req.Template.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, req.Template)
	}
	if err := CheckFileType(req.FileName, req.Data[:min(len(req.Data), sniffLen)]); err != nil {
		return nil, err
	}

	state := domain.StateCollecting
	hc, err := CheckHeader(FirstLine(req.Data), req.Template)
	if err != nil {
		return nil, err
	}
	if !hc.OK {
		return nil, &HeaderError{Template: string(req.Template), Problems: hc.Errors}
	}
	parsed, err := ParseRows(req.Data, s.MaxRows)
	if err != nil {
		return nil, err
	}
	rows := Classify(parsed.Rows, req.Template, s.Normalizer)

	if err := Transition(state, domain.StatePreviewing); err != nil {
		return nil, err
	}
	det, err := s.Detector.Detect(ctx, rows)
	if err != nil {
		return nil, err
	}

	p := &domain.Preview{
		ID:           uuid.NewString(),
		UserID:       req.UserID,
		TemplateType: req.Template,
		FileName:     req.FileName,
		State:        domain.StatePreviewing,
		Rows:         rows,
		Matches:      det.Matches,
		Insights:     det.Insights,
		Notice:       det.Notice,
		CreatedAt:    s.now(),
	}
	recordClassified(req.Template, rows)
	if err := s.Previews.SavePreview(ctx, p); err != nil {
		return nil, fmt.Errorf("save preview: %w", err)
	}

	counts := p.Counts()
	logger.Info("bulkimport: preview ready", "preview", p.ID, "user", req.UserID, "file", req.FileName,
		"valid", counts[domain.RowValid], "invalid", counts[domain.RowInvalid], "duplicate", counts[domain.RowDuplicate])
	return p, nil
}

// LoadPreview returns a cached preview owned by userID.
func (s *Service) LoadPreview(ctx context.Context, previewID, userID string) (*domain.Preview, error) {
	p, err := s.Previews.LoadPreview(ctx, previewID)
	if errors.Is(err, history.ErrPreviewNotFound) {
		return nil, ErrPreviewNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, ErrNotOwner
	}
	return p, nil
}

// Commit applies the confirmed similarity matches (row numbers) and imports
// the valid rows. A partial import returns both the result and a *BatchError.
func (s *Service) Commit(ctx context.Context, previewID, userID string, confirmed []int) (*domain.Preview, *ImportResult, error) {
	p, err := s.LoadPreview(ctx, previewID, userID)
	if err != nil {
		return nil, nil, err
	}
	if err := Transition(p.State, domain.StateImporting); err != nil {
		return p, nil, err
	}
	p.State = domain.StateImporting
	s.savePreview(ctx, p)

	ApplyConfirmed(p.Rows, p.Matches, confirmed)

	res, err := s.Executor.Execute(ctx, ImportRequest{
		UserID:      userID,
		FileName:    p.FileName,
		Template:    p.TemplateType,
		Rows:        p.Rows,
		ProgressKey: p.ID,
	})
	if res == nil || res.Status == domain.StatePreviewing {
		p.State = domain.StatePreviewing
		s.savePreview(ctx, p)
		return p, res, err
	}

	p.State = res.Status
	p.SessionID = res.SessionID
	s.savePreview(ctx, p)
	s.archiveSkipped(ctx, p)
	return p, res, err
}

// Undo reverses an import session.
func (s *Service) Undo(ctx context.Context, sessionID, actor string) (*domain.UndoReceipt, error) {
	return s.Undoer.Undo(ctx, sessionID, actor)
}

// SkippedRows writes the skipped rows of a preview as CSV.
func (s *Service) SkippedRows(ctx context.Context, previewID, userID string, w io.Writer) (int, error) {
	p, err := s.LoadPreview(ctx, previewID, userID)
	if err != nil {
		return 0, err
	}
	return WriteSkippedRows(w, p.Rows)
}

// RecentUploads lists the user's recently posted loads, newest first.
func (s *Service) RecentUploads(ctx context.Context, userID string, limit int) ([]domain.PostedLoad, error) {
	if s.History == nil {
		return nil, nil
	}
	return s.History.RecentUploads(ctx, userID, limit)
}

// LastImport returns the receipt of the user's most recent import, or nil.
func (s *Service) LastImport(ctx context.Context, userID string) (*domain.ImportSession, error) {
	if s.History == nil {
		return nil, nil
	}
	id, err := s.History.LastImport(ctx, userID)
	if err != nil || id == "" {
		return nil, err
	}
	return s.Undoer.Session(ctx, id)
}

// Progress reports the {current,total} of the import started from a preview.
func (s *Service) Progress(ctx context.Context, previewID string) (domain.Progress, error) {
	if s.History == nil {
		return domain.Progress{}, nil
	}
	return s.History.Progress(ctx, previewID)
}

func (s *Service) savePreview(ctx context.Context, p *domain.Preview) {
	if err := s.Previews.SavePreview(ctx, p); err != nil {
		logger.Warn("bulkimport: save preview state", "preview", p.ID, "state", p.State, "error", err)
	}
}

func (s *Service) archiveSkipped(ctx context.Context, p *domain.Preview) {
	if s.Archive == nil {
		return
	}
	var buf bytes.Buffer
	n, err := WriteSkippedRows(&buf, p.Rows)
	if err != nil || n == 0 {
		return
	}
	key, err := s.Archive.Upload(ctx, p.UserID, p.SessionID, buf.Bytes())
	if err != nil {
		logger.Warn("bulkimport: archive skipped rows", "session", p.SessionID, "error", err)
		return
	}
	logger.Info("bulkimport: skipped rows archived", "session", p.SessionID, "rows", n, "key", key)
}
