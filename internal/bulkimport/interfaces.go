package bulkimport

import (
	"context"

	"github.com/ignite/loadboard/internal/domain"
)

// History is the user-scoped key-value state kept next to the document store.
// None of it is authoritative; failures writing it are logged only.
type History interface {
	AppendPosted(ctx context.Context, userID string, loads []domain.PostedLoad) error
	RecentUploads(ctx context.Context, userID string, limit int) ([]domain.PostedLoad, error)
	RemovePosted(ctx context.Context, userID, sessionID string) error
	SetLastImport(ctx context.Context, userID, sessionID string) error
	LastImport(ctx context.Context, userID string) (string, error)
	ClearLastImport(ctx context.Context, userID, sessionID string) error
	SetProgress(ctx context.Context, key string, p domain.Progress) error
	Progress(ctx context.Context, key string) (domain.Progress, error)
}

// PreviewCache holds previews between the preview and commit calls.
type PreviewCache interface {
	SavePreview(ctx context.Context, p *domain.Preview) error
	LoadPreview(ctx context.Context, previewID string) (*domain.Preview, error)
}

// SkippedArchive stores skipped-row exports for later download. Optional.
type SkippedArchive interface {
	Upload(ctx context.Context, userID, id string, data []byte) (string, error)
}
