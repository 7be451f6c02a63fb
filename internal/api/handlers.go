// Package api exposes the bulk import pipeline and the wallet over HTTP.
package api

import (
	"errors"
	"net/http"

	"github.com/ignite/loadboard/internal/bulkimport"
	"github.com/ignite/loadboard/internal/pkg/httputil"
	"github.com/ignite/loadboard/internal/pkg/logger"
	"github.com/ignite/loadboard/internal/wallet"
)

// maxUploadBytes bounds an uploaded file.
const maxUploadBytes = 10 << 20

// Handlers holds the services behind the routes. wallet may be nil.
type Handlers struct {
	imports *bulkimport.Service
	wallet  *wallet.Service
	health  *HealthChecker
}

func NewHandlers(imports *bulkimport.Service, walletSvc *wallet.Service, health *HealthChecker) *Handlers {
	if health == nil {
		health = NewHealthChecker()
	}
	return &Handlers{imports: imports, wallet: walletSvc, health: health}
}

// writeError maps pipeline errors to a status and renders the friendly message.
func writeError(w http.ResponseWriter, err error) {
	var hdr *bulkimport.HeaderError
	if errors.As(err, &hdr) {
		httputil.Error(w, http.StatusUnprocessableEntity, "header_mismatch", bulkimport.FriendlyMessage(err), hdr.Problems)
		return
	}
	var pre *bulkimport.PreflightError
	if errors.As(err, &pre) {
		logger.Warn("api: preflight failed", "op", pre.Op, "error", err)
		httputil.Error(w, http.StatusServiceUnavailable, "preflight_failed", bulkimport.FriendlyMessage(err), nil)
		return
	}

	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger.Error("api: request failed", "error", err)
	}
	httputil.Error(w, status, code, bulkimport.FriendlyMessage(err), nil)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, bulkimport.ErrExcelNotSupported), errors.Is(err, bulkimport.ErrUnsupportedFileType):
		return http.StatusUnsupportedMediaType, "unsupported_file"
	case errors.Is(err, bulkimport.ErrTooManyRows):
		return http.StatusRequestEntityTooLarge, "too_many_rows"
	case errors.Is(err, bulkimport.ErrUnknownTemplate),
		errors.Is(err, bulkimport.ErrNoDataRows),
		errors.Is(err, bulkimport.ErrUnreadableFile):
		return http.StatusBadRequest, "bad_file"
	case errors.Is(err, bulkimport.ErrNothingToImport):
		return http.StatusUnprocessableEntity, "nothing_to_import"
	case errors.Is(err, bulkimport.ErrPreviewNotFound), errors.Is(err, bulkimport.ErrSessionNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, bulkimport.ErrNotOwner):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, bulkimport.ErrImportInFlight):
		return http.StatusConflict, "import_in_flight"
	case errors.Is(err, bulkimport.ErrAlreadyImported):
		return http.StatusConflict, "already_imported"
	case errors.Is(err, bulkimport.ErrAlreadyUndone), errors.Is(err, bulkimport.ErrInvalidTransition):
		return http.StatusConflict, "invalid_state"
	}
	return http.StatusInternalServerError, "internal"
}
