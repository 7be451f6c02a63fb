package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ignite/loadboard/internal/bulkimport"
	"github.com/ignite/loadboard/internal/domain"
	"github.com/ignite/loadboard/internal/pkg/httputil"
)

// PreviewResponse is a classified file awaiting confirmation.
type PreviewResponse struct {
	PreviewID   string                   `json:"previewId"`
	State       domain.State             `json:"state"`
	Template    domain.TemplateType      `json:"template"`
	FileName    string                   `json:"fileName"`
	Counts      map[domain.RowStatus]int `json:"counts"`
	Rows        []domain.NormalizedRow   `json:"rows"`
	Matches     []domain.DuplicateMatch  `json:"matches"`
	FlaggedRows []int                    `json:"flaggedRows"`
	Insights    []string                 `json:"insights,omitempty"`
	Notice      string                   `json:"notice,omitempty"`
	SessionID   string                   `json:"sessionId,omitempty"`
}

func previewResponse(p *domain.Preview) PreviewResponse {
	matches := p.Matches
	if matches == nil {
		matches = []domain.DuplicateMatch{}
	}
	flagged := bulkimport.FlaggedRows(p.Rows, p.Matches)
	if flagged == nil {
		flagged = []int{}
	}
	return PreviewResponse{
		PreviewID:   p.ID,
		State:       p.State,
		Template:    p.TemplateType,
		FileName:    p.FileName,
		Counts:      p.Counts(),
		Rows:        p.Rows,
		Matches:     matches,
		FlaggedRows: flagged,
		Insights:    p.Insights,
		Notice:      p.Notice,
		SessionID:   p.SessionID,
	}
}

// CommitRequest lists the similarity matches the user confirmed, by row number.
type CommitRequest struct {
	ConfirmedRows []int `json:"confirmedRows"`
	// AutoConfirm confirms every flagged row.
	AutoConfirm bool `json:"autoConfirm"`
}

// CommitResponse reports an import. Error is set on a partial import.
type CommitResponse struct {
	SessionID         string                   `json:"sessionId"`
	Status            domain.State             `json:"status"`
	Imported          int                      `json:"imported"`
	SkippedDuplicates int                      `json:"skippedDuplicates"`
	Batches           int                      `json:"batches"`
	Counts            map[domain.RowStatus]int `json:"counts"`
	Error             string                   `json:"error,omitempty"`
}

// ListTemplates returns the header contract of every template.
//
//	GET /api/import/templates
func (h *Handlers) ListTemplates(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{"templates": bulkimport.Templates()})
}

// SampleCSV serves an empty file with the template header.
//
//	GET /api/import/templates/{template}/sample.csv
func (h *Handlers) SampleCSV(w http.ResponseWriter, r *http.Request) {
	t := domain.TemplateType(chi.URLParam(r, "template"))
	if !t.Valid() {
		httputil.NotFound(w, "unknown template "+string(t))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+string(t)+`-template.csv"`)
	io.WriteString(w, bulkimport.HeaderLine(t)+"\r\n")
}

// CreatePreview classifies an uploaded file.
//
//	POST /api/import/preview   multipart: file, template
func (h *Handlers) CreatePreview(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httputil.Error(w, http.StatusRequestEntityTooLarge, "file_too_large", "file is too large", nil)
			return
		}
		httputil.BadRequest(w, "expected a multipart form with a file field")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.BadRequest(w, "missing file")
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(file, maxUploadBytes+1)); err != nil {
		httputil.BadRequest(w, "could not read the uploaded file")
		return
	}
	if buf.Len() > maxUploadBytes {
		httputil.Error(w, http.StatusRequestEntityTooLarge, "file_too_large", "file is too large", nil)
		return
	}

	template := r.FormValue("template")
	if template == "" {
		template = string(domain.TemplateSimple)
	}
	p, err := h.imports.Preview(r.Context(), bulkimport.PreviewRequest{
		UserID:   userFrom(r),
		FileName: header.Filename,
		Template: domain.TemplateType(template),
		Data:     buf.Bytes(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.Created(w, previewResponse(p))
}

// GetPreview returns a cached preview.
//
//	GET /api/import/previews/{previewId}
func (h *Handlers) GetPreview(w http.ResponseWriter, r *http.Request) {
	p, err := h.imports.LoadPreview(r.Context(), chi.URLParam(r, "previewId"), userFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, previewResponse(p))
}

// GetProgress reports the running import of a preview.
//
//	GET /api/import/previews/{previewId}/progress
func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "previewId")
	if _, err := h.imports.LoadPreview(r.Context(), id, userFrom(r)); err != nil {
		writeError(w, err)
		return
	}
	p, err := h.imports.Progress(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, p)
}

// CommitPreview imports the valid rows of a preview. A partial import
// answers 207 with the written count and the reason it stopped.
//
//	POST /api/import/previews/{previewId}/commit
func (h *Handlers) CommitPreview(w http.ResponseWriter, r *http.Request) {
	var req CommitRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	id, user := chi.URLParam(r, "previewId"), userFrom(r)

	confirmed := req.ConfirmedRows
	if req.AutoConfirm {
		p, err := h.imports.LoadPreview(r.Context(), id, user)
		if err != nil {
			writeError(w, err)
			return
		}
		confirmed = append(confirmed, bulkimport.FlaggedRows(p.Rows, p.Matches)...)
	}

	p, res, err := h.imports.Commit(r.Context(), id, user, confirmed)
	if err != nil && (res == nil || res.Imported == 0) {
		writeError(w, err)
		return
	}
	if res == nil {
		httputil.InternalError(w, errors.New("import returned no result"))
		return
	}

	out := CommitResponse{
		SessionID:         res.SessionID,
		Status:            res.Status,
		Imported:          res.Imported,
		SkippedDuplicates: res.SkippedDuplicates,
		Batches:           res.Batches,
		Counts:            p.Counts(),
	}
	if err != nil {
		out.Error = bulkimport.FriendlyMessage(err)
		httputil.JSON(w, http.StatusMultiStatus, out)
		return
	}
	httputil.OK(w, out)
}

// DownloadSkipped streams the invalid and duplicate rows of a preview as CSV.
//
//	GET /api/import/previews/{previewId}/skipped.csv
func (h *Handlers) DownloadSkipped(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "previewId")
	var buf bytes.Buffer
	if _, err := h.imports.SkippedRows(r.Context(), id, userFrom(r), &buf); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="skipped-`+id+`.csv"`)
	w.Write(buf.Bytes())
}

// UndoSession soft-deletes every load of an import.
//
//	POST /api/import/sessions/{sessionId}/undo
func (h *Handlers) UndoSession(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.imports.Undo(r.Context(), chi.URLParam(r, "sessionId"), userFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.OK(w, receipt)
}

// History lists recent uploads and the last import receipt.
//
//	GET /api/import/history?limit=20
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}
	user := userFrom(r)

	recent, err := h.imports.RecentUploads(r.Context(), user, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if recent == nil {
		recent = []domain.PostedLoad{}
	}
	last, err := h.imports.LastImport(r.Context(), user)
	if err != nil && !errors.Is(err, bulkimport.ErrSessionNotFound) {
		writeError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"recentUploads": recent,
		"lastImport":    last,
	})
}
