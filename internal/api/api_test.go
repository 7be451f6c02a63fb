package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/ignite/loadboard/internal/bulkimport"
	"github.com/ignite/loadboard/internal/docstore"
	"github.com/ignite/loadboard/internal/domain"
	"github.com/ignite/loadboard/internal/history"
	"github.com/ignite/loadboard/internal/pkg/distlock"
	"github.com/ignite/loadboard/internal/similarity"
	"github.com/ignite/loadboard/internal/wallet"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const threeRowFile = "Origin,Destination,VehicleType,Weight,Price\n" +
	"Dallas,Atlanta,Van,1000,\"$1,200\"\n" +
	"Houston,,Reefer,500,900\n" +
	"dallas,ATLANTA,van,1000,\"$1,200\"\n"

// failingStore fails the nth CommitBatch call.
type failingStore struct {
	*docstore.MemoryStore
	mu     sync.Mutex
	calls  int
	failOn int
}

func (s *failingStore) CommitBatch(ctx context.Context, writes []docstore.Write) error {
	s.mu.Lock()
	s.calls++
	fail := s.calls == s.failOn
	s.mu.Unlock()
	if fail {
		return errors.New("connection reset by peer")
	}
	return s.MemoryStore.CommitBatch(ctx, writes)
}

type apiFixture struct {
	server *httptest.Server
	store  *failingStore
}

func setupAPITest(t *testing.T, cfg bulkimport.ExecutorConfig) *apiFixture {
	t.Helper()
	store := &failingStore{MemoryStore: docstore.NewMemoryStore()}
	hist := history.NewMemoryStore()
	loads := bulkimport.NewLoadRepository(store, 0)
	svc := bulkimport.NewService(bulkimport.ServiceDeps{
		Detector: bulkimport.NewDuplicateDetector(loads, similarity.NewLocalScorer(), similarity.DefaultThreshold),
		Executor: bulkimport.NewExecutor(store, loads, distlock.NewLocalLocker(), hist, cfg),
		Undoer:   bulkimport.NewUndoer(store, loads, hist, 0),
		Previews: hist,
		History:  hist,
	})
	walletSvc := wallet.NewService(store, 10)

	health := NewHealthChecker(SQLProbe(nil), StoreProbe(store))
	srv := httptest.NewServer(SetupRoutes(NewHandlers(svc, walletSvc, health), nil))
	t.Cleanup(srv.Close)
	return &apiFixture{server: srv, store: store}
}

func (f *apiFixture) do(t *testing.T, method, path, user string, body []byte, contentType string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, f.server.URL+path, bytes.NewReader(body))
	require.NoError(t, err)
	if user != "" {
		req.Header.Set(userHeader, user)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (f *apiFixture) upload(t *testing.T, user, fileName, template, content string) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("template", template))
	require.NoError(t, mw.Close())
	return f.do(t, http.MethodPost, "/api/import/preview", user, buf.Bytes(), mw.FormDataContentType())
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth_NoDependencies(t *testing.T) {
	f := setupAPITest(t, bulkimport.ExecutorConfig{})

	resp := f.do(t, http.MethodGet, "/health", "", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[HealthStatus](t, resp)
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "not_configured", body.Checks["database"].Status)
	assert.Equal(t, "up", body.Checks["store"].Status)

	resp = f.do(t, http.MethodGet, "/health/ready", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHealth_Readiness(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	mock.ExpectPing().WillReturnError(errors.New("connection refused"))

	hc := NewHealthChecker(SQLProbe(db), RedisProbe(rdb))
	rec := httptest.NewRecorder()
	hc.HandleReadiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "down", body.Checks["database"].Status)
	assert.Equal(t, "up", body.Checks["redis"].Status)
}

func TestAPI_RequiresUser(t *testing.T) {
	f := setupAPITest(t, bulkimport.ExecutorConfig{})
	resp := f.do(t, http.MethodGet, "/api/import/templates", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_Templates(t *testing.T) {
	f := setupAPITest(t, bulkimport.ExecutorConfig{})

	resp := f.do(t, http.MethodGet, "/api/import/templates", "u1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string][]bulkimport.TemplateInfo](t, resp)
	assert.Len(t, body["templates"], 3)

	resp = f.do(t, http.MethodGet, "/api/import/templates/simple/sample.csv", "u1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	assert.Equal(t, bulkimport.HeaderLine(domain.TemplateSimple)+"\r\n", buf.String())

	resp = f.do(t, http.MethodGet, "/api/import/templates/bogus/sample.csv", "u1", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_PreviewCommitUndo(t *testing.T) {
	f := setupAPITest(t, bulkimport.ExecutorConfig{})

	resp := f.upload(t, "u1", "loads.csv", "simple", threeRowFile)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	preview := decode[PreviewResponse](t, resp)
	assert.Equal(t, domain.StatePreviewing, preview.State)
	assert.Equal(t, 1, preview.Counts[domain.RowValid])
	assert.Equal(t, 1, preview.Counts[domain.RowInvalid])
	assert.Equal(t, 1, preview.Counts[domain.RowDuplicate])
	require.Len(t, preview.Rows, 3)

	resp = f.do(t, http.MethodGet, "/api/import/previews/"+preview.PreviewID, "u1", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/import/previews/"+preview.PreviewID+"/commit", "u1",
		[]byte(`{"confirmedRows":[]}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	commit := decode[CommitResponse](t, resp)
	assert.Equal(t, 1, commit.Imported)
	assert.Equal(t, domain.StateCompleted, commit.Status)
	assert.NotEmpty(t, commit.SessionID)
	assert.Empty(t, commit.Error)

	resp = f.do(t, http.MethodGet, "/api/import/previews/"+preview.PreviewID+"/progress", "u1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, domain.Progress{Current: 1, Total: 1}, decode[domain.Progress](t, resp))

	resp = f.do(t, http.MethodGet, "/api/import/previews/"+preview.PreviewID+"/skipped.csv", "u1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "skipped-"+preview.PreviewID)
	var csvBody bytes.Buffer
	csvBody.ReadFrom(resp.Body)
	assert.Len(t, strings.Split(strings.TrimSpace(csvBody.String()), "\r\n"), 3)

	resp = f.do(t, http.MethodPost, "/api/import/previews/"+preview.PreviewID+"/commit", "u1", nil, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/import/history", "u1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	hist := decode[struct {
		RecentUploads []domain.PostedLoad    `json:"recentUploads"`
		LastImport    *domain.ImportSession `json:"lastImport"`
	}](t, resp)
	require.Len(t, hist.RecentUploads, 1)
	require.NotNil(t, hist.LastImport)
	assert.Equal(t, commit.SessionID, hist.LastImport.ID)

	resp = f.do(t, http.MethodPost, "/api/import/sessions/"+commit.SessionID+"/undo", "u1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	receipt := decode[domain.UndoReceipt](t, resp)
	assert.Equal(t, 1, receipt.Records)

	resp = f.do(t, http.MethodPost, "/api/import/sessions/"+commit.SessionID+"/undo", "u1", nil, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_PreviewRejections(t *testing.T) {
	f := setupAPITest(t, bulkimport.ExecutorConfig{})

	resp := f.upload(t, "u1", "loads.csv", "simple", "Pickup,Dropoff\nDallas,Atlanta\n")
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	body := decode[struct {
		Code    string   `json:"code"`
		Details []string `json:"details"`
	}](t, resp)
	assert.Equal(t, "header_mismatch", body.Code)
	assert.NotEmpty(t, body.Details)

	resp = f.upload(t, "u1", "loads.xlsx", "simple", threeRowFile)
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)

	resp = f.upload(t, "u1", "loads.csv", "bogus", threeRowFile)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.upload(t, "u1", "loads.csv", "simple", "Origin,Destination,VehicleType,Weight,Price\n")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_OtherUsersPreview(t *testing.T) {
	f := setupAPITest(t, bulkimport.ExecutorConfig{})

	resp := f.upload(t, "u1", "loads.csv", "simple", threeRowFile)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	preview := decode[PreviewResponse](t, resp)

	resp = f.do(t, http.MethodGet, "/api/import/previews/"+preview.PreviewID, "u2", nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/import/previews/"+preview.PreviewID+"/commit", "u2", nil, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/import/previews/missing", "u1", nil, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_PartialImport(t *testing.T) {
	f := setupAPITest(t, bulkimport.ExecutorConfig{BatchSize: 1})
	f.store.failOn = 2

	file := "Origin,Destination,VehicleType,Weight,Price\n" +
		"Dallas,Atlanta,Van,1000,1200\n" +
		"Houston,Memphis,Reefer,500,900\n"
	resp := f.upload(t, "u1", "loads.csv", "simple", file)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	preview := decode[PreviewResponse](t, resp)

	resp = f.do(t, http.MethodPost, "/api/import/previews/"+preview.PreviewID+"/commit", "u1",
		[]byte(`{"autoConfirm":true}`), "application/json")
	require.Equal(t, http.StatusMultiStatus, resp.StatusCode)
	commit := decode[CommitResponse](t, resp)
	assert.Equal(t, 1, commit.Imported)
	assert.Equal(t, domain.StatePartiallyCompleted, commit.Status)
	assert.NotEmpty(t, commit.Error)
	assert.Equal(t, 1, f.store.Len(bulkimport.CollectionLoads))
}

func TestAPI_CommitOfAlreadyImportedRows(t *testing.T) {
	f := setupAPITest(t, bulkimport.ExecutorConfig{})
	file := "Origin,Destination,VehicleType,Weight,Price\n" +
		"Dallas,Atlanta,Van,1000,1200\n"

	var ids []string
	for range 2 {
		resp := f.upload(t, "u1", "loads.csv", "simple", file)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		ids = append(ids, decode[PreviewResponse](t, resp).PreviewID)
	}

	resp := f.do(t, http.MethodPost, "/api/import/previews/"+ids[0]+"/commit", "u1", []byte(`{}`), "application/json")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[CommitResponse](t, resp)

	resp = f.do(t, http.MethodPost, "/api/import/previews/"+ids[1]+"/commit", "u1", []byte(`{}`), "application/json")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	body := decode[struct {
		Code string `json:"code"`
	}](t, resp)
	assert.Equal(t, "already_imported", body.Code)
	assert.Equal(t, 1, f.store.Len(bulkimport.CollectionSessions))

	resp = f.do(t, http.MethodGet, "/api/import/history", "u1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	hist := decode[struct {
		LastImport *domain.ImportSession `json:"lastImport"`
	}](t, resp)
	require.NotNil(t, hist.LastImport)
	assert.Equal(t, first.SessionID, hist.LastImport.ID)
}

func TestAPI_WalletSummary(t *testing.T) {
	f := setupAPITest(t, bulkimport.ExecutorConfig{})
	resp := f.do(t, http.MethodPost, "/api/wallet/transactions", "u1",
		[]byte(`{"type":"payment","amount":"1000","loadId":"load-1"}`), "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	tx := decode[wallet.Transaction](t, resp)
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, "u1", tx.UserID)
	assert.True(t, decimal.RequireFromString("1000").Equal(tx.Amount))

	resp = f.do(t, http.MethodPost, "/api/wallet/transactions", "u1",
		[]byte(`{"type":"payout","amount":500}`), "application/json")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	for _, body := range []string{
		`{"type":"payment","amount":"-5"}`,
		`{"type":"bonus","amount":"5"}`,
		`{"type":"payment","amount":"lots"}`,
	} {
		resp = f.do(t, http.MethodPost, "/api/wallet/transactions", "u1", []byte(body), "application/json")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}

	resp = f.do(t, http.MethodGet, "/api/wallet/summary", "u1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	sum := decode[wallet.Summary](t, resp)
	assert.Equal(t, "100", sum.PlatformFees.String())
	assert.Equal(t, "400", sum.AvailableBalance.String())

	resp = f.do(t, http.MethodGet, "/api/wallet/transactions", "u1", nil, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	txs := decode[struct {
		Count int `json:"count"`
	}](t, resp)
	assert.Equal(t, 2, txs.Count)
}

func TestAPI_Metrics(t *testing.T) {
	f := setupAPITest(t, bulkimport.ExecutorConfig{})
	resp := f.do(t, http.MethodGet, "/metrics", "", nil, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
