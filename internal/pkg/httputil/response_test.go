package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Envelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusUnprocessableEntity, "header_mismatch", "header does not match template",
		[]string{`column 2: expected "Destination", found "Dest"`})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "header_mismatch", body.Code)
	assert.Equal(t, "header does not match template", body.Error)
	assert.Len(t, body.Details, 1)
}

func TestDecode(t *testing.T) {
	var dst struct {
		Confirmed []int `json:"confirmed"`
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"confirmed":[2,3]}`))
	require.True(t, Decode(rec, req, &dst))
	assert.Equal(t, []int{2, 3}, dst.Confirmed)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	assert.True(t, Decode(rec, req, &dst), "empty body is allowed")

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{"))
	assert.False(t, Decode(rec, req, &dst))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
