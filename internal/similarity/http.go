package similarity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ignite/loadboard/internal/pkg/httpretry"
)

// HTTPScorer calls a remote scoring service: POST {base}/v1/duplicates/check.
type HTTPScorer struct {
	baseURL string
	client  httpretry.Doer
}

// NewHTTPScorer sends requests through client, typically an *httpretry.Client.
func NewHTTPScorer(baseURL string, client httpretry.Doer) *HTTPScorer {
	if client == nil {
		client = httpretry.New(nil, httpretry.Options{})
	}
	return &HTTPScorer{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type checkRequest struct {
	Loads []Load `json:"loads"`
	Options
}

func (s *HTTPScorer) CheckDuplicates(ctx context.Context, loads []Load, opts Options) (Result, error) {
	body, err := json.Marshal(checkRequest{Loads: loads, Options: opts})
	if err != nil {
		return Result{}, fmt.Errorf("encode similarity request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/duplicates/check", bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return Result{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}
	// drop pairs pointing outside the batch rather than trusting the service
	valid := res.Duplicates[:0]
	for _, d := range res.Duplicates {
		if d.LoadIndex >= 0 && d.LoadIndex < len(loads) && d.MatchedIndex >= 0 && d.MatchedIndex < len(loads) {
			valid = append(valid, d)
		}
	}
	res.Duplicates = valid
	return res, nil
}
