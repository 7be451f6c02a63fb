// Package similarity scores pairs of loads in one import batch and suggests
// what to do with near-duplicates. Results are advisory: the import flow
// keeps going when a scorer fails.
package similarity

import (
	"context"
	"errors"

	"github.com/ignite/loadboard/internal/domain"
)

// ErrUnavailable wraps failures reaching a remote scorer.
var ErrUnavailable = errors.New("similarity: scorer unavailable")

// Load is the view of a row a scorer compares. Indices in a Result refer to
// positions in the slice passed to CheckDuplicates.
type Load struct {
	Title         string   `json:"title"`
	EquipmentType string   `json:"equipmentType,omitempty"`
	Origin        string   `json:"origin,omitempty"`
	Destination   string   `json:"destination,omitempty"`
	PickupDate    string   `json:"pickupDate,omitempty"`
	DeliveryDate  string   `json:"deliveryDate,omitempty"`
	Rate          *float64 `json:"rate,omitempty"`
}

// Options control a check.
type Options struct {
	Threshold     float64 `json:"threshold"`
	CheckExisting bool    `json:"checkExisting"`
}

// Duplicate pairs LoadIndex with an earlier MatchedIndex in the same batch.
type Duplicate struct {
	LoadIndex      int                     `json:"loadIndex"`
	MatchedIndex   int                     `json:"matchedIndex"`
	Similarity     domain.SimilarityScores `json:"similarity"`
	MatchType      domain.MatchType        `json:"matchType"`
	Recommendation domain.Recommendation   `json:"recommendation"`
	AIReason       string                  `json:"aiReason,omitempty"`
}

// Suggestions summarize a Result for display.
type Suggestions struct {
	TotalDuplicates    int      `json:"totalDuplicates"`
	RecommendedActions []string `json:"recommendedActions"`
	AIInsights         []string `json:"aiInsights"`
}

// Result is what a Scorer returns.
type Result struct {
	Duplicates  []Duplicate `json:"duplicates"`
	Suggestions Suggestions `json:"suggestions"`
}

// Scorer finds near-duplicate loads.
type Scorer interface {
	CheckDuplicates(ctx context.Context, loads []Load, opts Options) (Result, error)
}
