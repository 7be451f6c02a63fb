package domain

import "time"

// MatchType grades a similarity match.
type MatchType string

const (
	MatchExact  MatchType = "exact"
	MatchHigh   MatchType = "high"
	MatchMedium MatchType = "medium"
)

// Recommendation is the action a similarity scorer suggests for a match.
type Recommendation string

const (
	RecommendDeleteExisting Recommendation = "delete_existing"
	RecommendMerge          Recommendation = "merge"
	RecommendKeepBoth       Recommendation = "keep_both"
	RecommendSkipNew        Recommendation = "skip_new"
)

// Flags reports whether confirming r marks the new row as a duplicate.
func (r Recommendation) Flags() bool {
	return r == RecommendSkipNew || r == RecommendDeleteExisting
}

// SimilarityScores are the per-dimension scores of a pair, each in [0,1].
type SimilarityScores struct {
	Overall   float64 `json:"overall"`
	Location  float64 `json:"location"`
	Rate      float64 `json:"rate"`
	Timing    float64 `json:"timing"`
	Equipment float64 `json:"equipment"`
}

// DuplicateMatch is a similarity finding expressed in file row positions
// (0-based indices into the classified row slice).
type DuplicateMatch struct {
	RowIndex       int              `json:"rowIndex"`
	MatchedIndex   int              `json:"matchedIndex"`
	Similarity     SimilarityScores `json:"similarity"`
	MatchType      MatchType        `json:"matchType"`
	Recommendation Recommendation   `json:"recommendation"`
	AIReason       string           `json:"aiReason,omitempty"`
}

// Progress is the {current,total} indicator of a running import.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Preview is a classified file awaiting user confirmation.
type Preview struct {
	ID           string           `json:"id"`
	UserID       string           `json:"userId"`
	TemplateType TemplateType     `json:"templateType"`
	FileName     string           `json:"fileName"`
	State        State            `json:"state"`
	Rows         []NormalizedRow  `json:"rows"`
	Matches      []DuplicateMatch `json:"matches,omitempty"`
	Insights     []string         `json:"insights,omitempty"`
	Notice       string           `json:"notice,omitempty"`
	SessionID    string           `json:"sessionId,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// Counts tallies rows by status.
func (p *Preview) Counts() map[RowStatus]int {
	out := map[RowStatus]int{RowValid: 0, RowInvalid: 0, RowDuplicate: 0}
	for _, r := range p.Rows {
		out[r.Status]++
	}
	return out
}
