package bulkimport

import (
	"context"
	"fmt"

	"github.com/ignite/loadboard/internal/domain"
	"github.com/ignite/loadboard/internal/pkg/logger"
	"github.com/ignite/loadboard/internal/similarity"
)

const (
	reasonExistingLoad = "Duplicate (existing load)"
	similarityNotice   = "Similarity check unavailable; only exact duplicates were detected."
)

// Detection is what the duplicate detector found beyond the row overlays.
type Detection struct {
	Matches  []domain.DuplicateMatch
	Insights []string
	// Notice is set when the similarity scorer failed; exact checks still ran.
	Notice string
}

// DuplicateDetector overlays duplicate status onto classified rows.
type DuplicateDetector struct {
	lookup    HashLookup
	scorer    similarity.Scorer
	threshold float64
}

// NewDuplicateDetector wires the detector. scorer may be nil to skip the similarity step.
func NewDuplicateDetector(lookup HashLookup, scorer similarity.Scorer, threshold float64) *DuplicateDetector {
	return &DuplicateDetector{lookup: lookup, scorer: scorer, threshold: threshold}
}

// Detect marks rows whose hash is already persisted (whatever their
// validation status), then valid rows repeating an earlier valid row, and
// finally asks the scorer about near-duplicates among non-invalid rows.
// Only a lookup failure is returned as an error.
func (d *DuplicateDetector) Detect(ctx context.Context, rows []domain.NormalizedRow) (Detection, error) {
	var det Detection

	hashes := make([]string, len(rows))
	for i, r := range rows {
		hashes[i] = r.RowHash
	}
	existing, err := d.lookup.ExistingHashes(ctx, hashes)
	if err != nil {
		return det, err
	}
	for i := range rows {
		if existing[rows[i].RowHash] {
			rows[i].MarkDuplicate(reasonExistingLoad)
		}
	}

	firstSeen := make(map[string]int)
	for i := range rows {
		if rows[i].Status != domain.RowValid {
			continue
		}
		if first, ok := firstSeen[rows[i].RowHash]; ok {
			rows[i].MarkDuplicate(fmt.Sprintf("Duplicate (same as row %d in this file)", rows[first].RowNumber))
			continue
		}
		firstSeen[rows[i].RowHash] = i
	}

	if d.scorer == nil {
		return det, nil
	}

	// compact index -> original row index, rebuilt on every call
	var positions []int
	var loads []similarity.Load
	for i, r := range rows {
		if r.Status == domain.RowInvalid {
			continue
		}
		positions = append(positions, i)
		loads = append(loads, toSimilarityLoad(r))
	}
	if len(loads) < 2 {
		return det, nil
	}

	res, err := d.scorer.CheckDuplicates(ctx, loads, similarity.Options{Threshold: d.threshold, CheckExisting: true})
	if err != nil {
		similarityChecks.WithLabelValues("error").Inc()
		logger.Warn("bulkimport: similarity check failed", "rows", len(loads), "error", err)
		det.Notice = similarityNotice
		return det, nil
	}
	similarityChecks.WithLabelValues("ok").Inc()

	for _, m := range res.Duplicates {
		if m.LoadIndex < 0 || m.LoadIndex >= len(positions) || m.MatchedIndex < 0 || m.MatchedIndex >= len(positions) {
			continue
		}
		row := positions[m.LoadIndex]
		if rows[row].Status != domain.RowValid {
			continue
		}
		det.Matches = append(det.Matches, domain.DuplicateMatch{
			RowIndex:       row,
			MatchedIndex:   positions[m.MatchedIndex],
			Similarity:     m.Similarity,
			MatchType:      m.MatchType,
			Recommendation: m.Recommendation,
			AIReason:       m.AIReason,
		})
	}
	det.Insights = append(det.Insights, res.Suggestions.AIInsights...)
	return det, nil
}

// ApplyConfirmed applies the matches the user confirmed (by the new row's
// number). skip_new marks the new row as a duplicate; delete_existing marks
// the earlier row, so the newer rate is the one imported. It returns how many
// rows changed.
func ApplyConfirmed(rows []domain.NormalizedRow, matches []domain.DuplicateMatch, confirmedRows []int) int {
	confirmed := make(map[int]bool, len(confirmedRows))
	for _, n := range confirmedRows {
		confirmed[n] = true
	}
	flipped := 0
	for _, m := range matches {
		if m.RowIndex < 0 || m.RowIndex >= len(rows) || m.MatchedIndex < 0 || m.MatchedIndex >= len(rows) {
			continue
		}
		newer, earlier := &rows[m.RowIndex], &rows[m.MatchedIndex]
		if !confirmed[newer.RowNumber] || newer.Status != domain.RowValid {
			continue
		}
		switch m.Recommendation {
		case domain.RecommendSkipNew:
			newer.MarkDuplicate(fmt.Sprintf("Duplicate (similar to row %d: %s match)", earlier.RowNumber, m.MatchType))
		case domain.RecommendDeleteExisting:
			if earlier.Status != domain.RowValid {
				continue
			}
			earlier.MarkDuplicate(fmt.Sprintf("Duplicate (replaced by row %d with a newer rate)", newer.RowNumber))
		default:
			continue
		}
		flipped++
	}
	return flipped
}

// FlaggedRows lists the row numbers whose match recommends flagging, for auto-confirmation.
func FlaggedRows(rows []domain.NormalizedRow, matches []domain.DuplicateMatch) []int {
	var out []int
	for _, m := range matches {
		if m.Recommendation.Flags() && m.RowIndex >= 0 && m.RowIndex < len(rows) {
			out = append(out, rows[m.RowIndex].RowNumber)
		}
	}
	return out
}

func toSimilarityLoad(r domain.NormalizedRow) similarity.Load {
	return similarity.Load{
		Title:         r.Title,
		EquipmentType: deref(r.EquipmentType),
		Origin:        deref(r.Origin),
		Destination:   deref(r.Destination),
		PickupDate:    deref(r.PickupDate),
		DeliveryDate:  deref(r.DeliveryDate),
		Rate:          r.Rate,
	}
}
