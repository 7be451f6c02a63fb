package similarity

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ignite/loadboard/internal/domain"
	"github.com/lithammer/fuzzysearch/fuzzy"
	"golang.org/x/text/cases"
)

// Dimension weights of the overall score.
const (
	weightLocation  = 0.40
	weightRate      = 0.25
	weightTiming    = 0.20
	weightEquipment = 0.15
)

// DefaultThreshold is used when Options.Threshold is zero.
const DefaultThreshold = 0.75

// LocalScorer compares every pair in process. It is the default scorer and the
// fallback base of the Bedrock scorer.
// It is safe for concurrent use.
type LocalScorer struct{}

func NewLocalScorer() *LocalScorer { return &LocalScorer{} }

// CheckDuplicates reports, for each load, its best match among earlier loads
// when the overall score reaches the threshold.
func (s *LocalScorer) CheckDuplicates(ctx context.Context, loads []Load, opts Options) (Result, error) {
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	res := Result{Duplicates: []Duplicate{}}

	for j := 1; j < len(loads); j++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		best := -1
		var bestScores domain.SimilarityScores
		for i := 0; i < j; i++ {
			sc := s.Score(loads[i], loads[j])
			if sc.Overall >= threshold && sc.Overall > bestScores.Overall {
				best, bestScores = i, sc
			}
		}
		if best < 0 {
			continue
		}
		mt := classify(bestScores)
		res.Duplicates = append(res.Duplicates, Duplicate{
			LoadIndex:      j,
			MatchedIndex:   best,
			Similarity:     bestScores,
			MatchType:      mt,
			Recommendation: recommend(mt, bestScores),
		})
	}
	res.Suggestions = summarize(res.Duplicates)
	return res, nil
}

// Score compares two loads on every dimension.
func (s *LocalScorer) Score(a, b Load) domain.SimilarityScores {
	fold := cases.Fold()
	sc := domain.SimilarityScores{
		Location:  (textScore(fold, a.Origin, b.Origin) + textScore(fold, a.Destination, b.Destination)) / 2,
		Rate:      rateScore(a.Rate, b.Rate),
		Timing:    (dateScore(a.PickupDate, b.PickupDate) + dateScore(a.DeliveryDate, b.DeliveryDate)) / 2,
		Equipment: textScore(fold, a.EquipmentType, b.EquipmentType),
	}
	sc.Overall = round(weightLocation*sc.Location + weightRate*sc.Rate +
		weightTiming*sc.Timing + weightEquipment*sc.Equipment)
	sc.Location = round(sc.Location)
	sc.Rate = round(sc.Rate)
	sc.Timing = round(sc.Timing)
	sc.Equipment = round(sc.Equipment)
	return sc
}

// textScore is 1 - levenshtein/maxLen over case-folded, trimmed strings.
func textScore(fold cases.Caser, a, b string) float64 {
	a = fold.String(strings.Join(strings.Fields(a), " "))
	b = fold.String(strings.Join(strings.Fields(b), " "))
	switch {
	case a == b:
		return 1
	case a == "" || b == "":
		return 0
	}
	maxLen := math.Max(float64(len([]rune(a))), float64(len([]rune(b))))
	return math.Max(0, 1-float64(fuzzy.LevenshteinDistance(a, b))/maxLen)
}

func rateScore(a, b *float64) float64 {
	switch {
	case a == nil && b == nil:
		return 1
	case a == nil || b == nil:
		return 0
	}
	hi := math.Max(*a, *b)
	if hi == 0 {
		return 1
	}
	return 1 - math.Abs(*a-*b)/hi
}

func dateScore(a, b string) float64 {
	ta, errA := time.Parse("2006-01-02", a)
	tb, errB := time.Parse("2006-01-02", b)
	if errA != nil || errB != nil {
		if a == b {
			return 1
		}
		return 0
	}
	days := math.Abs(ta.Sub(tb).Hours() / 24)
	switch {
	case days == 0:
		return 1
	case days <= 1:
		return 0.8
	case days <= 3:
		return 0.6
	case days <= 7:
		return 0.4
	default:
		return 0.2
	}
}

// classify grades a pair. Exact needs an identical rate, so a repriced load
// on the same lane is at most high.
func classify(sc domain.SimilarityScores) domain.MatchType {
	switch {
	case sc.Overall >= 0.98 && sc.Rate == 1:
		return domain.MatchExact
	case sc.Overall >= 0.90:
		return domain.MatchHigh
	default:
		return domain.MatchMedium
	}
}

func recommend(mt domain.MatchType, sc domain.SimilarityScores) domain.Recommendation {
	switch mt {
	case domain.MatchExact:
		return domain.RecommendSkipNew
	case domain.MatchHigh:
		// same lane and dates, new price: the new row supersedes the earlier one
		if sc.Rate < 1 && sc.Location == 1 && sc.Timing == 1 {
			return domain.RecommendDeleteExisting
		}
		return domain.RecommendMerge
	default:
		return domain.RecommendKeepBoth
	}
}

func summarize(dups []Duplicate) Suggestions {
	counts := map[domain.Recommendation]int{}
	for _, d := range dups {
		counts[d.Recommendation]++
	}
	out := Suggestions{TotalDuplicates: len(dups), RecommendedActions: []string{}, AIInsights: []string{}}
	labels := []struct {
		rec  domain.Recommendation
		text string
	}{
		{domain.RecommendSkipNew, "skip %d load(s) that repeat an earlier row"},
		{domain.RecommendDeleteExisting, "replace %d earlier load(s) with the newer rate"},
		{domain.RecommendMerge, "merge %d near-identical load(s)"},
		{domain.RecommendKeepBoth, "review %d similar load(s); keeping both is likely fine"},
	}
	for _, l := range labels {
		if n := counts[l.rec]; n > 0 {
			out.RecommendedActions = append(out.RecommendedActions, fmt.Sprintf(l.text, n))
		}
	}
	return out
}

func round(f float64) float64 { return math.Round(f*1000) / 1000 }
