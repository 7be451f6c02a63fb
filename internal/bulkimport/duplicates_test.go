package bulkimport

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/ignite/loadboard/internal/docstore"
	"github.com/ignite/loadboard/internal/domain"
	"github.com/ignite/loadboard/internal/similarity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScorer struct {
	result similarity.Result
	err    error
	got    []similarity.Load
}

func (f *fakeScorer) CheckDuplicates(_ context.Context, loads []similarity.Load, _ similarity.Options) (similarity.Result, error) {
	f.got = loads
	return f.result, f.err
}

func classifySimple(raws ...domain.RawRow) []domain.NormalizedRow {
	return Classify(raws, domain.TemplateSimple, NewNormalizer(fixedNow))
}

func seedLoad(t *testing.T, store docstore.Store, id, hash, status string) {
	t.Helper()
	require.NoError(t, store.Set(context.Background(), CollectionLoads, id, docstore.Document{
		"rowHash": hash, "status": status, "createdBy": "someone",
	}, false))
}

func TestDetect_SiblingDuplicates(t *testing.T) {
	store := docstore.NewMemoryStore()
	d := NewDuplicateDetector(NewLoadRepository(store, 0), nil, 0.75)

	rows := classifySimple(
		simpleRow("Dallas", "Atlanta", "Van", "1000", "$1,200"),
		simpleRow("Houston", "", "Reefer", "", "900"),
		simpleRow("dallas", "ATLANTA", "van", "1000", "1200"),
	)
	det, err := d.Detect(context.Background(), rows)
	require.NoError(t, err)
	assert.Empty(t, det.Matches)

	assert.Equal(t, domain.RowValid, rows[0].Status)
	assert.Equal(t, domain.RowInvalid, rows[1].Status)
	assert.Equal(t, domain.RowDuplicate, rows[2].Status)
	assert.Equal(t, []string{"Duplicate (same as row 1 in this file)"}, rows[2].Errors)
}

func TestDetect_ExistingLoadKeepsValidationErrors(t *testing.T) {
	store := docstore.NewMemoryStore()
	rows := classifySimple(
		simpleRow("Dallas", "Atlanta", "Van", "", "abc"),
		simpleRow("Reno", "Boise", "Flatbed", "", "3000"),
	)
	require.Equal(t, domain.RowInvalid, rows[0].Status)
	seedLoad(t, store, "old-1", rows[0].RowHash, string(domain.LoadOpen))
	seedLoad(t, store, "old-2", rows[1].RowHash, string(domain.LoadDeleted))

	det, err := NewDuplicateDetector(NewLoadRepository(store, 0), nil, 0.75).Detect(context.Background(), rows)
	require.NoError(t, err)
	assert.Empty(t, det.Notice)

	assert.Equal(t, domain.RowDuplicate, rows[0].Status)
	assert.Equal(t, []string{"Price must be a valid number ≥ 0", "Duplicate (existing load)"}, rows[0].Errors)
	assert.Equal(t, domain.RowValid, rows[1].Status, "deleted loads do not count")
}

func TestDetect_LookupChunks(t *testing.T) {
	store := docstore.NewMemoryStore()
	var raws []domain.RawRow
	for i := 0; i < 70; i++ {
		raws = append(raws, simpleRow("Dallas", "Atlanta", "Van", "", strconv.Itoa(1000+i)))
	}
	rows := classifySimple(raws...)
	seedLoad(t, store, "old", rows[65].RowHash, string(domain.LoadOpen))

	_, err := NewDuplicateDetector(NewLoadRepository(store, 0), nil, 0.75).Detect(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, domain.RowDuplicate, rows[65].Status)
	assert.Equal(t, domain.RowValid, rows[64].Status)
}

func TestDetect_SimilarityIndicesMapToFileRows(t *testing.T) {
	scorer := &fakeScorer{result: similarity.Result{
		Duplicates: []similarity.Duplicate{
			{LoadIndex: 1, MatchedIndex: 0, MatchType: domain.MatchHigh, Recommendation: domain.RecommendMerge, AIReason: "same lane"},
			{LoadIndex: 7, MatchedIndex: 0},
		},
		Suggestions: similarity.Suggestions{AIInsights: []string{"two loads look alike"}},
	}}
	rows := classifySimple(
		simpleRow("Dallas", "Atlanta", "Van", "", "1200"),
		simpleRow("", "Atlanta", "Van", "", "1200"),
		simpleRow("Dallas", "Atlanta", "Van", "", "1150"),
	)

	det, err := NewDuplicateDetector(NewLoadRepository(docstore.NewMemoryStore(), 0), scorer, 0.75).Detect(context.Background(), rows)
	require.NoError(t, err)
	require.Len(t, scorer.got, 2, "invalid rows are not scored")
	require.Len(t, det.Matches, 1)
	assert.Equal(t, 2, det.Matches[0].RowIndex)
	assert.Equal(t, 0, det.Matches[0].MatchedIndex)
	assert.Equal(t, "same lane", det.Matches[0].AIReason)
	assert.Equal(t, []string{"two loads look alike"}, det.Insights)
}

func TestDetect_SimilarityFailureIsNotFatal(t *testing.T) {
	scorer := &fakeScorer{err: similarity.ErrUnavailable}
	rows := classifySimple(
		simpleRow("Dallas", "Atlanta", "Van", "", "1200"),
		simpleRow("Dallas", "Atlanta", "Van", "", "1150"),
	)

	det, err := NewDuplicateDetector(NewLoadRepository(docstore.NewMemoryStore(), 0), scorer, 0.75).Detect(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, similarityNotice, det.Notice)
	assert.Empty(t, det.Matches)
	assert.Equal(t, domain.RowValid, rows[0].Status)
	assert.Equal(t, domain.RowValid, rows[1].Status)
}

type failingLookup struct{}

func (failingLookup) ExistingHashes(context.Context, []string) (map[string]bool, error) {
	return nil, errors.New("permission-denied")
}

func TestDetect_LookupFailureIsFatal(t *testing.T) {
	rows := classifySimple(simpleRow("Dallas", "Atlanta", "Van", "", "1200"))
	_, err := NewDuplicateDetector(failingLookup{}, nil, 0.75).Detect(context.Background(), rows)
	require.Error(t, err)
}

func TestApplyConfirmed(t *testing.T) {
	rows := classifySimple(
		simpleRow("Dallas", "Atlanta", "Van", "", "1200"),
		simpleRow("Dallas", "Atlanta", "Van", "", "1199"),
		simpleRow("Dallas", "Atlanta", "Van", "", "1000"),
	)
	matches := []domain.DuplicateMatch{
		{RowIndex: 1, MatchedIndex: 0, MatchType: domain.MatchExact, Recommendation: domain.RecommendSkipNew},
		{RowIndex: 2, MatchedIndex: 0, MatchType: domain.MatchMedium, Recommendation: domain.RecommendKeepBoth},
	}

	assert.Equal(t, []int{2}, FlaggedRows(rows, matches))

	n := ApplyConfirmed(rows, matches, []int{2, 3})
	assert.Equal(t, 1, n)
	assert.Equal(t, domain.RowDuplicate, rows[1].Status)
	assert.Equal(t, []string{"Duplicate (similar to row 1: exact match)"}, rows[1].Errors)
	assert.Equal(t, domain.RowValid, rows[2].Status, "keep_both is never flipped")

	assert.Zero(t, ApplyConfirmed(rows, matches, []int{2}), "already flipped")
}

func TestApplyConfirmed_NewerRateReplacesEarlierRow(t *testing.T) {
	rows := classifySimple(
		simpleRow("Dallas", "Atlanta", "Van", "", "1200"),
		simpleRow("Dallas", "Atlanta", "Van", "", "1250"),
	)
	matches := []domain.DuplicateMatch{{RowIndex: 1, MatchedIndex: 0, MatchType: domain.MatchHigh, Recommendation: domain.RecommendDeleteExisting}}

	assert.Equal(t, []int{2}, FlaggedRows(rows, matches))
	assert.Equal(t, 1, ApplyConfirmed(rows, matches, []int{2}))
	assert.Equal(t, domain.RowDuplicate, rows[0].Status)
	assert.Equal(t, []string{"Duplicate (replaced by row 2 with a newer rate)"}, rows[0].Errors)
	assert.Equal(t, domain.RowValid, rows[1].Status)

	assert.Zero(t, ApplyConfirmed(rows, matches, []int{2}), "earlier row already replaced")
}

func TestApplyConfirmed_UnconfirmedRowsStay(t *testing.T) {
	rows := classifySimple(
		simpleRow("Dallas", "Atlanta", "Van", "", "1200"),
		simpleRow("Dallas", "Atlanta", "Van", "", "1199"),
	)
	matches := []domain.DuplicateMatch{{RowIndex: 1, MatchedIndex: 0, Recommendation: domain.RecommendDeleteExisting}}
	assert.Zero(t, ApplyConfirmed(rows, matches, nil))
	assert.Equal(t, domain.RowValid, rows[1].Status)
}
