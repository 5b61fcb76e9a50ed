package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jask/rosterflow/internal/database/repository"
)

func rec(idx int, name string, mut ...func(*Record)) *Record {
	r := &Record{OriginalIndex: idx, Name: name, Rank: intPtr(idx)}
	for _, m := range mut {
		m(r)
	}
	return r
}

func withRegNo(v string) func(*Record)  { return func(r *Record) { r.RegNo = &v } }
func withStartNo(v int) func(*Record)   { return func(r *Record) { r.StartNo = &v } }
func withRating(v int) func(*Record)    { return func(r *Record) { r.Rating = &v } }
func withRank(v int) func(*Record)      { return func(r *Record) { r.Rank = intPtr(v) } }
func withDOB(y, m, d int) func(*Record) {
	return func(r *Record) {
		t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
		r.DOB = &t
	}
}

func TestDetectConflictsIntraBatchIdentifier(t *testing.T) {
	t.Parallel()

	records := []*Record{
		rec(1, "Anand Rao", withRegNo("1234567")),
		rec(2, "A Rao", withRegNo("1234567")),
		rec(3, "Priya Sharma", withRegNo("7654321")),
	}
	pairs := DetectConflicts(records, nil, ModeAppend)
	require.Len(t, pairs, 1)
	require.Equal(t, KeyIdentifier, pairs[0].KeyKind)
	require.Equal(t, "1234567", pairs[0].Key)
	require.Equal(t, 1, pairs[0].A.Record.OriginalIndex)
	require.Equal(t, 2, pairs[0].B.Record.OriginalIndex)
}

func TestDetectConflictsRankOnlySuppressed(t *testing.T) {
	t.Parallel()

	// identical rows apart from rank: same identity re-ranked, no conflict
	records := []*Record{
		rec(1, "Anand Rao", withRegNo("1234567"), withRank(1)),
		rec(2, "Anand Rao", withRegNo("1234567"), withRank(9)),
	}
	pairs := DetectConflicts(records, nil, ModeAppend)
	require.Empty(t, pairs)
}

func TestDetectConflictsDualKeySinglePair(t *testing.T) {
	t.Parallel()

	// same pair collides on identifier AND sequence; reported once, under
	// identifier (the higher-precedence kind)
	records := []*Record{
		rec(1, "Anand Rao", withRegNo("1234567"), withStartNo(10)),
		rec(2, "A K Rao", withRegNo("1234567"), withStartNo(10), withRating(2000)),
	}
	pairs := DetectConflicts(records, nil, ModeAppend)
	require.Len(t, pairs, 1)
	require.Equal(t, KeyIdentifier, pairs[0].KeyKind)
}

func TestDetectConflictsNameDOB(t *testing.T) {
	t.Parallel()

	records := []*Record{
		rec(1, "Priya  Sharma", withDOB(2001, 9, 30), withRating(2010)),
		rec(2, "priya sharma", withDOB(2001, 9, 30), withRating(1990)),
	}
	pairs := DetectConflicts(records, nil, ModeAppend)
	require.Len(t, pairs, 1)
	require.Equal(t, KeyNameDOB, pairs[0].KeyKind)
}

func TestDetectConflictsGroupReportsOnePair(t *testing.T) {
	t.Parallel()

	// three rows sharing one start number produce one pair, not three
	records := []*Record{
		rec(1, "Anand Rao", withStartNo(5)),
		rec(2, "Priya Sharma", withStartNo(5)),
		rec(3, "Dmitri Kovacs", withStartNo(5)),
	}
	pairs := DetectConflicts(records, nil, ModeAppend)
	require.Len(t, pairs, 1)
	require.Equal(t, KeySequence, pairs[0].KeyKind)
}

func TestDetectConflictsCrossStore(t *testing.T) {
	t.Parallel()

	regNo := "1234567"
	existing := []repository.Player{
		{ID: "p1", Name: "Anand Rao", Rank: 1, RegNo: &regNo},
	}
	records := []*Record{
		rec(4, "Anand K Rao", withRegNo("1234567"), withRating(2180)),
	}

	pairs := DetectConflicts(records, existing, ModeAppend)
	require.Len(t, pairs, 1)
	require.NotNil(t, pairs[0].B.Existing)
	require.Equal(t, "p1", pairs[0].B.Existing.ID)

	// replace mode discards the snapshot; no cross-store pairs
	require.Empty(t, DetectConflicts(records, existing, ModeReplace))
}

func TestDetectConflictsCrossStoreRankOnlySuppressed(t *testing.T) {
	t.Parallel()

	regNo := "1234567"
	rating := 2180
	existing := []repository.Player{
		{ID: "p1", Name: "Anand Rao", Rank: 3, RegNo: &regNo, Rating: &rating},
	}
	records := []*Record{
		rec(1, "Anand Rao", withRegNo("1234567"), withRating(2180), withRank(7)),
	}
	require.Empty(t, DetectConflicts(records, existing, ModeAppend))
}

func TestPairIDStableAcrossRuns(t *testing.T) {
	t.Parallel()

	build := func() []ConflictPair {
		records := []*Record{
			rec(1, "Anand Rao", withRegNo("1234567")),
			rec(2, "A Rao", withRegNo("1234567")),
		}
		return DetectConflicts(records, nil, ModeAppend)
	}
	first, second := build(), build()
	require.Len(t, first, 1)
	require.Equal(t, first[0].ID, second[0].ID)
}
