package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func normTable(headers []string, rows ...[]string) (*Table, ColumnMapping) {
	t := &Table{Headers: headers, Rows: rows}
	return t, MapColumns(t)
}

func TestNormalizeTiedRankImputation(t *testing.T) {
	t.Parallel()

	// four rows, ranks [1, _, _, 4]: the blanks continue the sequence
	table, m := normTable([]string{"Rank", "Name"},
		[]string{"1", "Anand Rao"},
		[]string{"", "Priya Sharma"},
		[]string{"", "Dmitri Kovacs"},
		[]string{"4", "Lena Fischer"},
	)
	res := Normalize(table, m, NormalizeOptions{})
	require.Empty(t, res.RowErrors)
	require.Equal(t, 2, res.ImputedRanks)
	require.Len(t, res.Records, 4)
	for i, want := range []int{1, 2, 3, 4} {
		require.NotNil(t, res.Records[i].Rank)
		require.Equal(t, want, *res.Records[i].Rank)
		require.False(t, res.Records[i].RankAutofilled)
	}
}

func TestNormalizeTiedRankNotImputedWhenSpanMismatch(t *testing.T) {
	t.Parallel()

	// [1, _, _, 6] leaves a span the run cannot fill sequentially; the blanks
	// get autofilled past the max instead, flagged as such.
	table, m := normTable([]string{"Rank", "Name"},
		[]string{"1", "Anand Rao"},
		[]string{"", "Priya Sharma"},
		[]string{"", "Dmitri Kovacs"},
		[]string{"6", "Lena Fischer"},
	)
	res := Normalize(table, m, NormalizeOptions{})
	require.Equal(t, 7, *res.Records[1].Rank)
	require.Equal(t, 8, *res.Records[2].Rank)
	require.True(t, res.Records[1].RankAutofilled)
	require.True(t, res.Records[2].RankAutofilled)
}

func TestNormalizeSingleRankGap(t *testing.T) {
	t.Parallel()

	table, m := normTable([]string{"Rank", "Name"},
		[]string{"3", "Anand Rao"},
		[]string{"", "Priya Sharma"},
		[]string{"7", "Dmitri Kovacs"},
	)
	res := Normalize(table, m, NormalizeOptions{})
	require.Equal(t, 4, *res.Records[1].Rank)
	require.Equal(t, 1, res.ImputedRanks)
	require.False(t, res.Records[1].RankAutofilled)
}

func TestNormalizeDOBLayouts(t *testing.T) {
	t.Parallel()

	table, m := normTable([]string{"Rank", "Name", "DOB"},
		[]string{"1", "Anand Rao", "1998-04-12"},
		[]string{"2", "Priya Sharma", "30.09.2001"},
		[]string{"3", "Dmitri Kovacs", "1998"},
		[]string{"4", "Lena Fischer", "1996-00-00"},
		[]string{"5", "Arjun Iyer", "notadate"},
	)
	res := Normalize(table, m, NormalizeOptions{})
	require.Len(t, res.Records, 5)

	require.Equal(t, time.Date(1998, 4, 12, 0, 0, 0, 0, time.UTC), *res.Records[0].DOB)
	require.False(t, res.Records[0].DOBInferred)

	require.Equal(t, time.Date(2001, 9, 30, 0, 0, 0, 0, time.UTC), *res.Records[1].DOB)

	require.Equal(t, time.Date(1998, 1, 1, 0, 0, 0, 0, time.UTC), *res.Records[2].DOB)
	require.True(t, res.Records[2].DOBInferred)
	require.Equal(t, "1998", *res.Records[2].DOBOriginal)

	require.Equal(t, time.Date(1996, 1, 1, 0, 0, 0, 0, time.UTC), *res.Records[3].DOB)
	require.True(t, res.Records[3].DOBInferred)

	require.Nil(t, res.Records[4].DOB)
	require.False(t, res.Records[4].DOBInferred)
}

func TestNormalizeRatingZeroVsMissing(t *testing.T) {
	t.Parallel()

	table, m := normTable([]string{"Rank", "Name", "Rating"},
		[]string{"1", "Anand Rao", "2,180"},
		[]string{"2", "Priya Sharma", "0"},
		[]string{"3", "Dmitri Kovacs", ""},
	)
	res := Normalize(table, m, NormalizeOptions{UnratedWhenZero: true})

	require.Equal(t, 2180, *res.Records[0].Rating)
	require.False(t, res.Records[0].Unrated)

	require.Nil(t, res.Records[1].Rating)
	require.True(t, res.Records[1].RatingZero)
	require.True(t, res.Records[1].Unrated)

	require.Nil(t, res.Records[2].Rating)
	require.False(t, res.Records[2].RatingZero)
	require.False(t, res.Records[2].Unrated)
}

func TestNormalizeUnratedWhenMissingRegNo(t *testing.T) {
	t.Parallel()

	table, m := normTable([]string{"Rank", "Name", "Rating", "Reg No"},
		[]string{"1", "Anand Rao", "", "35061234"},
		[]string{"2", "Priya Sharma", "", ""},
	)
	res := Normalize(table, m, NormalizeOptions{UnratedWhenMissingRegNo: true})
	require.False(t, res.Records[0].Unrated)
	require.True(t, res.Records[1].Unrated)
}

func TestNormalizeRegNoDigitsAndState(t *testing.T) {
	t.Parallel()

	table, m := normTable([]string{"Rank", "Name", "Reg No", "Federation"},
		[]string{"1", "Anand Rao", "TN/1234567", "IND"},
		[]string{"2", "Priya Sharma", "MH1234568", "IND"},
		[]string{"3", "Dmitri Kovacs", "IND1234569", "IND"},
	)
	res := Normalize(table, m, NormalizeOptions{})

	require.Equal(t, "1234567", *res.Records[0].RegNo)
	require.Equal(t, "TN", *res.Records[0].State)
	require.True(t, res.Records[0].StateAutoExtracted)

	require.Equal(t, "MH", *res.Records[1].State)

	// prefix equal to the federation must never become a state
	require.Nil(t, res.Records[2].State)
}

func TestNormalizeStateColumnWins(t *testing.T) {
	t.Parallel()

	table, m := normTable([]string{"Rank", "Name", "Reg No", "State"},
		[]string{"1", "Anand Rao", "TN/1234567", "Kerala"},
	)
	res := Normalize(table, m, NormalizeOptions{})
	require.Equal(t, "Kerala", *res.Records[0].State)
	require.False(t, res.Records[0].StateAutoExtracted)
}

func TestNormalizeGenderColumnAndLabels(t *testing.T) {
	t.Parallel()

	table, m := normTable([]string{"Rank", "Name", "Gender", "Group"},
		[]string{"1", "Anand Rao", "M", "U14"},
		[]string{"2", "Priya Sharma", "", "U14G"},
		[]string{"3", "Lena Fischer", "girl", ""},
		[]string{"4", "Rupali Das", "M", "U14G"},
	)
	res := Normalize(table, m, NormalizeOptions{})

	require.Equal(t, "m", *res.Records[0].Gender)
	require.Equal(t, []string{"column"}, res.Records[0].GenderSources)

	require.Equal(t, "f", *res.Records[1].Gender)
	require.Contains(t, res.Records[1].GenderSources, "group_label")

	require.Equal(t, "f", *res.Records[2].Gender)

	// column wins, but the disagreement is surfaced
	require.Equal(t, "m", *res.Records[3].Gender)
	require.NotEmpty(t, res.Records[3].Warnings)
}

func TestNormalizeFooterDropAndValidation(t *testing.T) {
	t.Parallel()

	table, m := normTable([]string{"Rank", "Name", "Rating"},
		[]string{"1", "Anand Rao", "2180"},
		[]string{"", "", "42"}, // footer noise: neither rank nor name
		[]string{"2", "", "2010"},
		[]string{"xx", "Lena Fischer", "1700"},
	)
	res := Normalize(table, m, NormalizeOptions{})

	require.Equal(t, 1, res.Dropped)
	require.Len(t, res.Records, 2) // valid row + autofilled-rank Fischer row

	errs := map[int]RowError{}
	for _, e := range res.RowErrors {
		errs[e.OriginalIndex] = e
	}
	// row offsets are absolute source indices: header is row 0
	require.Equal(t, FieldName, errs[3].Field)
	require.Equal(t, FieldRank, errs[4].Field)

	// the unparseable rank also produced a rank RowError before autofill
	var rankErr bool
	for _, e := range res.RowErrors {
		if e.OriginalIndex == 4 && e.Field == FieldRank {
			rankErr = true
		}
	}
	require.True(t, rankErr)
}

func TestNormalizeOriginalIndexAccountsForHeaderOffset(t *testing.T) {
	t.Parallel()

	table := &Table{
		Headers:     []string{"Rank", "Name"},
		HeaderIndex: 2,
		Rows:        [][]string{{"1", "Anand Rao"}},
	}
	res := Normalize(table, MapColumns(table), NormalizeOptions{})
	require.Len(t, res.Records, 1)
	require.Equal(t, 3, res.Records[0].OriginalIndex)
}
