package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseTableSniffsDelimiter(t *testing.T) {
	t.Parallel()

	data := strings.Join([]string{
		"Rank;Name;Rating",
		"1;Anand Rao;2180",
		"2;Priya Sharma;2010",
	}, "\n")

	table, err := ParseTable(strings.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, ';', table.Delimiter)
	require.Equal(t, []string{"Rank", "Name", "Rating"}, table.Headers)
	require.Len(t, table.Rows, 2)
}

func TestParseTableTabDelimited(t *testing.T) {
	t.Parallel()

	data := "Rank\tName\tRating\n1\tAnand Rao\t2180\n"
	table, err := ParseTable(strings.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, '\t', table.Delimiter)
	require.Len(t, table.Rows, 1)
}

func TestParseTableSkipsBannerRows(t *testing.T) {
	t.Parallel()

	data := strings.Join([]string{
		"State Open Championship",
		"Venue Hall B",
		"Rank,Name,Rating,DOB",
		"1,Anand Rao,2180,1998-04-12",
		"2,Priya Sharma,2010,2001-09-30",
	}, "\n")

	table, err := ParseTable(strings.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, 2, table.HeaderIndex)
	require.Equal(t, []string{"Rank", "Name", "Rating", "DOB"}, table.Headers)
	require.Len(t, table.Rows, 2)
}

func TestParseTableNoHeader(t *testing.T) {
	t.Parallel()

	data := "1,203.92,totals\n2,-20,sums\n"
	_, err := ParseTable(strings.NewReader(data))
	require.Error(t, err)
	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, "header", pe.Stage)
}

func TestParseTableEmpty(t *testing.T) {
	t.Parallel()

	_, err := ParseTable(strings.NewReader(""))
	require.Error(t, err)
}

func TestParseWithFallbackUsesStrictResult(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	data := "Rank;Name\n1;Anand Rao\n"
	table, err := ParseWithFallback(ctx, strings.NewReader(data), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, ';', table.Delimiter)
}

func TestParseWithFallbackLenientOnFailure(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	// no alias-bearing header anywhere, strict parse fails
	data := "col1,col2\nfoo,bar\n"
	table, err := ParseWithFallback(ctx, strings.NewReader(data), 2*time.Second)
	require.NoError(t, err)
	require.Equal(t, 0, table.HeaderIndex)
	require.Equal(t, []string{"col1", "col2"}, table.Headers)
	require.Len(t, table.Rows, 1)
}
