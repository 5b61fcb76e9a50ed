package service

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Table is the raw tabular input after parsing: a resolved header row plus
// the data rows beneath it. Row indices inside the pipeline are offsets into
// Rows; OriginalIndex on a Record is HeaderIndex + 1 + offset so diagnostics
// line up with the source file.
type Table struct {
	Headers     []string
	Rows        [][]string
	HeaderIndex int
	Delimiter   rune
}

// headerScanDepth bounds how deep into the file the header row is searched.
const headerScanDepth = 10

// ParseTable reads a delimited byte stream, sniffs the delimiter and locates
// the header row. Rows above the header (titles, event banners) are dropped.
func ParseTable(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(bufio.NewReader(r))
	if err != nil {
		return nil, &ParseError{Stage: "read", Err: err}
	}
	delim := sniffDelimiter(data)
	rows, err := readAll(data, delim)
	if err != nil {
		return nil, &ParseError{Stage: "read", Err: err}
	}
	if len(rows) == 0 {
		return nil, &ParseError{Stage: "header", Err: errors.New("empty input")}
	}
	hi := detectHeaderRow(rows)
	if hi < 0 {
		return nil, &ParseError{Stage: "header", Err: errors.New("no header row found")}
	}
	t := &Table{
		Headers:     rows[hi],
		HeaderIndex: hi,
		Delimiter:   delim,
	}
	if hi+1 < len(rows) {
		t.Rows = rows[hi+1:]
	}
	return t, nil
}

// ParseWithFallback runs the sniffing parser under a deadline and falls over
// to a lenient comma-delimited parse if it times out or fails. The deadline
// is supervisory, not a concurrency primitive.
func ParseWithFallback(ctx context.Context, r io.Reader, timeout time.Duration) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &ParseError{Stage: "read", Err: err}
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		t   *Table
		err error
	}
	ch := make(chan result, 1)
	go func() {
		t, err := ParseTable(bytes.NewReader(data))
		ch <- result{t, err}
	}()

	select {
	case res := <-ch:
		if res.err == nil {
			return res.t, nil
		}
		return parseLenient(data)
	case <-ctx.Done():
		return parseLenient(data)
	}
}

// parseLenient assumes comma delimiting and a first-row header. It is the
// last resort when sniffing cannot make sense of the input.
func parseLenient(data []byte) (*Table, error) {
	rows, err := readAll(data, ',')
	if err != nil || len(rows) == 0 {
		return nil, &ParseError{Stage: "read", Err: fmt.Errorf("lenient parse: %w", errOr(err, errors.New("empty input")))}
	}
	t := &Table{Headers: rows[0], HeaderIndex: 0, Delimiter: ','}
	if len(rows) > 1 {
		t.Rows = rows[1:]
	}
	return t, nil
}

func errOr(err, fallback error) error {
	if err != nil {
		return err
	}
	return fallback
}

func readAll(data []byte, delim rune) ([][]string, error) {
	cr := csv.NewReader(bytes.NewReader(data))
	cr.Comma = delim
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	var rows [][]string
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, rec)
	}
	return rows, nil
}

// sniffDelimiter counts candidate separators over the first few lines and
// picks the most consistent one. Comma wins ties.
func sniffDelimiter(data []byte) rune {
	lines := bytes.Split(data, []byte("\n"))
	if len(lines) > headerScanDepth {
		lines = lines[:headerScanDepth]
	}
	counts := map[rune]int{',': 0, ';': 0, '\t': 0}
	for _, line := range lines {
		for _, c := range []rune{',', ';', '\t'} {
			counts[c] += bytes.Count(line, []byte(string(c)))
		}
	}
	best := ','
	for _, c := range []rune{';', '\t'} {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

// detectHeaderRow scores the first rows and returns the index of the most
// header-like one: mostly textual cells, at least one cell matching a known
// column alias. Returns -1 when nothing qualifies.
func detectHeaderRow(rows [][]string) int {
	depth := len(rows)
	if depth > headerScanDepth {
		depth = headerScanDepth
	}
	bestIdx, bestScore := -1, 0
	for i := 0; i < depth; i++ {
		score := headerScore(rows[i])
		if score > bestScore {
			bestIdx, bestScore = i, score
		}
	}
	return bestIdx
}

func headerScore(row []string) int {
	aliasHits, textCells, numericCells := 0, 0, 0
	for _, cell := range row {
		cell = trimmed(cell)
		if cell == "" {
			continue
		}
		if isNumericCell(cell) {
			numericCells++
			continue
		}
		textCells++
		if _, ok := aliasIndex[normalizeHeader(cell)]; ok {
			aliasHits++
		}
	}
	if aliasHits == 0 || numericCells > textCells {
		return 0
	}
	return aliasHits*10 + textCells
}

func isNumericCell(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != ',' && r != '-' {
			return false
		}
	}
	return true
}

func trimmed(s string) string { return strings.TrimSpace(s) }
