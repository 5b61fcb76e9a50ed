package service

import (
	"strings"
)

// MappedColumn is one resolved canonical field. Confidence is 0..1; heuristic
// picks (fuller-name column, current-over-initial rating) are capped at 0.75
// so mis-mappings stay detectable by tests and operators.
type MappedColumn struct {
	Index      int
	Header     string
	Confidence float64
}

// ColumnMapping is the result of header resolution. Missing lists required
// canonical fields that could not be resolved; the caller must prompt for a
// manual mapping rather than proceed.
type ColumnMapping struct {
	Columns map[string]MappedColumn
	Missing []string
}

// Resolved reports whether the mapping covers every required field.
func (m ColumnMapping) Resolved() bool { return len(m.Missing) == 0 }

// Col returns the column index for a canonical field, or -1 when unmapped.
func (m ColumnMapping) Col(field string) int {
	if c, ok := m.Columns[field]; ok {
		return c.Index
	}
	return -1
}

const (
	confPrimaryAlias   = 1.0
	confSecondaryAlias = 0.9
	confHeuristicCap   = 0.75
	confInconclusive   = 0.6

	// minNameSample is the minimum number of populated sample cells needed
	// before the fuller-name heuristic trusts its averages.
	minNameSample = 5
)

// primaryAliases resolve with full confidence; secondaryAliases with slightly
// less. Header text is normalized (case-folded, whitespace collapsed,
// punctuation stripped) before lookup.
var primaryAliases = map[string][]string{
	FieldRank:       {"rank", "sno", "s no", "srno", "sr no", "seed"},
	FieldName:       {"name", "player", "player name"},
	FieldFullName:   {"full name", "fullname", "complete name"},
	FieldRating:     {"rating", "current rating", "rtg", "elo"},
	FieldDOB:        {"dob", "date of birth", "birth date", "birthdate", "born"},
	FieldGender:     {"gender", "sex", "m f", "m w"},
	FieldRegNo:      {"reg no", "regno", "registration no", "id no", "player id", "fide id", "aicf id"},
	FieldStartNo:    {"start no", "startno", "start number", "no"},
	FieldState:      {"state", "province", "region"},
	FieldCity:       {"city", "place", "town"},
	FieldClub:       {"club", "academy", "team"},
	FieldFederation: {"federation", "fed", "country"},
	FieldDisability: {"disability", "pwd", "differently abled"},
	FieldNotes:      {"notes", "remarks", "comment", "comments"},
	FieldGroupLabel: {"group", "category", "section"},
	FieldTypeLabel:  {"type", "player type", "title"},
}

var secondaryAliases = map[string][]string{
	FieldRank:    {"rk", "pos", "position", "serial"},
	FieldName:    {"participant", "entry"},
	FieldRating:  {"std rating", "standard rating", "rating std"},
	FieldDOB:     {"birth year", "yob", "year of birth"},
	FieldRegNo:   {"licence", "license no", "member id"},
	FieldStartNo: {"bib", "board"},
	FieldState:   {"st"},
	FieldClub:    {"institution", "school"},
}

// initialRatingAliases identify columns the rating mapping must NOT prefer
// when a current-rating column also exists.
var initialRatingAliases = []string{
	"initial rating", "old rating", "previous rating", "start rating",
}

// aliasIndex maps normalized alias -> canonical field, shared with header
// detection in parse.go.
var aliasIndex = buildAliasIndex()

func buildAliasIndex() map[string]string {
	idx := make(map[string]string)
	for field, aliases := range primaryAliases {
		for _, a := range aliases {
			idx[a] = field
		}
	}
	for field, aliases := range secondaryAliases {
		for _, a := range aliases {
			idx[a] = field
		}
	}
	for _, a := range initialRatingAliases {
		idx[a] = FieldRating
	}
	return idx
}

// columnHit is one header that matched an alias for some canonical field.
type columnHit struct {
	col        int
	header     string
	confidence float64
	initial    bool // matched an initial-rating alias
}

// MapColumns resolves free-form header text to canonical fields using the
// alias tables plus statistical heuristics: the rating mapping prefers a
// current-rating column over an initial-rating one, and when two name-like
// columns compete the fuller one (by average token count, then average cell
// length over the sample rows) wins.
func MapColumns(t *Table) ColumnMapping {
	m := ColumnMapping{Columns: make(map[string]MappedColumn)}

	hits := make(map[string][]columnHit)
	for i, h := range t.Headers {
		norm := normalizeHeader(h)
		if norm == "" {
			continue
		}
		field, ok := aliasIndex[norm]
		if !ok {
			continue
		}
		conf := confSecondaryAlias
		if containsAlias(primaryAliases[field], norm) {
			conf = confPrimaryAlias
		}
		hits[field] = append(hits[field], columnHit{
			col: i, header: h, confidence: conf,
			initial: field == FieldRating && containsAlias(initialRatingAliases, norm),
		})
	}

	for field, candidates := range hits {
		chosen := candidates[0]
		switch {
		case field == FieldRating && len(candidates) > 1:
			chosen = preferCurrentRating(candidates)
		case field == FieldName && len(candidates) > 1:
			chosen = fullerNameColumn(candidates, t.Rows)
		}
		m.Columns[field] = MappedColumn{Index: chosen.col, Header: chosen.header, Confidence: chosen.confidence}
	}

	for _, f := range requiredFields {
		if _, ok := m.Columns[f]; !ok {
			m.Missing = append(m.Missing, f)
		}
	}
	return m
}

// preferCurrentRating picks a non-initial rating column when both a current
// and an initial rating column exist.
func preferCurrentRating(candidates []columnHit) columnHit {
	chosen := candidates[0]
	sawInitial := false
	for _, c := range candidates {
		if c.initial {
			sawInitial = true
		}
	}
	for _, c := range candidates {
		if !c.initial {
			chosen = c
			break
		}
	}
	if sawInitial && !chosen.initial {
		chosen.confidence = capConf(chosen.confidence)
	}
	return chosen
}

// fullerNameColumn picks between competing name-like columns by comparing
// average token count and average character length over the sample rows.
// Falls back to the first candidate when the sample is too thin to judge.
func fullerNameColumn(candidates []columnHit, rows [][]string) columnHit {
	type stats struct {
		samples   int
		avgTokens float64
		avgLen    float64
	}
	measure := func(col int) stats {
		var s stats
		var tokens, chars int
		for _, row := range rows {
			if col >= len(row) {
				continue
			}
			cell := trimmed(row[col])
			if cell == "" {
				continue
			}
			s.samples++
			tokens += len(strings.Fields(cell))
			chars += len(cell)
		}
		if s.samples > 0 {
			s.avgTokens = float64(tokens) / float64(s.samples)
			s.avgLen = float64(chars) / float64(s.samples)
		}
		return s
	}

	best := candidates[0]
	bestStats := measure(best.col)
	decided := false
	for _, c := range candidates[1:] {
		cs := measure(c.col)
		if cs.samples < minNameSample || bestStats.samples < minNameSample {
			continue
		}
		decided = true
		if cs.avgTokens > bestStats.avgTokens ||
			(cs.avgTokens == bestStats.avgTokens && cs.avgLen > bestStats.avgLen) {
			best, bestStats = c, cs
		}
	}
	if decided {
		best.confidence = capConf(best.confidence)
	} else {
		best.confidence = confInconclusive
	}
	return best
}

func capConf(c float64) float64 {
	if c > confHeuristicCap {
		return confHeuristicCap
	}
	return c
}

func containsAlias(aliases []string, norm string) bool {
	for _, a := range aliases {
		if a == norm {
			return true
		}
	}
	return false
}

// normalizeHeader case-folds, collapses whitespace and strips punctuation so
// "Reg.No", "REG NO" and "reg_no" all resolve to the same alias.
func normalizeHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(trimmed(h)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '.', r == '_', r == '-', r == '/':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
