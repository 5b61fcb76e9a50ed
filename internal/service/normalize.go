package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// NormalizeOptions is the configurable part of value normalization.
type NormalizeOptions struct {
	// UnratedWhenZero treats a literal rating of 0 as unrated.
	UnratedWhenZero bool
	// UnratedWhenMissingRegNo infers unrated when both the rating and the
	// registration number are absent.
	UnratedWhenMissingRegNo bool
}

// NormalizeResult carries the cleaned batch plus everything normalization
// learned along the way. RowErrors are collected, never silently dropped;
// rows listed there are excluded from the write set.
type NormalizeResult struct {
	Records      []*Record
	Dropped      int // footer-noise rows (neither rank nor name)
	ImputedRanks int // ranks filled by tie continuation or gap repair
	RowErrors    []RowError
}

// Normalize runs per-field coercion and imputation over the raw table using
// the resolved column mapping. Records are built and then mutated in place
// through the rank, date, rating, gender and state stages.
func Normalize(t *Table, m ColumnMapping, opts NormalizeOptions) NormalizeResult {
	res := NormalizeResult{}

	for i, row := range t.Rows {
		originalIndex := t.HeaderIndex + 1 + i
		rankRaw := cell(row, m.Col(FieldRank))
		nameRaw := cell(row, m.Col(FieldName))
		if rankRaw == "" && nameRaw == "" {
			// Footer noise: totals, arbiter signatures, blank padding.
			res.Dropped++
			continue
		}
		rec := &Record{
			OriginalIndex: originalIndex,
			Name:          nameRaw,
			FullName:      strPtr(cell(row, m.Col(FieldFullName))),
			State:         strPtr(cell(row, m.Col(FieldState))),
			City:          strPtr(cell(row, m.Col(FieldCity))),
			Club:          strPtr(cell(row, m.Col(FieldClub))),
			Federation:    strPtr(cell(row, m.Col(FieldFederation))),
			Disability:    strPtr(cell(row, m.Col(FieldDisability))),
			Notes:         strPtr(cell(row, m.Col(FieldNotes))),
			GroupLabel:    strPtr(strings.ToUpper(cell(row, m.Col(FieldGroupLabel)))),
			TypeLabel:     strPtr(cell(row, m.Col(FieldTypeLabel))),
		}
		normalizeRank(rec, rankRaw, &res)
		normalizeDOB(rec, cell(row, m.Col(FieldDOB)))
		normalizeRating(rec, cell(row, m.Col(FieldRating)))
		normalizeRegNo(rec, cell(row, m.Col(FieldRegNo)))
		normalizeStartNo(rec, cell(row, m.Col(FieldStartNo)))
		normalizeGender(rec, cell(row, m.Col(FieldGender)))
		extractState(rec)
		res.Records = append(res.Records, rec)
	}

	imputeTiedRanks(&res)
	fillSingleRankGaps(&res)
	autofillRemainingRanks(&res)
	applyUnratedPolicy(res.Records, opts)
	validate(&res)
	return res
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return trimmed(row[col])
}

// --- rank ------------------------------------------------------------------

func normalizeRank(rec *Record, raw string, res *NormalizeResult) {
	if raw == "" {
		return
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		res.RowErrors = append(res.RowErrors, RowError{
			OriginalIndex: rec.OriginalIndex, Field: FieldRank,
			Reason: fmt.Sprintf("not an integer: %q", raw),
		})
		return
	}
	rec.Rank = intPtr(n)
}

// imputeTiedRanks fills blank ranks inside a run bounded by two known ranks
// whose distance equals the run length: the blanks continue the anchor's
// sequence, producing a strictly increasing continuous stretch.
func imputeTiedRanks(res *NormalizeResult) {
	recs := res.Records
	i := 0
	for i < len(recs) {
		if recs[i].Rank == nil {
			i++
			continue
		}
		anchorIdx := i
		j := i + 1
		for j < len(recs) && recs[j].Rank == nil {
			j++
		}
		if j < len(recs) && j > anchorIdx+1 {
			anchor, next := *recs[anchorIdx].Rank, *recs[j].Rank
			if next-anchor == j-anchorIdx {
				for k := anchorIdx + 1; k < j; k++ {
					recs[k].Rank = intPtr(anchor + (k - anchorIdx))
					res.ImputedRanks++
				}
			}
		}
		i = j
	}
}

// fillSingleRankGaps repairs an isolated missing rank bounded by known
// neighbors whenever a value strictly between them exists.
func fillSingleRankGaps(res *NormalizeResult) {
	recs := res.Records
	for i := 1; i < len(recs)-1; i++ {
		if recs[i].Rank != nil || recs[i-1].Rank == nil || recs[i+1].Rank == nil {
			continue
		}
		lo, hi := *recs[i-1].Rank, *recs[i+1].Rank
		if hi > lo+1 {
			recs[i].Rank = intPtr(lo + 1)
			res.ImputedRanks++
		}
	}
}

// autofillRemainingRanks assigns the next integer after the current maximum
// to any named row still missing a rank, flagged so the ledger can report it.
func autofillRemainingRanks(res *NormalizeResult) {
	maxRank := 0
	for _, r := range res.Records {
		if r.Rank != nil && *r.Rank > maxRank {
			maxRank = *r.Rank
		}
	}
	for _, r := range res.Records {
		if r.Rank != nil || r.Name == "" {
			continue
		}
		maxRank++
		r.Rank = intPtr(maxRank)
		r.RankAutofilled = true
	}
}

// --- date of birth ---------------------------------------------------------

var dobLayouts = []string{
	"2006-01-02", "02.01.2006", "2.1.2006", "02/01/2006", "2/1/2006", "2006/01/02",
}

// normalizeDOB accepts full dates, bare years and year-with-zero-month-day
// forms. Partial values land on January 1 of the year with the inferred flag
// set and the original text preserved. Garbage yields nil with no flag.
func normalizeDOB(rec *Record, raw string) {
	if raw == "" {
		return
	}
	for _, layout := range dobLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			t := ts.UTC()
			rec.DOB = &t
			return
		}
	}
	if year, ok := partialYear(raw); ok {
		t := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		rec.DOB = &t
		rec.DOBInferred = true
		orig := raw
		rec.DOBOriginal = &orig
	}
}

// partialYear recognizes "1998", "1998-00-00", "1998.00.00" and "1998/00/00".
func partialYear(raw string) (int, bool) {
	s := raw
	for _, sep := range []string{"-", ".", "/"} {
		if strings.Contains(s, sep) {
			parts := strings.Split(s, sep)
			if len(parts) != 3 || strings.Trim(parts[1], "0") != "" || strings.Trim(parts[2], "0") != "" {
				return 0, false
			}
			s = parts[0]
			break
		}
	}
	if len(s) != 4 {
		return 0, false
	}
	year, err := strconv.Atoi(s)
	if err != nil || year < 1850 || year > time.Now().Year() {
		return 0, false
	}
	return year, true
}

// --- rating ----------------------------------------------------------------

func normalizeRating(rec *Record, raw string) {
	if raw == "" {
		return
	}
	raw = strings.ReplaceAll(raw, ",", "")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		rec.Warnings = append(rec.Warnings, fmt.Sprintf("unparseable rating %q", raw))
		return
	}
	if n == 0 {
		// A literal zero is not the same thing as a blank cell; the audit
		// trail needs to tell them apart.
		rec.RatingZero = true
		return
	}
	rec.Rating = intPtr(n)
}

func applyUnratedPolicy(recs []*Record, opts NormalizeOptions) {
	for _, r := range recs {
		switch {
		case r.RatingZero && opts.UnratedWhenZero:
			r.Unrated = true
		case r.Rating == nil && !r.RatingZero && r.RegNo == nil && opts.UnratedWhenMissingRegNo:
			r.Unrated = true
		}
	}
}

// --- identifier / sequence number ------------------------------------------

// normalizeRegNo keeps the digits-only registration number; non-numeric
// content yields nil, not an error. The raw composite form is preserved for
// state extraction.
func normalizeRegNo(rec *Record, raw string) {
	if raw == "" {
		return
	}
	rec.RegNoRaw = strPtr(raw)
	digits := digitsOnly(raw)
	if digits != "" {
		rec.RegNo = &digits
	}
}

func normalizeStartNo(rec *Record, raw string) {
	if raw == "" {
		return
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		rec.StartNo = intPtr(n)
	}
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// --- gender ----------------------------------------------------------------

// normalizeGender prefers the mapped gender column; otherwise it falls back
// to markers embedded in coded group and type labels (e.g. "U14G", "WOMEN").
// Each source consulted is recorded, and disagreements become warnings.
func normalizeGender(rec *Record, raw string) {
	if g := parseGenderValue(raw); g != "" {
		rec.Gender = &g
		rec.GenderSources = append(rec.GenderSources, "column")
		if fromLabel := genderFromLabels(rec); fromLabel != "" && fromLabel != g {
			rec.Warnings = append(rec.Warnings,
				fmt.Sprintf("gender column %q disagrees with group/type label marker %q", g, fromLabel))
		}
		return
	}
	if g := genderFromLabels(rec); g != "" {
		rec.Gender = &g
	}
}

func parseGenderValue(raw string) string {
	switch strings.ToLower(raw) {
	case "m", "male", "b", "boy", "boys", "men":
		return "m"
	case "f", "w", "female", "g", "girl", "girls", "women":
		return "f"
	}
	return ""
}

// genderFromLabels decodes secondary markers from the coded group/type
// labels: a trailing G/W on an age group ("U14G"), or words like "girls".
func genderFromLabels(rec *Record) string {
	check := func(label *string, source string) string {
		if label == nil {
			return ""
		}
		up := strings.ToUpper(*label)
		switch {
		case strings.Contains(up, "GIRL"), strings.Contains(up, "WOMEN"), strings.Contains(up, "FEMALE"):
			rec.GenderSources = append(rec.GenderSources, source)
			return "f"
		case strings.Contains(up, "BOY"),
			strings.Contains(up, "MEN") && !strings.Contains(up, "WOMEN"),
			strings.Contains(up, "MALE") && !strings.Contains(up, "FEMALE"):
			rec.GenderSources = append(rec.GenderSources, source)
			return "m"
		}
		// Age-group code with a gender suffix, e.g. U14G or U09W.
		if len(up) >= 2 && up[0] == 'U' {
			switch up[len(up)-1] {
			case 'G', 'W':
				rec.GenderSources = append(rec.GenderSources, source)
				return "f"
			case 'B':
				rec.GenderSources = append(rec.GenderSources, source)
				return "m"
			}
		}
		return ""
	}
	if g := check(rec.GroupLabel, "group_label"); g != "" {
		return g
	}
	return check(rec.TypeLabel, "type_label")
}

// --- state -----------------------------------------------------------------

// extractState pulls a state code out of a composite registration value
// ("MH/1234567", "TN1234567") when the state field is empty. It must never
// fall back to the federation/country value.
func extractState(rec *Record) {
	if strPopulated(rec.State) || rec.RegNoRaw == nil {
		return
	}
	prefix := alphaPrefix(*rec.RegNoRaw)
	if len(prefix) < 2 || len(prefix) > 3 {
		return
	}
	if rec.Federation != nil && strings.EqualFold(prefix, *rec.Federation) {
		return
	}
	up := strings.ToUpper(prefix)
	rec.State = &up
	rec.StateAutoExtracted = true
}

func alphaPrefix(s string) string {
	for i, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') {
			return s[:i]
		}
	}
	return s
}

// --- validation ------------------------------------------------------------

// validate excludes rows that cannot enter the write set: empty name or a
// non-positive rank. Each exclusion is recorded with the row's original
// index so a caller can build a diagnostic export.
func validate(res *NormalizeResult) {
	kept := res.Records[:0]
	for _, r := range res.Records {
		switch {
		case r.Name == "":
			res.RowErrors = append(res.RowErrors, RowError{
				OriginalIndex: r.OriginalIndex, Field: FieldName, Reason: "name is required",
			})
		case r.Rank == nil || *r.Rank <= 0:
			res.RowErrors = append(res.RowErrors, RowError{
				OriginalIndex: r.OriginalIndex, Field: FieldRank, Reason: "positive rank is required",
			})
		default:
			kept = append(kept, r)
		}
	}
	res.Records = kept
}
