package service

import (
	"time"
)

// Canonical field names, independent of whatever the source sheet called them.
const (
	FieldRank       = "rank"
	FieldName       = "name"
	FieldFullName   = "full_name"
	FieldRating     = "rating"
	FieldDOB        = "dob"
	FieldGender     = "gender"
	FieldRegNo      = "reg_no"
	FieldStartNo    = "start_no"
	FieldState      = "state"
	FieldCity       = "city"
	FieldClub       = "club"
	FieldFederation = "federation"
	FieldDisability = "disability"
	FieldNotes      = "notes"
	FieldGroupLabel = "group_label"
	FieldTypeLabel  = "type_label"
)

// canonicalFields lists every field a record can carry, in a fixed order used
// for richness counting and merge traversal.
var canonicalFields = []string{
	FieldRank, FieldName, FieldFullName, FieldRating, FieldDOB, FieldGender,
	FieldRegNo, FieldStartNo, FieldState, FieldCity, FieldClub,
	FieldFederation, FieldDisability, FieldNotes, FieldGroupLabel, FieldTypeLabel,
}

// requiredFields must be mapped before a batch can be normalized.
var requiredFields = []string{FieldRank, FieldName}

// Record is one incoming row after normalization. OriginalIndex is the only
// stable identity carried through the whole pipeline; it refers to the row's
// position in the source file (zero-based, counting from the header).
type Record struct {
	OriginalIndex int

	Rank       *int
	Name       string
	FullName   *string
	Rating     *int
	Gender     *string
	RegNo      *string
	RegNoRaw   *string // composite form as seen in the sheet, pre digit-stripping
	StartNo    *int
	State      *string
	City       *string
	Club       *string
	Federation *string
	Disability *string
	Notes      *string
	GroupLabel *string
	TypeLabel  *string

	DOB         *time.Time
	DOBOriginal *string

	// RatingZero distinguishes a literal 0 in the sheet from a blank cell.
	RatingZero bool
	Unrated    bool

	RankAutofilled     bool
	DOBInferred        bool
	StateAutoExtracted bool

	GenderSources []string
	Warnings      []string
}

// Richness counts populated canonical fields. It drives the merge tie-break.
func (r *Record) Richness() int {
	n := 0
	for _, f := range canonicalFields {
		if r.fieldPopulated(f) {
			n++
		}
	}
	return n
}

func (r *Record) fieldPopulated(field string) bool {
	switch field {
	case FieldRank:
		return r.Rank != nil
	case FieldName:
		return r.Name != ""
	case FieldFullName:
		return strPopulated(r.FullName)
	case FieldRating:
		return r.Rating != nil
	case FieldDOB:
		return r.DOB != nil
	case FieldGender:
		return strPopulated(r.Gender)
	case FieldRegNo:
		return strPopulated(r.RegNo)
	case FieldStartNo:
		return r.StartNo != nil
	case FieldState:
		return strPopulated(r.State)
	case FieldCity:
		return strPopulated(r.City)
	case FieldClub:
		return strPopulated(r.Club)
	case FieldFederation:
		return strPopulated(r.Federation)
	case FieldDisability:
		return strPopulated(r.Disability)
	case FieldNotes:
		return strPopulated(r.Notes)
	case FieldGroupLabel:
		return strPopulated(r.GroupLabel)
	case FieldTypeLabel:
		return strPopulated(r.TypeLabel)
	}
	return false
}

// copyMissingFrom fills every empty canonical field on r from donor without
// ever overwriting a populated one. Rank is deliberately excluded: the
// surviving row keeps its own position in the roster.
func (r *Record) copyMissingFrom(donor *Record) {
	for _, f := range canonicalFields {
		if f == FieldRank || r.fieldPopulated(f) || !donor.fieldPopulated(f) {
			continue
		}
		switch f {
		case FieldName:
			r.Name = donor.Name
		case FieldFullName:
			r.FullName = donor.FullName
		case FieldRating:
			r.Rating = donor.Rating
			r.RatingZero = donor.RatingZero
		case FieldDOB:
			r.DOB = donor.DOB
			r.DOBOriginal = donor.DOBOriginal
			r.DOBInferred = donor.DOBInferred
		case FieldGender:
			r.Gender = donor.Gender
		case FieldRegNo:
			r.RegNo = donor.RegNo
			r.RegNoRaw = donor.RegNoRaw
		case FieldStartNo:
			r.StartNo = donor.StartNo
		case FieldState:
			r.State = donor.State
		case FieldCity:
			r.City = donor.City
		case FieldClub:
			r.Club = donor.Club
		case FieldFederation:
			r.Federation = donor.Federation
		case FieldDisability:
			r.Disability = donor.Disability
		case FieldNotes:
			r.Notes = donor.Notes
		case FieldGroupLabel:
			r.GroupLabel = donor.GroupLabel
		case FieldTypeLabel:
			r.TypeLabel = donor.TypeLabel
		}
	}
}

// sameExceptRank reports whether two records are identical on every canonical
// field other than rank. Such pairs are the same identity re-ranked and must
// never count as a conflict.
func sameExceptRank(a, b *Record) bool {
	if a.Name != b.Name {
		return false
	}
	return strEq(a.FullName, b.FullName) &&
		intEq(a.Rating, b.Rating) &&
		timeEq(a.DOB, b.DOB) &&
		strEq(a.Gender, b.Gender) &&
		strEq(a.RegNo, b.RegNo) &&
		intEq(a.StartNo, b.StartNo) &&
		strEq(a.State, b.State) &&
		strEq(a.City, b.City) &&
		strEq(a.Club, b.Club) &&
		strEq(a.Federation, b.Federation) &&
		strEq(a.Disability, b.Disability) &&
		strEq(a.Notes, b.Notes) &&
		strEq(a.GroupLabel, b.GroupLabel) &&
		strEq(a.TypeLabel, b.TypeLabel)
}

func strPopulated(s *string) bool { return s != nil && *s != "" }

func strEq(a, b *string) bool {
	if a == nil || *a == "" {
		return b == nil || *b == ""
	}
	return b != nil && *a == *b
}

func intEq(a, b *int) bool {
	if a == nil {
		return b == nil
	}
	return b != nil && *a == *b
}

func timeEq(a, b *time.Time) bool {
	if a == nil {
		return b == nil
	}
	return b != nil && a.Equal(*b)
}

func strPtr(s string) *string {
	s = trimmed(s)
	if s == "" {
		return nil
	}
	return &s
}

func intPtr(i int) *int { return &i }
