package service

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Criterion is one eligibility rule attached to a roster. The kind field
// selects which of the optional payloads is live; ParseCriteria rejects
// anything outside the closed set.
type Criterion struct {
	Kind string `json:"kind"`

	// age_range: age computed at the reference date
	MinAge *int `json:"min_age,omitempty"`
	MaxAge *int `json:"max_age,omitempty"`

	// rating_range
	MinRating *int `json:"min_rating,omitempty"`
	MaxRating *int `json:"max_rating,omitempty"`

	// disability_set
	Disabilities []string `json:"disabilities,omitempty"`

	// allow_list: registration numbers admitted regardless of anything else
	RegNos []string `json:"reg_nos,omitempty"`
}

const (
	CriterionAgeRange      = "age_range"
	CriterionRatingRange   = "rating_range"
	CriterionDisabilitySet = "disability_set"
	CriterionAllowList     = "allow_list"
)

// ParseCriteria decodes a roster's criteria column and validates every entry.
func ParseCriteria(raw string) ([]Criterion, error) {
	if strings.TrimSpace(raw) == "" || raw == "[]" {
		return nil, nil
	}
	var out []Criterion
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("criteria: %w", err)
	}
	for i, c := range out {
		switch c.Kind {
		case CriterionAgeRange:
			if c.MinAge == nil && c.MaxAge == nil {
				return nil, fmt.Errorf("criteria[%d]: age_range needs min_age or max_age", i)
			}
		case CriterionRatingRange:
			if c.MinRating == nil && c.MaxRating == nil {
				return nil, fmt.Errorf("criteria[%d]: rating_range needs min_rating or max_rating", i)
			}
		case CriterionDisabilitySet:
			if len(c.Disabilities) == 0 {
				return nil, fmt.Errorf("criteria[%d]: disability_set needs at least one entry", i)
			}
		case CriterionAllowList:
			if len(c.RegNos) == 0 {
				return nil, fmt.Errorf("criteria[%d]: allow_list needs at least one entry", i)
			}
		default:
			return nil, fmt.Errorf("criteria[%d]: unknown kind %q", i, c.Kind)
		}
	}
	return out, nil
}

// Matches reports whether a record satisfies the criterion at the reference
// date. A record missing the field a criterion inspects does not match; the
// caller decides whether that is a warning or a rejection.
func (c Criterion) Matches(rec *Record, at time.Time) bool {
	switch c.Kind {
	case CriterionAgeRange:
		if rec.DOB == nil {
			return false
		}
		age := yearsBetween(*rec.DOB, at)
		if c.MinAge != nil && age < *c.MinAge {
			return false
		}
		if c.MaxAge != nil && age > *c.MaxAge {
			return false
		}
		return true
	case CriterionRatingRange:
		if rec.Rating == nil {
			return false
		}
		if c.MinRating != nil && *rec.Rating < *c.MinRating {
			return false
		}
		if c.MaxRating != nil && *rec.Rating > *c.MaxRating {
			return false
		}
		return true
	case CriterionDisabilitySet:
		if rec.Disability == nil {
			return false
		}
		want := strings.ToUpper(strings.TrimSpace(*rec.Disability))
		for _, d := range c.Disabilities {
			if strings.ToUpper(strings.TrimSpace(d)) == want {
				return true
			}
		}
		return false
	case CriterionAllowList:
		if rec.RegNo == nil {
			return false
		}
		for _, r := range c.RegNos {
			if r == *rec.RegNo {
				return true
			}
		}
		return false
	}
	return false
}

// CheckEligibility evaluates records against the union of a roster's
// criteria: any one match admits the record. With no criteria everything is
// eligible. Misses come back as warnings keyed by source row, never as row
// errors; eligibility advises, the operator decides.
func CheckEligibility(records []*Record, criteria []Criterion, at time.Time) map[int]string {
	if len(criteria) == 0 {
		return nil
	}
	out := map[int]string{}
	for _, rec := range records {
		matched := false
		for _, c := range criteria {
			if c.Matches(rec, at) {
				matched = true
				break
			}
		}
		if !matched {
			out[rec.OriginalIndex] = "no eligibility criterion matched"
		}
	}
	return out
}

func yearsBetween(dob, at time.Time) int {
	years := at.Year() - dob.Year()
	if at.Month() < dob.Month() || (at.Month() == dob.Month() && at.Day() < dob.Day()) {
		years--
	}
	return years
}
