package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"

	"github.com/jask/rosterflow/internal/database/repository"
)

// MergeRule controls how one field is carried from an incoming record onto a
// matched player during an update.
type MergeRule string

const (
	MergeAlways  MergeRule = "always"   // incoming value wins when present
	MergeIfEmpty MergeRule = "if_empty" // incoming value fills a blank only
	MergeNever   MergeRule = "never"    // existing value is kept
)

// MergePolicy maps canonical field names to merge rules. Fields absent from
// the policy fall back to MergeIfEmpty.
type MergePolicy map[string]MergeRule

// DefaultMergePolicy favours the fresher batch for volatile fields and
// protects identity fields once set.
func DefaultMergePolicy() MergePolicy {
	return MergePolicy{
		FieldRank:       MergeAlways,
		FieldRating:     MergeAlways,
		FieldName:       MergeAlways,
		FieldFullName:   MergeIfEmpty,
		FieldDOB:        MergeIfEmpty,
		FieldGender:     MergeIfEmpty,
		FieldRegNo:      MergeNever,
		FieldStartNo:    MergeNever,
		FieldState:      MergeIfEmpty,
		FieldCity:       MergeIfEmpty,
		FieldClub:       MergeIfEmpty,
		FieldFederation: MergeIfEmpty,
		FieldDisability: MergeIfEmpty,
		FieldNotes:      MergeIfEmpty,
		FieldGroupLabel: MergeIfEmpty,
		FieldTypeLabel:  MergeIfEmpty,
	}
}

func (p MergePolicy) rule(field string) MergeRule {
	if r, ok := p[field]; ok {
		return r
	}
	return MergeIfEmpty
}

// Hash returns a stable digest of the policy so cached linkage decisions can
// be invalidated when the policy changes.
func (p MergePolicy) Hash() string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(string(p[k]))
		sb.WriteByte(';')
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("policy:"+sb.String())).String()
}

// MarshalJSON output is persisted verbatim into audit rows.
func (p MergePolicy) Snapshot() string {
	b, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// Action is what the executor does with one incoming record.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionSkip   Action = "skip"
	ActionReview Action = "review"
)

// Candidate links one incoming record to its best persisted match, if any.
type Candidate struct {
	Row       int     `json:"row"`
	MatchID   string  `json:"match_id,omitempty"`
	Score     float64 `json:"score"`
	Suggested Action  `json:"suggested"`

	match *repository.Player
}

// Match returns the persisted side of the candidate, nil for creates.
func (c Candidate) Match() *repository.Player { return c.match }

// Decision is a reviewed candidate: the action to take plus the field-level
// change set an update will write.
type Decision struct {
	Row        int               `json:"row"`
	Action     Action            `json:"action"`
	ExistingID string            `json:"existing_id,omitempty"`
	Changes    map[string]string `json:"changes,omitempty"`
}

// Scorer classifies incoming records against persisted players. Scores at or
// above UpdateThreshold become suggested updates, scores between the two
// thresholds are queued for review, the rest create new entries.
type Scorer struct {
	UpdateThreshold float64
	ReviewThreshold float64
}

func NewScorer() *Scorer {
	return &Scorer{UpdateThreshold: 0.9, ReviewThreshold: 0.6}
}

const (
	scoreIdentMatch   = 1.0
	scoreNameDOBMatch = 0.9
	scoreSeqMatch     = 0.6
)

// Score pairs every record with its strongest persisted match. Hard keys win
// outright; absent a key hit the score is fuzzy name similarity blended with
// rating proximity.
func (s *Scorer) Score(records []Record, existing []repository.Player) []Candidate {
	byIdent := map[string]*repository.Player{}
	byNameDOB := map[string]*repository.Player{}
	bySeq := map[int]*repository.Player{}
	for i := range existing {
		p := &existing[i]
		if p.RegNo != nil && *p.RegNo != "" {
			byIdent[strings.ToUpper(*p.RegNo)] = p
		}
		if k := playerNameDOBKey(p); k != "" {
			byNameDOB[k] = p
		}
		if p.StartNo != nil {
			bySeq[*p.StartNo] = p
		}
	}

	out := make([]Candidate, 0, len(records))
	for _, rec := range records {
		c := Candidate{Row: rec.OriginalIndex}
		if rec.RegNo != nil {
			if p, ok := byIdent[strings.ToUpper(*rec.RegNo)]; ok {
				c.match, c.Score = p, scoreIdentMatch
			}
		}
		if c.match == nil {
			if k := recordNameDOBIndexKey(rec); k != "" {
				if p, ok := byNameDOB[k]; ok {
					c.match, c.Score = p, scoreNameDOBMatch
				}
			}
		}
		if c.match == nil && rec.StartNo != nil {
			if p, ok := bySeq[*rec.StartNo]; ok {
				c.match, c.Score = p, scoreSeqMatch
			}
		}
		if c.match == nil {
			p, score := bestFuzzy(rec, existing)
			c.match, c.Score = p, score
		}
		if c.match != nil {
			c.MatchID = c.match.ID
		}
		c.Suggested = s.classify(c.Score, c.match)
		out = append(out, c)
	}
	return out
}

func (s *Scorer) classify(score float64, match *repository.Player) Action {
	if match == nil {
		return ActionCreate
	}
	switch {
	case score >= s.UpdateThreshold:
		return ActionUpdate
	case score >= s.ReviewThreshold:
		return ActionReview
	default:
		return ActionCreate
	}
}

// bestFuzzy scans for the closest name, discounted by rating distance when
// both sides carry a rating.
func bestFuzzy(rec Record, existing []repository.Player) (*repository.Player, float64) {
	if rec.Name == "" {
		return nil, 0
	}
	var best *repository.Player
	var bestScore float64
	for i := range existing {
		p := &existing[i]
		score := nameSimilarity(rec.Name, p.Name)
		if rec.Rating != nil && p.Rating != nil {
			score *= ratingProximity(*rec.Rating, *p.Rating)
		}
		if score > bestScore {
			best, bestScore = p, score
		}
	}
	if bestScore < 0.5 {
		return nil, bestScore
	}
	return best, bestScore
}

func nameSimilarity(a, b string) float64 {
	a, b = strings.ToUpper(strings.TrimSpace(a)), strings.ToUpper(strings.TrimSpace(b))
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	maxlen := len(a)
	if len(b) > maxlen {
		maxlen = len(b)
	}
	return 1 - float64(dist)/float64(maxlen)
}

// ratingProximity decays linearly to 0.5 over a 400 point spread.
func ratingProximity(a, b int) float64 {
	d := a - b
	if d < 0 {
		d = -d
	}
	if d >= 400 {
		return 0.5
	}
	return 1 - float64(d)/800
}

// Decide turns a candidate into an executable decision under the merge
// policy. Updates whose change set comes out empty collapse to skips.
func Decide(c Candidate, rec Record, policy MergePolicy) Decision {
	d := Decision{Row: c.Row, Action: c.Suggested, ExistingID: c.MatchID}
	if d.Action == ActionReview {
		// unreviewed candidates default to create rather than touch
		// an entry nobody confirmed
		d.Action = ActionCreate
		d.ExistingID = ""
	}
	if d.Action != ActionUpdate || c.match == nil {
		return d
	}
	d.Changes = changeSet(rec, c.match, policy)
	if len(d.Changes) == 0 {
		d.Action = ActionSkip
	}
	return d
}

// changeSet lists field -> incoming value for every field the policy lets
// the incoming record write.
func changeSet(rec Record, p *repository.Player, policy MergePolicy) map[string]string {
	out := map[string]string{}
	put := func(field, incoming, current string) {
		if incoming == "" {
			return
		}
		switch policy.rule(field) {
		case MergeNever:
			return
		case MergeIfEmpty:
			if current != "" {
				return
			}
		}
		if incoming == current {
			return
		}
		out[field] = incoming
	}

	if rec.Rank != nil {
		put(FieldRank, fmt.Sprintf("%d", *rec.Rank), fmt.Sprintf("%d", p.Rank))
	}
	put(FieldName, rec.Name, p.Name)
	put(FieldFullName, strOrEmpty(rec.FullName), strOrEmpty(p.FullName))
	if rec.Rating != nil {
		put(FieldRating, fmt.Sprintf("%d", *rec.Rating), intStrOrEmpty(p.Rating))
	}
	put(FieldGender, strOrEmpty(rec.Gender), strOrEmpty(p.Gender))
	put(FieldRegNo, strOrEmpty(rec.RegNo), strOrEmpty(p.RegNo))
	if rec.StartNo != nil {
		put(FieldStartNo, fmt.Sprintf("%d", *rec.StartNo), intStrOrEmpty(p.StartNo))
	}
	put(FieldState, strOrEmpty(rec.State), strOrEmpty(p.State))
	put(FieldCity, strOrEmpty(rec.City), strOrEmpty(p.City))
	put(FieldClub, strOrEmpty(rec.Club), strOrEmpty(p.Club))
	put(FieldFederation, strOrEmpty(rec.Federation), strOrEmpty(p.Federation))
	put(FieldDisability, strOrEmpty(rec.Disability), strOrEmpty(p.Disability))
	put(FieldNotes, strOrEmpty(rec.Notes), strOrEmpty(p.Notes))
	put(FieldGroupLabel, strOrEmpty(rec.GroupLabel), strOrEmpty(p.GroupLabel))
	put(FieldTypeLabel, strOrEmpty(rec.TypeLabel), strOrEmpty(p.TypeLabel))
	if rec.DOB != nil {
		put(FieldDOB, rec.DOB.Format("2006-01-02"), dobStrOrEmpty(p.DOB))
	}
	return out
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func intStrOrEmpty(v *int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d", *v)
}

func dobStrOrEmpty(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func recordNameDOBIndexKey(rec Record) string {
	if rec.Name == "" || rec.DOB == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(rec.Name)) + "|" + rec.DOB.Format("2006-01-02")
}

func playerNameDOBKey(p *repository.Player) string {
	if p.Name == "" || p.DOB == nil {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(p.Name)) + "|" + p.DOB.Format("2006-01-02")
}
