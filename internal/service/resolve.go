package service

import (
	"fmt"

	"github.com/jask/rosterflow/internal/database/repository"
)

// Strategy is the per-pair resolution an operator (or policy) picked.
type Strategy string

const (
	KeepA    Strategy = "keepA"
	KeepB    Strategy = "keepB"
	MergeAB  Strategy = "merge"
	KeepBoth Strategy = "keepBoth"
)

// PairState tracks the resolution state machine for one pair.
type PairState string

const (
	StateDetected PairState = "detected"
	StatePending  PairState = "pending"
	StateResolved PairState = "resolved"
)

// TieBreak selects what happens when a richness merge ties on both field
// count and rating. The rule is explicit and configurable rather than a
// silent fallback, so a full tie is auditable.
type TieBreak string

const (
	// TieBreakFirst keeps side A.
	TieBreakFirst TieBreak = "first"
	// TieBreakLowerIndex keeps the side that appeared earlier in the file.
	TieBreakLowerIndex TieBreak = "lower-index"
	// TieBreakHigherSeqNo keeps the side with the higher start number.
	TieBreakHigherSeqNo TieBreak = "higher-seqno"
)

// Resolution is a recorded decision for one pair. Note explains which merge
// rule fired, for the audit trail.
type Resolution struct {
	PairID   string   `json:"pair_id"`
	Strategy Strategy `json:"strategy"`
	Note     string   `json:"note,omitempty"`
}

// ConflictSet owns the detected pairs and their resolution state. Every pair
// starts pending; Apply refuses to run until none remain.
type ConflictSet struct {
	Pairs       []ConflictPair
	states      map[string]PairState
	resolutions map[string]Resolution
}

func NewConflictSet(pairs []ConflictPair) *ConflictSet {
	cs := &ConflictSet{
		Pairs:       pairs,
		states:      make(map[string]PairState, len(pairs)),
		resolutions: make(map[string]Resolution, len(pairs)),
	}
	for _, p := range pairs {
		cs.states[p.ID] = StatePending
	}
	return cs
}

// Resolve records a strategy for one pair and advances its state machine.
func (cs *ConflictSet) Resolve(pairID string, s Strategy) error {
	if _, ok := cs.states[pairID]; !ok {
		return fmt.Errorf("resolve: unknown pair %s", pairID)
	}
	switch s {
	case KeepA, KeepB, MergeAB, KeepBoth:
	default:
		return fmt.Errorf("resolve: unknown strategy %q", s)
	}
	cs.states[pairID] = StateResolved
	cs.resolutions[pairID] = Resolution{PairID: pairID, Strategy: s}
	return nil
}

// ResolveAll applies one strategy to every pending pair (non-interactive runs).
func (cs *ConflictSet) ResolveAll(s Strategy) error {
	for _, p := range cs.Pairs {
		if cs.states[p.ID] != StateResolved {
			if err := cs.Resolve(p.ID, s); err != nil {
				return err
			}
		}
	}
	return nil
}

// Pending returns the pairs still awaiting a resolution.
func (cs *ConflictSet) Pending() []ConflictPair {
	var out []ConflictPair
	for _, p := range cs.Pairs {
		if cs.states[p.ID] != StateResolved {
			out = append(out, p)
		}
	}
	return out
}

// Resolutions returns the recorded decisions keyed by pair ID.
func (cs *ConflictSet) Resolutions() map[string]Resolution {
	out := make(map[string]Resolution, len(cs.resolutions))
	for k, v := range cs.resolutions {
		out[k] = v
	}
	return out
}

// Restore re-applies previously persisted resolutions (session resume).
// Unknown pair IDs are ignored: the batch may have changed since.
func (cs *ConflictSet) Restore(resolutions map[string]Resolution) {
	for id, r := range resolutions {
		if _, ok := cs.states[id]; ok {
			cs.states[id] = StateResolved
			cs.resolutions[id] = r
		}
	}
}

// Apply reduces the record set according to the recorded resolutions and
// returns the surviving records. It fails with ErrUnresolvedConflicts while
// any pair is still pending. The drop set only ever removes incoming rows;
// persisted players are removed from the write path implicitly (a dropped
// incoming row simply never reaches the store).
func (cs *ConflictSet) Apply(records []*Record, tb TieBreak) ([]*Record, error) {
	if len(cs.Pending()) > 0 {
		return nil, ErrUnresolvedConflicts
	}
	dropped := make(map[int]bool) // OriginalIndex -> removed

	for _, p := range cs.Pairs {
		res := cs.resolutions[p.ID]
		switch res.Strategy {
		case KeepA:
			dropSide(p.B, dropped)
		case KeepB:
			dropSide(p.A, dropped)
		case MergeAB:
			note := mergePair(p, tb, dropped)
			res.Note = note
			cs.resolutions[p.ID] = res
		case KeepBoth:
			// Both sides proceed as distinct entities.
		}
	}

	var out []*Record
	for _, r := range records {
		if !dropped[r.OriginalIndex] {
			out = append(out, r)
		}
	}
	return out, nil
}

func dropSide(s Side, dropped map[int]bool) {
	if s.Record != nil {
		dropped[s.Record.OriginalIndex] = true
	}
}

// mergePair performs the richness merge: the side with more populated
// canonical fields wins, rating breaks the first tie, and the configured
// tie-break rule settles a full tie. Every empty field on the winner is
// copied from the loser; populated fields are never overwritten. The loser's
// row leaves the write set.
func mergePair(p ConflictPair, tb TieBreak, dropped map[int]bool) string {
	// Cross-store pairs enrich the incoming row from the stored player and
	// keep it; the linkage stage will turn it into an update.
	if p.A.Existing != nil || p.B.Existing != nil {
		rec, player := p.A.Record, p.B.Existing
		if rec == nil {
			rec, player = p.B.Record, p.A.Existing
		}
		enrichFromPlayer(rec, player)
		return "merged stored player fields into incoming row"
	}

	a, b := p.A.Record, p.B.Record
	winner, loser, note := pickMergeWinner(a, b, tb)
	winner.copyMissingFrom(loser)
	dropped[loser.OriginalIndex] = true
	return note
}

func pickMergeWinner(a, b *Record, tb TieBreak) (winner, loser *Record, note string) {
	ra, rb := a.Richness(), b.Richness()
	if ra != rb {
		if ra > rb {
			return a, b, "richness"
		}
		return b, a, "richness"
	}
	ratA, ratB := ratingOrZero(a), ratingOrZero(b)
	if ratA != ratB {
		if ratA > ratB {
			return a, b, "rating"
		}
		return b, a, "rating"
	}
	switch tb {
	case TieBreakLowerIndex:
		if b.OriginalIndex < a.OriginalIndex {
			return b, a, "tie-break: lower-index"
		}
		return a, b, "tie-break: lower-index"
	case TieBreakHigherSeqNo:
		if seqOrZero(b) > seqOrZero(a) {
			return b, a, "tie-break: higher-seqno"
		}
		return a, b, "tie-break: higher-seqno"
	default:
		return a, b, "tie-break: first"
	}
}

func ratingOrZero(r *Record) int {
	if r.Rating == nil {
		return 0
	}
	return *r.Rating
}

func seqOrZero(r *Record) int {
	if r.StartNo == nil {
		return 0
	}
	return *r.StartNo
}

// enrichFromPlayer copies the stored player's match-subset fields onto the
// incoming row wherever the row is empty.
func enrichFromPlayer(rec *Record, p *repository.Player) {
	if rec == nil || p == nil {
		return
	}
	if rec.DOB == nil && p.DOB != nil {
		rec.DOB = p.DOB
	}
	if rec.Rating == nil && !rec.RatingZero && p.Rating != nil {
		rec.Rating = p.Rating
	}
	if rec.RegNo == nil && p.RegNo != nil {
		if d := digitsOnly(*p.RegNo); d != "" {
			rec.RegNo = &d
		}
	}
	if rec.StartNo == nil && p.StartNo != nil {
		rec.StartNo = p.StartNo
	}
}
