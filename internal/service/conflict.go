package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jask/rosterflow/internal/database/repository"
)

// Mode selects how the batch reconciles against the persisted roster.
type Mode string

const (
	// ModeAppend reconciles against the persisted roster without deleting it.
	ModeAppend Mode = "append"
	// ModeReplace discards the entire persisted roster before import;
	// cross-store detection is skipped because the snapshot is doomed.
	ModeReplace Mode = "replace"
)

// KeyKind identifies which matching scheme a pair collided under. Pairs that
// collide under several schemes report once, under the first kind in this
// precedence order.
type KeyKind string

const (
	KeyIdentifier KeyKind = "identifier"
	KeyNameDOB    KeyKind = "name_dob"
	KeySequence   KeyKind = "sequence"
)

var keyKindOrder = []KeyKind{KeyIdentifier, KeyNameDOB, KeySequence}

// Side is one member of a conflict pair: either an incoming row or a
// persisted player, never both.
type Side struct {
	Record   *Record
	Existing *repository.Player
}

func (s Side) String() string {
	if s.Existing != nil {
		return fmt.Sprintf("existing %s (%s)", s.Existing.ID, s.Existing.Name)
	}
	return fmt.Sprintf("row %d (%s)", s.Record.OriginalIndex, s.Record.Name)
}

// identity returns a stable token for pair-identity bookkeeping.
func (s Side) identity() string {
	if s.Existing != nil {
		return "existing:" + s.Existing.ID
	}
	return fmt.Sprintf("row:%d", s.Record.OriginalIndex)
}

// ConflictPair is two colliding records. A and B are always distinct sources.
// ID is deterministic over the two side identities so resolutions persisted
// in a session survive a re-run over the same batch.
type ConflictPair struct {
	ID      string
	KeyKind KeyKind
	Key     string
	Reason  string
	A, B    Side
}

func pairID(a, b Side) string {
	ai, bi := a.identity(), b.identity()
	if bi < ai {
		ai, bi = bi, ai
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("pair:"+ai+"|"+bi)).String()
}

// --- key functions ---------------------------------------------------------

func recordIdentKey(r *Record) string {
	if r.RegNo == nil {
		return ""
	}
	return *r.RegNo
}

func recordNameDOBKey(r *Record) string {
	if r.Name == "" || r.DOB == nil {
		return ""
	}
	return nameDOBKey(r.Name, *r.DOB)
}

func recordSeqKey(r *Record) string {
	if r.StartNo == nil {
		return ""
	}
	return fmt.Sprintf("%d", *r.StartNo)
}

func nameDOBKey(name string, dob time.Time) string {
	folded := strings.Join(strings.Fields(strings.ToLower(name)), " ")
	return folded + "|" + dob.Format("2006-01-02")
}

func playerKey(kind KeyKind, p *repository.Player) string {
	switch kind {
	case KeyIdentifier:
		if p.RegNo == nil {
			return ""
		}
		return digitsOnly(*p.RegNo)
	case KeyNameDOB:
		if p.Name == "" || p.DOB == nil {
			return ""
		}
		return nameDOBKey(p.Name, *p.DOB)
	case KeySequence:
		if p.StartNo == nil {
			return ""
		}
		return fmt.Sprintf("%d", *p.StartNo)
	}
	return ""
}

func recordKey(kind KeyKind, r *Record) string {
	switch kind {
	case KeyIdentifier:
		return recordIdentKey(r)
	case KeyNameDOB:
		return recordNameDOBKey(r)
	case KeySequence:
		return recordSeqKey(r)
	}
	return ""
}

// --- detection -------------------------------------------------------------

// DetectConflicts scans the incoming batch for first-occurrence collisions
// under each key kind, and in append mode also against the persisted
// players. A collision between two records that differ only by rank is
// suppressed: that is the same identity re-ranked, not a conflict. A single
// physical pair is reported once, under the first key kind it triggers.
func DetectConflicts(records []*Record, existing []repository.Player, mode Mode) []ConflictPair {
	var pairs []ConflictPair
	seen := make(map[string]bool) // pair identity across key kinds

	for _, kind := range keyKindOrder {
		// Intra-batch: index the first occurrence of each key.
		first := make(map[string]*Record)
		grouped := make(map[string]bool) // one pair per colliding group per kind
		for _, r := range records {
			key := recordKey(kind, r)
			if key == "" {
				continue
			}
			head, ok := first[key]
			if !ok {
				first[key] = r
				continue
			}
			if sameExceptRank(head, r) {
				continue
			}
			a, b := Side{Record: head}, Side{Record: r}
			id := pairID(a, b)
			if seen[id] || grouped[key] {
				continue
			}
			seen[id], grouped[key] = true, true
			pairs = append(pairs, ConflictPair{
				ID: id, KeyKind: kind, Key: key,
				Reason: fmt.Sprintf("rows %d and %d collide on %s %q",
					head.OriginalIndex, r.OriginalIndex, kind, key),
				A: a, B: b,
			})
		}

		if mode == ModeReplace {
			continue
		}

		// Cross-store: scan the batch against the persisted index.
		index := make(map[string]*repository.Player)
		for i := range existing {
			p := &existing[i]
			if key := playerKey(kind, p); key != "" {
				index[key] = p
			}
		}
		for _, r := range records {
			key := recordKey(kind, r)
			if key == "" {
				continue
			}
			p, ok := index[key]
			if !ok {
				continue
			}
			if sameExceptRankVsPlayer(r, p) {
				continue
			}
			a, b := Side{Record: r}, Side{Existing: p}
			id := pairID(a, b)
			if seen[id] {
				continue
			}
			seen[id] = true
			pairs = append(pairs, ConflictPair{
				ID: id, KeyKind: kind, Key: key,
				Reason: fmt.Sprintf("row %d collides with stored player %q on %s %q",
					r.OriginalIndex, p.Name, kind, key),
				A: a, B: b,
			})
		}
	}
	return pairs
}

// sameExceptRankVsPlayer compares an incoming record with a persisted player
// over the narrow match subset, ignoring rank.
func sameExceptRankVsPlayer(r *Record, p *repository.Player) bool {
	if !strings.EqualFold(strings.TrimSpace(r.Name), strings.TrimSpace(p.Name)) {
		return false
	}
	if !timeEq(r.DOB, p.DOB) || !intEq(r.Rating, p.Rating) || !intEq(r.StartNo, p.StartNo) {
		return false
	}
	var pReg *string
	if p.RegNo != nil {
		d := digitsOnly(*p.RegNo)
		if d != "" {
			pReg = &d
		}
	}
	return strEq(r.RegNo, pReg)
}
