package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/jask/rosterflow/internal/database/repository"
)

// Options collects every knob a run can turn. The zero value is usable;
// Commit falls back to append mode with the default policy.
type Options struct {
	Mode      Mode
	Policy    MergePolicy
	Normalize NormalizeOptions
	TieBreak  TieBreak

	ChunkSize       int
	UpdateThreshold float64
	ReviewThreshold float64

	// ParseTimeout > 0 routes parsing through the lenient fallback when the
	// strict pass stalls on a pathological file.
	ParseTimeout time.Duration
}

// Importer drives the whole reconciliation pipeline: Prepare parses, maps,
// normalizes and detects conflicts; Score links the surviving batch against
// the persisted roster; Commit lands it.
type Importer struct {
	Rosters  *repository.RosterRepo
	Players  *repository.PlayerRepo
	Audits   *repository.AuditRepo
	Sessions KVStore
	Log      *zap.Logger

	Opts Options
}

func NewImporter(rosters *repository.RosterRepo, players *repository.PlayerRepo, audits *repository.AuditRepo, sessions KVStore, log *zap.Logger, opts Options) *Importer {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Mode == "" {
		opts.Mode = ModeAppend
	}
	if opts.Policy == nil {
		opts.Policy = DefaultMergePolicy()
	}
	return &Importer{Rosters: rosters, Players: players, Audits: audits, Sessions: sessions, Log: log, Opts: opts}
}

// Prepared is everything a run knows before anything is written. Conflicts
// must reach a terminal state before Commit will touch the store.
type Prepared struct {
	Session *ImportSession
	Roster  *repository.Roster

	Table   *Table
	Mapping ColumnMapping

	Records      []*Record
	RowErrors    []RowError
	Dropped      int
	ImputedRanks int

	Eligibility map[int]string // row -> warning, advisory only
	Conflicts   *ConflictSet
	Existing    []repository.Player

	Candidates []Candidate
	Decisions  []Decision
}

// Prepare runs the read-only half of the pipeline. It never touches the
// store beyond loading the roster and its match fields.
func (im *Importer) Prepare(ctx context.Context, rosterID string, r io.Reader) (*Prepared, error) {
	roster, err := im.Rosters.Get(ctx, rosterID)
	if err != nil {
		return nil, err
	}
	if roster == nil {
		return nil, ErrNoRoster
	}

	var table *Table
	if im.Opts.ParseTimeout > 0 {
		table, err = ParseWithFallback(ctx, r, im.Opts.ParseTimeout)
	} else {
		table, err = ParseTable(r)
	}
	if err != nil {
		return nil, err
	}

	mapping := MapColumns(table)
	if !mapping.Resolved() {
		return nil, &ColumnsUnmappedError{Missing: mapping.Missing}
	}

	norm := Normalize(table, mapping, im.Opts.Normalize)

	existing, err := im.Players.MatchFields(ctx, rosterID)
	if err != nil {
		return nil, err
	}

	pairs := DetectConflicts(norm.Records, existing, im.Opts.Mode)

	criteria, err := ParseCriteria(roster.Categories)
	if err != nil {
		return nil, err
	}

	p := &Prepared{
		Session:      NewImportSession(rosterID, im.Opts.Mode, im.Opts.Policy),
		Roster:       roster,
		Table:        table,
		Mapping:      mapping,
		Records:      norm.Records,
		RowErrors:    norm.RowErrors,
		Dropped:      norm.Dropped,
		ImputedRanks: norm.ImputedRanks,
		Eligibility:  CheckEligibility(norm.Records, criteria, time.Now().UTC()),
		Conflicts:    NewConflictSet(pairs),
		Existing:     existing,
	}
	im.Log.Info("batch prepared",
		zap.String("roster", rosterID),
		zap.Int("rows", len(table.Rows)),
		zap.Int("records", len(norm.Records)),
		zap.Int("row_errors", len(norm.RowErrors)),
		zap.Int("conflicts", len(pairs)))
	return p, nil
}

// Resume restores a saved session's resolutions and decisions onto a freshly
// prepared batch.
func (im *Importer) Resume(ctx context.Context, p *Prepared, sessionID string) error {
	if im.Sessions == nil {
		return fmt.Errorf("session store not configured")
	}
	s, ok, err := LoadSession(ctx, im.Sessions, sessionID, im.Opts.Policy)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if s.RosterID != p.Session.RosterID || s.Mode != p.Session.Mode {
		return fmt.Errorf("session %s targets a different roster or mode", sessionID)
	}
	p.Session = s
	p.Conflicts.Restore(s.Resolutions)
	p.Decisions = s.Decisions
	return nil
}

// Checkpoint saves the session's reviewable state.
func (im *Importer) Checkpoint(ctx context.Context, p *Prepared) error {
	if im.Sessions == nil {
		return nil
	}
	p.Session.Resolutions = p.Conflicts.Resolutions()
	p.Session.Decisions = p.Decisions
	return SaveSession(ctx, im.Sessions, p.Session)
}

// Preflight surfaces persisted rank collisions as warnings before commit.
func (im *Importer) Preflight(ctx context.Context, p *Prepared) ([]string, error) {
	ex := NewExecutor(im.Players, im.Audits, im.Log)
	return ex.Preflight(ctx, p.Session.RosterID, p.Records)
}

// Score applies the resolved conflicts to the batch and links the survivors
// against the persisted roster. It fails while any pair is still pending.
// Replace mode skips linkage: the batch defines the roster outright.
func (im *Importer) Score(ctx context.Context, p *Prepared) error {
	survivors, err := p.Conflicts.Apply(p.Records, im.Opts.TieBreak)
	if err != nil {
		return err
	}
	p.Records = survivors

	if im.Opts.Mode == ModeReplace {
		p.Candidates = nil
		p.Decisions = nil
		return nil
	}

	scorer := NewScorer()
	if im.Opts.UpdateThreshold > 0 {
		scorer.UpdateThreshold = im.Opts.UpdateThreshold
	}
	if im.Opts.ReviewThreshold > 0 {
		scorer.ReviewThreshold = im.Opts.ReviewThreshold
	}

	recs := make([]Record, len(survivors))
	byRow := make(map[int]*Record, len(survivors))
	for i, r := range survivors {
		recs[i] = *r
		byRow[r.OriginalIndex] = r
	}
	p.Candidates = scorer.Score(recs, p.Existing)

	p.Decisions = p.Decisions[:0]
	for _, c := range p.Candidates {
		rec := byRow[c.Row]
		if rec == nil {
			continue
		}
		p.Decisions = append(p.Decisions, Decide(c, *rec, im.Opts.Policy))
	}
	return nil
}

// SetDecision overrides a scored candidate after review.
func (p *Prepared) SetDecision(d Decision) {
	for i := range p.Decisions {
		if p.Decisions[i].Row == d.Row {
			p.Decisions[i] = d
			return
		}
	}
	p.Decisions = append(p.Decisions, d)
}

// Commit lands the batch. It refuses to run while conflicts are pending, and
// in append mode it requires Score to have produced decisions first.
func (im *Importer) Commit(ctx context.Context, p *Prepared) (Ledger, error) {
	if pending := p.Conflicts.Pending(); len(pending) > 0 {
		return Ledger{}, ErrUnresolvedConflicts
	}

	ex := NewExecutor(im.Players, im.Audits, im.Log)
	if im.Opts.ChunkSize > 0 {
		ex.ChunkSize = im.Opts.ChunkSize
	}

	var ledger Ledger
	var err error
	switch im.Opts.Mode {
	case ModeReplace:
		ledger, err = ex.Replace(ctx, p.Session.RosterID, p.Records, im.Opts.Policy)
	default:
		if len(p.Decisions) == 0 && len(p.Records) > 0 {
			if serr := im.Score(ctx, p); serr != nil {
				return Ledger{}, serr
			}
		}
		ledger, err = ex.Append(ctx, p.Session.RosterID, p.Records, p.Decisions, im.Opts.Policy)
	}
	if err != nil {
		return ledger, err
	}
	if im.Sessions != nil {
		if derr := DeleteSession(ctx, im.Sessions, p.Session.ID); derr != nil {
			im.Log.Warn("session cleanup failed", zap.String("session", p.Session.ID), zap.Error(derr))
		}
	}
	return ledger, nil
}
