package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jask/rosterflow/internal/database/repository"
)

// FailedRow is one row the executor could not land, by source row index.
type FailedRow struct {
	OriginalIndex int    `json:"row"`
	Reason        string `json:"reason"`
}

// Ledger is the outcome of one commit: every accepted row counted once,
// every rejected row carried with its reason.
type Ledger struct {
	Created  int
	Updated  int
	Skipped  int
	Failed   []FailedRow
	Duration time.Duration
}

func (l Ledger) Accepted() int { return l.Created + l.Updated }

const defaultChunkSize = 50

// Executor lands a reconciled batch in the store. Append merges into the
// existing roster, Replace swaps its contents atomically.
type Executor struct {
	Players *repository.PlayerRepo
	Audits  *repository.AuditRepo
	Log     *zap.Logger

	ChunkSize int
}

func NewExecutor(players *repository.PlayerRepo, audits *repository.AuditRepo, log *zap.Logger) *Executor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Executor{Players: players, Audits: audits, Log: log, ChunkSize: defaultChunkSize}
}

func (e *Executor) chunkSize() int {
	if e.ChunkSize > 0 {
		return e.ChunkSize
	}
	return defaultChunkSize
}

// Preflight reports persisted rank collisions before anything is written, so
// a caller can warn without aborting.
func (e *Executor) Preflight(ctx context.Context, rosterID string, records []*Record) ([]string, error) {
	inUse, err := e.Players.RanksInUse(ctx, rosterID)
	if err != nil {
		return nil, err
	}
	var warnings []string
	for _, rec := range records {
		if rec.Rank == nil {
			continue
		}
		if id, ok := inUse[*rec.Rank]; ok {
			warnings = append(warnings, fmt.Sprintf("row %d: seed rank %d already held by entry %s", rec.OriginalIndex, *rec.Rank, id))
		}
	}
	return warnings, nil
}

// Append lands a batch against an existing roster. Decisions partition the
// records into creates, updates, and skips; creates go through the bulk
// upsert in chunks, with a per-row salvage pass when a chunk hits an
// unexpected constraint. Cancellation is honoured between chunks only, so a
// chunk that started always finishes or rolls back whole.
func (e *Executor) Append(ctx context.Context, rosterID string, records []*Record, decisions []Decision, policy MergePolicy) (Ledger, error) {
	start := time.Now()
	ledger := Ledger{}

	byRow := make(map[int]*Record, len(records))
	for _, rec := range records {
		byRow[rec.OriginalIndex] = rec
	}

	var creates []*Record
	for _, d := range decisions {
		rec, ok := byRow[d.Row]
		if !ok {
			continue
		}
		switch d.Action {
		case ActionCreate:
			creates = append(creates, rec)
		case ActionUpdate:
			if err := e.applyUpdate(ctx, d, rec); err != nil {
				ledger.Failed = append(ledger.Failed, FailedRow{OriginalIndex: d.Row, Reason: err.Error()})
				continue
			}
			ledger.Updated++
		case ActionSkip:
			ledger.Skipped++
		}
	}

	// Snapshot persisted start numbers up front. A create that lands on one
	// of them merges in place, and the ledger counts it as an update.
	seqInUse, err := e.Players.StartNosInUse(ctx, rosterID)
	if err != nil {
		return ledger, err
	}

	size := e.chunkSize()
	for off := 0; off < len(creates); off += size {
		if err := ctx.Err(); err != nil {
			e.finishAudit(ctx, rosterID, string(ModeAppend), len(records), &ledger, policy, start)
			return ledger, err
		}
		end := off + size
		if end > len(creates) {
			end = len(creates)
		}
		e.writeChunk(ctx, rosterID, creates[off:end], seqInUse, &ledger)
	}

	ledger.Duration = time.Since(start)
	e.finishAudit(ctx, rosterID, string(ModeAppend), len(records), &ledger, policy, start)
	e.Log.Info("append committed",
		zap.String("roster", rosterID),
		zap.Int("created", ledger.Created),
		zap.Int("updated", ledger.Updated),
		zap.Int("skipped", ledger.Skipped),
		zap.Int("failed", len(ledger.Failed)))
	return ledger, nil
}

// writeChunk tries the bulk upsert first and falls back to row-at-a-time
// when the chunk trips a constraint the upsert cannot merge, so one bad row
// never sinks its neighbours.
func (e *Executor) writeChunk(ctx context.Context, rosterID string, chunk []*Record, seqInUse map[int]string, ledger *Ledger) {
	players := make([]repository.Player, len(chunk))
	for i, rec := range chunk {
		players[i] = toPlayer(rosterID, rec)
	}
	err := e.Players.BulkUpsert(ctx, players)
	if err == nil {
		for i, rec := range chunk {
			if rec.StartNo != nil {
				if _, merged := seqInUse[*rec.StartNo]; merged {
					ledger.Updated++
					continue
				}
				seqInUse[*rec.StartNo] = players[i].ID
			}
			ledger.Created++
		}
		return
	}
	we := classifyWriteError(err)
	e.Log.Warn("bulk upsert failed, salvaging per row",
		zap.String("roster", rosterID),
		zap.String("status", we.Status),
		zap.Error(err))
	for i, rec := range chunk {
		ierr := e.Players.Insert(ctx, players[i])
		if ierr == nil {
			if rec.StartNo != nil {
				seqInUse[*rec.StartNo] = players[i].ID
			}
			ledger.Created++
			continue
		}
		iwe := classifyWriteError(ierr)
		if iwe.IsExpectedMergeTarget {
			// start number collision: the batch row supersedes the
			// persisted entry
			if uerr := e.Players.BulkUpsert(ctx, players[i:i+1]); uerr == nil {
				ledger.Updated++
				continue
			}
		}
		ledger.Failed = append(ledger.Failed, FailedRow{OriginalIndex: rec.OriginalIndex, Reason: iwe.Message})
	}
}

// Replace swaps the roster contents for the batch in one transaction. A
// duplicate seed rank or start number inside the batch fails every member of
// the colliding group before anything is written, leaving the store intact.
func (e *Executor) Replace(ctx context.Context, rosterID string, records []*Record, policy MergePolicy) (Ledger, error) {
	start := time.Now()
	ledger := Ledger{}

	dupes := duplicateGroups(records)
	if len(dupes) > 0 {
		ledger.Failed = dupes
		ledger.Duration = time.Since(start)
		e.finishAudit(ctx, rosterID, string(ModeReplace), len(records), &ledger, policy, start)
		return ledger, fmt.Errorf("replace roster %s: %d rows collide inside the batch", rosterID, len(dupes))
	}

	players := make([]repository.Player, len(records))
	for i, rec := range records {
		players[i] = toPlayer(rosterID, rec)
	}
	n, failed, err := e.Players.ReplaceRoster(ctx, rosterID, players)
	if err != nil {
		for _, f := range failed {
			if f.RowIndex >= 0 && f.RowIndex < len(records) {
				ledger.Failed = append(ledger.Failed, FailedRow{OriginalIndex: records[f.RowIndex].OriginalIndex, Reason: f.Reason})
			}
		}
		ledger.Duration = time.Since(start)
		e.finishAudit(ctx, rosterID, string(ModeReplace), len(records), &ledger, policy, start)
		return ledger, err
	}
	ledger.Created = n
	ledger.Duration = time.Since(start)
	e.finishAudit(ctx, rosterID, string(ModeReplace), len(records), &ledger, policy, start)
	e.Log.Info("replace committed", zap.String("roster", rosterID), zap.Int("created", n))
	return ledger, nil
}

// duplicateGroups fails every member of a rank or start-number collision
// inside the batch, not just the later one, so the reporter can show the
// whole group.
func duplicateGroups(records []*Record) []FailedRow {
	byRank := map[int][]*Record{}
	bySeq := map[int][]*Record{}
	for _, rec := range records {
		if rec.Rank != nil {
			byRank[*rec.Rank] = append(byRank[*rec.Rank], rec)
		}
		if rec.StartNo != nil {
			bySeq[*rec.StartNo] = append(bySeq[*rec.StartNo], rec)
		}
	}
	seen := map[int]bool{}
	var failed []FailedRow
	add := func(rec *Record, reason string) {
		if seen[rec.OriginalIndex] {
			return
		}
		seen[rec.OriginalIndex] = true
		failed = append(failed, FailedRow{OriginalIndex: rec.OriginalIndex, Reason: reason})
	}
	for rank, group := range byRank {
		if len(group) < 2 {
			continue
		}
		for _, rec := range group {
			add(rec, fmt.Sprintf("duplicate seed rank %d in batch", rank))
		}
	}
	for seq, group := range bySeq {
		if len(group) < 2 {
			continue
		}
		for _, rec := range group {
			add(rec, fmt.Sprintf("duplicate start number %d in batch", seq))
		}
	}
	sort.Slice(failed, func(i, j int) bool { return failed[i].OriginalIndex < failed[j].OriginalIndex })
	return failed
}

func (e *Executor) applyUpdate(ctx context.Context, d Decision, rec *Record) error {
	existing, err := e.Players.Get(ctx, d.ExistingID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("entry %s vanished before update", d.ExistingID)
	}
	applyChanges(existing, d.Changes)
	existing.DOBInferred = existing.DOBInferred || rec.DOBInferred
	existing.RankAutofilled = existing.RankAutofilled || rec.RankAutofilled
	return e.Players.Update(ctx, *existing)
}

// applyChanges writes a decision's change set onto a loaded player. Values
// arrive as strings; numeric and date fields parse back, and a value that no
// longer parses is dropped rather than corrupting the entry.
func applyChanges(p *repository.Player, changes map[string]string) {
	for field, val := range changes {
		switch field {
		case FieldRank:
			if n, err := strconv.Atoi(val); err == nil {
				p.Rank = n
			}
		case FieldName:
			p.Name = val
		case FieldFullName:
			p.FullName = strPtr(val)
		case FieldRating:
			if n, err := strconv.Atoi(val); err == nil {
				p.Rating = &n
			}
		case FieldGender:
			p.Gender = strPtr(val)
		case FieldRegNo:
			p.RegNo = strPtr(val)
		case FieldStartNo:
			if n, err := strconv.Atoi(val); err == nil {
				p.StartNo = &n
			}
		case FieldState:
			p.State = strPtr(val)
		case FieldCity:
			p.City = strPtr(val)
		case FieldClub:
			p.Club = strPtr(val)
		case FieldFederation:
			p.Federation = strPtr(val)
		case FieldDisability:
			p.Disability = strPtr(val)
		case FieldNotes:
			p.Notes = strPtr(val)
		case FieldGroupLabel:
			p.GroupLabel = strPtr(val)
		case FieldTypeLabel:
			p.TypeLabel = strPtr(val)
		case FieldDOB:
			if t, err := time.Parse("2006-01-02", val); err == nil {
				tt := t.UTC()
				p.DOB = &tt
			}
		}
	}
}

func toPlayer(rosterID string, rec *Record) repository.Player {
	p := repository.Player{
		ID:                 uuid.NewString(),
		RosterID:           rosterID,
		Name:               rec.Name,
		FullName:           rec.FullName,
		Rating:             rec.Rating,
		Gender:             rec.Gender,
		RegNo:              rec.RegNo,
		StartNo:            rec.StartNo,
		State:              rec.State,
		City:               rec.City,
		Club:               rec.Club,
		Federation:         rec.Federation,
		Disability:         rec.Disability,
		Notes:              rec.Notes,
		GroupLabel:         rec.GroupLabel,
		TypeLabel:          rec.TypeLabel,
		DOB:                rec.DOB,
		DOBOriginal:        rec.DOBOriginal,
		RatingZero:         rec.RatingZero,
		Unrated:            rec.Unrated,
		RankAutofilled:     rec.RankAutofilled,
		DOBInferred:        rec.DOBInferred,
		StateAutoExtracted: rec.StateAutoExtracted,
	}
	if rec.Rank != nil {
		p.Rank = *rec.Rank
	}
	return p
}

// finishAudit persists the run outcome. Audit failures are logged, never
// allowed to fail a commit that already landed.
func (e *Executor) finishAudit(ctx context.Context, rosterID, mode string, total int, ledger *Ledger, policy MergePolicy, start time.Time) {
	if e.Audits == nil {
		return
	}
	if ledger.Duration == 0 {
		ledger.Duration = time.Since(start)
	}
	a := repository.ImportAudit{
		ID:           uuid.NewString(),
		RosterID:     rosterID,
		Mode:         mode,
		TotalRows:    total,
		AcceptedRows: ledger.Accepted(),
		SkippedRows:  ledger.Skipped,
		FailedRows:   len(ledger.Failed),
		TopReasons:   topReasons(ledger.Failed),
		SampleErrors: sampleErrors(ledger.Failed),
		DurationMS:   ledger.Duration.Milliseconds(),
		MergePolicy:  policy.Snapshot(),
	}
	if err := e.Audits.Add(ctx, a); err != nil {
		e.Log.Warn("audit write failed", zap.String("roster", rosterID), zap.Error(err))
	}
}

// topReasons aggregates failure reasons by frequency, most common first.
func topReasons(failed []FailedRow) string {
	counts := map[string]int{}
	for _, f := range failed {
		counts[f.Reason]++
	}
	type rc struct {
		Reason string `json:"reason"`
		Count  int    `json:"count"`
	}
	out := make([]rc, 0, len(counts))
	for reason, n := range counts {
		out = append(out, rc{Reason: reason, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	if len(out) > 5 {
		out = out[:5]
	}
	b, err := json.Marshal(out)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func sampleErrors(failed []FailedRow) string {
	if len(failed) > 5 {
		failed = failed[:5]
	}
	b, err := json.Marshal(failed)
	if err != nil {
		return "[]"
	}
	return string(b)
}
