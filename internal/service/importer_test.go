package service

import (
	"context"
	"database/sql"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/jask/rosterflow/internal/database/repository"
)

func newTestImporter(t *testing.T, db *sql.DB, opts Options) *Importer {
	t.Helper()
	return NewImporter(
		repository.NewRosterRepo(db),
		repository.NewPlayerRepo(db),
		repository.NewAuditRepo(db),
		repository.NewSessionRepo(db),
		nil,
		opts,
	)
}

const sampleSheet = `Rank,Name,Rating,AICF ID,Start No
1,Anand Rao,2180,TN1234567,1
2,Priya Sharma,1950,MH7654321,2
3,Dmitri Kovacs,0,,3
`

func TestImporterAppendEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	roster := makeRoster(t, ctx, db, "State Open")

	im := newTestImporter(t, db, Options{})
	p, err := im.Prepare(ctx, roster.ID, strings.NewReader(sampleSheet))
	require.NoError(t, err)
	require.Len(t, p.Records, 3)
	require.Empty(t, p.RowErrors)
	require.Empty(t, p.Conflicts.Pending())

	require.NoError(t, im.Score(ctx, p))
	require.Len(t, p.Decisions, 3)
	for _, d := range p.Decisions {
		require.Equal(t, ActionCreate, d.Action)
	}

	ledger, err := im.Commit(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 3, ledger.Created)

	stored, err := repository.NewPlayerRepo(db).ListByRoster(ctx, roster.ID)
	require.NoError(t, err)
	require.Len(t, stored, 3)
	require.Equal(t, "TN", *stored[0].State)
	t.Log("imported", len(stored), "players")
}

func TestImporterReimportLinksByIdentifier(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	roster := makeRoster(t, ctx, db, "State Open")

	im := newTestImporter(t, db, Options{})
	p, err := im.Prepare(ctx, roster.ID, strings.NewReader(sampleSheet))
	require.NoError(t, err)
	_, err = im.Commit(ctx, p)
	require.NoError(t, err)

	// second pass with a rating change on a known identifier surfaces a
	// cross-store pair; merging it turns the row into an update, not a
	// duplicate
	updated := `Rank,Name,Rating,AICF ID,Start No
1,Anand Rao,2210,TN1234567,1
`
	p2, err := im.Prepare(ctx, roster.ID, strings.NewReader(updated))
	require.NoError(t, err)
	require.Len(t, p2.Conflicts.Pending(), 1)
	require.Equal(t, KeyIdentifier, p2.Conflicts.Pending()[0].KeyKind)
	require.NoError(t, p2.Conflicts.ResolveAll(MergeAB))
	require.NoError(t, im.Score(ctx, p2))
	require.Len(t, p2.Decisions, 1)
	require.Equal(t, ActionUpdate, p2.Decisions[0].Action)
	require.Equal(t, "2210", p2.Decisions[0].Changes[FieldRating])

	ledger, err := im.Commit(ctx, p2)
	require.NoError(t, err)
	require.Equal(t, 1, ledger.Updated)

	n, err := repository.NewPlayerRepo(db).CountByRoster(ctx, roster.ID)
	require.NoError(t, err)
	require.Equal(t, 3, n)
}

func TestImporterCommitBlockedOnPendingConflicts(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	roster := makeRoster(t, ctx, db, "State Open")

	sheet := `Rank,Name,Rating,AICF ID,Start No
1,Anand Rao,2180,TN1234567,1
2,Anand K Rao,2200,TN1234567,2
`
	im := newTestImporter(t, db, Options{})
	p, err := im.Prepare(ctx, roster.ID, strings.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, p.Conflicts.Pending(), 1)

	_, err = im.Commit(ctx, p)
	require.ErrorIs(t, err, ErrUnresolvedConflicts)

	n, err := repository.NewPlayerRepo(db).CountByRoster(ctx, roster.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestImporterAutoResolveAndCommit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	roster := makeRoster(t, ctx, db, "State Open")

	sheet := `Rank,Name,Rating,AICF ID,Start No
1,Anand Rao,2180,TN1234567,1
2,Anand K Rao,2200,TN1234567,2
3,Priya Sharma,1950,MH7654321,3
`
	im := newTestImporter(t, db, Options{})
	p, err := im.Prepare(ctx, roster.ID, strings.NewReader(sheet))
	require.NoError(t, err)

	require.NoError(t, p.Conflicts.ResolveAll(MergeAB))
	require.Empty(t, p.Conflicts.Pending())
	require.NoError(t, im.Score(ctx, p))
	require.Len(t, p.Records, 2)

	ledger, err := im.Commit(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 2, ledger.Created)
}

func TestImporterReplaceMode(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	roster := makeRoster(t, ctx, db, "State Open")

	im := newTestImporter(t, db, Options{})
	p, err := im.Prepare(ctx, roster.ID, strings.NewReader(sampleSheet))
	require.NoError(t, err)
	_, err = im.Commit(ctx, p)
	require.NoError(t, err)

	replacement := `Rank,Name,Rating,AICF ID,Start No
1,Lena Fischer,2300,GER111,1
`
	imr := newTestImporter(t, db, Options{Mode: ModeReplace})
	p2, err := imr.Prepare(ctx, roster.ID, strings.NewReader(replacement))
	require.NoError(t, err)
	require.NoError(t, imr.Score(ctx, p2))
	require.Nil(t, p2.Candidates)

	ledger, err := imr.Commit(ctx, p2)
	require.NoError(t, err)
	require.Equal(t, 1, ledger.Created)

	stored, err := repository.NewPlayerRepo(db).ListByRoster(ctx, roster.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.Equal(t, "Lena Fischer", stored[0].Name)
}

func TestImporterCheckpointAndResume(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	roster := makeRoster(t, ctx, db, "State Open")

	sheet := `Rank,Name,Rating,AICF ID,Start No
1,Anand Rao,2180,TN1234567,1
2,Anand K Rao,2200,TN1234567,2
`
	im := newTestImporter(t, db, Options{})
	p, err := im.Prepare(ctx, roster.ID, strings.NewReader(sheet))
	require.NoError(t, err)
	pending := p.Conflicts.Pending()
	require.Len(t, pending, 1)
	require.NoError(t, p.Conflicts.Resolve(pending[0].ID, KeepA))
	require.NoError(t, im.Checkpoint(ctx, p))
	sessionID := p.Session.ID

	// a fresh run over the same file picks the resolution back up; pair ids
	// are stable across runs
	p2, err := im.Prepare(ctx, roster.ID, strings.NewReader(sheet))
	require.NoError(t, err)
	require.Len(t, p2.Conflicts.Pending(), 1)
	require.NoError(t, im.Resume(ctx, p2, sessionID))
	require.Empty(t, p2.Conflicts.Pending())

	ledger, err := im.Commit(ctx, p2)
	require.NoError(t, err)
	require.Equal(t, 1, ledger.Created)

	// committed sessions are cleaned up
	_, ok, err := LoadSession(ctx, repository.NewSessionRepo(db), sessionID, DefaultMergePolicy())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestImporterResumeWrongRoster(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	rosterA := makeRoster(t, ctx, db, "Open A")
	rosterB := makeRoster(t, ctx, db, "Open B")

	im := newTestImporter(t, db, Options{})
	p, err := im.Prepare(ctx, rosterA.ID, strings.NewReader(sampleSheet))
	require.NoError(t, err)
	require.NoError(t, im.Checkpoint(ctx, p))

	other, err := im.Prepare(ctx, rosterB.ID, strings.NewReader(sampleSheet))
	require.NoError(t, err)
	err = im.Resume(ctx, other, p.Session.ID)
	require.Error(t, err)
	require.Contains(t, err.Error(), "different roster")
}

func TestImporterMissingRoster(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	im := newTestImporter(t, db, Options{})
	_, err := im.Prepare(context.Background(), uuid.NewString(), strings.NewReader(sampleSheet))
	require.ErrorIs(t, err, ErrNoRoster)
}

func TestImporterUnmappedColumns(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	roster := makeRoster(t, ctx, db, "State Open")

	im := newTestImporter(t, db, Options{})
	// headers resolve some fields, but never the required rank and name
	_, err := im.Prepare(ctx, roster.ID, strings.NewReader("Rating,State\n2100,TN\n"))

	var unmapped *ColumnsUnmappedError
	require.ErrorAs(t, err, &unmapped)
	require.NotEmpty(t, unmapped.Missing)
}

func TestImporterEligibilityWarnings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	db := openTestDB(t)
	r := repository.Roster{
		ID:   uuid.NewString(),
		Name: "U14 Girls",
		Categories: `[
			{"kind": "rating_range", "max_rating": 2000}
		]`,
	}
	require.NoError(t, repository.NewRosterRepo(db).Upsert(ctx, r))

	im := newTestImporter(t, db, Options{})
	p, err := im.Prepare(ctx, r.ID, strings.NewReader(sampleSheet))
	require.NoError(t, err)

	// Anand Rao is over the cap and the rating-zero row has no rating to
	// judge; the warnings are advisory and never block the commit
	require.Len(t, p.Eligibility, 2)
	require.Contains(t, p.Eligibility[1], "no eligibility criterion matched")
	require.Contains(t, p.Eligibility[3], "no eligibility criterion matched")

	ledger, err := im.Commit(ctx, p)
	require.NoError(t, err)
	require.Equal(t, 3, ledger.Created)
}
