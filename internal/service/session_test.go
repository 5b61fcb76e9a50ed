package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jask/rosterflow/internal/database/repository"
)

func TestSessionRoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := repository.NewSessionRepo(openTestDB(t))

	policy := DefaultMergePolicy()
	s := NewImportSession("roster-1", ModeAppend, policy)
	s.Resolutions = map[string]Resolution{
		"pair-a": {Strategy: MergeAB},
	}
	s.Decisions = []Decision{
		{Row: 4, Action: ActionUpdate, ExistingID: "p1", Changes: map[string]string{FieldRating: "2180"}},
	}
	require.NoError(t, SaveSession(ctx, store, s))

	got, ok, err := LoadSession(ctx, store, s.ID, policy)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "roster-1", got.RosterID)
	require.Equal(t, ModeAppend, got.Mode)
	require.Equal(t, MergeAB, got.Resolutions["pair-a"].Strategy)
	require.Len(t, got.Decisions, 1)
	require.Equal(t, "2180", got.Decisions[0].Changes[FieldRating])
	require.False(t, got.UpdatedAt.IsZero())
}

func TestSessionPolicyChangeDropsDecisions(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := repository.NewSessionRepo(openTestDB(t))

	policy := DefaultMergePolicy()
	s := NewImportSession("roster-1", ModeAppend, policy)
	s.Resolutions = map[string]Resolution{"pair-a": {Strategy: KeepA}}
	s.Decisions = []Decision{{Row: 4, Action: ActionCreate}}
	require.NoError(t, SaveSession(ctx, store, s))

	changed := DefaultMergePolicy()
	changed[FieldRating] = MergeNever

	got, ok, err := LoadSession(ctx, store, s.ID, changed)
	require.NoError(t, err)
	require.True(t, ok)

	// linkage decisions were scored under the old policy and are discarded;
	// conflict resolutions survive
	require.Nil(t, got.Decisions)
	require.Equal(t, changed.Hash(), got.PolicyHash)
	require.Equal(t, KeepA, got.Resolutions["pair-a"].Strategy)
}

func TestSessionDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := repository.NewSessionRepo(openTestDB(t))

	policy := DefaultMergePolicy()
	s := NewImportSession("roster-1", ModeReplace, policy)
	require.NoError(t, SaveSession(ctx, store, s))
	require.NoError(t, DeleteSession(ctx, store, s.ID))

	_, ok, err := LoadSession(ctx, store, s.ID, policy)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSessionLoadMissing(t *testing.T) {
	t.Parallel()

	store := repository.NewSessionRepo(openTestDB(t))
	got, ok, err := LoadSession(context.Background(), store, "nope", DefaultMergePolicy())
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, got)
}
