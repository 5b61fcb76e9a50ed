package testdata

import (
	"context"

	"github.com/google/uuid"

	"github.com/jask/rosterflow/internal/database/repository"
)

// Repos bundles the repositories the seeder writes through.
type Repos struct {
	Rosters *repository.RosterRepo
	Players *repository.PlayerRepo
}

// Seed ensures a demo roster with a handful of entries exists for new
// databases. It is idempotent and safe to run on every startup.
func Seed(ctx context.Context, repos Repos) error {
	existing, err := repos.Rosters.List(ctx)
	if err == nil && len(existing) > 0 {
		return nil
	}

	rosterID := uuid.NewSHA1(uuid.NameSpaceOID, []byte("roster:Demo Open")).String()
	roster := repository.Roster{
		ID:         rosterID,
		Name:       "Demo Open",
		Categories: "[]",
	}
	if err := repos.Rosters.Upsert(ctx, roster); err != nil {
		return err
	}

	n, err := repos.Players.CountByRoster(ctx, rosterID)
	if err != nil || n > 0 {
		return err
	}

	type seed struct {
		rank   int
		name   string
		rating int
		regNo  string
		state  string
	}
	seeds := []seed{
		{1, "Anand Rao", 2180, "35061234", "TN"},
		{2, "Priya Sharma", 2010, "35065678", "MH"},
		{3, "Dmitri Kovacs", 1895, "35069012", "KA"},
		{4, "Lena Fischer", 1740, "35063456", "DL"},
		{5, "Arjun Iyer", 0, "", "TN"},
	}
	for _, s := range seeds {
		p := repository.Player{
			ID:       uuid.NewSHA1(uuid.NameSpaceOID, []byte("player:"+s.name)).String(),
			RosterID: rosterID,
			Rank:     s.rank,
			Name:     s.name,
		}
		if s.rating > 0 {
			rating := s.rating
			p.Rating = &rating
		} else {
			p.RatingZero = true
			p.Unrated = true
		}
		if s.regNo != "" {
			regNo := s.regNo
			p.RegNo = &regNo
		}
		if s.state != "" {
			state := s.state
			p.State = &state
		}
		if err := repos.Players.Insert(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
