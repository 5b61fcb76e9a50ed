package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jask/rosterflow/internal/database"
)

const playerCols = `id, roster_id, rank, name, full_name, rating, gender, reg_no, start_no,
 state, city, club, federation, disability, notes, group_label, type_label,
 dob, dob_original, rating_zero, unrated, rank_autofilled, dob_inferred, state_auto_extracted,
 created_at, updated_at`

// PlayerRepo handles roster entries.
type PlayerRepo struct {
	db *sql.DB
}

func NewPlayerRepo(db *sql.DB) *PlayerRepo {
	return &PlayerRepo{db: db}
}

func (r *PlayerRepo) Insert(ctx context.Context, p Player) error {
	return insertPlayer(ctx, r.db, p)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func insertPlayer(ctx context.Context, ex execer, p Player) error {
	_, err := ex.ExecContext(ctx, `
	INSERT INTO players(
	 id, roster_id, rank, name, full_name, rating, gender, reg_no, start_no,
	 state, city, club, federation, disability, notes, group_label, type_label,
	 dob, dob_original, rating_zero, unrated, rank_autofilled, dob_inferred, state_auto_extracted,
	 created_at, updated_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP);
	`,
		p.ID, p.RosterID, p.Rank, p.Name, p.FullName, p.Rating, p.Gender, p.RegNo, p.StartNo,
		p.State, p.City, p.Club, p.Federation, p.Disability, p.Notes, p.GroupLabel, p.TypeLabel,
		p.DOB, p.DOBOriginal, p.RatingZero, p.Unrated, p.RankAutofilled, p.DOBInferred, p.StateAutoExtracted)
	return err
}

func (r *PlayerRepo) Update(ctx context.Context, p Player) error {
	_, err := r.db.ExecContext(ctx, `
	UPDATE players SET
	 rank=?, name=?, full_name=?, rating=?, gender=?, reg_no=?, start_no=?,
	 state=?, city=?, club=?, federation=?, disability=?, notes=?, group_label=?, type_label=?,
	 dob=?, dob_original=?, rating_zero=?, unrated=?, rank_autofilled=?, dob_inferred=?, state_auto_extracted=?,
	 updated_at=CURRENT_TIMESTAMP
	WHERE id=?;
	`,
		p.Rank, p.Name, p.FullName, p.Rating, p.Gender, p.RegNo, p.StartNo,
		p.State, p.City, p.Club, p.Federation, p.Disability, p.Notes, p.GroupLabel, p.TypeLabel,
		p.DOB, p.DOBOriginal, p.RatingZero, p.Unrated, p.RankAutofilled, p.DOBInferred, p.StateAutoExtracted,
		p.ID)
	return err
}

// BulkUpsert inserts a batch in one transaction. Rows colliding with an
// existing start number for the roster update that entry in place; every
// other constraint violation aborts the batch.
func (r *PlayerRepo) BulkUpsert(ctx context.Context, players []Player) error {
	return database.WithTx(r.db, func(tx *sql.Tx) error {
		for _, p := range players {
			if p.StartNo == nil {
				if err := insertPlayer(ctx, tx, p); err != nil {
					return err
				}
				continue
			}
			// The conflict target repeats the partial index predicate on
			// start_no, otherwise SQLite refuses to match the index at all.
			_, err := tx.ExecContext(ctx, `
		INSERT INTO players(
		 id, roster_id, rank, name, full_name, rating, gender, reg_no, start_no,
		 state, city, club, federation, disability, notes, group_label, type_label,
		 dob, dob_original, rating_zero, unrated, rank_autofilled, dob_inferred, state_auto_extracted,
		 created_at, updated_at)
		VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(roster_id, start_no) WHERE start_no IS NOT NULL DO UPDATE SET
		 rank=excluded.rank,
		 name=excluded.name,
		 full_name=excluded.full_name,
		 rating=excluded.rating,
		 gender=excluded.gender,
		 reg_no=excluded.reg_no,
		 state=excluded.state,
		 city=excluded.city,
		 club=excluded.club,
		 federation=excluded.federation,
		 disability=excluded.disability,
		 notes=excluded.notes,
		 group_label=excluded.group_label,
		 type_label=excluded.type_label,
		 dob=excluded.dob,
		 dob_original=excluded.dob_original,
		 rating_zero=excluded.rating_zero,
		 unrated=excluded.unrated,
		 rank_autofilled=excluded.rank_autofilled,
		 dob_inferred=excluded.dob_inferred,
		 state_auto_extracted=excluded.state_auto_extracted,
		 updated_at=CURRENT_TIMESTAMP;
		`,
				p.ID, p.RosterID, p.Rank, p.Name, p.FullName, p.Rating, p.Gender, p.RegNo, p.StartNo,
				p.State, p.City, p.Club, p.Federation, p.Disability, p.Notes, p.GroupLabel, p.TypeLabel,
				p.DOB, p.DOBOriginal, p.RatingZero, p.Unrated, p.RankAutofilled, p.DOBInferred, p.StateAutoExtracted)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// ReplaceRoster atomically swaps the roster contents for the given batch.
// Either every submitted player lands or none do. On failure the returned
// RowErrorInfo slice names every offending position in the batch, so a
// caller can report them all in one pass instead of one retry at a time.
func (r *PlayerRepo) ReplaceRoster(ctx context.Context, rosterID string, players []Player) (int, []RowErrorInfo, error) {
	var failed []RowErrorInfo
	err := database.WithTx(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM players WHERE roster_id = ?`, rosterID); err != nil {
			return err
		}
		for i, p := range players {
			if err := insertPlayer(ctx, tx, p); err != nil {
				failed = append(failed, RowErrorInfo{RowIndex: i, Reason: err.Error()})
			}
		}
		if len(failed) > 0 {
			return fmt.Errorf("replace roster %s: %d rows rejected", rosterID, len(failed))
		}
		return nil
	})
	if err != nil {
		return 0, failed, err
	}
	return len(players), nil, nil
}

func (r *PlayerRepo) Get(ctx context.Context, id string) (*Player, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+playerCols+` FROM players WHERE id = ?`, id)
	p, err := scanPlayer(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PlayerRepo) ListByRoster(ctx context.Context, rosterID string) ([]Player, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+playerCols+` FROM players WHERE roster_id = ? ORDER BY rank`, rosterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Player
	for rows.Next() {
		p, err := scanPlayer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// MatchFields loads the narrow subset used for conflict detection and
// linkage scoring, which keeps large rosters cheap to index in memory.
func (r *PlayerRepo) MatchFields(ctx context.Context, rosterID string) ([]Player, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, roster_id, rank, name, dob, rating, reg_no, start_no
	FROM players WHERE roster_id = ?`, rosterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Player
	for rows.Next() {
		var p Player
		var dob sql.NullTime
		var rating, startNo sql.NullInt64
		var regNo sql.NullString
		if err := rows.Scan(&p.ID, &p.RosterID, &p.Rank, &p.Name, &dob, &rating, &regNo, &startNo); err != nil {
			return nil, err
		}
		if dob.Valid {
			t := dob.Time
			p.DOB = &t
		}
		if rating.Valid {
			v := int(rating.Int64)
			p.Rating = &v
		}
		if regNo.Valid {
			p.RegNo = &regNo.String
		}
		if startNo.Valid {
			v := int(startNo.Int64)
			p.StartNo = &v
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RanksInUse returns rank -> player id for preflight collision warnings.
func (r *PlayerRepo) RanksInUse(ctx context.Context, rosterID string) (map[int]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT rank, id FROM players WHERE roster_id = ?`, rosterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int]string{}
	for rows.Next() {
		var rank int
		var id string
		if err := rows.Scan(&rank, &id); err != nil {
			return nil, err
		}
		out[rank] = id
	}
	return out, rows.Err()
}

// StartNosInUse returns start number -> player id for the rows that carry
// one. The executor uses it to tell merges from fresh inserts in a batch.
func (r *PlayerRepo) StartNosInUse(ctx context.Context, rosterID string) (map[int]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT start_no, id FROM players WHERE roster_id = ? AND start_no IS NOT NULL`, rosterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int]string{}
	for rows.Next() {
		var startNo int
		var id string
		if err := rows.Scan(&startNo, &id); err != nil {
			return nil, err
		}
		out[startNo] = id
	}
	return out, rows.Err()
}

func (r *PlayerRepo) CountByRoster(ctx context.Context, rosterID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM players WHERE roster_id = ?`, rosterID)
	var n int
	err := row.Scan(&n)
	return n, err
}

// scanPlayer handles nullable fields for both Row and Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanPlayer(row scanner) (Player, error) {
	var p Player
	var fullName, gender, regNo, state, city, club, federation, disability, notes, groupLabel, typeLabel, dobOriginal sql.NullString
	var rating, startNo sql.NullInt64
	var dob sql.NullTime
	if err := row.Scan(&p.ID, &p.RosterID, &p.Rank, &p.Name, &fullName, &rating, &gender, &regNo, &startNo,
		&state, &city, &club, &federation, &disability, &notes, &groupLabel, &typeLabel,
		&dob, &dobOriginal, &p.RatingZero, &p.Unrated, &p.RankAutofilled, &p.DOBInferred, &p.StateAutoExtracted,
		&p.CreatedAt, &p.UpdatedAt); err != nil {
		return Player{}, err
	}
	if fullName.Valid {
		p.FullName = &fullName.String
	}
	if rating.Valid {
		v := int(rating.Int64)
		p.Rating = &v
	}
	if gender.Valid {
		p.Gender = &gender.String
	}
	if regNo.Valid {
		p.RegNo = &regNo.String
	}
	if startNo.Valid {
		v := int(startNo.Int64)
		p.StartNo = &v
	}
	if state.Valid {
		p.State = &state.String
	}
	if city.Valid {
		p.City = &city.String
	}
	if club.Valid {
		p.Club = &club.String
	}
	if federation.Valid {
		p.Federation = &federation.String
	}
	if disability.Valid {
		p.Disability = &disability.String
	}
	if notes.Valid {
		p.Notes = &notes.String
	}
	if groupLabel.Valid {
		p.GroupLabel = &groupLabel.String
	}
	if typeLabel.Valid {
		p.TypeLabel = &typeLabel.String
	}
	if dob.Valid {
		t := dob.Time
		p.DOB = &t
	}
	if dobOriginal.Valid {
		p.DOBOriginal = &dobOriginal.String
	}
	return p, nil
}
