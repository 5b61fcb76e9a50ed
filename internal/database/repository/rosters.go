package repository

import (
	"context"
	"database/sql"
)

// RosterRepo handles rosters.
type RosterRepo struct {
	db *sql.DB
}

func NewRosterRepo(db *sql.DB) *RosterRepo {
	return &RosterRepo{db: db}
}

func (r *RosterRepo) Upsert(ctx context.Context, ro Roster) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO rosters(id, name, categories, created_at)
	VALUES (?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
	 name=excluded.name,
	 categories=excluded.categories;
	`, ro.ID, ro.Name, ro.Categories)
	return err
}

func (r *RosterRepo) Get(ctx context.Context, id string) (*Roster, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, categories, created_at FROM rosters WHERE id = ?`, id)
	var ro Roster
	if err := row.Scan(&ro.ID, &ro.Name, &ro.Categories, &ro.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &ro, nil
}

func (r *RosterRepo) GetByName(ctx context.Context, name string) (*Roster, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, name, categories, created_at FROM rosters WHERE name = ?`, name)
	var ro Roster
	if err := row.Scan(&ro.ID, &ro.Name, &ro.Categories, &ro.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &ro, nil
}

func (r *RosterRepo) List(ctx context.Context) ([]Roster, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, categories, created_at FROM rosters ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Roster
	for rows.Next() {
		var ro Roster
		if err := rows.Scan(&ro.ID, &ro.Name, &ro.Categories, &ro.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ro)
	}
	return out, rows.Err()
}

func (r *RosterRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rosters WHERE id = ?`, id)
	return err
}
