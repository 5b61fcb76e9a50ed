package repository

import (
	"context"
	"database/sql"
)

// AuditRepo handles import audit records.
type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

func (r *AuditRepo) Add(ctx context.Context, a ImportAudit) error {
	_, err := r.db.ExecContext(ctx, `
	INSERT INTO import_audits(
	 id, roster_id, mode, total_rows, accepted_rows, skipped_rows, failed_rows,
	 top_reasons, sample_errors, duration_ms, merge_policy, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP);
	`,
		a.ID, a.RosterID, a.Mode, a.TotalRows, a.AcceptedRows, a.SkippedRows, a.FailedRows,
		a.TopReasons, a.SampleErrors, a.DurationMS, a.MergePolicy)
	return err
}

func (r *AuditRepo) List(ctx context.Context, rosterID string) ([]ImportAudit, error) {
	rows, err := r.db.QueryContext(ctx, `
	SELECT id, roster_id, mode, total_rows, accepted_rows, skipped_rows, failed_rows,
	 top_reasons, sample_errors, duration_ms, merge_policy, created_at
	FROM import_audits WHERE roster_id = ? ORDER BY created_at DESC`, rosterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ImportAudit
	for rows.Next() {
		var a ImportAudit
		if err := rows.Scan(&a.ID, &a.RosterID, &a.Mode, &a.TotalRows, &a.AcceptedRows, &a.SkippedRows,
			&a.FailedRows, &a.TopReasons, &a.SampleErrors, &a.DurationMS, &a.MergePolicy, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
