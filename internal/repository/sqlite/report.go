package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/xid"
	"github.com/sakif/cofounder-match/internal/apperror"
	"github.com/sakif/cofounder-match/internal/model"
	"github.com/sakif/cofounder-match/internal/repository"
)

var _ repository.ReportRepository = (*DB)(nil)

const reportColumns = `id, reporter_id, reported_id, reason, description, status, created_at, updated_at`

func (db *DB) CreateReport(ctx context.Context, r *model.Report) error {
	r.ID = xid.New().String()
	r.CreatedAt = fromNanos(toNanos(db.now()))
	r.UpdatedAt = r.CreatedAt
	if r.Status == "" {
		r.Status = model.ReportPending
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO reports (`+reportColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID,
		r.ReporterID,
		r.ReportedID,
		string(r.Reason),
		r.Description,
		string(r.Status),
		toNanos(r.CreatedAt),
		toNanos(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating report: %w", err)
	}
	return nil
}

func (db *DB) GetReport(ctx context.Context, id string) (*model.Report, error) {
	return loadReport(ctx, db.conn, id)
}

// UpdateReportStatus applies from -> to only if the row is still in from.
// Same pattern as TransitionMatch.
func (db *DB) UpdateReportStatus(ctx context.Context, id string, from, to model.ReportStatus) (*model.Report, error) {
	var out *model.Report
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE reports SET status = ?, updated_at = ?
			 WHERE id = ? AND status = ?`,
			string(to), toNanos(db.now()), id, string(from),
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating report %s: %w", id, err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}

		r, err := loadReport(ctx, tx, id)
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return apperror.InvalidTransition("report", id, string(r.Status), string(to))
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (db *DB) ListReportsByReporter(ctx context.Context, reporterID string, opts repository.ListOptions) ([]model.Report, error) {
	limit, offset := clampList(opts.Limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+reportColumns+`
		 FROM reports
		 WHERE reporter_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		reporterID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing reports by %s: %w", reporterID, err)
	}
	return collectReports(rows, limit)
}

func (db *DB) ListReportsByStatus(ctx context.Context, status model.ReportStatus, opts repository.ListOptions) ([]model.Report, error) {
	limit, offset := clampList(opts.Limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+reportColumns+`
		 FROM reports
		 WHERE status = ?
		 ORDER BY created_at ASC, id ASC
		 LIMIT ? OFFSET ?`,
		string(status), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s reports: %w", status, err)
	}
	return collectReports(rows, limit)
}

func collectReports(rows *sql.Rows, capHint int) ([]model.Report, error) {
	defer rows.Close()

	reports := make([]model.Report, 0, capHint)
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning report row: %w", err)
		}
		reports = append(reports, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating reports: %w", err)
	}
	return reports, nil
}

func scanReport(row rowScanner) (*model.Report, error) {
	var (
		r                    model.Report
		reason, status       string
		createdAt, updatedAt int64
	)
	err := row.Scan(
		&r.ID,
		&r.ReporterID,
		&r.ReportedID,
		&reason,
		&r.Description,
		&status,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}
	r.Reason = model.ReportReason(reason)
	r.Status = model.ReportStatus(status)
	r.CreatedAt = fromNanos(createdAt)
	r.UpdatedAt = fromNanos(updatedAt)
	return &r, nil
}

func loadReport(ctx context.Context, q querier, id string) (*model.Report, error) {
	r, err := scanReport(q.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("report", id)
		}
		return nil, fmt.Errorf("sqlite: getting report %s: %w", id, err)
	}
	return r, nil
}
