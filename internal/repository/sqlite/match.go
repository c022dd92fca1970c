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

var _ repository.MatchRepository = (*DB)(nil)

const matchColumns = `id, user_a, user_b, compatibility_score, status, created_at, decided_at`

// CreateMatch inserts a new match. ID and CreatedAt are assigned here; the
// caller's struct is updated in place.
func (db *DB) CreateMatch(ctx context.Context, m *model.Match) error {
	m.ID = xid.New().String()
	m.CreatedAt = fromNanos(toNanos(db.now()))
	if m.Status == "" {
		m.Status = model.MatchPending
	}
	if m.Feedback == nil {
		m.Feedback = []model.Feedback{}
	}

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO matches (id, user_a, user_b, compatibility_score, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.ID,
		m.Users[0],
		m.Users[1],
		m.CompatibilityScore,
		string(m.Status),
		toNanos(m.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating match: %w", err)
	}
	return nil
}

// GetMatch returns a match and its feedback log.
func (db *DB) GetMatch(ctx context.Context, id string) (*model.Match, error) {
	return loadMatch(ctx, db.conn, id)
}

// TransitionMatch moves a pending match to a terminal status.
//
// The UPDATE only matches rows still in 'pending', so two concurrent calls
// cannot both succeed: the loser sees RowsAffected() == 0, re-reads the row
// and reports the status the winner wrote.
func (db *DB) TransitionMatch(ctx context.Context, id string, to model.MatchStatus) (*model.Match, error) {
	var out *model.Match
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE matches SET status = ?, decided_at = ?
			 WHERE id = ? AND status = ?`,
			string(to), toNanos(db.now()), id, string(model.MatchPending),
		)
		if err != nil {
			return fmt.Errorf("sqlite: transitioning match %s: %w", id, err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}

		m, err := loadMatch(ctx, tx, id)
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			return apperror.InvalidTransition("match", id, string(m.Status), string(to))
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AppendFeedback adds one feedback entry at the end of the match's log.
func (db *DB) AppendFeedback(ctx context.Context, matchID string, fb *model.Feedback) (*model.Match, error) {
	var out *model.Match
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM matches WHERE id = ?`, matchID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("sqlite: checking match %s: %w", matchID, err)
		}
		if exists == 0 {
			return apperror.NotFound("match", matchID)
		}

		fb.CreatedAt = fromNanos(toNanos(db.now()))
		_, err = tx.ExecContext(ctx,
			`INSERT INTO match_feedback (match_id, seq, user_id, rating, comments, created_at)
			 SELECT ?, COALESCE(MAX(seq), 0) + 1, ?, ?, ?, ?
			 FROM match_feedback WHERE match_id = ?`,
			matchID, fb.UserID, fb.Rating, fb.Comments, toNanos(fb.CreatedAt), matchID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: appending feedback to match %s: %w", matchID, err)
		}

		out, err = loadMatch(ctx, tx, matchID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListMatchesForUser returns the user's matches, newest first.
func (db *DB) ListMatchesForUser(ctx context.Context, userID string, status model.MatchStatus, opts repository.ListOptions) ([]model.Match, error) {
	limit, offset := clampList(opts.Limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+matchColumns+`
		 FROM matches
		 WHERE (user_a = ? OR user_b = ?) AND (? = '' OR status = ?)
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		userID, userID, string(status), string(status), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing matches for user %s: %w", userID, err)
	}
	return db.collectMatches(ctx, rows, limit)
}

// ListMatchesByStatus returns matches in one status, newest first.
func (db *DB) ListMatchesByStatus(ctx context.Context, status model.MatchStatus, opts repository.ListOptions) ([]model.Match, error) {
	limit, offset := clampList(opts.Limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+matchColumns+`
		 FROM matches
		 WHERE status = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		string(status), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing %s matches: %w", status, err)
	}
	return db.collectMatches(ctx, rows, limit)
}

func (db *DB) CountMatchesByStatus(ctx context.Context, status model.MatchStatus) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM matches WHERE status = ?`, string(status),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting %s matches: %w", status, err)
	}
	return n, nil
}

// collectMatches drains rows first and only then loads feedback: with a
// single pooled connection the rows must be closed before the next query.
func (db *DB) collectMatches(ctx context.Context, rows *sql.Rows, capHint int) ([]model.Match, error) {
	matches := make([]model.Match, 0, capHint)
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		matches = append(matches, *m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating matches: %w", err)
	}
	rows.Close()

	for i := range matches {
		fb, err := loadFeedback(ctx, db.conn, matches[i].ID)
		if err != nil {
			return nil, err
		}
		matches[i].Feedback = fb
	}
	return matches, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMatch(row rowScanner) (*model.Match, error) {
	var (
		m         model.Match
		status    string
		createdAt int64
		decidedAt sql.NullInt64
	)
	err := row.Scan(
		&m.ID,
		&m.Users[0],
		&m.Users[1],
		&m.CompatibilityScore,
		&status,
		&createdAt,
		&decidedAt,
	)
	if err != nil {
		return nil, err
	}
	m.Status = model.MatchStatus(status)
	m.CreatedAt = fromNanos(createdAt)
	if decidedAt.Valid {
		t := fromNanos(decidedAt.Int64)
		m.DecidedAt = &t
	}
	return &m, nil
}

func loadMatch(ctx context.Context, q querier, id string) (*model.Match, error) {
	m, err := scanMatch(q.QueryRowContext(ctx,
		`SELECT `+matchColumns+` FROM matches WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("match", id)
		}
		return nil, fmt.Errorf("sqlite: getting match %s: %w", id, err)
	}

	m.Feedback, err = loadFeedback(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func loadFeedback(ctx context.Context, q querier, matchID string) ([]model.Feedback, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id, rating, comments, created_at
		 FROM match_feedback
		 WHERE match_id = ?
		 ORDER BY seq ASC`,
		matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading feedback for match %s: %w", matchID, err)
	}
	defer rows.Close()

	feedback := []model.Feedback{}
	for rows.Next() {
		var (
			fb        model.Feedback
			createdAt int64
		)
		if err := rows.Scan(&fb.UserID, &fb.Rating, &fb.Comments, &createdAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning feedback row: %w", err)
		}
		fb.CreatedAt = fromNanos(createdAt)
		feedback = append(feedback, fb)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating feedback: %w", err)
	}
	return feedback, nil
}
