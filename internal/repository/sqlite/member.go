package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/sakif/cofounder-match/internal/repository"
)

var _ repository.MemberRepository = (*DB)(nil)

// TouchMember records activity for userID, registering the member on first
// sight.
//
// ON CONFLICT DO UPDATE keeps the row (and its created_at) in place, and
// MAX() stops a late request with an older timestamp from moving
// last_active_at backwards.
func (db *DB) TouchMember(ctx context.Context, userID string, at time.Time) error {
	n := toNanos(at)
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO members (id, created_at, last_active_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			last_active_at = MAX(last_active_at, excluded.last_active_at)`,
		userID, n, n,
	)
	if err != nil {
		return fmt.Errorf("sqlite: touching member %s: %w", userID, err)
	}
	return nil
}

func (db *DB) CountMembers(ctx context.Context) (int64, error) {
	var n int64
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM members`).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: counting members: %w", err)
	}
	return n, nil
}

// CountActiveSince counts members whose last activity is at or after since.
func (db *DB) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM members WHERE last_active_at >= ?`, toNanos(since),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting active members: %w", err)
	}
	return n, nil
}
