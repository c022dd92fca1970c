package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sakif/cofounder-match/internal/model"
	"github.com/sakif/cofounder-match/internal/repository"
)

var _ repository.StatisticsRepository = (*DB)(nil)

const statisticsColumns = `total_users, total_matches, successful_matches,
	active_24h, active_7d, active_30d, observed_accepted, last_updated`

// GetStatistics returns the singleton snapshot. The first call creates it
// zero-valued; INSERT OR IGNORE keeps later calls from touching it.
func (db *DB) GetStatistics(ctx context.Context) (*model.StatisticsSnapshot, error) {
	var out *model.StatisticsSnapshot
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		out, err = db.ensureStatistics(ctx, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateStatistics is a read-modify-write of the singleton row inside one
// transaction. If fn returns an error nothing is written.
func (db *DB) UpdateStatistics(ctx context.Context, fn func(s *model.StatisticsSnapshot) error) (*model.StatisticsSnapshot, error) {
	var out *model.StatisticsSnapshot
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		s, err := db.ensureStatistics(ctx, tx)
		if err != nil {
			return err
		}
		if err := fn(s); err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE statistics SET
				total_users = ?, total_matches = ?, successful_matches = ?,
				active_24h = ?, active_7d = ?, active_30d = ?,
				observed_accepted = ?, last_updated = ?
			 WHERE id = 1`,
			s.TotalUsers,
			s.TotalMatches,
			s.SuccessfulMatches,
			s.ActiveUsers.Last24Hours,
			s.ActiveUsers.Last7Days,
			s.ActiveUsers.Last30Days,
			s.ObservedAccepted,
			toNanos(s.LastUpdated),
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating statistics: %w", err)
		}
		out = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (db *DB) ensureStatistics(ctx context.Context, tx *sql.Tx) (*model.StatisticsSnapshot, error) {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO statistics (id, last_updated) VALUES (1, ?)`,
		toNanos(db.now()),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: creating statistics row: %w", err)
	}

	var (
		s           model.StatisticsSnapshot
		lastUpdated int64
	)
	err = tx.QueryRowContext(ctx,
		`SELECT `+statisticsColumns+` FROM statistics WHERE id = 1`,
	).Scan(
		&s.TotalUsers,
		&s.TotalMatches,
		&s.SuccessfulMatches,
		&s.ActiveUsers.Last24Hours,
		&s.ActiveUsers.Last7Days,
		&s.ActiveUsers.Last30Days,
		&s.ObservedAccepted,
		&lastUpdated,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: reading statistics: %w", err)
	}
	s.LastUpdated = fromNanos(lastUpdated)
	return &s, nil
}
