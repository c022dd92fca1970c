package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/cofounder-match/internal/apperror"
	"github.com/sakif/cofounder-match/internal/metrics"
	"github.com/sakif/cofounder-match/internal/model"
	"github.com/sakif/cofounder-match/internal/repository"
)

// Trailing windows for the active-user counts.
const (
	ActiveWindowDay   = 24 * time.Hour
	ActiveWindowWeek  = 7 * 24 * time.Hour
	ActiveWindowMonth = 30 * 24 * time.Hour
)

// StatisticsService is the only writer of the statistics snapshot.
//
// SINGLE WRITER:
// mu serializes recomputes inside this process and the repository runs each
// one as a single read-modify-write transaction, so two recomputes can never
// interleave their reads and writes.
//
// TOTAL MATCHES:
// totalMatches is cumulative. Each recompute adds how far the accepted count
// has risen above the highest count seen so far (ObservedAccepted), never
// less than zero. A transient drop in the accepted count leaves it untouched.
type StatisticsService struct {
	stats   repository.StatisticsRepository
	matches repository.MatchRepository
	members repository.MemberRepository
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu  sync.Mutex
	now func() time.Time
}

func NewStatisticsService(
	stats repository.StatisticsRepository,
	matches repository.MatchRepository,
	members repository.MemberRepository,
	m *metrics.Metrics,
	logger *slog.Logger,
) *StatisticsService {
	return &StatisticsService{
		stats:   stats,
		matches: matches,
		members: members,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// GetSnapshot returns the current snapshot, creating a zero-valued one on
// first use.
func (s *StatisticsService) GetSnapshot(ctx context.Context) (*model.StatisticsSnapshot, error) {
	snap, err := s.stats.GetStatistics(ctx)
	if err != nil {
		s.logger.Error("failed to read statistics", slog.String("error", err.Error()))
		return nil, fmt.Errorf("reading statistics: %w", err)
	}
	return snap, nil
}

// Recompute stores new user counts and rederives the match counts from the
// match store.
func (s *StatisticsService) Recompute(ctx context.Context, totalUsers int64, active model.ActiveUserCounts) (*model.StatisticsSnapshot, error) {
	if totalUsers < 0 {
		return nil, apperror.ValidationFailed("totalUsers", "must not be negative")
	}
	if active.Last24Hours < 0 || active.Last7Days < 0 || active.Last30Days < 0 {
		return nil, apperror.ValidationFailed("activeUsers", "must not be negative")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	accepted, err := s.matches.CountMatchesByStatus(ctx, model.MatchAccepted)
	if err != nil {
		s.logger.Error("failed to count accepted matches", slog.String("error", err.Error()))
		s.metrics.RecordRefresh(err, 0, 0, 0)
		return nil, fmt.Errorf("counting accepted matches: %w", err)
	}

	now := s.now()
	snap, err := s.stats.UpdateStatistics(ctx, func(snap *model.StatisticsSnapshot) error {
		if accepted > snap.ObservedAccepted {
			snap.TotalMatches += accepted - snap.ObservedAccepted
			snap.ObservedAccepted = accepted
		}
		snap.SuccessfulMatches = accepted
		snap.TotalUsers = totalUsers
		snap.ActiveUsers = active
		if now.After(snap.LastUpdated) {
			snap.LastUpdated = now
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to update statistics", slog.String("error", err.Error()))
		s.metrics.RecordRefresh(err, 0, 0, 0)
		return nil, fmt.Errorf("updating statistics: %w", err)
	}

	s.metrics.RecordRefresh(nil, snap.TotalUsers, snap.TotalMatches, snap.SuccessfulMatches)
	s.logger.Info("statistics recomputed",
		slog.Int64("total_users", snap.TotalUsers),
		slog.Int64("total_matches", snap.TotalMatches),
		slog.Int64("successful_matches", snap.SuccessfulMatches),
	)
	return snap, nil
}

// Refresh pulls the user counts from the member store and recomputes.
func (s *StatisticsService) Refresh(ctx context.Context) (*model.StatisticsSnapshot, error) {
	now := s.now()

	total, err := s.members.CountMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting members: %w", err)
	}

	var active model.ActiveUserCounts
	windows := []struct {
		dst    *int64
		window time.Duration
	}{
		{&active.Last24Hours, ActiveWindowDay},
		{&active.Last7Days, ActiveWindowWeek},
		{&active.Last30Days, ActiveWindowMonth},
	}
	for _, w := range windows {
		n, err := s.members.CountActiveSince(ctx, now.Add(-w.window))
		if err != nil {
			return nil, fmt.Errorf("counting active members: %w", err)
		}
		*w.dst = n
	}

	return s.Recompute(ctx, total, active)
}

// RunRefresher calls Refresh once immediately and then every interval until
// ctx is cancelled. A failed refresh is logged and the loop keeps going.
func (s *StatisticsService) RunRefresher(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return apperror.ValidationFailed("interval", "refresh interval must be positive")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.refreshAndLog(ctx)
	for {
		select {
		case <-ticker.C:
			s.refreshAndLog(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (s *StatisticsService) refreshAndLog(ctx context.Context) {
	if _, err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("statistics refresh failed", slog.String("error", err.Error()))
	}
}
