package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cofounder-match/internal/apperror"
	"github.com/sakif/cofounder-match/internal/metrics"
	"github.com/sakif/cofounder-match/internal/model"
)

type statsFixture struct {
	svc     *StatisticsService
	matches *fakeMatchRepo
	members *fakeMemberRepo
	stats   *fakeStatisticsRepo
	now     time.Time
}

func newStatsFixture(t *testing.T, m *metrics.Metrics) *statsFixture {
	t.Helper()
	f := &statsFixture{
		matches: newFakeMatchRepo(),
		members: newFakeMemberRepo(),
		stats:   &fakeStatisticsRepo{},
		now:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	f.svc = NewStatisticsService(f.stats, f.matches, f.members, m, testLogger())
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *statsFixture) acceptedMatch(t *testing.T) *model.Match {
	t.Helper()
	ctx := context.Background()
	m := &model.Match{Users: [2]string{"a", "b"}, Status: model.MatchPending}
	require.NoError(t, f.matches.CreateMatch(ctx, m))
	_, err := f.matches.TransitionMatch(ctx, m.ID, model.MatchAccepted)
	require.NoError(t, err)
	return m
}

func TestGetSnapshot_ZeroOnFirstUse(t *testing.T) {
	f := newStatsFixture(t, nil)

	snap, err := f.svc.GetSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StatisticsSnapshot{}, *snap)
}

func TestRecompute(t *testing.T) {
	f := newStatsFixture(t, nil)
	ctx := context.Background()
	f.acceptedMatch(t)
	f.acceptedMatch(t)

	active := model.ActiveUserCounts{Last24Hours: 3, Last7Days: 8, Last30Days: 15}
	snap, err := f.svc.Recompute(ctx, 40, active)
	require.NoError(t, err)
	assert.Equal(t, int64(40), snap.TotalUsers)
	assert.Equal(t, int64(2), snap.SuccessfulMatches)
	assert.Equal(t, int64(2), snap.TotalMatches)
	assert.Equal(t, active, snap.ActiveUsers)
	assert.True(t, snap.LastUpdated.Equal(f.now))

	// No new acceptances: totalMatches holds.
	f.now = f.now.Add(time.Minute)
	snap, err = f.svc.Recompute(ctx, 41, active)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.TotalMatches)

	// One more acceptance adds exactly one.
	f.acceptedMatch(t)
	snap, err = f.svc.Recompute(ctx, 41, active)
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.TotalMatches)
	assert.Equal(t, int64(3), snap.SuccessfulMatches)
}

func TestRecompute_TotalMatchesNeverDecreases(t *testing.T) {
	f := newStatsFixture(t, nil)
	ctx := context.Background()
	m1 := f.acceptedMatch(t)
	f.acceptedMatch(t)
	f.acceptedMatch(t)

	snap, err := f.svc.Recompute(ctx, 10, model.ActiveUserCounts{})
	require.NoError(t, err)
	require.Equal(t, int64(3), snap.TotalMatches)

	// A smaller transient accepted count.
	f.matches.setStatus(m1.ID, model.MatchPending)
	snap, err = f.svc.Recompute(ctx, 10, model.ActiveUserCounts{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.SuccessfulMatches)
	assert.Equal(t, int64(3), snap.TotalMatches)

	// Climbing back to the old high-water mark is not new growth.
	f.matches.setStatus(m1.ID, model.MatchAccepted)
	snap, err = f.svc.Recompute(ctx, 10, model.ActiveUserCounts{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), snap.TotalMatches)

	f.acceptedMatch(t)
	snap, err = f.svc.Recompute(ctx, 10, model.ActiveUserCounts{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), snap.TotalMatches)
}

func TestRecompute_LastUpdatedNeverRegresses(t *testing.T) {
	f := newStatsFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Recompute(ctx, 1, model.ActiveUserCounts{})
	require.NoError(t, err)

	f.now = f.now.Add(-time.Hour)
	second, err := f.svc.Recompute(ctx, 1, model.ActiveUserCounts{})
	require.NoError(t, err)
	assert.True(t, second.LastUpdated.Equal(first.LastUpdated))
}

func TestRecompute_RejectsNegativeInput(t *testing.T) {
	f := newStatsFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Recompute(ctx, -1, model.ActiveUserCounts{})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	_, err = f.svc.Recompute(ctx, 1, model.ActiveUserCounts{Last7Days: -2})
	assert.True(t, errors.Is(err, apperror.ErrValidation))

	snap, err := f.svc.GetSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.LastUpdated.IsZero(), "rejected input writes nothing")
}

func TestRecompute_MatchStoreFailure(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	f := newStatsFixture(t, m)
	f.matches.err = errors.New("db gone")

	_, err := f.svc.Recompute(context.Background(), 1, model.ActiveUserCounts{})
	require.Error(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatisticsRefreshes.WithLabelValues("error")))
}

func TestRefresh_PullsMemberCounts(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	f := newStatsFixture(t, m)
	ctx := context.Background()

	require.NoError(t, f.members.TouchMember(ctx, "today", f.now.Add(-time.Hour)))
	require.NoError(t, f.members.TouchMember(ctx, "this-week", f.now.Add(-3*24*time.Hour)))
	require.NoError(t, f.members.TouchMember(ctx, "this-month", f.now.Add(-20*24*time.Hour)))
	require.NoError(t, f.members.TouchMember(ctx, "dormant", f.now.Add(-90*24*time.Hour)))
	f.acceptedMatch(t)

	snap, err := f.svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), snap.TotalUsers)
	assert.Equal(t, model.ActiveUserCounts{Last24Hours: 1, Last7Days: 2, Last30Days: 3}, snap.ActiveUsers)
	assert.Equal(t, int64(1), snap.SuccessfulMatches)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatisticsRefreshes.WithLabelValues("ok")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.StatisticsTotalUsers))
}

func TestRunRefresher(t *testing.T) {
	f := newStatsFixture(t, nil)
	require.NoError(t, f.members.TouchMember(context.Background(), "alice", f.now))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.RunRefresher(ctx, 10*time.Millisecond) }()

	assert.Eventually(t, func() bool {
		snap, err := f.svc.GetSnapshot(context.Background())
		return err == nil && snap.TotalUsers == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("RunRefresher did not stop after cancel")
	}
}

func TestRunRefresher_RejectsBadInterval(t *testing.T) {
	f := newStatsFixture(t, nil)

	err := f.svc.RunRefresher(context.Background(), 0)
	assert.True(t, errors.Is(err, apperror.ErrValidation))
}
