package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/cofounder-match/internal/apperror"
	"github.com/sakif/cofounder-match/internal/metrics"
	"github.com/sakif/cofounder-match/internal/model"
	"github.com/sakif/cofounder-match/internal/repository"
)

const (
	MaxFeedbackCommentsLength = 2000
	DefaultFeaturedLimit      = 5
	MaxFeaturedLimit          = 20
)

// MatchService owns the match lifecycle: creation, the pending → terminal
// status transition, and the per-match feedback log.
type MatchService struct {
	repo    repository.MatchRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewMatchService(repo repository.MatchRepository, m *metrics.Metrics, logger *slog.Logger) *MatchService {
	return &MatchService{
		repo:    repo,
		metrics: m,
		logger:  logger,
	}
}

// CreateMatch proposes a pending match between two distinct users with a
// precomputed compatibility score.
func (s *MatchService) CreateMatch(ctx context.Context, userA, userB string, score int) (*model.Match, error) {
	userA = strings.TrimSpace(userA)
	userB = strings.TrimSpace(userB)

	if userA == "" || userB == "" {
		return nil, apperror.ValidationFailed("users", "a match needs exactly two user ids")
	}
	if userA == userB {
		return nil, apperror.ValidationFailed("users", "a user cannot be matched with themselves")
	}
	if score < model.MinCompatibilityScore || score > model.MaxCompatibilityScore {
		return nil, apperror.ValidationFailed("compatibilityScore",
			fmt.Sprintf("compatibility score must be between %d and %d",
				model.MinCompatibilityScore, model.MaxCompatibilityScore))
	}

	m := &model.Match{
		Users:              [2]string{userA, userB},
		CompatibilityScore: score,
		Status:             model.MatchPending,
		Feedback:           []model.Feedback{},
	}
	if err := s.repo.CreateMatch(ctx, m); err != nil {
		s.logger.Error("failed to create match",
			slog.String("user_a", userA),
			slog.String("user_b", userB),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("creating match: %w", err)
	}

	s.metrics.IncrementMatchesCreated()
	s.logger.Info("match created",
		slog.String("id", m.ID),
		slog.Int("score", score),
	)
	return m, nil
}

// GetMatch returns a match with its feedback.
func (s *MatchService) GetMatch(ctx context.Context, id string) (*model.Match, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "match ID is required")
	}
	return s.repo.GetMatch(ctx, id)
}

// GetMatchForUser is GetMatch restricted to the match's own users.
func (s *MatchService) GetMatchForUser(ctx context.Context, id, userID string) (*model.Match, error) {
	m, err := s.GetMatch(ctx, id)
	if err != nil {
		return nil, err
	}
	if !m.HasUser(userID) {
		return nil, apperror.Forbidden("only the matched users can view this match")
	}
	return m, nil
}

// TransitionStatus moves a pending match to accepted or rejected.
//
// Errors, in the order they are checked:
//   - ValidationError: newStatus is not a known status
//   - NotFoundError: no match with that id
//   - InvalidTransitionError: newStatus is pending, or the match is already terminal
//
// The repository applies the change with a conditional update, so of several
// concurrent callers exactly one succeeds.
func (s *MatchService) TransitionStatus(ctx context.Context, matchID string, newStatus model.MatchStatus) (*model.Match, error) {
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return nil, apperror.ValidationFailed("id", "match ID is required")
	}
	if !newStatus.Valid() {
		return nil, apperror.ValidationFailed("status",
			fmt.Sprintf("unknown status %q", newStatus))
	}

	if !newStatus.Terminal() {
		current, err := s.repo.GetMatch(ctx, matchID)
		if err != nil {
			return nil, err
		}
		return nil, apperror.InvalidTransition("match", matchID, string(current.Status), string(newStatus))
	}

	m, err := s.repo.TransitionMatch(ctx, matchID, newStatus)
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("failed to transition match",
				slog.String("id", matchID),
				slog.String("to", string(newStatus)),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("transitioning match: %w", err)
		}
		return nil, err
	}

	s.metrics.IncrementTransition(string(m.Status))
	s.logger.Info("match status changed",
		slog.String("id", m.ID),
		slog.String("status", string(m.Status)),
	)
	return m, nil
}

// DecideMatch is TransitionStatus on behalf of one of the match's users.
func (s *MatchService) DecideMatch(ctx context.Context, matchID, userID string, newStatus model.MatchStatus) (*model.Match, error) {
	if _, err := s.GetMatchForUser(ctx, matchID, userID); err != nil {
		return nil, err
	}
	return s.TransitionStatus(ctx, matchID, newStatus)
}

// AddFeedback appends a rating from one of the match's users. The status is
// left alone: feedback is accepted in any state.
func (s *MatchService) AddFeedback(ctx context.Context, matchID, userID string, rating int, comments string) (*model.Match, error) {
	matchID = strings.TrimSpace(matchID)
	if matchID == "" {
		return nil, apperror.ValidationFailed("id", "match ID is required")
	}

	m, err := s.repo.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.HasUser(userID) {
		return nil, apperror.Forbidden("only the matched users can leave feedback")
	}

	if rating < model.MinFeedbackRating || rating > model.MaxFeedbackRating {
		return nil, apperror.ValidationFailed("rating",
			fmt.Sprintf("rating must be between %d and %d", model.MinFeedbackRating, model.MaxFeedbackRating))
	}
	comments = strings.TrimSpace(comments)
	if utf8.RuneCountInString(comments) > MaxFeedbackCommentsLength {
		return nil, apperror.ValidationFailed("comments",
			fmt.Sprintf("comments must be %d characters or less", MaxFeedbackCommentsLength))
	}

	fb := &model.Feedback{UserID: userID, Rating: rating, Comments: comments}
	updated, err := s.repo.AppendFeedback(ctx, matchID, fb)
	if err != nil {
		if !isDomainError(err) {
			s.logger.Error("failed to add feedback",
				slog.String("match_id", matchID),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("adding feedback: %w", err)
		}
		return nil, err
	}

	s.metrics.IncrementFeedback()
	s.logger.Info("feedback added",
		slog.String("match_id", matchID),
		slog.Int("rating", rating),
	)
	return updated, nil
}

// ListMatchesForUser returns matches userID takes part in, newest first. An
// empty status lists every status.
func (s *MatchService) ListMatchesForUser(ctx context.Context, userID string, status model.MatchStatus, limit, offset int) ([]model.Match, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperror.ValidationFailed("user", "user ID is required")
	}
	if status != "" && !status.Valid() {
		return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown status %q", status))
	}

	matches, err := s.repo.ListMatchesForUser(ctx, userID, status, clampListOptions(limit, offset))
	if err != nil {
		s.logger.Error("failed to list matches", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing matches: %w", err)
	}
	return matches, nil
}

// FeaturedMatches returns the most recently created accepted matches, for the
// public success-stories strip.
func (s *MatchService) FeaturedMatches(ctx context.Context, limit int) ([]model.Match, error) {
	if limit <= 0 {
		limit = DefaultFeaturedLimit
	}
	if limit > MaxFeaturedLimit {
		limit = MaxFeaturedLimit
	}

	matches, err := s.repo.ListMatchesByStatus(ctx, model.MatchAccepted, repository.ListOptions{Limit: limit})
	if err != nil {
		s.logger.Error("failed to list featured matches", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing featured matches: %w", err)
	}
	return matches, nil
}

// isDomainError reports whether err is one of the apperror kinds. Those are
// expected outcomes and pass through unwrapped and unlogged.
func isDomainError(err error) bool {
	var appErr *apperror.AppError
	return errors.As(err, &appErr)
}
