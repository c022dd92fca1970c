// Package repository declares the storage contracts the services depend on.
// internal/repository/sqlite implements all of them on one *sqlite.DB.
package repository

import (
	"context"
	"time"

	"github.com/sakif/cofounder-match/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// MatchRepository stores matches and their feedback log.
type MatchRepository interface {
	// CreateMatch assigns ID and CreatedAt and persists m as given.
	CreateMatch(ctx context.Context, m *model.Match) error
	// GetMatch returns the match with its feedback in append order.
	GetMatch(ctx context.Context, id string) (*model.Match, error)
	// TransitionMatch moves a pending match to the terminal status `to`.
	// It fails with apperror.ErrInvalidTransition when the stored status is
	// no longer pending, so at most one concurrent caller succeeds.
	TransitionMatch(ctx context.Context, id string, to model.MatchStatus) (*model.Match, error)
	// AppendFeedback appends fb to the match's log and returns the match as
	// it stands after the append.
	AppendFeedback(ctx context.Context, matchID string, fb *model.Feedback) (*model.Match, error)
	// ListMatchesForUser returns matches containing userID, newest first.
	// An empty status means any status.
	ListMatchesForUser(ctx context.Context, userID string, status model.MatchStatus, opts ListOptions) ([]model.Match, error)
	// ListMatchesByStatus returns matches in the given status, newest first.
	ListMatchesByStatus(ctx context.Context, status model.MatchStatus, opts ListOptions) ([]model.Match, error)
	CountMatchesByStatus(ctx context.Context, status model.MatchStatus) (int64, error)
}

// ConversationRepository stores conversations, their participants and the
// per-conversation message log.
type ConversationRepository interface {
	// FindConversationByKey looks a conversation up by its canonical
	// participant-set key.
	FindConversationByKey(ctx context.Context, key string) (*model.Conversation, error)
	// CreateConversation inserts c under key. If another conversation already
	// holds key it returns apperror.ErrConflict and writes nothing.
	CreateConversation(ctx context.Context, c *model.Conversation, key string) error
	// GetConversation returns the conversation and its participants, without
	// messages.
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	// AppendMessage assigns ID, Seq and Timestamp to msg and appends it.
	// Timestamps never decrease within a conversation.
	AppendMessage(ctx context.Context, msg *model.Message) error
	// ListMessages returns one page of messages in append order.
	ListMessages(ctx context.Context, conversationID string, opts ListOptions) ([]model.Message, error)
	// ListAllMessages returns the whole message log in append order.
	ListAllMessages(ctx context.Context, conversationID string) ([]model.Message, error)
	// MarkRead flags as read every message not sent by readerID with a
	// timestamp at or before upto, and returns how many changed.
	MarkRead(ctx context.Context, conversationID, readerID string, upto time.Time) (int64, error)
	// ListConversationsForUser returns the user's conversations, most
	// recently active first.
	ListConversationsForUser(ctx context.Context, userID string, opts ListOptions) ([]model.Conversation, error)
	// CountUnread counts unread messages sent to userID by others.
	CountUnread(ctx context.Context, userID string) (int64, error)
}

// StatisticsRepository owns the singleton statistics row.
type StatisticsRepository interface {
	// GetStatistics returns the snapshot, creating a zero-valued one first
	// if none exists.
	GetStatistics(ctx context.Context) (*model.StatisticsSnapshot, error)
	// UpdateStatistics runs fn against the current snapshot inside a single
	// transaction and persists whatever fn leaves in it.
	UpdateStatistics(ctx context.Context, fn func(s *model.StatisticsSnapshot) error) (*model.StatisticsSnapshot, error)
}

// ReportRepository stores user reports for moderation.
type ReportRepository interface {
	// CreateReport assigns ID, CreatedAt and UpdatedAt and persists r.
	CreateReport(ctx context.Context, r *model.Report) error
	GetReport(ctx context.Context, id string) (*model.Report, error)
	// UpdateReportStatus moves a report from status `from` to `to`. It fails
	// with apperror.ErrInvalidTransition if the stored status is no longer
	// `from`, so concurrent moderators cannot both apply a change.
	UpdateReportStatus(ctx context.Context, id string, from, to model.ReportStatus) (*model.Report, error)
	// ListReportsByReporter returns the reports reporterID filed, newest first.
	ListReportsByReporter(ctx context.Context, reporterID string, opts ListOptions) ([]model.Report, error)
	// ListReportsByStatus returns reports in one status, oldest first, so a
	// moderation queue is worked in filing order.
	ListReportsByStatus(ctx context.Context, status model.ReportStatus, opts ListOptions) ([]model.Report, error)
}

// MemberRepository is the local view of the identity system: which user ids
// exist and when each was last active.
type MemberRepository interface {
	TouchMember(ctx context.Context, userID string, at time.Time) error
	CountMembers(ctx context.Context) (int64, error)
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
}
