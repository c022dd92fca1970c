package service

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/sakif/cofounder-match/internal/apperror"
	"github.com/sakif/cofounder-match/internal/metrics"
	"github.com/sakif/cofounder-match/internal/model"
	"github.com/sakif/cofounder-match/internal/repository"
)

const (
	MinParticipants  = 2
	MaxMessageLength = 10000
	MaxAttachments   = 10
)

// ConversationService owns conversations: one per participant set, each
// with an append-only message log and per-message read flags.
//
// FIND-OR-CREATE:
// Storage holds a UNIQUE canonical key per participant set. Creation is an
// optimistic insert; the loser of a race gets apperror.ErrConflict back and
// re-reads the winner's row. Within this process, concurrent calls for the
// same key are also collapsed into one storage round trip by singleflight.
// The collapsed call runs detached from the caller that started it, so one
// caller giving up does not fail the others.
type ConversationService struct {
	repo    repository.ConversationRepository
	metrics *metrics.Metrics
	logger  *slog.Logger
	group   singleflight.Group
	now     func() time.Time
}

func NewConversationService(repo repository.ConversationRepository, m *metrics.Metrics, logger *slog.Logger) *ConversationService {
	return &ConversationService{
		repo:    repo,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// FindOrCreateConversation returns the conversation whose participant set
// equals participantIDs, creating it if none exists. Order and repeats in
// participantIDs do not matter for lookup; a new conversation keeps the
// order of first occurrence.
func (s *ConversationService) FindOrCreateConversation(ctx context.Context, participantIDs []string) (*model.Conversation, error) {
	participants, err := normalizeParticipants(participantIDs)
	if err != nil {
		return nil, err
	}
	key := participantKey(participants)

	// The shared call outlives any single caller: each caller stops waiting
	// when its own ctx ends, but the lookup keeps going for the others.
	ch := s.group.DoChan(key, func() (any, error) {
		return s.findOrCreate(context.WithoutCancel(ctx), key, participants)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneConversation(res.Val.(*model.Conversation)), nil
	}
}

func (s *ConversationService) findOrCreate(ctx context.Context, key string, participants []string) (*model.Conversation, error) {
	c, err := s.repo.FindConversationByKey(ctx, key)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		s.logger.Error("failed to look up conversation", slog.String("error", err.Error()))
		return nil, fmt.Errorf("finding conversation: %w", err)
	}

	c = &model.Conversation{Participants: participants}
	err = s.repo.CreateConversation(ctx, c, key)
	switch {
	case err == nil:
		s.metrics.IncrementConversationsCreated()
		s.logger.Info("conversation created",
			slog.String("id", c.ID),
			slog.Int("participants", len(participants)),
		)
		return c, nil
	case errors.Is(err, apperror.ErrConflict):
		// Another writer created it between our find and insert.
		c, err = s.repo.FindConversationByKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("re-reading conversation after conflict: %w", err)
		}
		return c, nil
	default:
		s.logger.Error("failed to create conversation", slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating conversation: %w", err)
	}
}

// GetConversation returns the conversation with its full message log.
// Only participants may read it.
func (s *ConversationService) GetConversation(ctx context.Context, id, viewerID string) (*model.Conversation, error) {
	c, err := s.participantConversation(ctx, id, viewerID, "only participants can view this conversation")
	if err != nil {
		return nil, err
	}

	msgs, err := s.repo.ListAllMessages(ctx, c.ID)
	if err != nil {
		s.logger.Error("failed to load messages", slog.String("id", c.ID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("loading messages: %w", err)
	}
	c.Messages = msgs
	return c, nil
}

// ListMessages returns one page of the message log in append order.
func (s *ConversationService) ListMessages(ctx context.Context, id, viewerID string, limit, offset int) ([]model.Message, error) {
	if _, err := s.participantConversation(ctx, id, viewerID, "only participants can view this conversation"); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}

	msgs, err := s.repo.ListMessages(ctx, id, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list messages", slog.String("id", id), slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return msgs, nil
}

// AppendMessage adds a message from senderID to the end of the log. The
// stored timestamp is never earlier than the previous message's.
func (s *ConversationService) AppendMessage(ctx context.Context, conversationID, senderID, content string, attachments []model.Attachment) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperror.ValidationFailed("content", "message content is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return nil, apperror.ValidationFailed("content",
			fmt.Sprintf("message must be %d characters or less", MaxMessageLength))
	}
	if err := validateAttachments(attachments); err != nil {
		return nil, err
	}

	if _, err := s.participantConversation(ctx, conversationID, senderID, "only participants can send messages"); err != nil {
		return nil, err
	}

	msg := &model.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		Attachments:    attachments,
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		if isDomainError(err) {
			return nil, err
		}
		s.logger.Error("failed to append message",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("appending message: %w", err)
	}

	s.metrics.IncrementMessagesSent()
	s.logger.Info("message sent",
		slog.String("conversation_id", conversationID),
		slog.Int64("seq", msg.Seq),
	)
	return msg, nil
}

// MarkRead marks as read every message readerID received in the
// conversation up to and including upto. A zero upto means now. It returns
// how many messages changed; repeating the call returns 0.
func (s *ConversationService) MarkRead(ctx context.Context, conversationID, readerID string, upto time.Time) (int64, error) {
	if _, err := s.participantConversation(ctx, conversationID, readerID, "only participants can mark messages read"); err != nil {
		return 0, err
	}
	if upto.IsZero() {
		upto = s.now()
	}

	n, err := s.repo.MarkRead(ctx, conversationID, readerID, upto)
	if err != nil {
		if isDomainError(err) {
			return 0, err
		}
		s.logger.Error("failed to mark messages read",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("marking messages read: %w", err)
	}

	s.metrics.AddMessagesMarkedRead(n)
	return n, nil
}

// ListConversationsForUser returns the user's inbox, most recent activity
// first. Messages are not included.
func (s *ConversationService) ListConversationsForUser(ctx context.Context, userID string, limit, offset int) ([]model.Conversation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperror.ValidationFailed("user", "user ID is required")
	}

	list, err := s.repo.ListConversationsForUser(ctx, userID, clampListOptions(limit, offset))
	if err != nil {
		s.logger.Error("failed to list conversations", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return list, nil
}

// UnreadCount is the number of unread messages sent to userID across all of
// their conversations.
func (s *ConversationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return 0, apperror.ValidationFailed("user", "user ID is required")
	}

	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		s.logger.Error("failed to count unread messages", slog.String("error", err.Error()))
		return 0, fmt.Errorf("counting unread messages: %w", err)
	}
	return n, nil
}

func (s *ConversationService) participantConversation(ctx context.Context, id, userID, denied string) (*model.Conversation, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "conversation ID is required")
	}
	c, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if !c.HasParticipant(userID) {
		return nil, apperror.Forbidden(denied)
	}
	return c, nil
}

// normalizeParticipants trims ids, drops repeats (keeping the first
// occurrence) and requires at least MinParticipants distinct ids.
func normalizeParticipants(ids []string) ([]string, error) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, apperror.ValidationFailed("participants", "participant ids must not be empty")
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	if len(out) < MinParticipants {
		return nil, apperror.ValidationFailed("participants",
			fmt.Sprintf("a conversation needs at least %d distinct participants", MinParticipants))
	}
	return out, nil
}

// participantKey is the canonical key of a participant set: SHA-256 over
// the sorted ids, each prefixed with its length so no two different sets
// serialize to the same bytes.
func participantKey(participants []string) string {
	sorted := append([]string(nil), participants...)
	sort.Strings(sorted)

	h := sha256.New()
	var lenBuf [binary.MaxVarintLen64]byte
	for _, id := range sorted {
		n := binary.PutUvarint(lenBuf[:], uint64(len(id)))
		h.Write(lenBuf[:n])
		h.Write([]byte(id))
	}
	return hex.EncodeToString(h.Sum(nil))
}

func validateAttachments(attachments []model.Attachment) error {
	if len(attachments) > MaxAttachments {
		return apperror.ValidationFailed("attachments",
			fmt.Sprintf("at most %d attachments per message", MaxAttachments))
	}
	for i, a := range attachments {
		switch {
		case strings.TrimSpace(a.FileURL) == "":
			return apperror.ValidationFailed(fmt.Sprintf("attachments[%d].fileUrl", i), "file URL is required")
		case strings.TrimSpace(a.FileName) == "":
			return apperror.ValidationFailed(fmt.Sprintf("attachments[%d].fileName", i), "file name is required")
		case strings.TrimSpace(a.FileType) == "":
			return apperror.ValidationFailed(fmt.Sprintf("attachments[%d].fileType", i), "file type is required")
		}
	}
	return nil
}

// cloneConversation copies c so callers sharing one singleflight result do
// not share slices.
func cloneConversation(c *model.Conversation) *model.Conversation {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	if c.Messages != nil {
		out.Messages = append([]model.Message(nil), c.Messages...)
	}
	return &out
}
