package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/cofounder-match/internal/apperror"
	"github.com/sakif/cofounder-match/internal/model"
	"github.com/sakif/cofounder-match/internal/repository"
)

var _ repository.ConversationRepository = (*DB)(nil)

func (db *DB) FindConversationByKey(ctx context.Context, key string) (*model.Conversation, error) {
	var id string
	err := db.conn.QueryRowContext(ctx,
		`SELECT id FROM conversations WHERE participant_key = ?`, key,
	).Scan(&id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("conversation", key)
		}
		return nil, fmt.Errorf("sqlite: finding conversation by key: %w", err)
	}
	return loadConversation(ctx, db.conn, id)
}

// CreateConversation inserts the conversation row and its participants in
// one transaction. A duplicate participant_key rolls everything back and
// returns apperror.ErrConflict.
func (db *DB) CreateConversation(ctx context.Context, c *model.Conversation, key string) error {
	c.ID = xid.New().String()
	c.CreatedAt = fromNanos(toNanos(db.now()))
	c.LastMessageAt = c.CreatedAt

	return db.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO conversations (id, participant_key, created_at, last_message_at)
			 VALUES (?, ?, ?, ?)`,
			c.ID, key, toNanos(c.CreatedAt), toNanos(c.LastMessageAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return apperror.Conflict("conversation", key)
			}
			return fmt.Errorf("sqlite: creating conversation: %w", err)
		}

		for i, userID := range c.Participants {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO conversation_participants (conversation_id, user_id, position)
				 VALUES (?, ?, ?)`,
				c.ID, userID, i,
			)
			if err != nil {
				return fmt.Errorf("sqlite: adding participant %s: %w", userID, err)
			}
		}
		return nil
	})
}

func (db *DB) GetConversation(ctx context.Context, id string) (*model.Conversation, error) {
	return loadConversation(ctx, db.conn, id)
}

// AppendMessage writes msg as the next entry of its conversation.
//
// The new timestamp is max(now, last_message_at). Since last_message_at is
// the newest message's timestamp (or the creation time), timestamps never go
// backwards along seq even if the wall clock does.
func (db *DB) AppendMessage(ctx context.Context, msg *model.Message) error {
	return db.withTx(ctx, func(tx *sql.Tx) error {
		var lastAt int64
		err := tx.QueryRowContext(ctx,
			`SELECT last_message_at FROM conversations WHERE id = ?`, msg.ConversationID,
		).Scan(&lastAt)
		if err != nil {
			if err == sql.ErrNoRows {
				return apperror.NotFound("conversation", msg.ConversationID)
			}
			return fmt.Errorf("sqlite: reading conversation %s: %w", msg.ConversationID, err)
		}

		var lastSeq int64
		err = tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq), 0) FROM messages WHERE conversation_id = ?`, msg.ConversationID,
		).Scan(&lastSeq)
		if err != nil {
			return fmt.Errorf("sqlite: reading last seq: %w", err)
		}

		sentAt := toNanos(db.now())
		if sentAt < lastAt {
			sentAt = lastAt
		}

		msg.ID = xid.New().String()
		msg.Seq = lastSeq + 1
		msg.Timestamp = fromNanos(sentAt)
		msg.ReadStatus = false

		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, seq, sender_id, content, sent_at, read_status)
			 VALUES (?, ?, ?, ?, ?, ?, 0)`,
			msg.ID, msg.ConversationID, msg.Seq, msg.SenderID, msg.Content, sentAt,
		)
		if err != nil {
			return fmt.Errorf("sqlite: inserting message: %w", err)
		}

		for i, a := range msg.Attachments {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO message_attachments (message_id, position, file_url, file_name, file_type)
				 VALUES (?, ?, ?, ?, ?)`,
				msg.ID, i, a.FileURL, a.FileName, a.FileType,
			)
			if err != nil {
				return fmt.Errorf("sqlite: inserting attachment %d: %w", i, err)
			}
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET last_message_at = ? WHERE id = ?`,
			sentAt, msg.ConversationID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating last message time: %w", err)
		}
		return nil
	})
}

// ListMessages returns one page of the message log in append order.
func (db *DB) ListMessages(ctx context.Context, conversationID string, opts repository.ListOptions) ([]model.Message, error) {
	limit, offset := clampMessageList(opts.Limit, opts.Offset)
	return loadMessages(ctx, db.conn, conversationID, limit, offset)
}

// ListAllMessages returns every message of the conversation, unpaged.
func (db *DB) ListAllMessages(ctx context.Context, conversationID string) ([]model.Message, error) {
	// A negative LIMIT means no limit in SQLite.
	return loadMessages(ctx, db.conn, conversationID, -1, 0)
}

// MarkRead flips read_status on messages addressed to readerID up to the
// cutoff. Already-read rows are excluded so repeated calls report 0.
func (db *DB) MarkRead(ctx context.Context, conversationID, readerID string, upto time.Time) (int64, error) {
	var marked int64
	err := db.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM conversations WHERE id = ?`, conversationID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("sqlite: checking conversation %s: %w", conversationID, err)
		}
		if exists == 0 {
			return apperror.NotFound("conversation", conversationID)
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE messages SET read_status = 1
			 WHERE conversation_id = ? AND sender_id <> ? AND sent_at <= ? AND read_status = 0`,
			conversationID, readerID, toNanos(upto),
		)
		if err != nil {
			return fmt.Errorf("sqlite: marking messages read: %w", err)
		}
		marked, err = result.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: checking rows affected: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// ListConversationsForUser returns the user's inbox, most recent first.
func (db *DB) ListConversationsForUser(ctx context.Context, userID string, opts repository.ListOptions) ([]model.Conversation, error) {
	limit, offset := clampList(opts.Limit, opts.Offset)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT c.id, c.created_at, c.last_message_at
		 FROM conversations c
		 JOIN conversation_participants p ON p.conversation_id = c.id
		 WHERE p.user_id = ?
		 ORDER BY c.last_message_at DESC, c.id DESC
		 LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing conversations for user %s: %w", userID, err)
	}

	conversations := make([]model.Conversation, 0, limit)
	for rows.Next() {
		var (
			c                 model.Conversation
			createdAt, lastAt int64
		)
		if err := rows.Scan(&c.ID, &createdAt, &lastAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning conversation row: %w", err)
		}
		c.CreatedAt = fromNanos(createdAt)
		c.LastMessageAt = fromNanos(lastAt)
		conversations = append(conversations, c)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating conversations: %w", err)
	}
	rows.Close()

	for i := range conversations {
		participants, err := loadParticipants(ctx, db.conn, conversations[i].ID)
		if err != nil {
			return nil, err
		}
		conversations[i].Participants = participants
	}
	return conversations, nil
}

func (db *DB) CountUnread(ctx context.Context, userID string) (int64, error) {
	var n int64
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*)
		 FROM messages m
		 JOIN conversation_participants p
		   ON p.conversation_id = m.conversation_id AND p.user_id = ?
		 WHERE m.read_status = 0 AND m.sender_id <> ?`,
		userID, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("sqlite: counting unread messages for %s: %w", userID, err)
	}
	return n, nil
}

func loadConversation(ctx context.Context, q querier, id string) (*model.Conversation, error) {
	var (
		c                 model.Conversation
		createdAt, lastAt int64
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, created_at, last_message_at FROM conversations WHERE id = ?`, id,
	).Scan(&c.ID, &createdAt, &lastAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("conversation", id)
		}
		return nil, fmt.Errorf("sqlite: getting conversation %s: %w", id, err)
	}
	c.CreatedAt = fromNanos(createdAt)
	c.LastMessageAt = fromNanos(lastAt)

	c.Participants, err = loadParticipants(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func loadParticipants(ctx context.Context, q querier, conversationID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT user_id FROM conversation_participants
		 WHERE conversation_id = ?
		 ORDER BY position ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading participants of %s: %w", conversationID, err)
	}
	defer rows.Close()

	var participants []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("sqlite: scanning participant: %w", err)
		}
		participants = append(participants, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating participants: %w", err)
	}
	return participants, nil
}

func loadMessages(ctx context.Context, q querier, conversationID string, limit, offset int) ([]model.Message, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, seq, sender_id, content, sent_at, read_status
		 FROM messages
		 WHERE conversation_id = ?
		 ORDER BY seq ASC
		 LIMIT ? OFFSET ?`,
		conversationID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing messages of %s: %w", conversationID, err)
	}

	messages := []model.Message{}
	index := map[string]int{}
	for rows.Next() {
		var (
			m      model.Message
			sentAt int64
		)
		if err := rows.Scan(&m.ID, &m.Seq, &m.SenderID, &m.Content, &sentAt, &m.ReadStatus); err != nil {
			rows.Close()
			return nil, fmt.Errorf("sqlite: scanning message row: %w", err)
		}
		m.ConversationID = conversationID
		m.Timestamp = fromNanos(sentAt)
		index[m.ID] = len(messages)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("sqlite: iterating messages: %w", err)
	}
	rows.Close()

	if len(messages) == 0 {
		return messages, nil
	}

	// One query for the attachments of the whole page.
	arows, err := q.QueryContext(ctx,
		`SELECT a.message_id, a.file_url, a.file_name, a.file_type
		 FROM message_attachments a
		 JOIN messages m ON m.id = a.message_id
		 WHERE m.conversation_id = ? AND m.seq BETWEEN ? AND ?
		 ORDER BY m.seq ASC, a.position ASC`,
		conversationID, messages[0].Seq, messages[len(messages)-1].Seq,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: loading attachments: %w", err)
	}
	defer arows.Close()

	for arows.Next() {
		var (
			messageID string
			a         model.Attachment
		)
		if err := arows.Scan(&messageID, &a.FileURL, &a.FileName, &a.FileType); err != nil {
			return nil, fmt.Errorf("sqlite: scanning attachment row: %w", err)
		}
		if i, ok := index[messageID]; ok {
			messages[i].Attachments = append(messages[i].Attachments, a)
		}
	}
	if err := arows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating attachments: %w", err)
	}
	return messages, nil
}

// clampMessageList is clampList with a larger ceiling: a thread is usually
// read whole.
func clampMessageList(limit, offset int) (int, int) {
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
