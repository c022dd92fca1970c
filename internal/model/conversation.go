package model

import "time"

// Conversation is the message thread of a fixed participant set.
//
// At most one Conversation exists per unordered set of participants. The
// participants keep the order in which they were first supplied.
// LastMessageAt equals the timestamp of the newest message, or the creation
// time while the conversation is empty.
type Conversation struct {
	ID            string    `json:"id"`
	Participants  []string  `json:"participants"`
	CreatedAt     time.Time `json:"createdAt"`
	LastMessageAt time.Time `json:"lastMessageTimestamp"`

	// Messages is only populated by reads that ask for the thread.
	Messages []Message `json:"messages,omitempty"`
}

// HasParticipant reports whether userID belongs to the conversation.
func (c *Conversation) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// Message is one entry of a conversation's append-only log.
//
// Seq is the 1-based position in the conversation. Timestamps never decrease
// along Seq. ReadStatus only flips false -> true, and only through the
// recipient's read action.
type Message struct {
	ID             string       `json:"id"`
	ConversationID string       `json:"conversationId"`
	Seq            int64        `json:"seq"`
	SenderID       string       `json:"sender"`
	Content        string       `json:"content"`
	Timestamp      time.Time    `json:"timestamp"`
	ReadStatus     bool         `json:"readStatus"`
	Attachments    []Attachment `json:"attachments,omitempty"`
}

// Attachment references a file that was uploaded elsewhere. All three
// fields are required.
type Attachment struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}
