// Package model defines the data structures used throughout the application.
package model

import "time"

// MatchStatus is the position of a Match in its acceptance workflow.
//
// STATE MACHINE:
//
//	pending --accept--> accepted   (terminal)
//	pending --reject--> rejected   (terminal)
//
// No edge leads back to pending and none connects the two terminal states.
type MatchStatus string

const (
	MatchPending  MatchStatus = "pending"
	MatchAccepted MatchStatus = "accepted"
	MatchRejected MatchStatus = "rejected"
)

// Valid reports whether s is one of the three known statuses.
func (s MatchStatus) Valid() bool {
	switch s {
	case MatchPending, MatchAccepted, MatchRejected:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed out of s.
func (s MatchStatus) Terminal() bool {
	return s == MatchAccepted || s == MatchRejected
}

// CanTransitionTo reports whether the state machine has an edge s -> next.
func (s MatchStatus) CanTransitionTo(next MatchStatus) bool {
	return s == MatchPending && next.Terminal()
}

// Score bounds for Match.CompatibilityScore and rating bounds for Feedback.
const (
	MinCompatibilityScore = 0
	MaxCompatibilityScore = 100
	MinFeedbackRating     = 1
	MaxFeedbackRating     = 5
)

// Match is a proposed or decided pairing of two users.
//
// Users always holds exactly two distinct user ids. The pair is stored in a
// fixed order, but two matches are the same pairing regardless of order.
// CompatibilityScore and CreatedAt never change after creation.
// DecidedAt is set once, when the match reaches a terminal status.
type Match struct {
	ID                 string      `json:"id"`
	Users              [2]string   `json:"users"`
	CompatibilityScore int         `json:"compatibilityScore"`
	Status             MatchStatus `json:"status"`
	CreatedAt          time.Time   `json:"createdAt"`
	DecidedAt          *time.Time  `json:"decidedAt,omitempty"`
	Feedback           []Feedback  `json:"feedback"`
}

// HasUser reports whether userID is one of the match's two users.
func (m *Match) HasUser(userID string) bool {
	return m.Users[0] == userID || m.Users[1] == userID
}

// Feedback is a rating left on a match by one of its two users.
// Feedback is append-only; entries are never edited or removed.
type Feedback struct {
	UserID    string    `json:"user"`
	Rating    int       `json:"rating"`
	Comments  string    `json:"comments,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}
