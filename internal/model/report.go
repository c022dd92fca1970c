package model

import "time"

// ReportReason is the category a reporter picks when flagging another user.
type ReportReason string

const (
	ReportHarassment           ReportReason = "harassment"
	ReportInappropriateContent ReportReason = "inappropriate_content"
	ReportSpam                 ReportReason = "spam"
	ReportFakeProfile          ReportReason = "fake_profile"
	ReportOther                ReportReason = "other"
)

func (r ReportReason) Valid() bool {
	switch r {
	case ReportHarassment, ReportInappropriateContent, ReportSpam, ReportFakeProfile, ReportOther:
		return true
	}
	return false
}

// ReportStatus tracks moderation of a report.
//
//	pending --> reviewed --> resolved
//	pending ---------------> resolved
//
// Status only moves forward; resolved is terminal.
type ReportStatus string

const (
	ReportPending  ReportStatus = "pending"
	ReportReviewed ReportStatus = "reviewed"
	ReportResolved ReportStatus = "resolved"
)

func (s ReportStatus) Valid() bool {
	switch s {
	case ReportPending, ReportReviewed, ReportResolved:
		return true
	}
	return false
}

// CanTransitionTo reports whether moderation may move a report from s to next.
func (s ReportStatus) CanTransitionTo(next ReportStatus) bool {
	switch s {
	case ReportPending:
		return next == ReportReviewed || next == ReportResolved
	case ReportReviewed:
		return next == ReportResolved
	}
	return false
}

// MaxReportDescriptionLength is counted in characters.
const MaxReportDescriptionLength = 1000

// Report is one user's complaint about another user's behaviour or content.
// Reporter, Reported, Reason, Description and CreatedAt never change.
type Report struct {
	ID          string       `json:"id"`
	ReporterID  string       `json:"reporter"`
	ReportedID  string       `json:"reported"`
	Reason      ReportReason `json:"reason"`
	Description string       `json:"description"`
	Status      ReportStatus `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}
