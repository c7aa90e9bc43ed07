package models

import "time"

// EmailStatus tracks delivery of the email copy of a notification.
type EmailStatus string

const (
	EmailStatusPending EmailStatus = "PENDING"
	EmailStatusSent    EmailStatus = "SENT"
	EmailStatusFailed  EmailStatus = "FAILED"
	EmailStatusSkipped EmailStatus = "SKIPPED"
)

// Notification types.
const (
	NotificationApplicationApproved = "APPLICATION_APPROVED"
	NotificationApplicationRejected = "APPLICATION_REJECTED"
	NotificationShiftAssigned       = "NIGHT_SHIFT_ASSIGNED"
	NotificationShiftReminder       = "NIGHT_SHIFT_REMINDER"
	NotificationReportReopened      = "REPORT_REOPENED"
	NotificationBroadcast           = "BROADCAST"
	NotificationCourseEmail         = "COURSE_EMAIL"
)

// Notification is an in-app message with an optional email copy. UserID is
// nil for emails sent to applicants who have no user account.
type Notification struct {
	ID          string      `db:"id" json:"id"`
	UserID      *string     `db:"user_id" json:"user_id,omitempty"`
	CourseID    *string     `db:"course_id" json:"course_id,omitempty"`
	Type        string      `db:"type" json:"type"`
	Title       string      `db:"title" json:"title"`
	Body        string      `db:"body" json:"body"`
	Recipient   string      `db:"recipient" json:"recipient,omitempty"`
	ReadAt      *time.Time  `db:"read_at" json:"read_at,omitempty"`
	EmailStatus EmailStatus `db:"email_status" json:"email_status"`
	CreatedAt   time.Time   `db:"created_at" json:"created_at"`
}

// NotificationFilter narrows a user's notification list.
type NotificationFilter struct {
	UserID     string
	UnreadOnly bool
	Page       int
	PageSize   int
}
