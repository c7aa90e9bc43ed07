package dto

import "github.com/noah-isme/sccms-api/internal/models"

// BroadcastRequest notifies every active user holding one of the roles.
type BroadcastRequest struct {
	Roles []models.UserRole `json:"roles" validate:"required,min=1,dive,oneof=ADMIN MANAGER SECRETARY STAFF"`
	Title string            `json:"title" validate:"required,max=200"`
	Body  string            `json:"body" validate:"required"`
	Email bool              `json:"email"`
}

// CourseEmailRequest emails the applicants of a course.
type CourseEmailRequest struct {
	Kind     models.ApplicationKind     `json:"kind" validate:"omitempty,oneof=STUDENT VOLUNTEER"`
	Statuses []models.ApplicationStatus `json:"statuses"`
	Subject  string                     `json:"subject" validate:"required,max=200"`
	Body     string                     `json:"body" validate:"required"`
}

// DeliveryResult counts queued notifications.
type DeliveryResult struct {
	Queued  int `json:"queued"`
	Skipped int `json:"skipped"`
}
