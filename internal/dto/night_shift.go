package dto

import (
	"time"

	"github.com/noah-isme/sccms-api/internal/models"
)

// NightShiftRequest is the create and update payload of a night shift.
type NightShiftRequest struct {
	RoomID    string      `json:"room_id" validate:"required"`
	ShiftDate models.Date `json:"shift_date"`
	StartAt   time.Time   `json:"start_at"`
	EndAt     time.Time   `json:"end_at"`
	Note      string      `json:"note"`
}

// AssignStaffRequest assigns a user to a shift.
type AssignStaffRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// RejectAssignmentRequest declines an assignment.
type RejectAssignmentRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// ReassignRequest hands a rejected assignment to another user.
type ReassignRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// NightShiftDetail is a shift with its assignments.
type NightShiftDetail struct {
	models.NightShift
	Assignments []models.NightShiftAssignment `json:"assignments"`
}

// ShiftAutoAssignResult lists the assignments created by an auto-assign run.
type ShiftAutoAssignResult struct {
	Created []models.NightShiftAssignment `json:"created"`
	Skipped []string                      `json:"skipped,omitempty"`
}
