package models

import "time"

// AssignmentStatus enumerates the night-shift assignment workflow.
type AssignmentStatus string

const (
	AssignmentStatusAssigned   AssignmentStatus = "assigned"
	AssignmentStatusRejected   AssignmentStatus = "rejected"
	AssignmentStatusReassigned AssignmentStatus = "reassigned"
)

// StaffingState summarises active assignments against the room target.
type StaffingState string

const (
	StaffingEmpty   StaffingState = "empty"
	StaffingPartial StaffingState = "partial"
	StaffingFull    StaffingState = "full"
)

// Staffing computes the staffing state for active assignments against the
// number of staff a room requires.
func Staffing(active, required int) StaffingState {
	switch {
	case active >= required:
		return StaffingFull
	case active <= 0:
		return StaffingEmpty
	default:
		return StaffingPartial
	}
}

// NightShift is an overnight supervision slot for one room.
type NightShift struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	RoomID    string    `db:"room_id" json:"room_id"`
	ShiftDate Date      `db:"shift_date" json:"shift_date"`
	StartAt   time.Time `db:"start_at" json:"start_at"`
	EndAt     time.Time `db:"end_at" json:"end_at"`
	Note      string    `db:"note" json:"note"`
	AuditFields

	RoomName       string        `db:"room_name" json:"room_name"`
	RequiredStaff  int           `db:"required_staff" json:"required_staff"`
	ActiveAssigned int           `db:"active_assigned" json:"active_assigned"`
	Staffing       StaffingState `db:"-" json:"staffing"`
}

// OpenSlots returns how many more staff can be assigned.
func (n NightShift) OpenSlots() int {
	if open := n.RequiredStaff - n.ActiveAssigned; open > 0 {
		return open
	}
	return 0
}

// NightShiftAssignment links a staff user to a shift.
type NightShiftAssignment struct {
	ID              string           `db:"id" json:"id"`
	NightShiftID    string           `db:"night_shift_id" json:"night_shift_id"`
	UserID          string           `db:"user_id" json:"user_id"`
	Status          AssignmentStatus `db:"status" json:"status"`
	RejectionReason string           `db:"rejection_reason" json:"rejection_reason,omitempty"`
	ReassignedFrom  *string          `db:"reassigned_from" json:"reassigned_from,omitempty"`
	AuditFields

	UserName string `db:"user_name" json:"user_name"`
}

// NightShiftFilter narrows shift listings.
type NightShiftFilter struct {
	CourseID string
	RoomID   string
	From     *Date
	To       *Date
}

// MyNightShift is a shift as seen by the assigned user.
type MyNightShift struct {
	AssignmentID string           `db:"assignment_id" json:"assignment_id"`
	UserID       string           `db:"user_id" json:"-"`
	Status       AssignmentStatus `db:"status" json:"status"`
	NightShiftID string           `db:"night_shift_id" json:"night_shift_id"`
	CourseID     string           `db:"course_id" json:"course_id"`
	CourseName   string           `db:"course_name" json:"course_name"`
	RoomName     string           `db:"room_name" json:"room_name"`
	ShiftDate    Date             `db:"shift_date" json:"shift_date"`
	StartAt      time.Time        `db:"start_at" json:"start_at"`
	EndAt        time.Time        `db:"end_at" json:"end_at"`
}

// StaffSuggestion is a candidate for a night shift.
type StaffSuggestion struct {
	UserID            string   `db:"user_id" json:"user_id"`
	FullName          string   `db:"full_name" json:"full_name"`
	Email             string   `db:"email" json:"email"`
	Role              UserRole `db:"role" json:"role"`
	ActiveAssignments int      `db:"active_assignments" json:"active_assignments"`
}
