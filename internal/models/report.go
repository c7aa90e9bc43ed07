package models

import "time"

// ReportType distinguishes attendance and night-shift reports.
type ReportType string

const (
	ReportTypeAttendance ReportType = "ATTENDANCE"
	ReportTypeNightShift ReportType = "NIGHT_SHIFT"
)

// ReportStatus enumerates the report workflow.
type ReportStatus string

const (
	ReportStatusNotYet    ReportStatus = "NotYet"
	ReportStatusAttending ReportStatus = "Attending"
	ReportStatusAttended  ReportStatus = "Attended"
	ReportStatusLate      ReportStatus = "Late"
	ReportStatusRead      ReportStatus = "Read"
	ReportStatusReopened  ReportStatus = "Reopened"
)

// Editable reports whether entries and summary may still be saved.
func (s ReportStatus) Editable() bool {
	return s == ReportStatusNotYet || s == ReportStatusAttending || s == ReportStatusReopened
}

// AttendanceMark is the per-student attendance value.
type AttendanceMark string

const (
	AttendancePresent AttendanceMark = "PRESENT"
	AttendanceAbsent  AttendanceMark = "ABSENT"
	AttendanceLate    AttendanceMark = "LATE"
	AttendanceExcused AttendanceMark = "EXCUSED"
)

// Report is an attendance or night-shift record.
type Report struct {
	ID           string       `db:"id" json:"id"`
	CourseID     string       `db:"course_id" json:"course_id"`
	Type         ReportType   `db:"type" json:"type"`
	ReportDate   Date         `db:"report_date" json:"report_date"`
	GroupID      *string      `db:"group_id" json:"group_id,omitempty"`
	NightShiftID *string      `db:"night_shift_id" json:"night_shift_id,omitempty"`
	Status       ReportStatus `db:"status" json:"status"`
	DueAt        time.Time    `db:"due_at" json:"due_at"`
	SubmittedBy  *string      `db:"submitted_by" json:"submitted_by,omitempty"`
	SubmittedAt  *time.Time   `db:"submitted_at" json:"submitted_at,omitempty"`
	ReadBy       *string      `db:"read_by" json:"read_by,omitempty"`
	ReadAt       *time.Time   `db:"read_at" json:"read_at,omitempty"`
	ReopenedBy   *string      `db:"reopened_by" json:"reopened_by,omitempty"`
	ReopenedAt   *time.Time   `db:"reopened_at" json:"reopened_at,omitempty"`
	ReopenReason string       `db:"reopen_reason" json:"reopen_reason,omitempty"`
	Summary      string       `db:"summary" json:"summary"`
	AuditFields

	Entries []ReportEntry `db:"-" json:"entries,omitempty"`
}

// ReportEntry is one attendance row.
type ReportEntry struct {
	ReportID    string         `db:"report_id" json:"report_id"`
	StudentID   string         `db:"student_id" json:"student_id"`
	StudentName string         `db:"student_name" json:"student_name,omitempty"`
	Attendance  AttendanceMark `db:"attendance" json:"attendance"`
	Note        string         `db:"note" json:"note"`
}

// ReportFilter narrows report listings.
type ReportFilter struct {
	CourseID string
	Type     ReportType
	Statuses []ReportStatus
	Date     *Date
	GroupID  string
	Page     int
	PageSize int
}

// ReportStatusCount is one row of a per status breakdown.
type ReportStatusCount struct {
	Type   ReportType   `db:"type" json:"type"`
	Status ReportStatus `db:"status" json:"status"`
	Count  int          `db:"count" json:"count"`
}

// AttendanceRow flattens a report entry with its report and group for exports.
type AttendanceRow struct {
	ReportDate   Date           `db:"report_date"`
	GroupName    string         `db:"group_name"`
	StudentName  string         `db:"student_name"`
	Attendance   AttendanceMark `db:"attendance"`
	Note         string         `db:"note"`
	ReportStatus ReportStatus   `db:"report_status"`
}

// ReportTransition carries the actor and optional reason of a status change.
type ReportTransition struct {
	From    ReportStatus
	To      ReportStatus
	ActorID string
	Reason  string
	At      time.Time
}
