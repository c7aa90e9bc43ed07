package dto

import (
	"time"

	"github.com/noah-isme/sccms-api/internal/models"
)

// CreateReportRequest creates an attendance or night-shift report.
type CreateReportRequest struct {
	CourseID     string            `json:"course_id" validate:"required"`
	Type         models.ReportType `json:"type" validate:"required,oneof=ATTENDANCE NIGHT_SHIFT"`
	ReportDate   models.Date       `json:"report_date"`
	GroupID      *string           `json:"group_id"`
	NightShiftID *string           `json:"night_shift_id"`
	DueAt        *time.Time        `json:"due_at"`
}

// SaveReportRequest stores summary and attendance entries.
type SaveReportRequest struct {
	Summary string             `json:"summary" validate:"max=5000"`
	Entries []ReportEntryInput `json:"entries" validate:"dive"`
}

// ReportEntryInput is one attendance row.
type ReportEntryInput struct {
	StudentID  string                `json:"student_id" validate:"required"`
	Attendance models.AttendanceMark `json:"attendance" validate:"required,oneof=PRESENT ABSENT LATE EXCUSED"`
	Note       string                `json:"note" validate:"max=500"`
}

// ReopenReportRequest reopens a submitted report.
type ReopenReportRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// GenerateReportsResult reports what a daily generation created.
type GenerateReportsResult struct {
	Date    models.Date     `json:"date"`
	Created []models.Report `json:"created"`
	Skipped int             `json:"skipped"`
}
