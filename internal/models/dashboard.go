package models

import "time"

// CourseDashboard aggregates the operational state of one course.
type CourseDashboard struct {
	CourseID     string                   `json:"course_id"`
	CourseName   string                   `json:"course_name"`
	Status       CourseStatus             `json:"status"`
	Applications []ApplicationStatusCount `json:"applications"`
	Groups       []StudentGroup           `json:"groups"`
	Teams        []Team                   `json:"teams"`
	Reports      []ReportStatusCount      `json:"reports"`
	NightShifts  StaffingSummary          `json:"night_shifts"`
	GeneratedAt  time.Time                `json:"generated_at"`
}

// StaffingSummary counts shifts by staffing state.
type StaffingSummary struct {
	Full    int `json:"full"`
	Partial int `json:"partial"`
	Empty   int `json:"empty"`
}
