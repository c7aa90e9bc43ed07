package models

import "time"

// ApplicationKind discriminates student and volunteer applications.
type ApplicationKind string

const (
	ApplicationKindStudent   ApplicationKind = "STUDENT"
	ApplicationKindVolunteer ApplicationKind = "VOLUNTEER"
)

// ApplicationStatus enumerates the application workflow.
type ApplicationStatus string

const (
	ApplicationStatusPending   ApplicationStatus = "Pending"
	ApplicationStatusApproved  ApplicationStatus = "Approved"
	ApplicationStatusRejected  ApplicationStatus = "Rejected"
	ApplicationStatusEnrolled  ApplicationStatus = "Enrolled"
	ApplicationStatusDropOut   ApplicationStatus = "DropOut"
	ApplicationStatusGraduated ApplicationStatus = "Graduated"
	ApplicationStatusDeleted   ApplicationStatus = "Deleted"
)

// CapacityStatuses are the statuses that occupy a course seat.
var CapacityStatuses = []ApplicationStatus{
	ApplicationStatusApproved,
	ApplicationStatusEnrolled,
	ApplicationStatusGraduated,
}

// PlaceableStatuses are the statuses eligible for group or team placement.
var PlaceableStatuses = []ApplicationStatus{
	ApplicationStatusApproved,
	ApplicationStatusEnrolled,
}

// Placeable reports whether the application may be put in a group or team.
func (s ApplicationStatus) Placeable() bool {
	return s == ApplicationStatusApproved || s == ApplicationStatusEnrolled
}

// Application is a student's or volunteer's registration for a course.
type Application struct {
	ID              string            `db:"id" json:"id"`
	CourseID        string            `db:"course_id" json:"course_id"`
	Kind            ApplicationKind   `db:"kind" json:"kind"`
	StudentID       *string           `db:"student_id" json:"student_id,omitempty"`
	VolunteerID     *string           `db:"volunteer_id" json:"volunteer_id,omitempty"`
	Status          ApplicationStatus `db:"status" json:"status"`
	AppliedAt       time.Time         `db:"applied_at" json:"applied_at"`
	GroupID         *string           `db:"group_id" json:"group_id,omitempty"`
	TeamID          *string           `db:"team_id" json:"team_id,omitempty"`
	Note            string            `db:"note" json:"note"`
	RejectionReason string            `db:"rejection_reason" json:"rejection_reason,omitempty"`
	AuditFields

	ApplicantName   string `db:"applicant_name" json:"applicant_name"`
	ApplicantEmail  string `db:"applicant_email" json:"applicant_email"`
	ApplicantGender string `db:"applicant_gender" json:"applicant_gender"`
}

// PersonID returns the student or volunteer id depending on kind.
func (a Application) PersonID() string {
	if a.Kind == ApplicationKindVolunteer && a.VolunteerID != nil {
		return *a.VolunteerID
	}
	if a.StudentID != nil {
		return *a.StudentID
	}
	return ""
}

// ApplicationFilter narrows application listings.
type ApplicationFilter struct {
	CourseID  string
	Kind      ApplicationKind
	Statuses  []ApplicationStatus
	GroupID   string
	TeamID    string
	Unplaced  bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// ApplicationStatusCount is one row of a per kind and status breakdown.
type ApplicationStatusCount struct {
	Kind   ApplicationKind   `db:"kind" json:"kind"`
	Status ApplicationStatus `db:"status" json:"status"`
	Count  int               `db:"count" json:"count"`
}

// ApplicationPlacement is an applicant with their group or team and room, used
// for name cards.
type ApplicationPlacement struct {
	ApplicationID string          `db:"application_id" json:"application_id"`
	Kind          ApplicationKind `db:"kind" json:"kind"`
	ApplicantName string          `db:"applicant_name" json:"applicant_name"`
	PlacementName string          `db:"placement_name" json:"placement_name"`
	RoomName      string          `db:"room_name" json:"room_name"`
}
