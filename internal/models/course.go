package models

// CourseStatus enumerates the course lifecycle.
type CourseStatus string

const (
	CourseStatusNotStarted CourseStatus = "notStarted"
	CourseStatusRecruiting CourseStatus = "recruiting"
	CourseStatusInProgress CourseStatus = "inProgress"
	CourseStatusClosed     CourseStatus = "closed"
	CourseStatusDeleted    CourseStatus = "deleted"
)

// Course is a retreat program instance.
type Course struct {
	ID                  string       `db:"id" json:"id"`
	Name                string       `db:"name" json:"name"`
	Description         string       `db:"description" json:"description"`
	Location            string       `db:"location" json:"location"`
	Status              CourseStatus `db:"status" json:"status"`
	StudentApplyStart   Date         `db:"student_apply_start" json:"student_apply_start"`
	StudentApplyEnd     Date         `db:"student_apply_end" json:"student_apply_end"`
	VolunteerApplyStart Date         `db:"volunteer_apply_start" json:"volunteer_apply_start"`
	VolunteerApplyEnd   Date         `db:"volunteer_apply_end" json:"volunteer_apply_end"`
	StartDate           Date         `db:"start_date" json:"start_date"`
	EndDate             Date         `db:"end_date" json:"end_date"`
	StudentCapacity     int          `db:"student_capacity" json:"student_capacity"`
	VolunteerCapacity   int          `db:"volunteer_capacity" json:"volunteer_capacity"`
	AuditFields
}

// CapacityFor returns the configured capacity for an application kind, 0
// meaning unlimited.
func (c Course) CapacityFor(kind ApplicationKind) int {
	if kind == ApplicationKindVolunteer {
		return c.VolunteerCapacity
	}
	return c.StudentCapacity
}

// Editable reports whether course fields may still change.
func (c Course) Editable() bool {
	return c.Status != CourseStatusClosed && c.Status != CourseStatusDeleted
}

// CourseFilter narrows course listings.
type CourseFilter struct {
	Statuses  []CourseStatus
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
