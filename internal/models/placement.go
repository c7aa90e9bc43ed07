package models

// Team groups volunteers within a course.
type Team struct {
	ID          string `db:"id" json:"id"`
	CourseID    string `db:"course_id" json:"course_id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	AuditFields

	MemberCount int `db:"member_count" json:"member_count"`
}

// StudentGroup groups students within a course. An empty gender means mixed
// and a zero capacity means unlimited.
type StudentGroup struct {
	ID       string  `db:"id" json:"id"`
	CourseID string  `db:"course_id" json:"course_id"`
	Name     string  `db:"name" json:"name"`
	Gender   string  `db:"gender" json:"gender"`
	Capacity int     `db:"capacity" json:"capacity"`
	RoomID   *string `db:"room_id" json:"room_id,omitempty"`
	AuditFields

	MemberCount int `db:"member_count" json:"member_count"`
}

// Accepts reports whether a student of the given gender fits the group.
func (g StudentGroup) Accepts(gender string) bool {
	if g.Gender != "" && g.Gender != gender {
		return false
	}
	return g.Capacity == 0 || g.MemberCount < g.Capacity
}

// Room is a sleeping or activity room with a night-shift staffing target.
type Room struct {
	ID            string `db:"id" json:"id"`
	CourseID      string `db:"course_id" json:"course_id"`
	Name          string `db:"name" json:"name"`
	Gender        string `db:"gender" json:"gender"`
	Capacity      int    `db:"capacity" json:"capacity"`
	NumberOfStaff int    `db:"number_of_staff" json:"number_of_staff"`
	AuditFields
}
