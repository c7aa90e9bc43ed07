package models

// PersonKind distinguishes the students and volunteers tables.
type PersonKind string

const (
	PersonKindStudent   PersonKind = "student"
	PersonKindVolunteer PersonKind = "volunteer"
)

// Gender values shared by people, rooms and student groups.
const (
	GenderMale   = "M"
	GenderFemale = "F"
)

// Person is a student or volunteer record.
type Person struct {
	ID          string `db:"id" json:"id"`
	FullName    string `db:"full_name" json:"full_name"`
	Email       string `db:"email" json:"email"`
	Phone       string `db:"phone" json:"phone"`
	Gender      string `db:"gender" json:"gender"`
	DateOfBirth *Date  `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Address     string `db:"address" json:"address"`
	Note        string `db:"note" json:"note"`
	Active      bool   `db:"active" json:"active"`
	AuditFields
}

// PersonFilter narrows people listings.
type PersonFilter struct {
	Search   string
	Gender   string
	Active   *bool
	Page     int
	PageSize int
}
