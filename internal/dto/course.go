package dto

import "github.com/noah-isme/sccms-api/internal/models"

// CourseRequest is the create and update payload of a course.
type CourseRequest struct {
	Name                string      `json:"name" validate:"required,max=200"`
	Description         string      `json:"description"`
	Location            string      `json:"location" validate:"max=200"`
	StudentApplyStart   models.Date `json:"student_apply_start"`
	StudentApplyEnd     models.Date `json:"student_apply_end"`
	VolunteerApplyStart models.Date `json:"volunteer_apply_start"`
	VolunteerApplyEnd   models.Date `json:"volunteer_apply_end"`
	StartDate           models.Date `json:"start_date"`
	EndDate             models.Date `json:"end_date"`
	StudentCapacity     int         `json:"student_capacity" validate:"gte=0"`
	VolunteerCapacity   int         `json:"volunteer_capacity" validate:"gte=0"`
}

// StatusChangeRequest moves an entity to another workflow status.
type StatusChangeRequest struct {
	Status string `json:"status" validate:"required"`
	Reason string `json:"reason" validate:"max=1000"`
}
