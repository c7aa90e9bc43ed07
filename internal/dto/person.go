package dto

import "github.com/noah-isme/sccms-api/internal/models"

// PersonRequest is the create and update payload for students and volunteers.
type PersonRequest struct {
	FullName    string       `json:"full_name" validate:"required,max=200"`
	Email       string       `json:"email" validate:"omitempty,email"`
	Phone       string       `json:"phone" validate:"max=50"`
	Gender      string       `json:"gender" validate:"required,gender"`
	DateOfBirth *models.Date `json:"date_of_birth"`
	Address     string       `json:"address"`
	Note        string       `json:"note"`
	Active      *bool        `json:"active"`
}
