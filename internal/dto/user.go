package dto

import "github.com/noah-isme/sccms-api/internal/models"

// CreateUserRequest payload for POST /users.
type CreateUserRequest struct {
	Email    string          `json:"email" validate:"required,email"`
	FullName string          `json:"full_name" validate:"required,max=200"`
	Role     models.UserRole `json:"role" validate:"required,oneof=ADMIN MANAGER SECRETARY STAFF"`
	Password string          `json:"password" validate:"required,min=8"`
	Active   *bool           `json:"active"`
}

// UpdateUserRequest payload for PUT /users/:id. Empty fields are left as is.
type UpdateUserRequest struct {
	Email    string          `json:"email" validate:"omitempty,email"`
	FullName string          `json:"full_name" validate:"omitempty,max=200"`
	Role     models.UserRole `json:"role" validate:"omitempty,oneof=ADMIN MANAGER SECRETARY STAFF"`
	Active   *bool           `json:"active"`
}
