package dto

// TeamRequest is the create and update payload of a volunteer team.
type TeamRequest struct {
	Name        string `json:"name" validate:"required,max=100"`
	Description string `json:"description"`
}

// StudentGroupRequest is the create and update payload of a student group.
type StudentGroupRequest struct {
	Name     string  `json:"name" validate:"required,max=100"`
	Gender   string  `json:"gender" validate:"omitempty,gender"`
	Capacity int     `json:"capacity" validate:"gte=0"`
	RoomID   *string `json:"room_id"`
}

// RoomRequest is the create and update payload of a room.
type RoomRequest struct {
	Name          string `json:"name" validate:"required,max=100"`
	Gender        string `json:"gender" validate:"omitempty,gender"`
	Capacity      int    `json:"capacity" validate:"gte=0"`
	NumberOfStaff int    `json:"number_of_staff" validate:"gte=0"`
}

// AssignApplicationRequest places an application in a group or team.
type AssignApplicationRequest struct {
	ApplicationID string `json:"application_id" validate:"required"`
}

// AutoAssignResult summarises an auto-assign run.
type AutoAssignResult struct {
	Assigned   map[string]string `json:"assigned"`
	Unassigned []string          `json:"unassigned"`
}
