package dto

import "github.com/noah-isme/sccms-api/internal/models"

// CreateApplicationRequest registers a student or volunteer for a course.
type CreateApplicationRequest struct {
	CourseID string                 `json:"course_id" validate:"required"`
	Kind     models.ApplicationKind `json:"kind" validate:"required,oneof=STUDENT VOLUNTEER"`
	PersonID string                 `json:"person_id" validate:"required"`
	Note     string                 `json:"note"`
}

// BulkStatusRequest applies one transition to many applications.
type BulkStatusRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1,dive,required"`
	Status string   `json:"status" validate:"required"`
	Reason string   `json:"reason" validate:"max=1000"`
}

// BulkStatusResult lists the applications that moved.
type BulkStatusResult struct {
	Updated []string `json:"updated"`
	Failed  int      `json:"failed"`
}

// AutoApproveRequest selects the application kind to approve.
type AutoApproveRequest struct {
	Kind models.ApplicationKind `json:"kind" validate:"required,oneof=STUDENT VOLUNTEER"`
}

// AutoApproveResult reports the applications approved in one run.
type AutoApproveResult struct {
	Approved []models.Application `json:"approved"`
	Capacity int                  `json:"capacity"`
}
