package dto

import "github.com/noah-isme/sccms-api/internal/models"

// ExportJobRequest captures the POST /exports payload.
type ExportJobRequest struct {
	Type     models.ExportType        `json:"type" validate:"required,oneof=applications attendance night-shifts"`
	CourseID string                   `json:"courseId" validate:"required"`
	Format   string                   `json:"format" validate:"omitempty,oneof=xlsx csv"`
	Kind     models.ApplicationKind   `json:"kind" validate:"omitempty,oneof=STUDENT VOLUNTEER"`
	Status   models.ApplicationStatus `json:"status"`
}

// ExportJobResponse is returned after enqueueing an export.
type ExportJobResponse struct {
	ID       string              `json:"id"`
	Status   models.ExportStatus `json:"status"`
	Progress int                 `json:"progress"`
}

// ExportStatusResponse exposes job progress metadata.
type ExportStatusResponse struct {
	ID        string              `json:"id"`
	Type      models.ExportType   `json:"type"`
	Status    models.ExportStatus `json:"status"`
	Progress  int                 `json:"progress"`
	ResultURL *string             `json:"resultUrl,omitempty"`
	ExpiresAt *string             `json:"expiresAt,omitempty"`
	Error     *string             `json:"error,omitempty"`
}
