package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ExportType enumerates the datasets that can be exported asynchronously.
type ExportType string

const (
	ExportTypeApplications ExportType = "applications"
	ExportTypeAttendance   ExportType = "attendance"
	ExportTypeNightShifts  ExportType = "night-shifts"
)

// ExportStatus captures background job lifecycle states.
type ExportStatus string

const (
	ExportStatusQueued     ExportStatus = "QUEUED"
	ExportStatusProcessing ExportStatus = "PROCESSING"
	ExportStatusFinished   ExportStatus = "FINISHED"
	ExportStatusFailed     ExportStatus = "FAILED"
)

// ExportJob is persisted background export metadata.
type ExportJob struct {
	ID         string       `db:"id" json:"id"`
	Type       ExportType   `db:"type" json:"type"`
	CourseID   string       `db:"course_id" json:"courseId"`
	Format     string       `db:"format" json:"format"`
	Params     ExportParams `db:"params" json:"params"`
	Status     ExportStatus `db:"status" json:"status"`
	Progress   int          `db:"progress" json:"progress"`
	ResultPath *string      `db:"result_path" json:"-"`
	Error      *string      `db:"error" json:"error,omitempty"`
	CreatedBy  string       `db:"created_by" json:"createdBy"`
	CreatedAt  time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt  time.Time    `db:"updated_at" json:"updatedAt"`
	FinishedAt *time.Time   `db:"finished_at" json:"finishedAt,omitempty"`
}

// ExportParams stores dataset filters persisted as JSONB.
type ExportParams struct {
	Kind   ApplicationKind   `json:"kind,omitempty"`
	Status ApplicationStatus `json:"status,omitempty"`
}

// Value marshals params to JSON for persistence.
func (p ExportParams) Value() (driver.Value, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal export params: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the params struct.
func (p *ExportParams) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*p = ExportParams{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for ExportParams", value)
	}
	if len(data) == 0 {
		*p = ExportParams{}
		return nil
	}
	if err := json.Unmarshal(data, p); err != nil {
		return fmt.Errorf("unmarshal export params: %w", err)
	}
	return nil
}
