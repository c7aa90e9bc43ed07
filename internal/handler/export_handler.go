package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/service"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
	"github.com/noah-isme/sccms-api/pkg/export"
	"github.com/noah-isme/sccms-api/pkg/response"
)

type exportRenderer interface {
	Render(ctx context.Context, req service.ExportRequest) (*service.ExportFile, error)
	Cards(ctx context.Context, courseID string, kind models.ApplicationKind) (*service.ExportFile, error)
	Certificates(ctx context.Context, courseID string) (*service.ExportFile, error)
}

type exportJobService interface {
	CreateJob(ctx context.Context, actor service.Actor, req dto.ExportJobRequest) (*dto.ExportJobResponse, error)
	GetStatus(ctx context.Context, actor service.Actor, id string) (*dto.ExportStatusResponse, error)
	ResolveDownload(ctx context.Context, token string) (*service.ExportDownload, error)
}

// ExportHandler serves file downloads and asynchronous export jobs.
type ExportHandler struct {
	exports exportRenderer
	jobs    exportJobService
}

// NewExportHandler constructs the handler.
func NewExportHandler(exports exportRenderer, jobs exportJobService) *ExportHandler {
	return &ExportHandler{exports: exports, jobs: jobs}
}

// Applications godoc
// @Summary Download the applications of a course
// @Tags Exports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce text/csv
// @Param id path string true "Course ID"
// @Param kind query string false "STUDENT or VOLUNTEER"
// @Param status query string false "Application status"
// @Param format query string false "xlsx (default) or csv"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /courses/{id}/exports/applications [get]
func (h *ExportHandler) Applications(c *gin.Context) {
	h.render(c, models.ExportTypeApplications)
}

// Attendance godoc
// @Summary Download the attendance sheet of a course
// @Tags Exports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce text/csv
// @Param id path string true "Course ID"
// @Param format query string false "xlsx (default) or csv"
// @Success 200 {file} file
// @Router /courses/{id}/exports/attendance [get]
func (h *ExportHandler) Attendance(c *gin.Context) {
	h.render(c, models.ExportTypeAttendance)
}

// NightShifts godoc
// @Summary Download the night-shift roster of a course
// @Tags Exports
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Produce text/csv
// @Param id path string true "Course ID"
// @Param format query string false "xlsx (default) or csv"
// @Success 200 {file} file
// @Router /courses/{id}/exports/night-shifts [get]
func (h *ExportHandler) NightShifts(c *gin.Context) {
	h.render(c, models.ExportTypeNightShifts)
}

func (h *ExportHandler) render(c *gin.Context, kind models.ExportType) {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	file, err := h.exports.Render(c.Request.Context(), service.ExportRequest{
		Type:     kind,
		CourseID: c.Param("id"),
		Format:   format,
		Kind:     models.ApplicationKind(c.Query("kind")),
		Status:   models.ApplicationStatus(c.Query("status")),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// Cards godoc
// @Summary Print name cards
// @Description One card per approved or enrolled applicant of the kind
// @Tags Exports
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Param kind query string false "STUDENT (default) or VOLUNTEER"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/cards [get]
func (h *ExportHandler) Cards(c *gin.Context) {
	file, err := h.exports.Cards(c.Request.Context(), c.Param("id"), models.ApplicationKind(c.Query("kind")))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// Certificates godoc
// @Summary Print graduation certificates
// @Tags Exports
// @Produce application/pdf
// @Param id path string true "Course ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Router /courses/{id}/certificates [get]
func (h *ExportHandler) Certificates(c *gin.Context) {
	file, err := h.exports.Certificates(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}

// CreateJob godoc
// @Summary Queue an export job
// @Tags Exports
// @Accept json
// @Produce json
// @Param payload body dto.ExportJobRequest true "Export request"
// @Success 202 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /exports [post]
func (h *ExportHandler) CreateJob(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.ExportJobRequest
	if !bindJSON(c, &req) {
		return
	}
	job, err := h.jobs.CreateJob(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusAccepted, job, nil)
}

// JobStatus godoc
// @Summary Export job status
// @Description Finished jobs carry a signed download URL
// @Tags Exports
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportHandler) JobStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	status, err := h.jobs.GetStatus(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Download godoc
// @Summary Download an export result
// @Description The signed token is the only credential
// @Tags Exports
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Router /export/{token} [get]
func (h *ExportHandler) Download(c *gin.Context) {
	download, err := h.jobs.ResolveDownload(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close()

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to read export file"))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, download.File, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", download.Filename),
	})
}
