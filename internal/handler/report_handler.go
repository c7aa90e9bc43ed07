package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/service"
	"github.com/noah-isme/sccms-api/pkg/response"
)

type reportService interface {
	List(ctx context.Context, filter models.ReportFilter) ([]models.Report, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Report, error)
	Create(ctx context.Context, actor service.Actor, req dto.CreateReportRequest) (*models.Report, bool, error)
	Start(ctx context.Context, actor service.Actor, id string) (*models.Report, error)
	Save(ctx context.Context, actor service.Actor, id string, req dto.SaveReportRequest) (*models.Report, error)
	Submit(ctx context.Context, actor service.Actor, id string) (*models.Report, error)
	MarkRead(ctx context.Context, actor service.Actor, id string) (*models.Report, error)
	Reopen(ctx context.Context, actor service.Actor, id string, req dto.ReopenReportRequest) (*models.Report, error)
	GenerateDaily(ctx context.Context, actor service.Actor, courseID string, date models.Date) (*dto.GenerateReportsResult, error)
}

// ReportHandler exposes attendance and night-shift report endpoints.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs the handler.
func NewReportHandler(svc reportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// List godoc
// @Summary List reports of a course
// @Tags Reports
// @Produce json
// @Param id path string true "Course ID"
// @Param type query string false "ATTENDANCE or NIGHT_SHIFT"
// @Param status query string false "Status filter, comma separated"
// @Param date query string false "Report date (YYYY-MM-DD)"
// @Param group_id query string false "Student group"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/reports [get]
func (h *ReportHandler) List(c *gin.Context) {
	filter := models.ReportFilter{
		CourseID: c.Param("id"),
		Type:     models.ReportType(c.Query("type")),
		GroupID:  c.Query("group_id"),
	}
	filter.Page, filter.PageSize = pageParams(c)
	for _, status := range csvQuery(c, "status") {
		filter.Statuses = append(filter.Statuses, models.ReportStatus(status))
	}
	var err error
	if filter.Date, err = dateQuery(c, "date"); err != nil {
		response.Error(c, err)
		return
	}

	reports, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reports, pagination)
}

// Get godoc
// @Summary Get report with entries
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Router /reports/{id} [get]
func (h *ReportHandler) Get(c *gin.Context) {
	report, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Create godoc
// @Summary Create report
// @Description Returns 200 with the existing report when one already exists for the group and date or for the night shift
// @Tags Reports
// @Accept json
// @Produce json
// @Param payload body dto.CreateReportRequest true "Report payload"
// @Success 201 {object} response.Envelope
// @Success 200 {object} response.Envelope
// @Router /reports [post]
func (h *ReportHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.CreateReportRequest
	if !bindJSON(c, &req) {
		return
	}
	report, created, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if created {
		response.Created(c, report)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Start godoc
// @Summary Start filling a report
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reports/{id}/start [post]
func (h *ReportHandler) Start(c *gin.Context) {
	h.act(c, h.service.Start)
}

// Save godoc
// @Summary Save report summary and entries
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body dto.SaveReportRequest true "Report content"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reports/{id} [put]
func (h *ReportHandler) Save(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.SaveReportRequest
	if !bindJSON(c, &req) {
		return
	}
	report, err := h.service.Save(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Submit godoc
// @Summary Submit report
// @Description Attended when submitted before the due time, Late otherwise
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /reports/{id}/submit [post]
func (h *ReportHandler) Submit(c *gin.Context) {
	h.act(c, h.service.Submit)
}

// MarkRead godoc
// @Summary Mark report read
// @Tags Reports
// @Produce json
// @Param id path string true "Report ID"
// @Success 200 {object} response.Envelope
// @Router /reports/{id}/read [post]
func (h *ReportHandler) MarkRead(c *gin.Context) {
	h.act(c, h.service.MarkRead)
}

func (h *ReportHandler) act(c *gin.Context, fn func(context.Context, service.Actor, string) (*models.Report, error)) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	report, err := fn(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// Reopen godoc
// @Summary Reopen a submitted report
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path string true "Report ID"
// @Param payload body dto.ReopenReportRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Router /reports/{id}/reopen [post]
func (h *ReportHandler) Reopen(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.ReopenReportRequest
	if !bindJSON(c, &req) {
		return
	}
	report, err := h.service.Reopen(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// GenerateDaily godoc
// @Summary Generate the reports of a day
// @Description One attendance report per student group and one night-shift report per shift. Defaults to today.
// @Tags Reports
// @Produce json
// @Param id path string true "Course ID"
// @Param date query string false "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/reports/generate [post]
func (h *ReportHandler) GenerateDaily(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	date, err := dateQuery(c, "date")
	if err != nil {
		response.Error(c, err)
		return
	}
	var day models.Date
	if date != nil {
		day = *date
	}
	result, err := h.service.GenerateDaily(c.Request.Context(), actor, c.Param("id"), day)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
