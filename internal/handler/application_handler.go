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

type applicationService interface {
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Application, error)
	Create(ctx context.Context, actor service.Actor, req dto.CreateApplicationRequest) (*models.Application, error)
	ChangeStatus(ctx context.Context, actor service.Actor, id string, req dto.StatusChangeRequest) (*models.Application, error)
	BulkChangeStatus(ctx context.Context, actor service.Actor, req dto.BulkStatusRequest) (*dto.BulkStatusResult, error)
	AutoApprove(ctx context.Context, actor service.Actor, courseID string, req dto.AutoApproveRequest) (*dto.AutoApproveResult, error)
}

// ApplicationHandler exposes application processing endpoints.
type ApplicationHandler struct {
	service applicationService
}

// NewApplicationHandler constructs the handler.
func NewApplicationHandler(svc applicationService) *ApplicationHandler {
	return &ApplicationHandler{service: svc}
}

// List godoc
// @Summary List applications
// @Tags Applications
// @Produce json
// @Param id path string true "Course ID"
// @Param kind query string false "STUDENT or VOLUNTEER"
// @Param status query string false "Status filter, comma separated"
// @Param group_id query string false "Student group"
// @Param team_id query string false "Volunteer team"
// @Param search query string false "Applicant name"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/applications [get]
func (h *ApplicationHandler) List(c *gin.Context) {
	var filter models.ApplicationFilter
	filter.Page, filter.PageSize = pageParams(c)
	filter.CourseID = c.Param("id")
	filter.Kind = models.ApplicationKind(c.Query("kind"))
	for _, status := range csvQuery(c, "status") {
		filter.Statuses = append(filter.Statuses, models.ApplicationStatus(status))
	}
	filter.GroupID = c.Query("group_id")
	filter.TeamID = c.Query("team_id")
	filter.Search = c.Query("search")
	filter.SortBy = c.Query("sort_by")
	filter.SortOrder = c.Query("sort_order")

	apps, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, apps, pagination)
}

// Get godoc
// @Summary Get application
// @Tags Applications
// @Produce json
// @Param id path string true "Application ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /applications/{id} [get]
func (h *ApplicationHandler) Get(c *gin.Context) {
	app, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// Create godoc
// @Summary Apply to a course
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.CreateApplicationRequest true "Application payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications [post]
func (h *ApplicationHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.CreateApplicationRequest
	if !bindJSON(c, &req) {
		return
	}
	app, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, app)
}

// ChangeStatus godoc
// @Summary Change application status
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Application ID"
// @Param payload body dto.StatusChangeRequest true "Target status"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/{id}/status [patch]
func (h *ApplicationHandler) ChangeStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.StatusChangeRequest
	if !bindJSON(c, &req) {
		return
	}
	app, err := h.service.ChangeStatus(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// BulkChangeStatus godoc
// @Summary Change the status of many applications
// @Description Ids that fail are listed in error.errorMessages while the rest are applied; the response then carries both data and error with status 409.
// @Tags Applications
// @Accept json
// @Produce json
// @Param payload body dto.BulkStatusRequest true "Ids and target status"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /applications/bulk-status [post]
func (h *ApplicationHandler) BulkChangeStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.BulkStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.BulkChangeStatus(c.Request.Context(), actor, req)
	if err != nil {
		if result != nil {
			response.Partial(c, result, err)
			return
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AutoApprove godoc
// @Summary Approve pending applications up to capacity
// @Tags Applications
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.AutoApproveRequest true "Kind"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /courses/{id}/applications/auto-approve [post]
func (h *ApplicationHandler) AutoApprove(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.AutoApproveRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.AutoApprove(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
