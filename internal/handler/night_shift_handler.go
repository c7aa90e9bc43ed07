package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/service"
	"github.com/noah-isme/sccms-api/pkg/response"
)

type nightShiftService interface {
	List(ctx context.Context, filter models.NightShiftFilter) ([]models.NightShift, error)
	Get(ctx context.Context, id string) (*dto.NightShiftDetail, error)
	Create(ctx context.Context, actor service.Actor, courseID string, req dto.NightShiftRequest) (*models.NightShift, error)
	Update(ctx context.Context, actor service.Actor, id string, req dto.NightShiftRequest) (*models.NightShift, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
	Assign(ctx context.Context, actor service.Actor, shiftID string, req dto.AssignStaffRequest) (*models.NightShiftAssignment, error)
	Reject(ctx context.Context, actor service.Actor, assignmentID string, req dto.RejectAssignmentRequest) (*models.NightShiftAssignment, error)
	Reassign(ctx context.Context, actor service.Actor, assignmentID string, req dto.ReassignRequest) (*models.NightShiftAssignment, error)
	Suggestions(ctx context.Context, shiftID string, limit int) ([]models.StaffSuggestion, error)
	AutoAssign(ctx context.Context, actor service.Actor, shiftID string) (*dto.ShiftAutoAssignResult, error)
	AutoAssignCourse(ctx context.Context, actor service.Actor, courseID string) (*dto.ShiftAutoAssignResult, error)
	MyShifts(ctx context.Context, userID string) ([]models.MyNightShift, error)
}

// NightShiftHandler exposes night-shift scheduling endpoints.
type NightShiftHandler struct {
	service nightShiftService
}

// NewNightShiftHandler constructs the handler.
func NewNightShiftHandler(svc nightShiftService) *NightShiftHandler {
	return &NightShiftHandler{service: svc}
}

// List godoc
// @Summary List night shifts of a course with staffing
// @Tags NightShifts
// @Produce json
// @Param id path string true "Course ID"
// @Param room_id query string false "Room filter"
// @Param from query string false "First date (YYYY-MM-DD)"
// @Param to query string false "Last date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{id}/night-shifts [get]
func (h *NightShiftHandler) List(c *gin.Context) {
	filter := models.NightShiftFilter{CourseID: c.Param("id"), RoomID: c.Query("room_id")}
	var err error
	if filter.From, err = dateQuery(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.To, err = dateQuery(c, "to"); err != nil {
		response.Error(c, err)
		return
	}
	shifts, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, shifts, nil)
}

// Get godoc
// @Summary Get night shift with assignments
// @Tags NightShifts
// @Produce json
// @Param id path string true "Night shift ID"
// @Success 200 {object} response.Envelope
// @Router /night-shifts/{id} [get]
func (h *NightShiftHandler) Get(c *gin.Context) {
	shift, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, shift, nil)
}

// Create godoc
// @Summary Create night shift
// @Tags NightShifts
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.NightShiftRequest true "Shift payload"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/night-shifts [post]
func (h *NightShiftHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.NightShiftRequest
	if !bindJSON(c, &req) {
		return
	}
	shift, err := h.service.Create(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, shift)
}

// Update godoc
// @Summary Update night shift
// @Tags NightShifts
// @Accept json
// @Produce json
// @Param id path string true "Night shift ID"
// @Param payload body dto.NightShiftRequest true "Shift payload"
// @Success 200 {object} response.Envelope
// @Router /night-shifts/{id} [put]
func (h *NightShiftHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.NightShiftRequest
	if !bindJSON(c, &req) {
		return
	}
	shift, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, shift, nil)
}

// Delete godoc
// @Summary Delete night shift
// @Tags NightShifts
// @Param id path string true "Night shift ID"
// @Success 204
// @Router /night-shifts/{id} [delete]
func (h *NightShiftHandler) Delete(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Assign godoc
// @Summary Assign a staff member to a shift
// @Tags NightShifts
// @Accept json
// @Produce json
// @Param id path string true "Night shift ID"
// @Param payload body dto.AssignStaffRequest true "User"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /night-shifts/{id}/assignments [post]
func (h *NightShiftHandler) Assign(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.AssignStaffRequest
	if !bindJSON(c, &req) {
		return
	}
	assignment, err := h.service.Assign(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Reject godoc
// @Summary Reject an assignment
// @Description Staff may only reject their own assignments
// @Tags NightShifts
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.RejectAssignmentRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /night-shift-assignments/{id}/reject [post]
func (h *NightShiftHandler) Reject(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.RejectAssignmentRequest
	if !bindJSON(c, &req) {
		return
	}
	assignment, err := h.service.Reject(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignment, nil)
}

// Reassign godoc
// @Summary Hand a rejected assignment to another user
// @Tags NightShifts
// @Accept json
// @Produce json
// @Param id path string true "Assignment ID"
// @Param payload body dto.ReassignRequest true "New user"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /night-shift-assignments/{id}/reassign [post]
func (h *NightShiftHandler) Reassign(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.ReassignRequest
	if !bindJSON(c, &req) {
		return
	}
	assignment, err := h.service.Reassign(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// Suggestions godoc
// @Summary Suggested staff for a shift
// @Tags NightShifts
// @Produce json
// @Param id path string true "Night shift ID"
// @Param limit query int false "Maximum suggestions (default 10)"
// @Success 200 {object} response.Envelope
// @Router /night-shifts/{id}/suggestions [get]
func (h *NightShiftHandler) Suggestions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	suggestions, err := h.service.Suggestions(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, suggestions, nil)
}

// AutoAssign godoc
// @Summary Fill the open slots of a shift
// @Tags NightShifts
// @Produce json
// @Param id path string true "Night shift ID"
// @Success 200 {object} response.Envelope
// @Router /night-shifts/{id}/auto-assign [post]
func (h *NightShiftHandler) AutoAssign(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	result, err := h.service.AutoAssign(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// AutoAssignCourse godoc
// @Summary Fill the open slots of every upcoming shift of a course
// @Tags NightShifts
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/night-shifts/auto-assign [post]
func (h *NightShiftHandler) AutoAssignCourse(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	result, err := h.service.AutoAssignCourse(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// MyShifts godoc
// @Summary Night shifts of the current user
// @Tags NightShifts
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /me/night-shifts [get]
func (h *NightShiftHandler) MyShifts(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	shifts, err := h.service.MyShifts(c.Request.Context(), actor.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, shifts, nil)
}
