package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/service"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
	"github.com/noah-isme/sccms-api/pkg/response"
)

type placementService interface {
	ListTeams(ctx context.Context, courseID string) ([]models.Team, error)
	GetTeam(ctx context.Context, id string) (*models.Team, error)
	CreateTeam(ctx context.Context, actor service.Actor, courseID string, req dto.TeamRequest) (*models.Team, error)
	UpdateTeam(ctx context.Context, actor service.Actor, id string, req dto.TeamRequest) (*models.Team, error)
	DeleteTeam(ctx context.Context, actor service.Actor, id string) error
	ListGroups(ctx context.Context, courseID string) ([]models.StudentGroup, error)
	GetGroup(ctx context.Context, id string) (*models.StudentGroup, error)
	CreateGroup(ctx context.Context, actor service.Actor, courseID string, req dto.StudentGroupRequest) (*models.StudentGroup, error)
	UpdateGroup(ctx context.Context, actor service.Actor, id string, req dto.StudentGroupRequest) (*models.StudentGroup, error)
	DeleteGroup(ctx context.Context, actor service.Actor, id string) error
	AssignToGroup(ctx context.Context, actor service.Actor, groupID, applicationID string) (*models.Application, error)
	UnassignFromGroup(ctx context.Context, actor service.Actor, groupID, applicationID string) error
	AssignToTeam(ctx context.Context, actor service.Actor, teamID, applicationID string) (*models.Application, error)
	UnassignFromTeam(ctx context.Context, actor service.Actor, teamID, applicationID string) error
	AutoAssignGroups(ctx context.Context, actor service.Actor, courseID string) (*dto.AutoAssignResult, error)
	AutoAssignTeams(ctx context.Context, actor service.Actor, courseID string) (*dto.AutoAssignResult, error)
}

// PlacementHandler exposes volunteer team and student group endpoints.
type PlacementHandler struct {
	service placementService
}

// NewPlacementHandler constructs the handler.
func NewPlacementHandler(svc placementService) *PlacementHandler {
	return &PlacementHandler{service: svc}
}

// ListTeams godoc
// @Summary List volunteer teams of a course
// @Tags Placement
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/teams [get]
func (h *PlacementHandler) ListTeams(c *gin.Context) {
	teams, err := h.service.ListTeams(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teams, nil)
}

// GetTeam godoc
// @Summary Get team
// @Tags Placement
// @Produce json
// @Param id path string true "Team ID"
// @Success 200 {object} response.Envelope
// @Router /teams/{id} [get]
func (h *PlacementHandler) GetTeam(c *gin.Context) {
	team, err := h.service.GetTeam(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, team, nil)
}

// CreateTeam godoc
// @Summary Create team
// @Tags Placement
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.TeamRequest true "Team payload"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/teams [post]
func (h *PlacementHandler) CreateTeam(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.TeamRequest
	if !bindJSON(c, &req) {
		return
	}
	team, err := h.service.CreateTeam(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, team)
}

// UpdateTeam godoc
// @Summary Update team
// @Tags Placement
// @Accept json
// @Produce json
// @Param id path string true "Team ID"
// @Param payload body dto.TeamRequest true "Team payload"
// @Success 200 {object} response.Envelope
// @Router /teams/{id} [put]
func (h *PlacementHandler) UpdateTeam(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.TeamRequest
	if !bindJSON(c, &req) {
		return
	}
	team, err := h.service.UpdateTeam(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, team, nil)
}

// DeleteTeam godoc
// @Summary Delete team
// @Description Teams with members cannot be deleted
// @Tags Placement
// @Param id path string true "Team ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /teams/{id} [delete]
func (h *PlacementHandler) DeleteTeam(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if err := h.service.DeleteTeam(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListGroups godoc
// @Summary List student groups of a course
// @Tags Placement
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/groups [get]
func (h *PlacementHandler) ListGroups(c *gin.Context) {
	groups, err := h.service.ListGroups(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, groups, nil)
}

// GetGroup godoc
// @Summary Get student group
// @Tags Placement
// @Produce json
// @Param id path string true "Group ID"
// @Success 200 {object} response.Envelope
// @Router /groups/{id} [get]
func (h *PlacementHandler) GetGroup(c *gin.Context) {
	group, err := h.service.GetGroup(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// CreateGroup godoc
// @Summary Create student group
// @Tags Placement
// @Accept json
// @Produce json
// @Param id path string true "Course ID"
// @Param payload body dto.StudentGroupRequest true "Group payload"
// @Success 201 {object} response.Envelope
// @Router /courses/{id}/groups [post]
func (h *PlacementHandler) CreateGroup(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.StudentGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	group, err := h.service.CreateGroup(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, group)
}

// UpdateGroup godoc
// @Summary Update student group
// @Tags Placement
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body dto.StudentGroupRequest true "Group payload"
// @Success 200 {object} response.Envelope
// @Router /groups/{id} [put]
func (h *PlacementHandler) UpdateGroup(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.StudentGroupRequest
	if !bindJSON(c, &req) {
		return
	}
	group, err := h.service.UpdateGroup(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, group, nil)
}

// DeleteGroup godoc
// @Summary Delete student group
// @Description Groups with members cannot be deleted
// @Tags Placement
// @Param id path string true "Group ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /groups/{id} [delete]
func (h *PlacementHandler) DeleteGroup(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if err := h.service.DeleteGroup(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AssignToGroup godoc
// @Summary Place a student application in a group
// @Tags Placement
// @Accept json
// @Produce json
// @Param id path string true "Group ID"
// @Param payload body dto.AssignApplicationRequest true "Application"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /groups/{id}/members [post]
func (h *PlacementHandler) AssignToGroup(c *gin.Context) {
	h.assign(c, h.service.AssignToGroup)
}

// AssignToTeam godoc
// @Summary Place a volunteer application in a team
// @Tags Placement
// @Accept json
// @Produce json
// @Param id path string true "Team ID"
// @Param payload body dto.AssignApplicationRequest true "Application"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teams/{id}/members [post]
func (h *PlacementHandler) AssignToTeam(c *gin.Context) {
	h.assign(c, h.service.AssignToTeam)
}

func (h *PlacementHandler) assign(c *gin.Context, fn func(context.Context, service.Actor, string, string) (*models.Application, error)) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.AssignApplicationRequest
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.ApplicationID) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "application_id is required"))
		return
	}
	app, err := fn(c.Request.Context(), actor, c.Param("id"), req.ApplicationID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, app, nil)
}

// UnassignFromGroup godoc
// @Summary Remove an application from a group
// @Tags Placement
// @Param id path string true "Group ID"
// @Param applicationId path string true "Application ID"
// @Success 204
// @Router /groups/{id}/members/{applicationId} [delete]
func (h *PlacementHandler) UnassignFromGroup(c *gin.Context) {
	h.unassign(c, h.service.UnassignFromGroup)
}

// UnassignFromTeam godoc
// @Summary Remove an application from a team
// @Tags Placement
// @Param id path string true "Team ID"
// @Param applicationId path string true "Application ID"
// @Success 204
// @Router /teams/{id}/members/{applicationId} [delete]
func (h *PlacementHandler) UnassignFromTeam(c *gin.Context) {
	h.unassign(c, h.service.UnassignFromTeam)
}

func (h *PlacementHandler) unassign(c *gin.Context, fn func(context.Context, service.Actor, string, string) error) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if err := fn(c.Request.Context(), actor, c.Param("id"), c.Param("applicationId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// AutoAssignGroups godoc
// @Summary Place unplaced students in the least loaded compatible group
// @Tags Placement
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/groups/auto-assign [post]
func (h *PlacementHandler) AutoAssignGroups(c *gin.Context) {
	h.autoAssign(c, h.service.AutoAssignGroups)
}

// AutoAssignTeams godoc
// @Summary Place unplaced volunteers in the least loaded team
// @Tags Placement
// @Produce json
// @Param id path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{id}/teams/auto-assign [post]
func (h *PlacementHandler) AutoAssignTeams(c *gin.Context) {
	h.autoAssign(c, h.service.AutoAssignTeams)
}

func (h *PlacementHandler) autoAssign(c *gin.Context, fn func(context.Context, service.Actor, string) (*dto.AutoAssignResult, error)) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	result, err := fn(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
