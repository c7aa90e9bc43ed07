package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sccms-api/internal/workflow"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
	"github.com/noah-isme/sccms-api/pkg/response"
)

// WorkflowHandler tells clients which transitions the caller may trigger.
type WorkflowHandler struct{}

// NewWorkflowHandler constructs the handler.
func NewWorkflowHandler() *WorkflowHandler {
	return &WorkflowHandler{}
}

// Next godoc
// @Summary Allowed next statuses
// @Description Statuses the caller's role may move an entity to from the given status, in table order
// @Tags Workflow
// @Produce json
// @Param entity path string true "course, application, report or nightShiftAssignment"
// @Param from query string true "Current status"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /workflows/{entity}/next [get]
func (h *WorkflowHandler) Next(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	entity, err := workflow.ParseEntity(c.Param("entity"))
	if err != nil {
		response.Error(c, err)
		return
	}
	from := c.Query("from")
	if !workflow.KnownStatus(entity, from) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown status "+from))
		return
	}
	response.JSON(c, http.StatusOK, gin.H{
		"entity": entity,
		"from":   from,
		"next":   workflow.AllowedNext(entity, actor.Role, from),
	}, nil)
}
