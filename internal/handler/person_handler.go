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

type personService interface {
	List(ctx context.Context, filter models.PersonFilter) ([]models.Person, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Person, error)
	Create(ctx context.Context, actor service.Actor, req dto.PersonRequest) (*models.Person, error)
	Update(ctx context.Context, actor service.Actor, id string, req dto.PersonRequest) (*models.Person, error)
	Delete(ctx context.Context, actor service.Actor, id string) error
}

// PersonHandler serves the student and the volunteer registries. One
// instance is mounted per registry.
type PersonHandler struct {
	service personService
}

// NewPersonHandler constructs the handler.
func NewPersonHandler(svc personService) *PersonHandler {
	return &PersonHandler{service: svc}
}

// List godoc
// @Summary List students or volunteers
// @Tags People
// @Produce json
// @Param search query string false "Search on name, email and phone"
// @Param gender query string false "M or F"
// @Param active query bool false "Active filter"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /students [get]
// @Router /volunteers [get]
func (h *PersonHandler) List(c *gin.Context) {
	var filter models.PersonFilter
	filter.Page, filter.PageSize = pageParams(c)
	filter.Search = c.Query("search")
	filter.Gender = c.Query("gender")
	filter.Active = boolQuery(c, "active")

	people, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, people, pagination)
}

// Get godoc
// @Summary Get student or volunteer
// @Tags People
// @Produce json
// @Param id path string true "Person ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [get]
// @Router /volunteers/{id} [get]
func (h *PersonHandler) Get(c *gin.Context) {
	person, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, person, nil)
}

// Create godoc
// @Summary Register student or volunteer
// @Tags People
// @Accept json
// @Produce json
// @Param payload body dto.PersonRequest true "Person payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /students [post]
// @Router /volunteers [post]
func (h *PersonHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.PersonRequest
	if !bindJSON(c, &req) {
		return
	}
	person, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, person)
}

// Update godoc
// @Summary Update student or volunteer
// @Tags People
// @Accept json
// @Produce json
// @Param id path string true "Person ID"
// @Param payload body dto.PersonRequest true "Person payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /students/{id} [put]
// @Router /volunteers/{id} [put]
func (h *PersonHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req dto.PersonRequest
	if !bindJSON(c, &req) {
		return
	}
	person, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, person, nil)
}

// Delete godoc
// @Summary Deactivate student or volunteer
// @Tags People
// @Param id path string true "Person ID"
// @Success 204
// @Router /students/{id} [delete]
// @Router /volunteers/{id} [delete]
func (h *PersonHandler) Delete(c *gin.Context) {
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
