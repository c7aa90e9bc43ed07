package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/service"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
)

type fakeCourseService struct {
	filter    models.CourseFilter
	actor     service.Actor
	created   dto.CourseRequest
	status    dto.StatusChangeRequest
	dashboard *models.CourseDashboard
	cacheHit  bool
	err       error
}

func (f *fakeCourseService) List(_ context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	f.filter = filter
	return []models.Course{{ID: "course-1"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, f.err
}

func (f *fakeCourseService) Get(_ context.Context, id string) (*models.Course, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Course{ID: id}, nil
}

func (f *fakeCourseService) Create(_ context.Context, actor service.Actor, req dto.CourseRequest) (*models.Course, error) {
	f.actor, f.created = actor, req
	return &models.Course{ID: "course-1", Name: req.Name}, f.err
}

func (f *fakeCourseService) Update(_ context.Context, actor service.Actor, id string, req dto.CourseRequest) (*models.Course, error) {
	return &models.Course{ID: id}, f.err
}

func (f *fakeCourseService) ChangeStatus(_ context.Context, actor service.Actor, id string, req dto.StatusChangeRequest) (*models.Course, error) {
	f.actor, f.status = actor, req
	if f.err != nil {
		return nil, f.err
	}
	return &models.Course{ID: id, Status: models.CourseStatus(req.Status)}, nil
}

func (f *fakeCourseService) Delete(_ context.Context, actor service.Actor, id string) error {
	f.actor = actor
	return f.err
}

func (f *fakeCourseService) Dashboard(context.Context, string) (*models.CourseDashboard, bool, error) {
	return f.dashboard, f.cacheHit, f.err
}

func TestCourseHandlerListParsesFilter(t *testing.T) {
	svc := &fakeCourseService{}
	h := NewCourseHandler(svc)
	c, w := newGinContext(http.MethodGet, "/courses?status=recruiting,inProgress&search=lake&page=2&page_size=5", nil)

	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []models.CourseStatus{models.CourseStatusRecruiting, models.CourseStatusInProgress}, svc.filter.Statuses)
	assert.Equal(t, "lake", svc.filter.Search)
	assert.Equal(t, 2, svc.filter.Page)
	assert.Equal(t, 5, svc.filter.PageSize)
}

func TestCourseHandlerCreate(t *testing.T) {
	svc := &fakeCourseService{}
	h := NewCourseHandler(svc)

	c, w := newGinContext(http.MethodPost, "/courses", []byte(`{"name":"Summer Camp","student_capacity":30}`))
	asUser(c, "manager-1", models.RoleManager)
	h.Create(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "manager-1", svc.actor.ID)
	assert.Equal(t, models.RoleManager, svc.actor.Role)
	assert.Equal(t, 30, svc.created.StudentCapacity)
}

func TestCourseHandlerCreateRejectsBadPayload(t *testing.T) {
	h := NewCourseHandler(&fakeCourseService{})

	c, w := newGinContext(http.MethodPost, "/courses", []byte(`{"name":`))
	asUser(c, "manager-1", models.RoleManager)
	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, appErrors.ErrValidation.Code, decode(t, w).Error.Code)
}

func TestCourseHandlerCreateRequiresUser(t *testing.T) {
	h := NewCourseHandler(&fakeCourseService{})

	c, w := newGinContext(http.MethodPost, "/courses", []byte(`{"name":"x"}`))
	h.Create(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCourseHandlerChangeStatusMapsErrors(t *testing.T) {
	svc := &fakeCourseService{err: appErrors.ErrInvalidTransition}
	h := NewCourseHandler(svc)

	c, w := newGinContext(http.MethodPatch, "/courses/course-1/status", []byte(`{"status":"closed"}`))
	c.Params = gin.Params{{Key: "id", Value: "course-1"}}
	asUser(c, "manager-1", models.RoleManager)
	h.ChangeStatus(c)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "closed", svc.status.Status)
	assert.Equal(t, "INVALID_TRANSITION", decode(t, w).Error.Code)
}

func TestCourseHandlerDashboardCarriesCacheHit(t *testing.T) {
	h := NewCourseHandler(&fakeCourseService{
		dashboard: &models.CourseDashboard{CourseID: "course-1"},
		cacheHit:  true,
	})

	c, w := newGinContext(http.MethodGet, "/courses/course-1/dashboard", nil)
	c.Params = gin.Params{{Key: "id", Value: "course-1"}}
	h.Dashboard(c)

	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	assert.Equal(t, true, env.Meta["cache_hit"])
	assert.Contains(t, env.Meta, "processing_time_ms")
	assert.Contains(t, string(env.Data), `"course_id":"course-1"`)
}

func TestCourseHandlerDelete(t *testing.T) {
	svc := &fakeCourseService{}
	h := NewCourseHandler(svc)

	c, w := newGinContext(http.MethodDelete, "/courses/course-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "course-1"}}
	asUser(c, "admin-1", models.RoleAdmin)
	h.Delete(c)

	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
	assert.Empty(t, w.Body.String())
	assert.Equal(t, "admin-1", svc.actor.ID)
}
