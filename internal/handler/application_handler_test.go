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

type fakeApplicationService struct {
	filter     models.ApplicationFilter
	bulk       dto.BulkStatusRequest
	bulkResult *dto.BulkStatusResult
	bulkErr    error
	courseID   string
	kind       models.ApplicationKind
}

func (f *fakeApplicationService) List(_ context.Context, filter models.ApplicationFilter) ([]models.Application, *models.Pagination, error) {
	f.filter = filter
	return []models.Application{}, &models.Pagination{Page: 1, PageSize: 20}, nil
}

func (f *fakeApplicationService) Get(_ context.Context, id string) (*models.Application, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
}

func (f *fakeApplicationService) Create(_ context.Context, _ service.Actor, req dto.CreateApplicationRequest) (*models.Application, error) {
	return &models.Application{ID: "app-1", CourseID: req.CourseID, Kind: req.Kind, Status: models.ApplicationStatusPending}, nil
}

func (f *fakeApplicationService) ChangeStatus(_ context.Context, _ service.Actor, id string, req dto.StatusChangeRequest) (*models.Application, error) {
	return &models.Application{ID: id, Status: models.ApplicationStatus(req.Status)}, nil
}

func (f *fakeApplicationService) BulkChangeStatus(_ context.Context, _ service.Actor, req dto.BulkStatusRequest) (*dto.BulkStatusResult, error) {
	f.bulk = req
	return f.bulkResult, f.bulkErr
}

func (f *fakeApplicationService) AutoApprove(_ context.Context, _ service.Actor, courseID string, req dto.AutoApproveRequest) (*dto.AutoApproveResult, error) {
	f.courseID, f.kind = courseID, req.Kind
	return &dto.AutoApproveResult{Capacity: 10}, nil
}

func TestApplicationHandlerListUsesCourseFromPath(t *testing.T) {
	svc := &fakeApplicationService{}
	h := NewApplicationHandler(svc)

	c, w := newGinContext(http.MethodGet, "/courses/course-1/applications?kind=STUDENT&status=Pending,Approved&search=ana", nil)
	c.Params = gin.Params{{Key: "id", Value: "course-1"}}
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "course-1", svc.filter.CourseID)
	assert.Equal(t, models.ApplicationKindStudent, svc.filter.Kind)
	assert.Equal(t, []models.ApplicationStatus{models.ApplicationStatusPending, models.ApplicationStatusApproved}, svc.filter.Statuses)
	assert.Equal(t, "ana", svc.filter.Search)
}

func TestApplicationHandlerGetNotFound(t *testing.T) {
	h := NewApplicationHandler(&fakeApplicationService{})

	c, w := newGinContext(http.MethodGet, "/applications/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	h.Get(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestApplicationHandlerBulkStatusSuccess(t *testing.T) {
	svc := &fakeApplicationService{bulkResult: &dto.BulkStatusResult{Updated: []string{"a1", "a2"}}}
	h := NewApplicationHandler(svc)

	c, w := newGinContext(http.MethodPost, "/applications/bulk-status", mustJSON(t, dto.BulkStatusRequest{IDs: []string{"a1", "a2"}, Status: "Approved"}))
	asUser(c, "secretary-1", models.RoleSecretary)
	h.BulkChangeStatus(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"a1", "a2"}, svc.bulk.IDs)
	env := decode(t, w)
	assert.Nil(t, env.Error)
	assert.JSONEq(t, `{"updated":["a1","a2"],"failed":0}`, string(env.Data))
}

func TestApplicationHandlerBulkStatusPartialFailure(t *testing.T) {
	svc := &fakeApplicationService{
		bulkResult: &dto.BulkStatusResult{Updated: []string{"a1"}, Failed: 1},
		bulkErr:    appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, "some applications could not be updated"), "a2: status transition not allowed"),
	}
	h := NewApplicationHandler(svc)

	c, w := newGinContext(http.MethodPost, "/applications/bulk-status", mustJSON(t, dto.BulkStatusRequest{IDs: []string{"a1", "a2"}, Status: "Approved"}))
	asUser(c, "secretary-1", models.RoleSecretary)
	h.BulkChangeStatus(c)

	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFLICT", env.Error.Code)
	assert.Equal(t, []string{"a2: status transition not allowed"}, env.Error.Details)
	assert.JSONEq(t, `{"updated":["a1"],"failed":1}`, string(env.Data))
}

func TestApplicationHandlerBulkStatusValidationError(t *testing.T) {
	svc := &fakeApplicationService{bulkErr: appErrors.Clone(appErrors.ErrValidation, "ids is a required field")}
	h := NewApplicationHandler(svc)

	c, w := newGinContext(http.MethodPost, "/applications/bulk-status", []byte(`{"status":"Approved"}`))
	asUser(c, "secretary-1", models.RoleSecretary)
	h.BulkChangeStatus(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, decode(t, w).Data)
}

func TestApplicationHandlerAutoApprove(t *testing.T) {
	svc := &fakeApplicationService{}
	h := NewApplicationHandler(svc)

	c, w := newGinContext(http.MethodPost, "/courses/course-1/applications/auto-approve", []byte(`{"kind":"VOLUNTEER"}`))
	c.Params = gin.Params{{Key: "id", Value: "course-1"}}
	asUser(c, "manager-1", models.RoleManager)
	h.AutoApprove(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "course-1", svc.courseID)
	assert.Equal(t, models.ApplicationKindVolunteer, svc.kind)
}
