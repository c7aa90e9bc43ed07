package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
)

type courseRepoStub struct {
	courses map[string]*models.Course
	filter  models.CourseFilter
}

func newCourseRepoStub(courses ...models.Course) *courseRepoStub {
	stub := &courseRepoStub{courses: map[string]*models.Course{}}
	for i := range courses {
		c := courses[i]
		stub.courses[c.ID] = &c
	}
	return stub
}

func (s *courseRepoStub) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = "course-new"
	}
	copy := *course
	s.courses[course.ID] = &copy
	return nil
}

func (s *courseRepoStub) GetByID(ctx context.Context, id string) (*models.Course, error) {
	c, ok := s.courses[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *c
	return &copy, nil
}

func (s *courseRepoStub) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	s.filter = filter
	out := make([]models.Course, 0, len(s.courses))
	for _, c := range s.courses {
		out = append(out, *c)
	}
	return out, len(out), nil
}

func (s *courseRepoStub) Update(ctx context.Context, course *models.Course) error {
	if _, ok := s.courses[course.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *course
	s.courses[course.ID] = &copy
	return nil
}

func (s *courseRepoStub) UpdateStatus(ctx context.Context, id string, from, to models.CourseStatus, actorID string) error {
	c, ok := s.courses[id]
	if !ok || c.Status != from {
		return sql.ErrNoRows
	}
	c.Status = to
	return nil
}

type memoryCache struct {
	items   map[string][]byte
	deleted []string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

func (m *memoryCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.items[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *memoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.items[key] = raw
	return nil
}

func (m *memoryCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	delete(m.items, pattern)
	return nil
}

type dashboardStub struct {
	appCounts    []models.ApplicationStatusCount
	groups       []models.StudentGroup
	teams        []models.Team
	reportCounts []models.ReportStatusCount
	shifts       []models.NightShift
	calls        int
}

func (d *dashboardStub) CountByCourse(ctx context.Context, courseID string) ([]models.ApplicationStatusCount, error) {
	d.calls++
	return d.appCounts, nil
}

type dashGroups struct{ d *dashboardStub }

func (g dashGroups) ListByCourse(ctx context.Context, courseID string) ([]models.StudentGroup, error) {
	return g.d.groups, nil
}

type dashTeams struct{ d *dashboardStub }

func (t dashTeams) ListByCourse(ctx context.Context, courseID string) ([]models.Team, error) {
	return t.d.teams, nil
}

type dashReports struct{ d *dashboardStub }

func (r dashReports) CountByCourse(ctx context.Context, courseID string) ([]models.ReportStatusCount, error) {
	return r.d.reportCounts, nil
}

type dashShifts struct{ d *dashboardStub }

func (s dashShifts) List(ctx context.Context, filter models.NightShiftFilter) ([]models.NightShift, error) {
	return s.d.shifts, nil
}

func (d *dashboardStub) sources() DashboardSources {
	return DashboardSources{Applications: d, Groups: dashGroups{d}, Teams: dashTeams{d}, Reports: dashReports{d}, NightShifts: dashShifts{d}}
}

func mustDate(t *testing.T, raw string) models.Date {
	t.Helper()
	d, err := models.ParseDate(raw)
	require.NoError(t, err)
	return d
}

func validCourseRequest(t *testing.T) dto.CourseRequest {
	return dto.CourseRequest{
		Name:                "Summer Retreat",
		Location:            "Hill Camp",
		StudentApplyStart:   mustDate(t, "2026-05-01"),
		StudentApplyEnd:     mustDate(t, "2026-06-01"),
		VolunteerApplyStart: mustDate(t, "2026-05-01"),
		VolunteerApplyEnd:   mustDate(t, "2026-06-10"),
		StartDate:           mustDate(t, "2026-07-01"),
		EndDate:             mustDate(t, "2026-07-10"),
		StudentCapacity:     40,
	}
}

func newTestCourseService(repo *courseRepoStub, sources DashboardSources, cache *CacheService, audit *auditRecorder) *CourseService {
	return NewCourseService(repo, sources, cache, time.Minute, audit, NewMetricsService(), nil, zap.NewNop())
}

func TestCourseServiceCreateStartsNotStarted(t *testing.T) {
	repo := newCourseRepoStub()
	audit := &auditRecorder{}
	svc := newTestCourseService(repo, DashboardSources{}, nil, audit)

	course, err := svc.Create(context.Background(), managerActor, validCourseRequest(t))
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusNotStarted, course.Status)
	assert.Equal(t, "course-new", course.ID)
	assert.Equal(t, []string{models.AuditActionCreate}, audit.actions())
}

func TestCourseServiceCreateValidatesDates(t *testing.T) {
	svc := newTestCourseService(newCourseRepoStub(), DashboardSources{}, nil, &auditRecorder{})

	req := validCourseRequest(t)
	req.StudentApplyEnd = mustDate(t, "2026-04-01")
	req.StartDate = mustDate(t, "2026-06-05")
	req.EndDate = mustDate(t, "2026-06-01")

	_, err := svc.Create(context.Background(), managerActor, req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Len(t, appErr.Details, 3)

	req = validCourseRequest(t)
	req.EndDate = models.Date{}
	_, err = svc.Create(context.Background(), managerActor, req)
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Details, "end_date is a required field")
}

func TestCourseServiceUpdateRejectsClosedCourse(t *testing.T) {
	repo := newCourseRepoStub(models.Course{ID: "c1", Name: "Old", Status: models.CourseStatusClosed})
	svc := newTestCourseService(repo, DashboardSources{}, nil, &auditRecorder{})

	_, err := svc.Update(context.Background(), managerActor, "c1", validCourseRequest(t))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceChangeStatus(t *testing.T) {
	repo := newCourseRepoStub(models.Course{ID: "c1", Status: models.CourseStatusNotStarted})
	audit := &auditRecorder{}
	mem := newMemoryCache()
	cache := NewCacheService(mem, nil, time.Minute, zap.NewNop(), true)
	svc := newTestCourseService(repo, DashboardSources{}, cache, audit)

	course, err := svc.ChangeStatus(context.Background(), managerActor, "c1", dto.StatusChangeRequest{Status: "recruiting"})
	require.NoError(t, err)
	assert.Equal(t, models.CourseStatusRecruiting, course.Status)
	assert.Equal(t, []string{models.AuditActionTransition}, audit.actions())
	assert.Equal(t, []string{DashboardKey("c1")}, mem.deleted)

	_, err = svc.ChangeStatus(context.Background(), managerActor, "c1", dto.StatusChangeRequest{Status: "closed"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)

	_, err = svc.ChangeStatus(context.Background(), secretaryActor, "c1", dto.StatusChangeRequest{Status: "inProgress"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.ChangeStatus(context.Background(), managerActor, "c1", dto.StatusChangeRequest{Status: "finished"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceDeleteIsTerminal(t *testing.T) {
	repo := newCourseRepoStub(models.Course{ID: "c1", Status: models.CourseStatusInProgress})
	svc := newTestCourseService(repo, DashboardSources{}, nil, &auditRecorder{})

	require.NoError(t, svc.Delete(context.Background(), adminActor, "c1"))
	assert.Equal(t, models.CourseStatusDeleted, repo.courses["c1"].Status)

	err := svc.Delete(context.Background(), adminActor, "c1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestCourseServiceDashboardUsesCache(t *testing.T) {
	repo := newCourseRepoStub(models.Course{ID: "c1", Name: "Retreat", Status: models.CourseStatusInProgress})
	stub := &dashboardStub{
		appCounts: []models.ApplicationStatusCount{{Kind: models.ApplicationKindStudent, Status: models.ApplicationStatusApproved, Count: 3}},
		shifts: []models.NightShift{
			{ID: "s1", RequiredStaff: 2, ActiveAssigned: 2},
			{ID: "s2", RequiredStaff: 2, ActiveAssigned: 1},
			{ID: "s3", RequiredStaff: 1, ActiveAssigned: 0},
		},
	}
	cache := NewCacheService(newMemoryCache(), NewMetricsService(), time.Minute, zap.NewNop(), true)
	svc := newTestCourseService(repo, stub.sources(), cache, nil)

	dash, hit, err := svc.Dashboard(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, models.StaffingSummary{Full: 1, Partial: 1, Empty: 1}, dash.NightShifts)
	assert.Equal(t, 3, dash.Applications[0].Count)

	dash, hit, err = svc.Dashboard(context.Background(), "c1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, "Retreat", dash.CourseName)
	assert.Equal(t, 1, stub.calls)
}

func TestCourseServiceDashboardWithoutCache(t *testing.T) {
	repo := newCourseRepoStub(models.Course{ID: "c1", Status: models.CourseStatusRecruiting})
	stub := &dashboardStub{}
	svc := newTestCourseService(repo, stub.sources(), nil, nil)

	_, hit, err := svc.Dashboard(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, hit)
	_, hit, err = svc.Dashboard(context.Background(), "c1")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, 2, stub.calls)

	_, _, err = svc.Dashboard(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
