package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
)

type teamRepoStub struct {
	teams   map[string]*models.Team
	deleted []string
}

func (s *teamRepoStub) Create(ctx context.Context, team *models.Team) error {
	team.ID = "team-new"
	copy := *team
	s.teams[team.ID] = &copy
	return nil
}

func (s *teamRepoStub) GetByID(ctx context.Context, id string) (*models.Team, error) {
	t, ok := s.teams[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *t
	return &copy, nil
}

func (s *teamRepoStub) ListByCourse(ctx context.Context, courseID string) ([]models.Team, error) {
	var out []models.Team
	for _, t := range s.teams {
		if t.CourseID == courseID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *teamRepoStub) Update(ctx context.Context, team *models.Team) error {
	copy := *team
	s.teams[team.ID] = &copy
	return nil
}

func (s *teamRepoStub) Delete(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	delete(s.teams, id)
	return nil
}

type groupRepoStub struct {
	groups map[string]*models.StudentGroup
}

func (s *groupRepoStub) Create(ctx context.Context, group *models.StudentGroup) error {
	group.ID = "group-new"
	copy := *group
	s.groups[group.ID] = &copy
	return nil
}

func (s *groupRepoStub) GetByID(ctx context.Context, id string) (*models.StudentGroup, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *g
	return &copy, nil
}

func (s *groupRepoStub) ListByCourse(ctx context.Context, courseID string) ([]models.StudentGroup, error) {
	var out []models.StudentGroup
	for _, g := range s.groups {
		if g.CourseID == courseID {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (s *groupRepoStub) Update(ctx context.Context, group *models.StudentGroup) error {
	copy := *group
	s.groups[group.ID] = &copy
	return nil
}

func (s *groupRepoStub) Delete(ctx context.Context, id string) error {
	delete(s.groups, id)
	return nil
}

type placementAppsStub struct {
	apps     map[string]*models.Application
	unplaced []models.Application
	filter   models.ApplicationFilter
}

func (s *placementAppsStub) GetByID(ctx context.Context, id string) (*models.Application, error) {
	a, ok := s.apps[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *a
	return &copy, nil
}

func (s *placementAppsStub) ListAll(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error) {
	s.filter = filter
	return s.unplaced, nil
}

func (s *placementAppsStub) SetGroup(ctx context.Context, id string, groupID *string, actorID string) error {
	a, ok := s.apps[id]
	if !ok {
		a = &models.Application{ID: id}
		s.apps[id] = a
	}
	a.GroupID = groupID
	return nil
}

func (s *placementAppsStub) SetTeam(ctx context.Context, id string, teamID *string, actorID string) error {
	a, ok := s.apps[id]
	if !ok {
		a = &models.Application{ID: id}
		s.apps[id] = a
	}
	a.TeamID = teamID
	return nil
}

type roomMap map[string]*models.Room

func (m roomMap) GetByID(ctx context.Context, id string) (*models.Room, error) {
	r, ok := m[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return r, nil
}

type placementFixture struct {
	svc    *PlacementService
	teams  *teamRepoStub
	groups *groupRepoStub
	apps   *placementAppsStub
	cache  *cacheStub
	audit  *auditRecorder
}

func newPlacementFixture(groups []models.StudentGroup, teams []models.Team, apps []models.Application) *placementFixture {
	f := &placementFixture{
		teams:  &teamRepoStub{teams: map[string]*models.Team{}},
		groups: &groupRepoStub{groups: map[string]*models.StudentGroup{}},
		apps:   &placementAppsStub{apps: map[string]*models.Application{}},
		cache:  &cacheStub{},
		audit:  &auditRecorder{},
	}
	for i := range groups {
		g := groups[i]
		f.groups.groups[g.ID] = &g
	}
	for i := range teams {
		t := teams[i]
		f.teams.teams[t.ID] = &t
	}
	for i := range apps {
		a := apps[i]
		f.apps.apps[a.ID] = &a
	}
	courses := newCourseRepoStub(
		models.Course{ID: "course-1", Status: models.CourseStatusRecruiting},
		models.Course{ID: "course-closed", Status: models.CourseStatusClosed},
	)
	rooms := roomMap{
		"room-1": {ID: "room-1", CourseID: "course-1"},
		"room-x": {ID: "room-x", CourseID: "course-2"},
	}
	f.svc = NewPlacementService(f.teams, f.groups, f.apps, courses, rooms, f.cache, f.audit, nil, nil)
	return f
}

func studentApp(id, gender string, status models.ApplicationStatus) models.Application {
	return models.Application{ID: id, CourseID: "course-1", Kind: models.ApplicationKindStudent, Status: status, ApplicantGender: gender}
}

func TestPlacementServiceCreateGroupChecksRoomCourse(t *testing.T) {
	f := newPlacementFixture(nil, nil, nil)

	_, err := f.svc.CreateGroup(context.Background(), managerActor, "course-1", dto.StudentGroupRequest{Name: "Boys A", Gender: "M", Capacity: 10, RoomID: ptr("room-x")})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	group, err := f.svc.CreateGroup(context.Background(), managerActor, "course-1", dto.StudentGroupRequest{Name: " Boys A ", Gender: "M", Capacity: 10, RoomID: ptr("room-1")})
	require.NoError(t, err)
	assert.Equal(t, "Boys A", group.Name)
	assert.Equal(t, "room-1", *group.RoomID)
	assert.Equal(t, []string{"course-1"}, f.cache.invalidated)
	assert.Equal(t, []string{models.AuditActionCreate}, f.audit.actions())
}

func TestPlacementServiceCreateTeamRequiresEditableCourse(t *testing.T) {
	f := newPlacementFixture(nil, nil, nil)

	_, err := f.svc.CreateTeam(context.Background(), managerActor, "course-closed", dto.TeamRequest{Name: "Kitchen"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestPlacementServiceDeleteTeamWithMembers(t *testing.T) {
	f := newPlacementFixture(nil, []models.Team{
		{ID: "team-1", CourseID: "course-1", Name: "Kitchen", MemberCount: 2},
		{ID: "team-2", CourseID: "course-1", Name: "Garden"},
	}, nil)

	err := f.svc.DeleteTeam(context.Background(), managerActor, "team-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	require.NoError(t, f.svc.DeleteTeam(context.Background(), managerActor, "team-2"))
	assert.Equal(t, []string{"team-2"}, f.teams.deleted)
}

func TestPlacementServiceAssignToGroup(t *testing.T) {
	groups := []models.StudentGroup{
		{ID: "g-m", CourseID: "course-1", Name: "Boys", Gender: "M", Capacity: 1},
		{ID: "g-full", CourseID: "course-1", Name: "Full", Gender: "M", Capacity: 1, MemberCount: 1},
	}
	apps := []models.Application{
		studentApp("a-m", "M", models.ApplicationStatusApproved),
		studentApp("a-f", "F", models.ApplicationStatusApproved),
		studentApp("a-pending", "M", models.ApplicationStatusPending),
		{ID: "a-vol", CourseID: "course-1", Kind: models.ApplicationKindVolunteer, Status: models.ApplicationStatusApproved},
	}
	f := newPlacementFixture(groups, nil, apps)
	ctx := context.Background()

	app, err := f.svc.AssignToGroup(ctx, managerActor, "g-m", "a-m")
	require.NoError(t, err)
	assert.Equal(t, "g-m", *app.GroupID)
	assert.Equal(t, "g-m", *f.apps.apps["a-m"].GroupID)

	_, err = f.svc.AssignToGroup(ctx, managerActor, "g-m", "a-f")
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = f.svc.AssignToGroup(ctx, managerActor, "g-full", "a-m")
	assert.Equal(t, appErrors.ErrCapacityReached.Code, appErrors.FromError(err).Code)

	_, err = f.svc.AssignToGroup(ctx, managerActor, "g-m", "a-pending")
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = f.svc.AssignToGroup(ctx, managerActor, "g-m", "a-vol")
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPlacementServiceUnassignFromGroup(t *testing.T) {
	placed := studentApp("a-1", "M", models.ApplicationStatusEnrolled)
	placed.GroupID = ptr("g-1")
	f := newPlacementFixture(nil, nil, []models.Application{placed})

	err := f.svc.UnassignFromGroup(context.Background(), managerActor, "g-other", "a-1")
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	require.NoError(t, f.svc.UnassignFromGroup(context.Background(), managerActor, "g-1", "a-1"))
	assert.Nil(t, f.apps.apps["a-1"].GroupID)
}

func TestPlacementServiceAutoAssignGroupsBalancesByGender(t *testing.T) {
	groups := []models.StudentGroup{
		{ID: "g-b", CourseID: "course-1", Name: "B Boys", Gender: "M", Capacity: 2},
		{ID: "g-a", CourseID: "course-1", Name: "A Boys", Gender: "M", Capacity: 2, MemberCount: 1},
		{ID: "g-f", CourseID: "course-1", Name: "Girls", Gender: "F", Capacity: 1},
	}
	f := newPlacementFixture(groups, nil, nil)
	base := time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)
	for i, id := range []string{"m1", "m2", "f1", "f2"} {
		gender := "M"
		if id[0] == 'f' {
			gender = "F"
		}
		app := studentApp(id, gender, models.ApplicationStatusApproved)
		app.AppliedAt = base.Add(time.Duration(i) * time.Minute)
		f.apps.unplaced = append(f.apps.unplaced, app)
	}

	result, err := f.svc.AutoAssignGroups(context.Background(), managerActor, "course-1")
	require.NoError(t, err)

	assert.True(t, f.apps.filter.Unplaced)
	assert.Equal(t, models.ApplicationKindStudent, f.apps.filter.Kind)
	assert.Equal(t, models.PlaceableStatuses, f.apps.filter.Statuses)

	assert.Equal(t, "g-b", result.Assigned["m1"])
	assert.Equal(t, "g-a", result.Assigned["m2"])
	assert.Equal(t, "g-f", result.Assigned["f1"])
	assert.Equal(t, []string{"f2"}, result.Unassigned)
	assert.Equal(t, []string{"course-1"}, f.cache.invalidated)
}

func TestPlacementServiceAutoAssignTeams(t *testing.T) {
	teams := []models.Team{
		{ID: "t-1", CourseID: "course-1", Name: "Kitchen", MemberCount: 1},
		{ID: "t-2", CourseID: "course-1", Name: "Garden"},
	}
	f := newPlacementFixture(nil, teams, nil)
	f.apps.unplaced = []models.Application{
		{ID: "v1", CourseID: "course-1", Kind: models.ApplicationKindVolunteer, Status: models.ApplicationStatusApproved},
		{ID: "v2", CourseID: "course-1", Kind: models.ApplicationKindVolunteer, Status: models.ApplicationStatusApproved},
		{ID: "v3", CourseID: "course-1", Kind: models.ApplicationKindVolunteer, Status: models.ApplicationStatusEnrolled},
	}

	result, err := f.svc.AutoAssignTeams(context.Background(), managerActor, "course-1")
	require.NoError(t, err)
	assert.Equal(t, "t-2", result.Assigned["v1"])
	assert.Equal(t, "t-2", result.Assigned["v2"])
	assert.Equal(t, "t-1", result.Assigned["v3"])
	assert.Empty(t, result.Unassigned)
}
