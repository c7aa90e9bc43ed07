package service

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
	"github.com/noah-isme/sccms-api/pkg/validation"
)

type teamRepository interface {
	Create(ctx context.Context, team *models.Team) error
	GetByID(ctx context.Context, id string) (*models.Team, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Team, error)
	Update(ctx context.Context, team *models.Team) error
	Delete(ctx context.Context, id string) error
}

type groupRepository interface {
	Create(ctx context.Context, group *models.StudentGroup) error
	GetByID(ctx context.Context, id string) (*models.StudentGroup, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.StudentGroup, error)
	Update(ctx context.Context, group *models.StudentGroup) error
	Delete(ctx context.Context, id string) error
}

type placementApplications interface {
	GetByID(ctx context.Context, id string) (*models.Application, error)
	ListAll(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, error)
	SetGroup(ctx context.Context, id string, groupID *string, actorID string) error
	SetTeam(ctx context.Context, id string, teamID *string, actorID string) error
}

type roomLookup interface {
	GetByID(ctx context.Context, id string) (*models.Room, error)
}

// PlacementService manages volunteer teams and student groups and the
// placement of approved applicants into them.
type PlacementService struct {
	teams     teamRepository
	groups    groupRepository
	apps      placementApplications
	courses   courseReader
	rooms     roomLookup
	cache     courseCache
	recorder  recorder
	validator *validation.Validator
	logger    *zap.Logger
}

// NewPlacementService constructs a PlacementService.
func NewPlacementService(teams teamRepository, groups groupRepository, apps placementApplications, courses courseReader, rooms roomLookup, cache courseCache, audit auditWriter, validate *validation.Validator, logger *zap.Logger) *PlacementService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	if cache == nil {
		cache = (*CacheService)(nil)
	}
	return &PlacementService{
		teams:     teams,
		groups:    groups,
		apps:      apps,
		courses:   courses,
		rooms:     rooms,
		cache:     cache,
		recorder:  newRecorder(audit, nil, logger),
		validator: validate,
		logger:    logger,
	}
}

func (s *PlacementService) editableCourse(ctx context.Context, courseID string) error {
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return notFoundOr(err, "course")
	}
	if !course.Editable() {
		return appErrors.Clone(appErrors.ErrConflict, "course is "+string(course.Status))
	}
	return nil
}

// ListTeams returns the teams of a course ordered by name.
func (s *PlacementService) ListTeams(ctx context.Context, courseID string) ([]models.Team, error) {
	teams, err := s.teams.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list teams")
	}
	return teams, nil
}

// GetTeam returns one team.
func (s *PlacementService) GetTeam(ctx context.Context, id string) (*models.Team, error) {
	team, err := s.teams.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "team")
	}
	return team, nil
}

// CreateTeam adds a team to a course.
func (s *PlacementService) CreateTeam(ctx context.Context, actor Actor, courseID string, req dto.TeamRequest) (*models.Team, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if err := s.editableCourse(ctx, courseID); err != nil {
		return nil, err
	}
	team := &models.Team{CourseID: courseID, Name: strings.TrimSpace(req.Name), Description: req.Description}
	team.Stamp(actor.ID, utcNow())
	if err := s.teams.Create(ctx, team); err != nil {
		return nil, appErrors.Internal(err, "failed to create team")
	}
	s.recorder.log(ctx, actor, models.AuditActionCreate, "team", team.ID, nil, team)
	s.cache.InvalidateCourse(ctx, courseID)
	return team, nil
}

// UpdateTeam renames or describes a team.
func (s *PlacementService) UpdateTeam(ctx context.Context, actor Actor, id string, req dto.TeamRequest) (*models.Team, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	team, err := s.GetTeam(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *team
	team.Name = strings.TrimSpace(req.Name)
	team.Description = req.Description
	team.Stamp(actor.ID, utcNow())
	if err := s.teams.Update(ctx, team); err != nil {
		return nil, notFoundOr(err, "team")
	}
	s.recorder.log(ctx, actor, models.AuditActionUpdate, "team", team.ID, before, team)
	s.cache.InvalidateCourse(ctx, team.CourseID)
	return team, nil
}

// DeleteTeam removes an empty team.
func (s *PlacementService) DeleteTeam(ctx context.Context, actor Actor, id string) error {
	team, err := s.GetTeam(ctx, id)
	if err != nil {
		return err
	}
	if team.MemberCount > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "team still has members")
	}
	if err := s.teams.Delete(ctx, id); err != nil {
		return notFoundOr(err, "team")
	}
	s.recorder.log(ctx, actor, models.AuditActionDelete, "team", id, team, nil)
	s.cache.InvalidateCourse(ctx, team.CourseID)
	return nil
}

// ListGroups returns the student groups of a course ordered by name.
func (s *PlacementService) ListGroups(ctx context.Context, courseID string) ([]models.StudentGroup, error) {
	groups, err := s.groups.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list groups")
	}
	return groups, nil
}

// GetGroup returns one student group.
func (s *PlacementService) GetGroup(ctx context.Context, id string) (*models.StudentGroup, error) {
	group, err := s.groups.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "group")
	}
	return group, nil
}

// CreateGroup adds a student group to a course.
func (s *PlacementService) CreateGroup(ctx context.Context, actor Actor, courseID string, req dto.StudentGroupRequest) (*models.StudentGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if err := s.editableCourse(ctx, courseID); err != nil {
		return nil, err
	}
	if err := s.checkRoom(ctx, courseID, req.RoomID); err != nil {
		return nil, err
	}
	group := &models.StudentGroup{CourseID: courseID}
	applyGroupRequest(group, req)
	group.Stamp(actor.ID, utcNow())
	if err := s.groups.Create(ctx, group); err != nil {
		return nil, appErrors.Internal(err, "failed to create group")
	}
	s.recorder.log(ctx, actor, models.AuditActionCreate, "group", group.ID, nil, group)
	s.cache.InvalidateCourse(ctx, courseID)
	return group, nil
}

// UpdateGroup changes a student group. Capacity may not drop below the
// current member count.
func (s *PlacementService) UpdateGroup(ctx context.Context, actor Actor, id string, req dto.StudentGroupRequest) (*models.StudentGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	group, err := s.GetGroup(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.Capacity > 0 && req.Capacity < group.MemberCount {
		return nil, appErrors.Clone(appErrors.ErrConflict, "capacity is below the current member count")
	}
	if err := s.checkRoom(ctx, group.CourseID, req.RoomID); err != nil {
		return nil, err
	}
	before := *group
	applyGroupRequest(group, req)
	group.Stamp(actor.ID, utcNow())
	if err := s.groups.Update(ctx, group); err != nil {
		return nil, notFoundOr(err, "group")
	}
	s.recorder.log(ctx, actor, models.AuditActionUpdate, "group", group.ID, before, group)
	s.cache.InvalidateCourse(ctx, group.CourseID)
	return group, nil
}

// DeleteGroup removes an empty student group.
func (s *PlacementService) DeleteGroup(ctx context.Context, actor Actor, id string) error {
	group, err := s.GetGroup(ctx, id)
	if err != nil {
		return err
	}
	if group.MemberCount > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "group still has members")
	}
	if err := s.groups.Delete(ctx, id); err != nil {
		return notFoundOr(err, "group")
	}
	s.recorder.log(ctx, actor, models.AuditActionDelete, "group", id, group, nil)
	s.cache.InvalidateCourse(ctx, group.CourseID)
	return nil
}

// AssignToGroup places an approved or enrolled student application in a
// group of the same course whose gender and capacity allow it.
func (s *PlacementService) AssignToGroup(ctx context.Context, actor Actor, groupID, applicationID string) (*models.Application, error) {
	group, err := s.GetGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	app, err := s.placeableApplication(ctx, applicationID, models.ApplicationKindStudent, group.CourseID)
	if err != nil {
		return nil, err
	}
	if app.GroupID != nil && *app.GroupID == group.ID {
		return app, nil
	}
	if group.Gender != "" && group.Gender != app.ApplicantGender {
		return nil, appErrors.Clone(appErrors.ErrConflict, "group gender does not match the student")
	}
	if !group.Accepts(app.ApplicantGender) {
		return nil, appErrors.Clone(appErrors.ErrCapacityReached, "group is full")
	}
	if err := s.apps.SetGroup(ctx, app.ID, &group.ID, actor.ID); err != nil {
		return nil, notFoundOr(err, "application")
	}
	previous := app.GroupID
	app.GroupID = &group.ID
	s.recorder.log(ctx, actor, models.AuditActionAssign, "application", app.ID,
		map[string]interface{}{"group_id": previous}, map[string]interface{}{"group_id": group.ID})
	s.cache.InvalidateCourse(ctx, group.CourseID)
	return app, nil
}

// UnassignFromGroup removes an application from its group.
func (s *PlacementService) UnassignFromGroup(ctx context.Context, actor Actor, groupID, applicationID string) error {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return notFoundOr(err, "application")
	}
	if app.GroupID == nil || *app.GroupID != groupID {
		return appErrors.Clone(appErrors.ErrNotFound, "application is not a member of the group")
	}
	if err := s.apps.SetGroup(ctx, app.ID, nil, actor.ID); err != nil {
		return notFoundOr(err, "application")
	}
	s.recorder.log(ctx, actor, models.AuditActionAssign, "application", app.ID,
		map[string]interface{}{"group_id": groupID}, map[string]interface{}{"group_id": nil})
	s.cache.InvalidateCourse(ctx, app.CourseID)
	return nil
}

// AssignToTeam places an approved or enrolled volunteer application in a
// team of the same course.
func (s *PlacementService) AssignToTeam(ctx context.Context, actor Actor, teamID, applicationID string) (*models.Application, error) {
	team, err := s.GetTeam(ctx, teamID)
	if err != nil {
		return nil, err
	}
	app, err := s.placeableApplication(ctx, applicationID, models.ApplicationKindVolunteer, team.CourseID)
	if err != nil {
		return nil, err
	}
	if err := s.apps.SetTeam(ctx, app.ID, &team.ID, actor.ID); err != nil {
		return nil, notFoundOr(err, "application")
	}
	previous := app.TeamID
	app.TeamID = &team.ID
	s.recorder.log(ctx, actor, models.AuditActionAssign, "application", app.ID,
		map[string]interface{}{"team_id": previous}, map[string]interface{}{"team_id": team.ID})
	s.cache.InvalidateCourse(ctx, team.CourseID)
	return app, nil
}

// UnassignFromTeam removes an application from its team.
func (s *PlacementService) UnassignFromTeam(ctx context.Context, actor Actor, teamID, applicationID string) error {
	app, err := s.apps.GetByID(ctx, applicationID)
	if err != nil {
		return notFoundOr(err, "application")
	}
	if app.TeamID == nil || *app.TeamID != teamID {
		return appErrors.Clone(appErrors.ErrNotFound, "application is not a member of the team")
	}
	if err := s.apps.SetTeam(ctx, app.ID, nil, actor.ID); err != nil {
		return notFoundOr(err, "application")
	}
	s.recorder.log(ctx, actor, models.AuditActionAssign, "application", app.ID,
		map[string]interface{}{"team_id": teamID}, map[string]interface{}{"team_id": nil})
	s.cache.InvalidateCourse(ctx, app.CourseID)
	return nil
}

// AutoAssignGroups places every unplaced approved or enrolled student in the
// least loaded compatible group, ties going to the group whose name sorts
// first. Students that fit nowhere are reported as unassigned.
func (s *PlacementService) AutoAssignGroups(ctx context.Context, actor Actor, courseID string) (*dto.AutoAssignResult, error) {
	if err := s.editableCourse(ctx, courseID); err != nil {
		return nil, err
	}
	groups, err := s.ListGroups(ctx, courseID)
	if err != nil {
		return nil, err
	}
	apps, err := s.unplaced(ctx, courseID, models.ApplicationKindStudent)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })

	result := &dto.AutoAssignResult{Assigned: map[string]string{}, Unassigned: []string{}}
	for _, app := range apps {
		best := -1
		for i := range groups {
			if !groups[i].Accepts(app.ApplicantGender) {
				continue
			}
			if best == -1 || groups[i].MemberCount < groups[best].MemberCount {
				best = i
			}
		}
		if best == -1 {
			result.Unassigned = append(result.Unassigned, app.ID)
			continue
		}
		groupID := groups[best].ID
		if err := s.apps.SetGroup(ctx, app.ID, &groupID, actor.ID); err != nil {
			return nil, appErrors.Internal(err, "failed to place application "+app.ID)
		}
		groups[best].MemberCount++
		result.Assigned[app.ID] = groupID
	}
	s.finishAutoAssign(ctx, actor, courseID, "group", result)
	return result, nil
}

// AutoAssignTeams spreads unplaced approved or enrolled volunteers over the
// course teams, least loaded first.
func (s *PlacementService) AutoAssignTeams(ctx context.Context, actor Actor, courseID string) (*dto.AutoAssignResult, error) {
	if err := s.editableCourse(ctx, courseID); err != nil {
		return nil, err
	}
	teams, err := s.ListTeams(ctx, courseID)
	if err != nil {
		return nil, err
	}
	apps, err := s.unplaced(ctx, courseID, models.ApplicationKindVolunteer)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })

	result := &dto.AutoAssignResult{Assigned: map[string]string{}, Unassigned: []string{}}
	for _, app := range apps {
		if len(teams) == 0 {
			result.Unassigned = append(result.Unassigned, app.ID)
			continue
		}
		best := 0
		for i := 1; i < len(teams); i++ {
			if teams[i].MemberCount < teams[best].MemberCount {
				best = i
			}
		}
		teamID := teams[best].ID
		if err := s.apps.SetTeam(ctx, app.ID, &teamID, actor.ID); err != nil {
			return nil, appErrors.Internal(err, "failed to place application "+app.ID)
		}
		teams[best].MemberCount++
		result.Assigned[app.ID] = teamID
	}
	s.finishAutoAssign(ctx, actor, courseID, "team", result)
	return result, nil
}

func (s *PlacementService) finishAutoAssign(ctx context.Context, actor Actor, courseID, target string, result *dto.AutoAssignResult) {
	if len(result.Assigned) > 0 {
		s.recorder.log(ctx, actor, models.AuditActionAssign, target, courseID, nil, map[string]interface{}{
			"auto": true, "assigned": len(result.Assigned), "unassigned": len(result.Unassigned),
		})
		s.cache.InvalidateCourse(ctx, courseID)
	}
	s.logger.Info("auto-assign finished",
		zap.String("course_id", courseID), zap.String("target", target),
		zap.Int("assigned", len(result.Assigned)), zap.Int("unassigned", len(result.Unassigned)))
}

func (s *PlacementService) unplaced(ctx context.Context, courseID string, kind models.ApplicationKind) ([]models.Application, error) {
	apps, err := s.apps.ListAll(ctx, models.ApplicationFilter{
		CourseID: courseID,
		Kind:     kind,
		Statuses: models.PlaceableStatuses,
		Unplaced: true,
	})
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list unplaced applications")
	}
	sort.SliceStable(apps, func(i, j int) bool { return apps[i].AppliedAt.Before(apps[j].AppliedAt) })
	return apps, nil
}

func (s *PlacementService) placeableApplication(ctx context.Context, id string, kind models.ApplicationKind, courseID string) (*models.Application, error) {
	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "application")
	}
	if app.Kind != kind {
		return nil, appErrors.WithDetails(appErrors.Clone(appErrors.ErrValidation, "invalid application"), "application must be a "+strings.ToLower(string(kind))+" application")
	}
	if app.CourseID != courseID {
		return nil, appErrors.Clone(appErrors.ErrConflict, "application belongs to another course")
	}
	if !app.Status.Placeable() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "only Approved or Enrolled applications can be placed")
	}
	return app, nil
}

func (s *PlacementService) checkRoom(ctx context.Context, courseID string, roomID *string) error {
	if roomID == nil || *roomID == "" {
		return nil
	}
	room, err := s.rooms.GetByID(ctx, *roomID)
	if err != nil {
		return notFoundOr(err, "room")
	}
	if room.CourseID != courseID {
		return appErrors.Clone(appErrors.ErrConflict, "room belongs to another course")
	}
	return nil
}

func applyGroupRequest(group *models.StudentGroup, req dto.StudentGroupRequest) {
	group.Name = strings.TrimSpace(req.Name)
	group.Gender = req.Gender
	group.Capacity = req.Capacity
	group.RoomID = nil
	if req.RoomID != nil && *req.RoomID != "" {
		room := *req.RoomID
		group.RoomID = &room
	}
}
