package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
)

type roomRepoStub struct {
	rooms map[string]*models.Room
}

func (s *roomRepoStub) Create(ctx context.Context, room *models.Room) error {
	room.ID = "room-new"
	copy := *room
	s.rooms[room.ID] = &copy
	return nil
}

func (s *roomRepoStub) GetByID(ctx context.Context, id string) (*models.Room, error) {
	r, ok := s.rooms[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *r
	return &copy, nil
}

func (s *roomRepoStub) ListByCourse(ctx context.Context, courseID string) ([]models.Room, error) {
	var out []models.Room
	for _, r := range s.rooms {
		if r.CourseID == courseID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *roomRepoStub) Update(ctx context.Context, room *models.Room) error {
	if _, ok := s.rooms[room.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *room
	s.rooms[room.ID] = &copy
	return nil
}

func (s *roomRepoStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.rooms[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.rooms, id)
	return nil
}

func TestRoomServiceLifecycle(t *testing.T) {
	repo := &roomRepoStub{rooms: map[string]*models.Room{}}
	courses := newCourseRepoStub(models.Course{ID: "course-1", Status: models.CourseStatusInProgress})
	cache := &cacheStub{}
	audit := &auditRecorder{}
	svc := NewRoomService(repo, courses, cache, audit, nil, nil)
	ctx := context.Background()

	room, err := svc.Create(ctx, managerActor, "course-1", dto.RoomRequest{Name: " Room 1 ", Gender: "F", Capacity: 8, NumberOfStaff: 2})
	require.NoError(t, err)
	assert.Equal(t, "Room 1", room.Name)
	assert.Equal(t, 2, room.NumberOfStaff)
	assert.Equal(t, "manager-1", *room.CreatedBy)

	updated, err := svc.Update(ctx, managerActor, room.ID, dto.RoomRequest{Name: "Room 1", Capacity: 10, NumberOfStaff: 3})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.NumberOfStaff)
	assert.Empty(t, updated.Gender)

	require.NoError(t, svc.Delete(ctx, managerActor, room.ID))
	_, err = svc.Get(ctx, room.ID)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	assert.Equal(t, []string{models.AuditActionCreate, models.AuditActionUpdate, models.AuditActionDelete}, audit.actions())
	assert.Len(t, cache.invalidated, 3)
}

func TestRoomServiceCreateValidation(t *testing.T) {
	repo := &roomRepoStub{rooms: map[string]*models.Room{}}
	courses := newCourseRepoStub(models.Course{ID: "course-1", Status: models.CourseStatusRecruiting})
	svc := NewRoomService(repo, courses, nil, nil, nil, nil)

	_, err := svc.Create(context.Background(), managerActor, "course-1", dto.RoomRequest{Name: "Room", Gender: "X"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Create(context.Background(), managerActor, "missing", dto.RoomRequest{Name: "Room"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
