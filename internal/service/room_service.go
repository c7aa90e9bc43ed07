package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
	"github.com/noah-isme/sccms-api/pkg/validation"
)

type roomRepository interface {
	Create(ctx context.Context, room *models.Room) error
	GetByID(ctx context.Context, id string) (*models.Room, error)
	ListByCourse(ctx context.Context, courseID string) ([]models.Room, error)
	Update(ctx context.Context, room *models.Room) error
	Delete(ctx context.Context, id string) error
}

// RoomService manages the rooms of a course.
type RoomService struct {
	repo      roomRepository
	courses   courseReader
	cache     courseCache
	recorder  recorder
	validator *validation.Validator
}

// NewRoomService constructs a RoomService.
func NewRoomService(repo roomRepository, courses courseReader, cache courseCache, audit auditWriter, validate *validation.Validator, logger *zap.Logger) *RoomService {
	if validate == nil {
		validate = validation.New()
	}
	if cache == nil {
		cache = (*CacheService)(nil)
	}
	return &RoomService{repo: repo, courses: courses, cache: cache, recorder: newRecorder(audit, nil, logger), validator: validate}
}

// List returns the rooms of a course.
func (s *RoomService) List(ctx context.Context, courseID string) ([]models.Room, error) {
	rooms, err := s.repo.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to list rooms")
	}
	return rooms, nil
}

// Get returns one room.
func (s *RoomService) Get(ctx context.Context, id string) (*models.Room, error) {
	room, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "room")
	}
	return room, nil
}

// Create adds a room to an editable course.
func (s *RoomService) Create(ctx context.Context, actor Actor, courseID string, req dto.RoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	course, err := s.courses.GetByID(ctx, courseID)
	if err != nil {
		return nil, notFoundOr(err, "course")
	}
	if !course.Editable() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "course is "+string(course.Status))
	}
	room := &models.Room{CourseID: course.ID}
	applyRoomRequest(room, req)
	room.Stamp(actor.ID, utcNow())
	if err := s.repo.Create(ctx, room); err != nil {
		return nil, appErrors.Internal(err, "failed to create room")
	}
	s.recorder.log(ctx, actor, models.AuditActionCreate, "room", room.ID, nil, room)
	s.cache.InvalidateCourse(ctx, course.ID)
	return room, nil
}

// Update replaces the editable fields of a room.
func (s *RoomService) Update(ctx context.Context, actor Actor, id string, req dto.RoomRequest) (*models.Room, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	room, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *room
	applyRoomRequest(room, req)
	room.Stamp(actor.ID, utcNow())
	if err := s.repo.Update(ctx, room); err != nil {
		return nil, notFoundOr(err, "room")
	}
	s.recorder.log(ctx, actor, models.AuditActionUpdate, "room", room.ID, before, room)
	s.cache.InvalidateCourse(ctx, room.CourseID)
	return room, nil
}

// Delete removes a room. Its night shifts go with it and groups placed in
// it lose the room reference.
func (s *RoomService) Delete(ctx context.Context, actor Actor, id string) error {
	room, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err, "room")
	}
	s.recorder.log(ctx, actor, models.AuditActionDelete, "room", id, room, nil)
	s.cache.InvalidateCourse(ctx, room.CourseID)
	return nil
}

func applyRoomRequest(room *models.Room, req dto.RoomRequest) {
	room.Name = strings.TrimSpace(req.Name)
	room.Gender = req.Gender
	room.Capacity = req.Capacity
	room.NumberOfStaff = req.NumberOfStaff
}
