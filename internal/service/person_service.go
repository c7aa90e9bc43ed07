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

type personRepository interface {
	Kind() models.PersonKind
	Create(ctx context.Context, person *models.Person) error
	GetByID(ctx context.Context, id string) (*models.Person, error)
	List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error)
	Update(ctx context.Context, person *models.Person) error
	Deactivate(ctx context.Context, id, actorID string) error
}

// PersonService manages either students or volunteers, depending on the
// repository it is built with.
type PersonService struct {
	repo      personRepository
	recorder  recorder
	validator *validation.Validator
	logger    *zap.Logger
}

// NewPersonService constructs a PersonService.
func NewPersonService(repo personRepository, audit auditWriter, validate *validation.Validator, logger *zap.Logger) *PersonService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	return &PersonService{repo: repo, recorder: newRecorder(audit, nil, logger), validator: validate, logger: logger}
}

func (s *PersonService) resource() string {
	return string(s.repo.Kind())
}

// List returns people matching filter.
func (s *PersonService) List(ctx context.Context, filter models.PersonFilter) ([]models.Person, *models.Pagination, error) {
	people, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list "+s.resource()+"s")
	}
	return people, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns one person.
func (s *PersonService) Get(ctx context.Context, id string) (*models.Person, error) {
	person, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, s.resource())
	}
	return person, nil
}

// Create adds a person, active unless stated otherwise.
func (s *PersonService) Create(ctx context.Context, actor Actor, req dto.PersonRequest) (*models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	person := &models.Person{Active: true}
	applyPersonRequest(person, req)
	person.Stamp(actor.ID, utcNow())

	if err := s.repo.Create(ctx, person); err != nil {
		return nil, appErrors.Internal(err, "failed to create "+s.resource())
	}
	s.recorder.log(ctx, actor, models.AuditActionCreate, s.resource(), person.ID, nil, person)
	return person, nil
}

// Update replaces a person's fields.
func (s *PersonService) Update(ctx context.Context, actor Actor, id string, req dto.PersonRequest) (*models.Person, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	person, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := *person
	applyPersonRequest(person, req)
	person.Stamp(actor.ID, utcNow())

	if err := s.repo.Update(ctx, person); err != nil {
		return nil, notFoundOr(err, s.resource())
	}
	s.recorder.log(ctx, actor, models.AuditActionUpdate, s.resource(), person.ID, before, person)
	return person, nil
}

// Delete deactivates a person. Their applications are kept.
func (s *PersonService) Delete(ctx context.Context, actor Actor, id string) error {
	if err := s.repo.Deactivate(ctx, id, actor.ID); err != nil {
		return notFoundOr(err, s.resource())
	}
	s.recorder.log(ctx, actor, models.AuditActionDelete, s.resource(), id, map[string]bool{"active": true}, map[string]bool{"active": false})
	return nil
}

func applyPersonRequest(person *models.Person, req dto.PersonRequest) {
	person.FullName = strings.TrimSpace(req.FullName)
	person.Email = strings.ToLower(strings.TrimSpace(req.Email))
	person.Phone = strings.TrimSpace(req.Phone)
	person.Gender = req.Gender
	person.DateOfBirth = req.DateOfBirth
	person.Address = req.Address
	person.Note = req.Note
	if req.Active != nil {
		person.Active = *req.Active
	}
}
