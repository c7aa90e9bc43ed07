package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
	"github.com/noah-isme/sccms-api/pkg/validation"
)

type userRepository interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	Deactivate(ctx context.Context, id, actorID string) error
}

// UserService handles user management workflows.
type UserService struct {
	repo      userRepository
	recorder  recorder
	validator *validation.Validator
	logger    *zap.Logger
}

// NewUserService creates an instance of UserService.
func NewUserService(repo userRepository, audit auditWriter, validate *validation.Validator, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New()
	}
	return &UserService{repo: repo, recorder: newRecorder(audit, nil, logger), validator: validate, logger: logger}
}

// List returns paginated users and pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, *models.Pagination, error) {
	users, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Internal(err, "failed to list users")
	}
	return users, paginate(filter.Page, filter.PageSize, total), nil
}

// Get returns a user by ID.
func (s *UserService) Get(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err, "user")
	}
	return user, nil
}

// Create adds a new user with a bcrypt hashed password.
func (s *UserService) Create(ctx context.Context, actor Actor, req dto.CreateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, req.Email, ""); err != nil {
		return nil, err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to hash password")
	}

	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		FullName:     strings.TrimSpace(req.FullName),
		Role:         req.Role,
		Active:       req.Active == nil || *req.Active,
		PasswordHash: string(passwordHash),
	}
	user.Stamp(actor.ID, utcNow())

	if err := s.repo.Create(ctx, user); err != nil {
		return nil, appErrors.Internal(err, "failed to create user")
	}

	s.recorder.log(ctx, actor, models.AuditActionCreate, "user", user.ID, nil, map[string]interface{}{
		"email": user.Email, "full_name": user.FullName, "role": user.Role, "active": user.Active,
	})
	return user, nil
}

// Update changes profile, role or active flag of a user.
func (s *UserService) Update(ctx context.Context, actor Actor, id string, req dto.UpdateUserRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, err
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := map[string]interface{}{"email": user.Email, "full_name": user.FullName, "role": user.Role, "active": user.Active}

	if req.Email != "" && !strings.EqualFold(req.Email, user.Email) {
		if err := s.ensureEmailFree(ctx, req.Email, user.ID); err != nil {
			return nil, err
		}
		user.Email = strings.ToLower(strings.TrimSpace(req.Email))
	}
	if req.FullName != "" {
		user.FullName = strings.TrimSpace(req.FullName)
	}
	if req.Role != "" {
		user.Role = req.Role
	}
	if req.Active != nil {
		if !*req.Active && user.ID == actor.ID {
			return nil, appErrors.Clone(appErrors.ErrConflict, "cannot deactivate your own account")
		}
		user.Active = *req.Active
	}
	user.Stamp(actor.ID, utcNow())

	if err := s.repo.Update(ctx, user); err != nil {
		return nil, notFoundOr(err, "user")
	}

	s.recorder.log(ctx, actor, models.AuditActionUpdate, "user", user.ID, before, map[string]interface{}{
		"email": user.Email, "full_name": user.FullName, "role": user.Role, "active": user.Active,
	})
	return user, nil
}

// Delete deactivates a user and revokes its sessions.
func (s *UserService) Delete(ctx context.Context, actor Actor, id string) error {
	if id == actor.ID {
		return appErrors.Clone(appErrors.ErrConflict, "cannot deactivate your own account")
	}
	if err := s.repo.Deactivate(ctx, id, actor.ID); err != nil {
		return notFoundOr(err, "user")
	}
	s.recorder.log(ctx, actor, models.AuditActionDelete, "user", id, map[string]bool{"active": true}, map[string]bool{"active": false})
	return nil
}

func (s *UserService) ensureEmailFree(ctx context.Context, email, selfID string) error {
	existing, err := s.repo.FindByEmail(ctx, email)
	switch {
	case err == nil && existing.ID != selfID:
		return appErrors.Clone(appErrors.ErrConflict, "email already exists")
	case err == nil, errors.Is(err, sql.ErrNoRows):
		return nil
	default:
		return appErrors.Internal(err, "failed to check email uniqueness")
	}
}
