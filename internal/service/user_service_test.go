package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[string]*models.User
	listUsers []models.User
	listCount int
	listErr   error
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	return m.listUsers, m.listCount, nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = "generated"
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	if _, ok := m.users[user.ID]; !ok {
		return sql.ErrNoRows
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Deactivate(ctx context.Context, id, actorID string) error {
	if user, ok := m.users[id]; ok {
		user.Active = false
		return nil
	}
	return sql.ErrNoRows
}

func TestUserServiceList(t *testing.T) {
	repo := &mockUserRepo{listUsers: []models.User{{ID: "1", Email: "a@example.com"}}, listCount: 41}
	svc := NewUserService(repo, nil, nil, zap.NewNop())
	users, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 3, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 41, pagination.TotalCount)
	assert.Equal(t, 3, pagination.Page)
	assert.Equal(t, 100, pagination.PageSize)
}

func TestUserServiceCreate(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{}}
	audit := &auditRecorder{}
	svc := NewUserService(repo, audit, nil, zap.NewNop())

	user, err := svc.Create(context.Background(), adminActor, dto.CreateUserRequest{
		Email: "USER@EXAMPLE.COM", FullName: " User ", Password: "secret123", Role: models.RoleStaff,
	})
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	assert.Equal(t, "User", user.FullName)
	assert.True(t, user.Active)
	assert.NotEqual(t, "secret123", user.PasswordHash)
	require.NotNil(t, user.CreatedBy)
	assert.Equal(t, adminActor.ID, *user.CreatedBy)
	assert.Equal(t, []string{models.AuditActionCreate}, audit.actions())

	_, err = svc.Create(context.Background(), adminActor, dto.CreateUserRequest{
		Email: "user@example.com", FullName: "Dup", Password: "secret123", Role: models.RoleStaff,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateRejectsUnknownRole(t *testing.T) {
	svc := NewUserService(&mockUserRepo{users: map[string]*models.User{}}, nil, nil, zap.NewNop())
	_, err := svc.Create(context.Background(), adminActor, dto.CreateUserRequest{
		Email: "x@example.com", FullName: "X", Password: "secret123", Role: "TEACHER",
	})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.NotEmpty(t, appErr.Details)
}

func TestUserServiceUpdate(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Email: "a@example.com", FullName: "Old", Role: models.RoleStaff, Active: true}}}
	audit := &auditRecorder{}
	svc := NewUserService(repo, audit, nil, zap.NewNop())

	user, err := svc.Update(context.Background(), adminActor, "1", dto.UpdateUserRequest{FullName: "New", Role: models.RoleManager, Active: ptr(false)})
	require.NoError(t, err)
	assert.Equal(t, models.RoleManager, user.Role)
	assert.Equal(t, "New", user.FullName)
	assert.False(t, user.Active)
	require.Len(t, audit.logs, 1)
	assert.Contains(t, string(audit.logs[0].OldValues), "Old")
}

func TestUserServiceCannotDeactivateSelf(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{adminActor.ID: {ID: adminActor.ID, Email: "root@example.com", Active: true}}}
	svc := NewUserService(repo, nil, nil, zap.NewNop())

	err := svc.Delete(context.Background(), adminActor, adminActor.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserServiceDelete(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Email: "a@example.com", Active: true}}}
	audit := &auditRecorder{}
	svc := NewUserService(repo, audit, nil, zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), adminActor, "1"))
	assert.False(t, repo.users["1"].Active)
	assert.Equal(t, []string{models.AuditActionDelete}, audit.actions())

	err := svc.Delete(context.Background(), adminActor, "missing")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
