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

type personRepoStub struct {
	kind   models.PersonKind
	people map[string]*models.Person
}

func (p *personRepoStub) Kind() models.PersonKind { return p.kind }

func (p *personRepoStub) Create(ctx context.Context, person *models.Person) error {
	person.ID = "p-new"
	copy := *person
	p.people[person.ID] = &copy
	return nil
}

func (p *personRepoStub) GetByID(ctx context.Context, id string) (*models.Person, error) {
	person, ok := p.people[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *person
	return &copy, nil
}

func (p *personRepoStub) List(ctx context.Context, filter models.PersonFilter) ([]models.Person, int, error) {
	return nil, 0, nil
}

func (p *personRepoStub) Update(ctx context.Context, person *models.Person) error {
	copy := *person
	p.people[person.ID] = &copy
	return nil
}

func (p *personRepoStub) Deactivate(ctx context.Context, id, actorID string) error {
	person, ok := p.people[id]
	if !ok {
		return sql.ErrNoRows
	}
	person.Active = false
	return nil
}

func TestPersonServiceCreate(t *testing.T) {
	repo := &personRepoStub{kind: models.PersonKindVolunteer, people: map[string]*models.Person{}}
	audit := &auditRecorder{}
	svc := NewPersonService(repo, audit, nil, zap.NewNop())

	person, err := svc.Create(context.Background(), secretaryActor, dto.PersonRequest{FullName: " Ana ", Email: "ANA@example.com", Gender: "F"})
	require.NoError(t, err)
	assert.Equal(t, "Ana", person.FullName)
	assert.Equal(t, "ana@example.com", person.Email)
	assert.True(t, person.Active)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "volunteer", audit.logs[0].Resource)
}

func TestPersonServiceCreateValidatesGender(t *testing.T) {
	svc := NewPersonService(&personRepoStub{kind: models.PersonKindStudent, people: map[string]*models.Person{}}, nil, nil, zap.NewNop())

	_, err := svc.Create(context.Background(), secretaryActor, dto.PersonRequest{FullName: "Bo", Gender: "X"})
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
	assert.Equal(t, []string{"gender must be M or F"}, appErr.Details)
}

func TestPersonServiceUpdateAndDelete(t *testing.T) {
	repo := &personRepoStub{kind: models.PersonKindStudent, people: map[string]*models.Person{
		"s1": {ID: "s1", FullName: "Old", Gender: "M", Active: true},
	}}
	svc := NewPersonService(repo, &auditRecorder{}, nil, zap.NewNop())

	person, err := svc.Update(context.Background(), secretaryActor, "s1", dto.PersonRequest{FullName: "New", Gender: "M", Phone: " 0812 "})
	require.NoError(t, err)
	assert.Equal(t, "New", person.FullName)
	assert.Equal(t, "0812", person.Phone)
	assert.True(t, person.Active)

	require.NoError(t, svc.Delete(context.Background(), secretaryActor, "s1"))
	assert.False(t, repo.people["s1"].Active)

	_, err = svc.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, "student not found", appErrors.FromError(err).Message)
}
