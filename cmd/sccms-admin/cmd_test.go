package main

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/service"
	appErrors "github.com/noah-isme/sccms-api/pkg/errors"
)

type usersStub struct {
	req   dto.CreateUserRequest
	actor service.Actor
	err   error
}

func (s *usersStub) Create(_ context.Context, actor service.Actor, req dto.CreateUserRequest) (*models.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.actor = actor
	s.req = req
	return &models.User{ID: "user-1", Email: req.Email, Role: req.Role}, nil
}

func setup(t *testing.T) (*commandLine, *usersStub, *bytes.Buffer) {
	t.Helper()
	users := &usersStub{}
	out := &bytes.Buffer{}
	return &commandLine{users: users, out: out}, users, out
}

func TestCommandLineMigrate(t *testing.T) {
	cli, _, _ := setup(t)

	var ran []string
	previous := gooseRunFunc
	gooseRunFunc = func(_ context.Context, command string, _ *sql.DB, dir string, _ ...string) error {
		assert.Equal(t, ".", dir)
		ran = append(ran, command)
		return nil
	}
	t.Cleanup(func() { gooseRunFunc = previous })

	for _, command := range []string{"up", "down", "status", "redo", "version"} {
		require.NoError(t, cli.run([]string{"admin", "migrate", command}), command)
	}
	assert.Equal(t, []string{"up", "down", "status", "redo", "version"}, ran)

	assert.ErrorIs(t, cli.run([]string{"admin", "migrate"}), errHelp)
	assert.EqualError(t, cli.run([]string{"admin", "migrate", "reset"}), `"reset": no such command`)
	assert.Len(t, ran, 5)
}

func TestCommandLineAddUser(t *testing.T) {
	password := []byte("s3cret-pass")
	previous := readPasswordFunc
	readPasswordFunc = func(int) ([]byte, error) { return password, nil }
	t.Cleanup(func() { readPasswordFunc = previous })

	t.Run("usage", func(t *testing.T) {
		cli, _, _ := setup(t)
		assert.ErrorIs(t, cli.run([]string{"admin"}), errHelp)
		assert.ErrorIs(t, cli.run([]string{"admin", "lol"}), errHelp)
		assert.ErrorIs(t, cli.run([]string{"admin", "adduser", "-email", "a@b.c"}), errHelp)
	})

	t.Run("creates user", func(t *testing.T) {
		cli, users, out := setup(t)
		err := cli.run([]string{"admin", "adduser", "-email", "ops@camp.org", "-name", "Ops Lead", "-role", "MANAGER"})
		require.NoError(t, err)
		assert.Equal(t, dto.CreateUserRequest{Email: "ops@camp.org", FullName: "Ops Lead", Role: models.RoleManager, Password: "s3cret-pass"}, users.req)
		assert.Equal(t, models.RoleAdmin, users.actor.Role)
		assert.Contains(t, out.String(), "created MANAGER user ops@camp.org (user-1)")
	})

	t.Run("defaults to admin", func(t *testing.T) {
		cli, users, _ := setup(t)
		require.NoError(t, cli.run([]string{"admin", "adduser", "-email", "root@camp.org", "-name", "Root"}))
		assert.Equal(t, models.RoleAdmin, users.req.Role)
	})

	t.Run("empty password", func(t *testing.T) {
		cli, _, _ := setup(t)
		readPasswordFunc = func(int) ([]byte, error) { return nil, nil }
		defer func() { readPasswordFunc = func(int) ([]byte, error) { return password, nil } }()
		assert.ErrorIs(t, cli.run([]string{"admin", "adduser", "-email", "a@b.c", "-name", "A"}), errHelp)
	})

	t.Run("service error", func(t *testing.T) {
		cli, users, _ := setup(t)
		users.err = appErrors.Clone(appErrors.ErrConflict, "email already registered")
		err := cli.run([]string{"admin", "adduser", "-email", "a@b.c", "-name", "A"})
		assert.True(t, errors.Is(err, users.err))
	})
}
