package main

import (
	"context"
	"fmt"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/service"
)

var cliActor = service.Actor{Role: models.RoleAdmin, IP: "cli", UserAgent: "sccms-admin"}

// addUser creates an active user with the given role.
func (cli *commandLine) addUser(email, name string, role models.UserRole, pwd string) error {
	user, err := cli.users.Create(context.Background(), cliActor, dto.CreateUserRequest{
		Email:    email,
		FullName: name,
		Role:     role,
		Password: pwd,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "created %s user %s (%s)\n", user.Role, user.Email, user.ID)
	return nil
}
