package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"golang.org/x/term"

	"github.com/noah-isme/sccms-api/internal/dto"
	"github.com/noah-isme/sccms-api/internal/models"
	"github.com/noah-isme/sccms-api/internal/service"
)

var (
	readPasswordFunc = term.ReadPassword

	errHelp = errors.New("help provided")
)

type userCreator interface {
	Create(ctx context.Context, actor service.Actor, req dto.CreateUserRequest) (*models.User, error)
}

type commandLine struct {
	db    *sql.DB
	users userCreator
	out   io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate up|down|status|redo|version        - manage the database schema")
	fmt.Fprintln(cli.out, "  adduser -email EMAIL -name NAME -role ROLE  - create a user, the password is prompted next")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2], args[3:]...)
	case "adduser":
		addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
		addUserCmd.SetOutput(cli.out)
		email := addUserCmd.String("email", "", "The user's email, used to log in.")
		name := addUserCmd.String("name", "", "The user's full name.")
		role := addUserCmd.String("role", string(models.RoleAdmin), "ADMIN, MANAGER, SECRETARY or STAFF.")
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *email == "" || *name == "" {
			addUserCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*email, *name, models.UserRole(*role), string(pwd))
	default:
		cli.printUsage()
		return errHelp
	}
}
