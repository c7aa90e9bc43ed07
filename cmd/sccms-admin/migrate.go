package main

import (
	"context"
	"fmt"

	"github.com/pressly/goose/v3"
)

var gooseRunFunc = goose.RunContext

var migrateCommands = map[string]struct{}{
	"up":      {},
	"down":    {},
	"status":  {},
	"redo":    {},
	"version": {},
}

// migrate runs a goose command against the embedded migrations.
func (cli *commandLine) migrate(command string, args ...string) error {
	if _, ok := migrateCommands[command]; !ok {
		return fmt.Errorf("%q: no such command", command)
	}
	return gooseRunFunc(context.Background(), command, cli.db, ".", args...)
}
