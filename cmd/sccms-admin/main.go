// Command sccms-admin applies database migrations and bootstraps users.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/pressly/goose/v3"

	"github.com/noah-isme/sccms-api/internal/repository"
	"github.com/noah-isme/sccms-api/internal/service"
	"github.com/noah-isme/sccms-api/migrations"
	"github.com/noah-isme/sccms-api/pkg/config"
	"github.com/noah-isme/sccms-api/pkg/database"
	"github.com/noah-isme/sccms-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		logr.Sugar().Fatalw("failed to set migration dialect", "error", err)
	}

	cli := &commandLine{
		db:    db.DB,
		users: service.NewUserService(repository.NewUserRepository(db), repository.NewAuditRepository(db), nil, logr),
		out:   os.Stdout,
	}
	if err := cli.run(os.Args); err != nil {
		if errors.Is(err, errHelp) {
			os.Exit(2)
		}
		logr.Sugar().Errorw("command failed", "error", err)
		os.Exit(1)
	}
}
