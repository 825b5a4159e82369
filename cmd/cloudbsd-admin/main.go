package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloudbsd/admin-panel/internal/app"
	"github.com/cloudbsd/admin-panel/internal/config"
	"github.com/cloudbsd/admin-panel/internal/logging"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// main runs the CLI entrypoint and exits on unrecoverable command errors.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	errRun := run(ctx, os.Args[1:])
	stop()
	if errRun != nil {
		log.WithError(errRun).Error("command failed")
		os.Exit(1)
	}
}

// run parses flags, loads config, and either migrates or serves.
func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cloudbsd-admin", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "config file path (or env CONFIG_PATH)")
	envFile := fs.String("env-file", ".env", "optional dotenv file loaded before the config")
	migrateOnly := fs.Bool("migrate", false, "run migrations and seeding, then exit")
	if errParse := fs.Parse(args); errParse != nil {
		return errParse
	}

	if errEnv := godotenv.Load(*envFile); errEnv != nil && !os.IsNotExist(errEnv) {
		return fmt.Errorf("load %s: %w", *envFile, errEnv)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}

	closer, errLog := logging.Setup(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile})
	if errLog != nil {
		return errLog
	}
	defer func() { _ = closer.Close() }()

	if cfg.Path != "" {
		log.Infof("loaded config from %s", cfg.Path)
	} else {
		log.Info("no config file found, using defaults")
	}

	if *migrateOnly {
		if errMigrate := app.Migrate(ctx, cfg); errMigrate != nil {
			return errMigrate
		}
		log.Info("migrations completed")
		return nil
	}
	return app.RunServer(ctx, cfg)
}
