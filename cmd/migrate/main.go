package main

import (
	"errors"
	"flag"
	"os"

	"github.com/ariefcatur/go-bakery-cart/internal/config"
	"github.com/ariefcatur/go-bakery-cart/internal/logger"
	"github.com/ariefcatur/go-bakery-cart/internal/postgres"
	"github.com/golang-migrate/migrate/v4"
)

func main() {
	log := logger.New(os.Getenv("LOG_LEVEL"), "console", "bakery-migrate")

	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		log.Fatal().Msg("usage: migrate <up|down|version>")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	m, err := postgres.NewMigrator(cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create migrate instance")
	}
	defer func() { _, _ = m.Close() }()

	switch args[0] {
	case "up":
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("no pending migrations")
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("migration up failed")
		}
		log.Info().Msg("migrations applied successfully")

	case "down":
		err = m.Steps(-1)
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info().Msg("no migrations to rollback")
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("migration down failed")
		}
		log.Info().Msg("migration rolled back successfully")

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			log.Info().Msg("no migrations applied yet")
			return
		}
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get version")
		}
		log.Info().Uint("version", version).Bool("dirty", dirty).Msg("current migration version")

	default:
		log.Fatal().Str("command", args[0]).Msg("unknown command")
	}
}
