package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"time"

	"momo-billing/internal/config"
	"momo-billing/internal/domain"
	"momo-billing/internal/domain/model"
	"momo-billing/internal/domain/ports/repository"
	pg "momo-billing/internal/infra/db/postgres"
	"momo-billing/internal/infra/logging"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	email := flag.String("email", "demo@example.com", "demo user email")
	id := flag.String("id", "", "demo user id (uuid); generated when empty")
	flag.Parse()

	// ---- Config ----
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		logging.Global.Fatal().Err(err).Msg("load config")
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect Postgres
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	users := pg.NewPostgresUserRepo(pool)
	if *id != "" {
		if u, err := users.FindByID(ctx, repository.NoTX, *id); err == nil {
			fmt.Printf("user %s already present (level=%s)\n", u.ID, u.SubscriptionLevel)
			return
		} else if !errors.Is(err, domain.ErrNotFound) {
			logger.Fatal().Err(err).Msg("find user")
		}
	}

	u, err := model.NewUser(*id, *email)
	if err != nil {
		logger.Fatal().Err(err).Msg("new user")
	}
	if err := users.Save(ctx, repository.NoTX, u); err != nil {
		logger.Fatal().Err(err).Msg("save user")
	}
	fmt.Printf("seeded user %s <%s>\n", u.ID, u.Email)
}
