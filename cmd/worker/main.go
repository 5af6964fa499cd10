package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"groupshot/internal/adapter/repo"
	"groupshot/internal/assets"
	"groupshot/internal/infra"
	"groupshot/internal/infra/credentials"
	"groupshot/internal/orchestrator"
	"groupshot/internal/provider"
	"groupshot/internal/resolver"
)

// The worker runs the completion resolver on its own, for deployments that
// keep polling out of the API process. It only makes sense for asynchronous
// providers; synchronous ones finish inside the request.
func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	if cfg.Provider != "astria" {
		logger.Fatal().Str("provider", cfg.Provider).Msg("worker: provider has no polling to do")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	groups := repo.NewGroupRepository(runner)
	jobs := repo.NewJobRepository(runner)
	photos := repo.NewGeneratedPhotoRepository(runner)

	apiKey := strings.TrimSpace(cfg.AstriaAPIKey)
	if apiKey == "" {
		creds := credentials.NewStore(runner)
		key, err := creds.AstriaAPIKey(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("worker: failed to load astria api key from store")
		}
		apiKey = key
	}

	astria, err := provider.NewAstria(provider.AstriaOptions{
		APIKey:      apiKey,
		BaseURL:     cfg.AstriaBaseURL,
		TuneID:      cfg.AstriaTuneID,
		CallbackURL: provider.CallbackURL(cfg.WebhookBaseURL, cfg.WebhookSecret),
		Logger:      logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure astria provider")
	}

	orch, err := orchestrator.New(orchestrator.Options{
		Groups:  groups,
		Jobs:    jobs,
		Photos:  photos,
		Fetcher: assets.NewFetcher(nil, logger),
		Async:   astria,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build orchestrator")
	}

	res := resolver.New(jobs, astria, orch, logger, resolver.Config{
		PollInterval: cfg.PollInterval,
		MaxAttempts:  cfg.PollMaxAttempts,
	})

	logger.Info().Dur("poll_interval", cfg.PollInterval).Msg("worker: resolver started")
	if err := res.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: resolver failed")
	}
	logger.Info().Msg("worker stopped")
}
