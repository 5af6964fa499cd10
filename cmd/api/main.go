package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"groupshot/internal/adapter/repo"
	"groupshot/internal/assets"
	"groupshot/internal/http/handlers"
	httpapi "groupshot/internal/http/httpapi"
	"groupshot/internal/infra"
	"groupshot/internal/infra/credentials"
	"groupshot/internal/infra/geoip"
	"groupshot/internal/middleware"
	"groupshot/internal/orchestrator"
	"groupshot/internal/provider"
	"groupshot/internal/resolver"
	"groupshot/internal/storage"
)

func main() {
	// Load .env (optional)
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// DB pool (pgxpool)
	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, logger)
	groups := repo.NewGroupRepository(runner)
	jobs := repo.NewJobRepository(runner)
	photos := repo.NewGeneratedPhotoRepository(runner)

	fetcher := assets.NewFetcher(nil, logger)

	opts := orchestrator.Options{
		Groups:  groups,
		Jobs:    jobs,
		Photos:  photos,
		Fetcher: fetcher,
		Logger:  logger,
	}

	// Keys can come from the environment or the integration_tokens table.
	creds := credentials.NewStore(runner)
	resolveKey := func(envKey string, fromStore func(context.Context) (string, error)) string {
		if key := strings.TrimSpace(envKey); key != "" {
			return key
		}
		key, err := fromStore(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to load api key from store")
		}
		return key
	}

	var (
		asyncGen  provider.AsyncGenerator
		staticDir string
	)
	switch cfg.Provider {
	case "astria":
		astria, err := provider.NewAstria(provider.AstriaOptions{
			APIKey:      resolveKey(cfg.AstriaAPIKey, creds.AstriaAPIKey),
			BaseURL:     cfg.AstriaBaseURL,
			TuneID:      cfg.AstriaTuneID,
			CallbackURL: provider.CallbackURL(cfg.WebhookBaseURL, cfg.WebhookSecret),
			Logger:      logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure astria provider")
		}
		asyncGen = astria
		opts.Async = astria
	case "gemini":
		gemini, err := provider.NewGemini(provider.GeminiOptions{
			APIKey:  resolveKey(cfg.GeminiAPIKey, creds.GeminiAPIKey),
			BaseURL: cfg.GeminiBaseURL,
			Model:   cfg.GeminiModel,
			Logger:  logger,
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure gemini provider")
		}
		storagePath := cfg.StoragePath
		if !filepath.IsAbs(storagePath) {
			if abs, err := filepath.Abs(storagePath); err == nil {
				storagePath = abs
			}
		}
		fileStore, err := storage.NewFileStore(storagePath, cfg.StorageBaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to configure storage")
		}
		opts.Sync = gemini
		opts.Blobs = fileStore
		staticDir = storagePath
	}

	orch, err := orchestrator.New(opts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build orchestrator")
	}

	app := &handlers.App{
		Groups:        groups,
		Jobs:          jobs,
		Photos:        photos,
		Downloader:    fetcher,
		Generator:     orch,
		WebhookSecret: cfg.WebhookSecret,
		Logger:        logger,
	}

	// The completion resolver only runs for asynchronous providers.
	if asyncGen != nil {
		res := resolver.New(jobs, asyncGen, orch, logger, resolver.Config{
			PollInterval: cfg.PollInterval,
			MaxAttempts:  cfg.PollMaxAttempts,
		})
		app.Callbacks = res
		go func() {
			if err := res.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("resolver stopped")
			}
		}()
	}

	var countryLookup middleware.CountryLookup
	if geo, err := geoip.NewResolver(cfg.GeoIPDBPath); err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if geo != nil {
		countryLookup = geo.CountryCode
		if closer, ok := geo.(io.Closer); ok {
			defer closer.Close()
		}
	}

	routerOpts := httpapi.RouterOptions{
		Logger:         logger,
		CountryLookup:  countryLookup,
		AllowedOrigins: cfg.AllowedOrigins,
		GenerateLimit:  cfg.GenerateLimit,
	}
	routerOpts.StaticDir = staticDir
	router := httpapi.NewRouter(app, routerOpts)

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
