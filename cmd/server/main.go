package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/advicehub/counsel/internal/api"
	"github.com/advicehub/counsel/internal/api/handler"
	"github.com/advicehub/counsel/internal/chat/googlechat"
	"github.com/advicehub/counsel/internal/config"
	"github.com/advicehub/counsel/internal/repository"
	"github.com/advicehub/counsel/internal/repository/postgres"
	"github.com/advicehub/counsel/internal/repository/redis"
	"github.com/advicehub/counsel/internal/repository/sqlite"
	"github.com/joho/godotenv"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("Warning: .env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogging(cfg.Logging)

	log.Info().
		Str("host", cfg.Server.Host).
		Int("port", cfg.Server.Port).
		Str("driver", cfg.Database.Driver).
		Msg("Starting supervised advice server")

	ctx := context.Background()

	stores, db, closeStores, err := buildStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer closeStores()

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redis.NewClient(cfg.Redis)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
	}

	userSurface, err := googlechat.NewSurface(ctx, cfg.Chat.AdviserCredentialsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise adviser chat surface")
	}
	supervisorSurface, err := googlechat.NewSurface(ctx, cfg.Chat.SupervisorCredentialsFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise supervisor chat surface")
	}

	router := api.NewRouter(cfg, api.Dependencies{
		Stores:     stores,
		DB:         db,
		Redis:      redisClient,
		User:       userSurface,
		Supervisor: supervisorSurface,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// buildStores opens the configured storage backend and returns the
// repository set plus a readiness probe for it.
func buildStores(ctx context.Context, cfg *config.Config) (repository.Stores, handler.Pinger, func(), error) {
	switch cfg.Database.Driver {
	case "sqlite":
		db, err := sqlite.NewDB(ctx, cfg.Database.Path)
		if err != nil {
			return repository.Stores{}, nil, nil, err
		}
		stores := repository.Stores{
			Sessions:    sqlite.NewSessionRepository(db),
			Messages:    sqlite.NewMessageRepository(db),
			Responses:   sqlite.NewResponseRepository(db),
			Evaluations: sqlite.NewEvaluationRepository(db),
			Offices:     sqlite.NewOfficeRepository(db),
		}
		return stores, db, func() { db.Close() }, nil

	default:
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return repository.Stores{}, nil, nil, err
		}
		stores := repository.Stores{
			Sessions:    postgres.NewSessionRepository(db.Pool),
			Messages:    postgres.NewMessageRepository(db.Pool),
			Responses:   postgres.NewResponseRepository(db.Pool),
			Evaluations: postgres.NewEvaluationRepository(db.Pool),
			Offices:     postgres.NewOfficeRepository(db.Pool),
		}
		return stores, db, db.Close, nil
	}
}

func setupLogging(cfg config.LoggingConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var writers []io.Writer
	if cfg.Format == "console" {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		writers = append(writers, os.Stderr)
	}

	if cfg.File != "" {
		rotator, err := rotatelogs.New(
			cfg.File+".%Y%m%d",
			rotatelogs.WithLinkName(cfg.File),
			rotatelogs.WithRotationTime(24*time.Hour),
			rotatelogs.WithMaxAge(7*24*time.Hour),
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open log file, logging to stderr only")
		} else {
			writers = append(writers, rotator)
		}
	}

	log.Logger = log.Output(zerolog.MultiLevelWriter(writers...))
}
