package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/graphwarden/warden-server-go/internal/audit"
	"github.com/graphwarden/warden-server-go/internal/cache"
	"github.com/graphwarden/warden-server-go/internal/config"
	"github.com/graphwarden/warden-server-go/internal/database"
	"github.com/graphwarden/warden-server-go/internal/handler"
	"github.com/graphwarden/warden-server-go/internal/jobs"
	"github.com/graphwarden/warden-server-go/internal/middleware"
	"github.com/graphwarden/warden-server-go/internal/queue"
	"github.com/graphwarden/warden-server-go/internal/redis"
	"github.com/graphwarden/warden-server-go/internal/remote"
	"github.com/graphwarden/warden-server-go/internal/repository"
	"github.com/graphwarden/warden-server-go/internal/service"
	"github.com/graphwarden/warden-server-go/internal/tasks"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	userRepo := repository.NewUserRepository(db.DB)
	accountRepo := repository.NewAccountRepository(db.DB)
	relationshipRepo := repository.NewRelationshipRepository(db.DB)
	logRepo := repository.NewLogMessageRepository(db.DB)

	recorder := audit.NewRecorder(logRepo)
	markers := cache.NewRedisMarkerStore(redisClient.Client)
	clientFactory := remote.NewHTTPFactory(cfg.RemoteBaseURL, cfg.ConsumerKey, cfg.ConsumerSecret)

	taskQueue := queue.NewRedisQueue(redisClient.Client, redis.TaskQueueKey)
	taskService := tasks.NewService(
		db, userRepo, accountRepo, relationshipRepo,
		recorder, markers, clientFactory, taskQueue,
	)

	worker := queue.NewWorker(taskQueue, cfg.WorkerConcurrency, config.QueuePollInterval)
	tasks.RegisterAll(worker, taskService)
	worker.Start()
	defer worker.Stop()

	graphService := service.NewGraphService(
		userRepo, accountRepo, logRepo, recorder, taskService, taskQueue,
		service.QuotaDefaults{Rate: cfg.QuotaRate, Max: cfg.QuotaMax},
	)

	authMiddleware := middleware.NewAuthMiddleware(userRepo)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client)

	graphHandler := handler.NewGraphHandler(graphService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(middleware.BodyLimit(0))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)
		r.Mount("/", graphHandler.Routes())
	})

	sweepJob := jobs.NewSweepJob(taskService, cfg.SweepInterval())
	sweepJob.Start()
	defer sweepJob.Stop()

	scrubJob := jobs.NewScrubJob(userRepo, config.CredentialScrubInterval, config.CredentialScrubAfter)
	scrubJob.Start()
	defer scrubJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
