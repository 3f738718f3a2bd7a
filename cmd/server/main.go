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

	"github.com/leadwise/intel-server-go/internal/config"
	"github.com/leadwise/intel-server-go/internal/database"
	"github.com/leadwise/intel-server-go/internal/handler"
	"github.com/leadwise/intel-server-go/internal/jobs"
	"github.com/leadwise/intel-server-go/internal/middleware"
	"github.com/leadwise/intel-server-go/internal/notify"
	"github.com/leadwise/intel-server-go/internal/redis"
	"github.com/leadwise/intel-server-go/internal/repository"
	"github.com/leadwise/intel-server-go/internal/service"
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

	sessionRepo := repository.NewSessionRepository(db.DB)
	turnRepo := repository.NewTurnRepository(db.DB)
	leadRepo := repository.NewLeadRepository(db.DB)

	broker := notify.NewBroker(redisClient)
	defer broker.Close()
	notifier := notify.NewNotifier(broker)

	sessionService := service.NewSessionService(sessionRepo, cfg.SessionTimeout())
	extractor := service.NewExtractorClient(
		cfg.ExtractorBaseURL, cfg.ExtractorAPIKey, cfg.ExtractorModel, cfg.ExtractorTimeout(),
	)
	tokenManager := service.NewTokenManager(
		cfg.CRMAuthBaseURL, cfg.CRMClientID, cfg.CRMClientSecret, cfg.CRMRefreshToken, cfg.CRMTimeout(),
	)
	crmClient := service.NewCRMClient(cfg.CRMBaseURL, tokenManager, cfg.CRMTimeout())

	syncWorker := jobs.NewSyncWorker(leadRepo, sessionService, crmClient, notifier)
	syncWorker.Start()
	defer syncWorker.Stop()

	convService := service.NewConversationService(
		sessionService, turnRepo, leadRepo, extractor, syncWorker, notifier,
	)

	sweepJob := jobs.NewSweepJob(sessionService, config.SweepJobInterval)
	sweepJob.Start()
	defer sweepJob.Stop()

	authMiddleware := middleware.NewAuthMiddleware(cfg.WidgetAuthSecret)
	rateLimitMiddleware := middleware.NewRedisRateLimitMiddleware(redisClient.Client, config.DefaultRateLimitPerMin)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)

	messageHandler := handler.NewMessageHandler(convService)
	leadsHandler := handler.NewLeadsHandler(leadRepo, sessionService, syncWorker)
	eventsHandler := handler.NewEventsHandler(broker)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]any{
			"status":     "ok",
			"timestamp":  time.Now().UnixMilli(),
			"sseClients": broker.ClientCount(),
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(authMiddleware.Handler)
		r.Use(rateLimitMiddleware.Handler)

		r.Mount("/messages", messageHandler.Routes())
		r.Mount("/leads", leadsHandler.Routes())
		r.Get("/events", eventsHandler.ServeHTTP)
	})

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
