package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/journeytrack/journeytrack/internal/config"
	"github.com/journeytrack/journeytrack/internal/emitter"
	"github.com/journeytrack/journeytrack/internal/flush"
	"github.com/journeytrack/journeytrack/internal/geo"
	"github.com/journeytrack/journeytrack/internal/handler"
	"github.com/journeytrack/journeytrack/internal/journey"
	"github.com/journeytrack/journeytrack/internal/limiter"
	"github.com/journeytrack/journeytrack/internal/session"
	"github.com/journeytrack/journeytrack/internal/storage"
)

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load config
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/journeyd.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("Failed to load config")
	}

	log.Info().Msg("Starting journeyd...")

	// Postgres pool for the persistence gateway
	pool, err := pgxpool.New(context.Background(), cfg.Postgres.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Postgres")
	}
	defer pool.Close()
	gateway := storage.NewGateway(pool)
	log.Info().Msg("Persistence gateway initialized")

	// Shared Redis client for rate limiting and the exit-flush guard
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		log.Info().Str("addr", cfg.Redis.Addr).Msg("Redis connected")
	}

	// Geolocation resolver (local database preferred, HTTP fallback)
	resolver := geo.New(cfg.GeoIP.DatabasePath, cfg.GeoIP.HTTPEndpoint)
	defer resolver.Close()
	log.Info().Msg("Geo resolver initialized")

	// Analytics emitter
	var em journey.Emitter
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaEmitter := emitter.NewKafka(cfg.Kafka)
		defer kafkaEmitter.Close()
		em = kafkaEmitter
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Msg("Kafka emitter initialized")
	}

	sessions := session.NewManager(resolver)
	recorder := journey.NewRecorder(em)
	flusher := flush.NewCoordinator(flush.NewRedisGuard(rdb), gateway)
	h := handler.New(sessions, recorder, gateway, flusher)

	// Router
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(handler.CORSMiddleware)

	r.Get("/health", handler.HealthCheck)

	r.Group(func(r chi.Router) {
		r.Use(limiter.New(rdb, cfg.RateLimit.RequestsPerSecond).Middleware)
		r.Post("/v1/visits", h.HandleVisit)
		r.Post("/v1/scroll", h.HandleScroll)
		r.Post("/v1/submissions", h.HandleSubmission)
		r.Post("/v1/flush", h.HandleFlush)
	})

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler: r,
	}

	go func() {
		log.Info().Int("port", cfg.Server.HTTPPort).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to serve HTTP")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")
	httpServer.Shutdown(context.Background())
	log.Info().Msg("Server stopped")
}
