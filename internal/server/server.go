package server

import (
	"context"
	"log/slog"

	"backend-pushup/internal/auth"
	"backend-pushup/internal/config"
	"backend-pushup/internal/db"
	"backend-pushup/internal/live"
	"backend-pushup/internal/metrics"
	"backend-pushup/internal/session"
	"backend-pushup/internal/stream"
	"backend-pushup/internal/workout"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App     *fiber.App
	Cfg     config.Config
	DB      *pgxpool.Pool
	Redis   *redis.Client
	Stream  *stream.Hub
	Live    *live.Service
	Metrics *prometheus.Registry

	emitter session.Observer
}

type Option func(*Server)

// WithEmitter mirrors every session update to an extra observer, typically
// the MQTT emitter.
func WithEmitter(o session.Observer) Option {
	return func(s *Server) { s.emitter = o }
}

func NewServer(cfg config.Config, pg *pgxpool.Pool, redisClient *redis.Client, opts ...Option) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	s := &Server{
		App:     app,
		Cfg:     cfg,
		DB:      pg,
		Redis:   redisClient,
		Stream:  stream.NewHub(redisClient),
		Metrics: metrics.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}

	sessionCfg := cfg.Session()
	if err := sessionCfg.Validate(); err != nil {
		slog.Warn("invalid detection settings, using defaults", "error", err)
		sessionCfg = session.DefaultConfig()
	}

	q := db.FromPool(pg)
	workouts := workout.NewService(q)
	recorder := workouts
	if q == nil {
		recorder = nil
	}

	var liveOpts []live.Option
	if s.emitter != nil {
		liveOpts = append(liveOpts, live.WithEmitter(s.emitter))
	}
	s.Live = live.NewService(sessionCfg, s.Stream, live.NewSnapshotCache(redisClient, cfg.SnapshotTTL), recorder, liveOpts...)

	registerRoutes(s, workouts)
	return s
}

func registerRoutes(s *Server, workouts *workout.Service) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "active_sessions": s.Live.Active()})
	})
	s.App.Get("/metrics", adaptor.HTTPHandler(metrics.Handler(s.Metrics)))

	jwtMiddleware := auth.JWTMiddleware(s.Cfg.JWTSecret)

	auth.RegisterRoutes(s.App.Group("/auth"), auth.NewService(s.Cfg.JWTSecret, db.FromPool(s.DB)))
	live.RegisterRoutes(s.App.Group("/sessions"), s.Live, jwtMiddleware)
	workout.RegisterRoutes(s.App.Group("/workouts"), workouts, jwtMiddleware)
	stream.RegisterRoutes(s.App.Group("/stream"), s.Stream, s.Live.SnapshotJSON)
}

// Close stops every live session, recording final counts, and detaches the
// hub from redis.
func (s *Server) Close(ctx context.Context) error {
	err := s.Live.Close(ctx)
	if cerr := s.Stream.Close(); err == nil {
		err = cerr
	}
	return err
}
