package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"backend-pushup/internal/config"
	"backend-pushup/internal/db"
	"backend-pushup/internal/emitter"
	"backend-pushup/internal/server"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

var mainDepsProvider = defaultDeps
var mainRunner = realMain

func main() {
	mainRunner(mainDepsProvider())
}

type mainDeps struct {
	loadConfig      func() config.Config
	connectPostgres func(config.Config) (*pgxpool.Pool, error)
	connectRedis    func(config.Config) *redis.Client
	connectMQTT     func(context.Context, config.Config) (mqtt.Client, error)
	migrate         func(context.Context, *pgxpool.Pool) error
	notify          func(chan<- os.Signal, ...os.Signal)
	exit            func(int)
	run             func(context.Context, config.Config, *pgxpool.Pool, *redis.Client, <-chan os.Signal, ListenFunc, ...server.Option) error
}

func defaultDeps() mainDeps {
	return mainDeps{
		loadConfig:      config.Load,
		connectPostgres: db.ConnectPostgres,
		connectRedis:    db.ConnectRedis,
		connectMQTT: func(ctx context.Context, cfg config.Config) (mqtt.Client, error) {
			return emitter.Connect(ctx, cfg.MQTTBroker, cfg.MQTTClientID)
		},
		migrate: func(ctx context.Context, pool *pgxpool.Pool) error {
			return db.Migrate(ctx, db.FromPool(pool))
		},
		notify: signal.Notify,
		exit:   os.Exit,
		run:    Run,
	}
}

func realMain(deps mainDeps) {
	cfg := deps.loadConfig()
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()})))

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		deps.exit(1)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := deps.connectPostgres(cfg)
	if err != nil {
		slog.Warn("postgres connection failed, workouts will not be stored", "error", err)
		pg = nil
	}
	if pg != nil {
		if err := deps.migrate(ctx, pg); err != nil {
			slog.Error("schema migration failed", "error", err)
		}
	}

	rdb := deps.connectRedis(cfg)

	var opts []server.Option
	if cfg.MQTTBroker != "" {
		client, err := deps.connectMQTT(ctx, cfg)
		if err != nil {
			slog.Warn("mqtt unavailable, updates stay local", "broker", cfg.MQTTBroker, "error", err)
		} else {
			defer client.Disconnect(250)
			opts = append(opts, server.WithEmitter(emitter.New(client)))
		}
	}

	signals := make(chan os.Signal, 1)
	deps.notify(signals, syscall.SIGINT, syscall.SIGTERM)

	if err := deps.run(context.Background(), cfg, pg, rdb, signals, nil, opts...); err != nil {
		slog.Error("server exited with error", "error", err)
	}
}

type ListenFunc func(app *fiber.App, addr string) error

var defaultListen ListenFunc = func(app *fiber.App, addr string) error {
	return app.Listen(addr)
}

var shutdownFn = func(app *fiber.App, ctx context.Context) error {
	return app.ShutdownWithContext(ctx)
}

// Run starts the HTTP server and waits for termination signals. Live
// sessions are stopped before the connections close so their counts are
// recorded.
func Run(ctx context.Context, cfg config.Config, pg *pgxpool.Pool, rdb *redis.Client, signals <-chan os.Signal, listen ListenFunc, opts ...server.Option) error {
	srv := server.NewServer(cfg, pg, rdb, opts...)

	if listen == nil {
		listen = defaultListen
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv.App, cfg.ServerPort)
	}()

	select {
	case <-signals:
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := shutdownFn(srv.App, shutdownCtx); err != nil {
		return err
	}
	if err := srv.Close(shutdownCtx); err != nil {
		slog.Warn("closing live sessions", "error", err)
	}
	if pg != nil {
		pg.Close()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	return nil
}
