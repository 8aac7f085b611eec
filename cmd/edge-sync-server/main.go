// Command edge-sync-server runs the state-sync server: push-first
// action delivery over WebSocket/SSE with a durable polling fallback.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/valyala/fasthttp"

	"github.com/edge-sync/state-server/config"
	"github.com/edge-sync/state-server/src/queue"
	"github.com/edge-sync/state-server/src/registry"
	"github.com/edge-sync/state-server/src/routes"
	"github.com/edge-sync/state-server/src/service"
	"github.com/edge-sync/state-server/src/storage"
)

var cfgFile string

func main() {
	root := &cobra.Command{
		Use:   "edge-sync-server",
		Short: "State-sync server with push-first action delivery and polling fallback",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmd.SilenceUsage = true
			return run()
		},
	}
	root.Flags().StringVarP(&cfgFile, "config", "c", "", "path to YAML config file")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	logger := newLogger(cfg.LogLevel)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, actionQueue, cleanup, err := buildStorage(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	pages := storage.NewPageStates(store, cfg.CacheTTL(), logger)

	reg := registry.New(logger, registry.WithHeartbeatInterval(cfg.HeartbeatInterval()))
	if cfg.PersistentConnections {
		reg.Start(ctx)
		defer reg.Stop()
	}

	caps := service.Capabilities{PersistentConnections: cfg.PersistentConnections}
	svc := service.New(reg, actionQueue, pages, caps, cfg.QueueTTL(), logger)

	router := routes.New(svc, reg, logger)
	app := fiber.New(fiber.Config{AppName: "edge-sync-state-server"})
	router.Register(app, cfg.CORSOrigins)

	server := &fasthttp.Server{
		Handler: composeHandler(app, router, cfg.PersistentConnections),
		Name:    "edge-sync",
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("addr", cfg.ListenAddr).
			Str("storage", cfg.CacheType).
			Bool("persistent_connections", cfg.PersistentConnections).
			Msg("server listening")
		errCh <- server.ListenAndServe(cfg.ListenAddr)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	if err := server.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
	return nil
}

// composeHandler routes the push-channel upgrade paths to raw fasthttp
// handlers (fiber v3 hides *fasthttp.RequestCtx) and everything else to
// the fiber app. Push endpoints exist only where the process can hold
// connections across requests.
func composeHandler(app *fiber.App, router *routes.Router, persistent bool) fasthttp.RequestHandler {
	appHandler := app.Handler()
	if !persistent {
		return appHandler
	}
	wsHandler := router.WebSocketHandler()
	sseHandler := router.SSEHandler()

	return func(ctx *fasthttp.RequestCtx) {
		path := string(ctx.Path())
		switch {
		case strings.HasPrefix(path, "/ws/"):
			wsHandler(ctx)
		case strings.HasPrefix(path, "/sse/"):
			sseHandler(ctx)
		default:
			appHandler(ctx)
		}
	}
}

func buildStorage(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (storage.KeyValueStore, queue.Queue, func(), error) {
	switch cfg.CacheType {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, nil, fmt.Errorf("redis unreachable at %s: %w", cfg.Redis.Addr, err)
		}
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("redis connected")

		store := storage.NewRedisStore(client, cfg.Redis.Prefix)
		q := queue.NewRedisQueue(client, cfg.Redis.Prefix, cfg.Queue.MaxLength, logger)
		return store, q, func() { _ = client.Close() }, nil

	case "memory":
		logger.Warn().Msg("memory storage selected: state will not survive restarts")
		return storage.NewMemoryStore(), queue.NewMemoryQueue(cfg.Queue.MaxLength), func() {}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unknown cache_type %q", cfg.CacheType)
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
