package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/magiciincaidev/callassist/common/id"
	"github.com/magiciincaidev/callassist/common/logger"
	"github.com/magiciincaidev/callassist/common/otel"
	"github.com/magiciincaidev/callassist/core/config"
	"github.com/magiciincaidev/callassist/internal/http/middleware"
	httprouter "github.com/magiciincaidev/callassist/internal/http/router"
	"github.com/magiciincaidev/callassist/internal/queue"
	"github.com/magiciincaidev/callassist/internal/service"
	"github.com/magiciincaidev/callassist/internal/store"
	"github.com/magiciincaidev/callassist/internal/suggest"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeServer)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		// Can't use slog yet — OTel failed before logger setup
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "callassist starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	slog.InfoContext(ctx, "redis connected", "event_stream", cfg.Redis.EventStream)

	sessionStore := store.NewRedisSessionStore(redisClient)
	events := queue.NewRedisPublisher(redisClient, cfg.Redis.EventStream, slog.Default())
	defer events.Close()
	watcher := queue.NewRedisWatcher(redisClient, cfg.Redis.EventStream)

	suggestions := suggest.New(cfg.OpenAI)
	if cfg.OpenAI.Enabled() {
		slog.InfoContext(ctx, "suggestion service in live mode", "model", cfg.OpenAI.Model)
	} else {
		slog.InfoContext(ctx, "suggestion service in mock mode (no api key configured)")
	}

	calls := service.NewCallService(sessionStore, events, suggestions, cfg.Constraints)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, calls, watcher)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.ErrorContext(ctx, "http server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
	}

	if telemetry != nil {
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(shutdownCtx, "shutdown complete")
}

func setupRouter(cfg config.Config, calls service.CallService, watcher queue.Watcher) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, calls, watcher, httprouter.RouterConfig{
		WatchBlock: cfg.Constraints.WatchBlock,
	})

	return router
}

const banner = `
 ██████╗ █████╗ ██╗     ██╗         █████╗ ███████╗███████╗██╗███████╗████████╗
██╔════╝██╔══██╗██║     ██║        ██╔══██╗██╔════╝██╔════╝██║██╔════╝╚══██╔══╝
██║     ███████║██║     ██║        ███████║███████╗███████╗██║███████╗   ██║
██║     ██╔══██║██║     ██║        ██╔══██║╚════██║╚════██║██║╚════██║   ██║
╚██████╗██║  ██║███████╗███████╗   ██║  ██║███████║███████║██║███████║   ██║
 ╚═════╝╚═╝  ╚═╝╚══════╝╚══════╝   ╚═╝  ╚═╝╚══════╝╚══════╝╚═╝╚══════╝   ╚═╝
`
