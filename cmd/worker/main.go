package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/magiciincaidev/callassist/common/id"
	"github.com/magiciincaidev/callassist/common/logger"
	"github.com/magiciincaidev/callassist/core/config"
	"github.com/magiciincaidev/callassist/internal/queue"
	"github.com/magiciincaidev/callassist/internal/store"
	"github.com/magiciincaidev/callassist/internal/worker"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)
	logger.Setup(cfg)

	slog.InfoContext(ctx, "callassist sweeper starting",
		"env", cfg.Env,
		"interval", cfg.Constraints.SweepInterval,
		"max_waiting_time", cfg.Constraints.MaxWaitingTime)

	// Different node ID than the server so IDs never collide
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
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
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "event_stream", cfg.Redis.EventStream)

	sessionStore := store.NewRedisSessionStore(redisClient)
	events := queue.NewRedisPublisher(redisClient, cfg.Redis.EventStream, slog.Default())

	sweeper := worker.NewSweeper(sessionStore, events, worker.SweeperConfig{
		Interval: cfg.Constraints.SweepInterval,
	})

	go sweeper.Run(ctx)

	slog.InfoContext(ctx, "sweeper initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down sweeper...")
	sweeper.Stop()
	slog.InfoContext(ctx, "sweeper shutdown complete")
}

const banner = `
███████╗██╗    ██╗███████╗███████╗██████╗ ███████╗██████╗
██╔════╝██║    ██║██╔════╝██╔════╝██╔══██╗██╔════╝██╔══██╗
███████╗██║ █╗ ██║█████╗  █████╗  ██████╔╝█████╗  ██████╔╝
╚════██║██║███╗██║██╔══╝  ██╔══╝  ██╔═══╝ ██╔══╝  ██╔══██╗
███████║╚███╔███╔╝███████╗███████╗██║     ███████╗██║  ██║
╚══════╝ ╚══╝╚══╝ ╚══════╝╚══════╝╚═╝     ╚══════╝╚═╝  ╚═╝
`
