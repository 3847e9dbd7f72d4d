package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"mindgraph.app/grove/common/id"
	"mindgraph.app/grove/common/logger"
	"mindgraph.app/grove/core/config"
	"mindgraph.app/grove/core/db"
	"mindgraph.app/grove/internal/ai"
	"mindgraph.app/grove/internal/chain"
	"mindgraph.app/grove/internal/queue"
	"mindgraph.app/grove/internal/service"
	"mindgraph.app/grove/internal/store"
	"mindgraph.app/grove/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)
	logger.Setup(cfg)

	slog.InfoContext(ctx, "grove worker starting",
		"env", cfg.Env,
		"poll_interval", cfg.Worker.PollInterval,
		"concurrency", cfg.Worker.Concurrency)

	// Initialize snowflake ID generator (use different node ID than server)
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	database, err := db.New(ctx, cfg.DB)
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected")

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
	slog.InfoContext(ctx, "redis connected", "wake_channel", cfg.Redis.WakeChannel)

	listener := queue.NewRedisListener(redisClient, cfg.Redis.WakeChannel)
	defer listener.Close()

	// The worker enqueues retries itself, so it also wakes itself up.
	notifier := queue.NewRedisNotifier(redisClient, cfg.Redis.WakeChannel)
	defer notifier.Close()

	ledger, err := buildLedger(cfg.Ledger)
	if err != nil {
		slog.ErrorContext(ctx, "failed to initialize ledger client", "error", err)
		os.Exit(1)
	}

	provider := ai.New(ai.Config{
		Provider:      cfg.AI.Provider,
		Model:         cfg.AI.Model,
		Timeout:       cfg.AI.Timeout,
		OpenAIAPIKey:  cfg.AI.OpenAIAPIKey,
		OpenAIBaseURL: cfg.AI.OpenAIBaseURL,
		OllamaBaseURL: cfg.AI.OllamaBaseURL,
		OllamaAPIKey:  cfg.AI.OllamaAPIKey,
	})
	slog.InfoContext(ctx, "ai provider ready", "provider", cfg.AI.Provider, "model", provider.Model())

	stores := store.New(database)
	services := service.NewServices(stores, ledger, provider, notifier)

	w := worker.New(services.Enrichment(), listener.Wakeups(), worker.Config{
		PollInterval: cfg.Worker.PollInterval,
		Concurrency:  cfg.Worker.Concurrency,
	})

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		listener.Run(runCtx)
		errCh <- nil
	}()
	go func() {
		errCh <- w.Run(runCtx)
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	// Stop the wake listener first so no new dispatches arrive, then drain
	// in-flight jobs.
	cancel()
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

func buildLedger(cfg config.LedgerConfig) (chain.Ledger, error) {
	if cfg.DevLedger() {
		return chain.NewDevLedger(), nil
	}
	return chain.NewRelayer(chain.RelayerConfig{
		BaseURL: cfg.RelayerBaseURL,
		APIKey:  cfg.RelayerAPIKey,
		Timeout: cfg.Timeout,
	})
}

const banner = `
 ██████╗ ██████╗  ██████╗ ██╗   ██╗███████╗    ██╗    ██╗ ██████╗ ██████╗ ██╗  ██╗███████╗██████╗
██╔════╝ ██╔══██╗██╔═══██╗██║   ██║██╔════╝    ██║    ██║██╔═══██╗██╔══██╗██║ ██╔╝██╔════╝██╔══██╗
██║  ███╗██████╔╝██║   ██║██║   ██║█████╗      ██║ █╗ ██║██║   ██║██████╔╝█████╔╝ █████╗  ██████╔╝
██║   ██║██╔══██╗██║   ██║╚██╗ ██╔╝██╔══╝      ██║███╗██║██║   ██║██╔══██╗██╔═██╗ ██╔══╝  ██╔══██╗
╚██████╔╝██║  ██║╚██████╔╝ ╚████╔╝ ███████╗    ╚███╔███╔╝╚██████╔╝██║  ██║██║  ██╗███████╗██║  ██║
 ╚═════╝ ╚═╝  ╚═╝ ╚═════╝   ╚═══╝  ╚══════╝     ╚══╝╚══╝  ╚═════╝ ╚═╝  ╚═╝╚═╝  ╚═╝╚══════╝╚═╝  ╚═╝
`
