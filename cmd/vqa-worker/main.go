// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flyingrobots/vqa-workqueue/internal/monitor"
	"github.com/flyingrobots/vqa-workqueue/internal/obs"
	"github.com/flyingrobots/vqa-workqueue/internal/queue"
	"github.com/flyingrobots/vqa-workqueue/internal/svcconfig"
	"github.com/flyingrobots/vqa-workqueue/internal/worker"
)

// vqa-worker runs the Worker Coordinator (C8): a bounded-starvation
// round-robin dispatcher over the 87-queue topology. Corrective and
// management queue items are operator-visible work that this binary logs
// and otherwise leaves for a human or a downstream
// system to act on; it does not re-run the analysis pipeline itself (that
// is vqa-agent's job, driven by the external job lifecycle).
func main() {
	var configPath string
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/worker.yaml", "path to YAML config")
	_ = fs.Parse(os.Args[1:])

	cfg, err := svcconfig.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Redis.Addr,
		Username:     cfg.Redis.Username,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
		MaxRetries:   cfg.Redis.MaxRetries,
	})
	defer rdb.Close()
	store := queue.NewRedisStore(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mon := monitor.New(store, logger)
	mon.StartGaugeUpdater(ctx, 5*time.Second)

	coord := worker.New(store, worker.Config{
		Concurrency: cfg.WorkerCoordinator.Concurrency,
		IdleBackoff: cfg.WorkerCoordinator.IdleBackoff,
	}, logger)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("signal received, stopping worker coordinator")
		coord.Stop()
		cancel()
	}()

	process := func(ctx context.Context, queueName, raw string) error {
		obs.WorkerActive.Inc()
		defer obs.WorkerActive.Dec()

		kind, stage, analysisType := queue.ParseQueueName(queueName)
		switch kind {
		case queue.KindAnalysis:
			logger.Debug("analysis item dispatched", zap.String("queue", queueName), zap.String("analysis_type", string(analysisType)))
		case queue.KindCorrective:
			logger.Info("corrective item popped", zap.String("queue", queueName), zap.String("stage", string(stage)), zap.String("analysis_type", string(analysisType)))
		case queue.KindManagement:
			logger.Info("management item popped", zap.String("queue", queueName))
		default:
			logger.Warn("popped item from unrecognized queue", zap.String("queue", queueName))
		}
		return nil
	}

	if err := coord.Run(ctx, process); err != nil {
		logger.Fatal("worker coordinator exited with error", zap.Error(err))
	}
}
