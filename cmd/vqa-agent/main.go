// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/flyingrobots/vqa-workqueue/internal/analysisconfig"
	"github.com/flyingrobots/vqa-workqueue/internal/corrective"
	"github.com/flyingrobots/vqa-workqueue/internal/goflow"
	"github.com/flyingrobots/vqa-workqueue/internal/modelclient"
	"github.com/flyingrobots/vqa-workqueue/internal/obs"
	"github.com/flyingrobots/vqa-workqueue/internal/qa"
	"github.com/flyingrobots/vqa-workqueue/internal/queue"
	"github.com/flyingrobots/vqa-workqueue/internal/state/sqlstore"
	"github.com/flyingrobots/vqa-workqueue/internal/svcconfig"
	"github.com/flyingrobots/vqa-workqueue/internal/workflow"
)

// vqa-agent drives the Job Lifecycle Driver (C11): it pulls jobs from the
// external job driver RPC, runs them through the Analysis Workflow Engine
// (C7, with the QA Orchestrator wired in), re-enqueues low-confidence
// results onto a corrective queue, records the outcome, and reports status
// back upstream.
func main() {
	var configPath string
	var ollamaBase string
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&configPath, "config", "config/agent.yaml", "path to YAML config")
	fs.StringVar(&ollamaBase, "ollama-base", "http://localhost:11434", "model provider API base")
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

	registry := analysisconfig.NewRegistry()
	if _, err := registry.LoadAll(cfg.AnalysisConfigDir); err != nil {
		logger.Fatal("failed to load analysis config directory", zap.Error(err))
	}

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

	recorder, err := sqlstore.Open(ctx, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to open state store", zap.Error(err))
	}
	defer recorder.Close()

	provider := modelclient.NewOllamaProvider(ollamaBase, nil)

	qaOrchestrator := qa.NewOrchestrator(cfg.QA.MaxConcurrency)
	// Concrete QA agents are registered by an embedding deployment once the
	// validation prompts for each stage are available; an empty registry
	// degrades RunSequential to a zero-result, zero-confidence pass, which
	// is why the corrective threshold check below treats "no QA ran" the
	// same as "QA failed everything".

	engine := workflow.NewEngine(registry, modelclient.NewCaller(provider), qaOrchestrator, workflow.Config{
		MaxConcurrency: int64(cfg.AnalysisEngine.MaxConcurrency),
		TimeoutSeconds: cfg.AnalysisEngine.TimeoutSeconds,
		GPUCores:       cfg.AnalysisEngine.GPUCores,
	})

	correctiveCfg := corrective.DefaultConfig(queue.ManagementManualReview)
	correctiveCfg.AggregateThreshold = cfg.QA.CorrectiveThreshold

	engine.OnQAResult = func(job workflow.AnalysisJob, result qa.OrchestratorResult) {
		if job.TaskID == "" {
			return
		}
		triggerCfg := correctiveCfg
		triggerCfg.QueueName = queue.CorrectiveQueueName(analysisconfig.Structural, job.AnalysisType)
		res, err := corrective.TriggerIfNeeded(ctx, store, job.TaskID, result, triggerCfg)
		if err != nil {
			logger.Warn("corrective trigger failed", zap.String("task_id", job.TaskID), zap.Error(err))
			return
		}
		if res.Triggered {
			obs.CorrectiveTriggered.Inc()
			logger.Info("corrective trigger fired", zap.String("task_id", job.TaskID), zap.String("reason", res.Reason))
		}
	}

	client := goflow.NewClient(goflow.ClientConfig{
		BaseURL:     cfg.GoFlow.BaseURL,
		BearerToken: cfg.GoFlow.BearerToken,
		MaxAttempts: cfg.GoFlow.MaxAttempts,
	}, logger)
	driver := goflow.NewDriver(client, logger)

	process := func(ctx context.Context, job *goflow.Job) (map[string]interface{}, error) {
		analysisType, _ := job.Payload["analysis_type"].(string)
		base64Image, _ := job.Payload["base64_image"].(string)

		taskID, err := recorder.CreateTask(ctx, analysisType, "processing")
		if err != nil {
			return nil, err
		}
		processID, err := recorder.CreateProcess(ctx, taskID, "vqa-agent", "running")
		if err != nil {
			return nil, err
		}

		results := engine.RunBatch(ctx, []workflow.AnalysisJob{{
			TaskID:       taskID,
			AnalysisType: analysisconfig.AnalysisType(analysisType),
			Base64Image:  base64Image,
		}})
		result := results[0]

		if !result.Success {
			obs.JobsFailed.Inc()
			_ = recorder.UpdateTaskStatus(ctx, taskID, "failed")
			_ = recorder.UpdateProcess(ctx, processID, "failed")
			return nil, fmt.Errorf("analysis failed: %s", result.Error)
		}

		obs.JobsCompleted.Inc()
		_ = recorder.UpdateTaskStatus(ctx, taskID, "completed")
		_ = recorder.UpdateProcess(ctx, processID, "completed")
		_, _ = recorder.AppendAudit(ctx, processID, "analysis_completed", map[string]interface{}{
			"gpu_id": result.GPUID,
		})

		content := map[string]interface{}{"text": *result.Content}
		if result.QA != nil {
			content["qa_aggregate_confidence"] = result.QA.AggregateConfidence
		}
		return content, nil
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("signal received, shutting down agent")
		cancel()
	}()

	pollHz := cfg.GoFlow.PollHz
	if pollHz <= 0 {
		pollHz = 0.5
	}
	driver.Run(ctx, process, cfg.GoFlow.RequestReports, pollHz)
}
