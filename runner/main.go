package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aeolus-labs/aeolus-go/internal/execution/executor/dryrun"
	"github.com/aeolus-labs/aeolus-go/internal/execution/scheduler"
	"github.com/aeolus-labs/aeolus-go/internal/platform/env"
	"github.com/aeolus-labs/aeolus-go/internal/platform/objectstore"
	"github.com/aeolus-labs/aeolus-go/internal/platform/postgres"
	repopg "github.com/aeolus-labs/aeolus-go/internal/repo/postgres"
	storageobjectstore "github.com/aeolus-labs/aeolus-go/internal/storage/objectstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	interval, err := env.Duration("RUNNER_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	claimBatch, err := env.Int("RUNNER_CLAIM_BATCH", 5)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	workers, err := env.Int("RUNNER_WORKERS", scheduler.DefaultWorkers)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	runStore := repopg.NewRunStore(db)
	planStore := repopg.NewPlanStore(db)
	executionStore := repopg.NewScriptExecutionStore(db)

	objectStore, err := storageobjectstore.NewMinioStoreWithClient(storeClient)
	if err != nil {
		logger.Error("object store init failed", "error", err)
		os.Exit(2)
	}
	documentStore, err := storageobjectstore.NewDocumentStore(objectStore, storeCfg.BucketRecipes, storeCfg.BucketOutputs)
	if err != nil {
		logger.Error("document store init failed", "error", err)
		os.Exit(2)
	}

	sched := scheduler.New(dryrun.New(), executionStore, logger, workers)
	worker := newRunnerWorker(logger, runStore, planStore, executionStore, sched, documentStore, db, runnerConfig{
		Interval:   interval,
		ClaimBatch: claimBatch,
		Workers:    workers,
	})

	logger.Info("runner started", "poll_interval", interval.String(), "claim_batch", claimBatch, "workers", workers)
	worker.run(ctx)
	logger.Info("runner stopped")
}
