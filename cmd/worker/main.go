package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/campfees/installments/internal/app"
	"github.com/campfees/installments/internal/messaging"
	"github.com/campfees/installments/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("invalid worker config", slog.Any("error", err))
		os.Exit(1)
	}

	svc, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap", slog.Any("error", err))
		os.Exit(1)
	}
	defer svc.Close()

	passJob := svc.SchedulingPassJob()
	cleanupJob := jobs.NewClaimsCleanupJob(svc.Claims, logger, svc.JobMetrics)

	passTask, err := jobs.NewSchedulingPassTask(nil)
	if err != nil {
		logger.Error("build pass task", slog.Any("error", err))
		os.Exit(1)
	}
	cleanupTask, err := jobs.NewClaimsCleanupTask(jobs.DefaultClaimRetentionDays)
	if err != nil {
		logger.Error("build cleanup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    cfg.Location(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSchedulingPass, Handler: passJob.Handle},
			{Type: jobs.TaskClaimsCleanup, Handler: cleanupJob.Handle},
			{Type: messaging.TaskTypeDeliverReminder, Handler: svc.Email.HandleDeliverTask},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.PassCron, Task: passTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3)}},
			{Spec: cfg.CleanupCron, Task: cleanupTask, Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           svc.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving worker metrics", slog.String("addr", cfg.WorkerMetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker",
		slog.String("pass_cron", cfg.PassCron),
		slog.String("cleanup_cron", cfg.CleanupCron),
		slog.String("timezone", cfg.Location().String()),
	)
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
