package scheduler

import (
	"context"
	"fmt"

	auditrepo "fleetcore_backend/internal/audit/repository"
	auditservice "fleetcore_backend/internal/audit/service"
	"fleetcore_backend/internal/events"
	"fleetcore_backend/platform/config"
	"fleetcore_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	audit  *auditservice.Service
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, bus events.Bus, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queue: 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		audit:  auditservice.New(auditrepo.New(pool), bus, log),
		log:    log,
	}

	mux.HandleFunc(TaskAuditRetentionPurge, w.handleRetentionPurge)
	mux.HandleFunc(TaskAuditSuspiciousSweep, w.handleSuspiciousSweep)

	return w, nil
}

func (w *Worker) handleRetentionPurge(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseAuditRetentionPurgePayload(task)
	if err != nil {
		return err
	}

	purged, err := w.audit.PurgeExpired(ctx)
	if err != nil {
		return err
	}

	w.log.Info("audit retention purge completed",
		"purged", purged, "requestedAt", payload.RequestedAt)
	return nil
}

func (w *Worker) handleSuspiciousSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseAuditSuspiciousSweepPayload(task)
	if err != nil {
		return err
	}

	flagged, err := w.audit.SweepSuspiciousBehavior(ctx, payload.WindowMinutes)
	if err != nil {
		return err
	}

	if flagged > 0 {
		w.log.Warn("suspicious behavior sweep flagged members", "flagged", flagged)
	} else {
		w.log.Debug("suspicious behavior sweep clean")
	}
	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
