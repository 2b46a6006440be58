package main

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// HistoryPurger removes signed-document history older than a cutoff.
type HistoryPurger interface {
	PurgeExpired(ctx context.Context, cutoff time.Time, batch int) (int, error)
}

// EnvelopePurger removes drafts and voided envelopes untouched since a cutoff.
type EnvelopePurger interface {
	PurgeStale(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// CleanupWorkerConfig configuration for the cleanup worker
type CleanupWorkerConfig struct {
	Schedule  string
	Retention time.Duration
	BatchSize int
	// MaxBatches bounds the batches drained per run.
	MaxBatches int
}

// DefaultCleanupWorkerConfig returns default configuration
func DefaultCleanupWorkerConfig() CleanupWorkerConfig {
	return CleanupWorkerConfig{
		Schedule:   "@every 15m",
		Retention:  30 * 24 * time.Hour,
		BatchSize:  100,
		MaxBatches: 50,
	}
}

// CleanupResult counts what a run removed.
type CleanupResult struct {
	Documents int
	Envelopes int
}

// CleanupWorker purges expired history and stale envelopes on a cron
// schedule.
type CleanupWorker struct {
	cron      *cron.Cron
	history   HistoryPurger
	envelopes EnvelopePurger
	config    CleanupWorkerConfig
	logger    *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	running bool
}

func NewCleanupWorker(history HistoryPurger, envelopes EnvelopePurger, logger *zap.Logger, config CleanupWorkerConfig) *CleanupWorker {
	def := DefaultCleanupWorkerConfig()
	if config.Schedule == "" {
		config.Schedule = def.Schedule
	}
	if config.Retention <= 0 {
		config.Retention = def.Retention
	}
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.MaxBatches <= 0 {
		config.MaxBatches = def.MaxBatches
	}
	return &CleanupWorker{
		cron:      cron.New(),
		history:   history,
		envelopes: envelopes,
		config:    config,
		logger:    logger,
		now:       time.Now,
	}
}

// Start runs a cleanup immediately and then on every schedule tick until
// ctx is cancelled. Runs never overlap.
func (w *CleanupWorker) Start(ctx context.Context) error {
	if _, err := w.cron.AddFunc(w.config.Schedule, func() { w.tick(ctx) }); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", w.config.Schedule, err)
	}

	w.logger.Info("Starting cleanup worker",
		zap.String("schedule", w.config.Schedule),
		zap.Duration("retention", w.config.Retention))

	w.tick(ctx)
	w.cron.Start()

	<-ctx.Done()
	stopped := w.cron.Stop()
	<-stopped.Done()
	w.logger.Info("Cleanup worker shutting down")
	return nil
}

func (w *CleanupWorker) tick(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Warn("Previous cleanup still running, skipping tick")
		return
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	result, err := w.RunOnce(ctx)
	if err != nil {
		w.logger.Error("Cleanup run failed",
			zap.Int("documents", result.Documents),
			zap.Int("envelopes", result.Envelopes),
			zap.Error(err))
		return
	}
	w.logger.Info("Cleanup run completed",
		zap.Int("documents", result.Documents),
		zap.Int("envelopes", result.Envelopes))
}

// RunOnce drains both purgers in batches until a batch comes back short.
func (w *CleanupWorker) RunOnce(ctx context.Context) (CleanupResult, error) {
	cutoff := w.now().Add(-w.config.Retention)
	var result CleanupResult

	docs, docErr := w.drain(ctx, func(ctx context.Context) (int, error) {
		return w.history.PurgeExpired(ctx, cutoff, w.config.BatchSize)
	})
	result.Documents = docs

	envs, envErr := w.drain(ctx, func(ctx context.Context) (int, error) {
		return w.envelopes.PurgeStale(ctx, cutoff, w.config.BatchSize)
	})
	result.Envelopes = envs

	return result, errors.Join(docErr, envErr)
}

func (w *CleanupWorker) drain(ctx context.Context, purge func(context.Context) (int, error)) (int, error) {
	total := 0
	for i := 0; i < w.config.MaxBatches; i++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, err := purge(ctx)
		total += n
		if err != nil {
			return total, err
		}
		if n < w.config.BatchSize {
			break
		}
	}
	return total, nil
}
