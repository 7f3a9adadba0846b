package reconciliation_worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
	"github.com/zynpay/zynpay_service/pkg/metrics"
)

// Reconciler is the part of the settlement coordinator the worker drives.
type Reconciler interface {
	ListOpen(ctx context.Context, limit int) ([]*entities.Reconciliation, error)
	Resume(ctx context.Context, rec *entities.Reconciliation) error
}

type Config struct {
	Schedule  string
	BatchSize int
	// MinAge skips markers touched recently, which are usually still being
	// handled by the request that created them.
	MinAge time.Duration
	// RunTimeout bounds one sweep.
	RunTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Schedule:   "@every 1m",
		BatchSize:  100,
		MinAge:     30 * time.Second,
		RunTimeout: 5 * time.Minute,
	}
}

// Worker periodically moves open reconciliation markers forward.
type Worker struct {
	reconciler Reconciler
	config     Config
	cron       *cron.Cron
	logger     *zap.Logger
	now        func() time.Time

	runsCounter       metric.Int64Counter
	resumedCounter    metric.Int64Counter
	durationHistogram metric.Float64Histogram
}

func NewWorker(reconciler Reconciler, config Config, logger *zap.Logger) (*Worker, error) {
	defaults := DefaultConfig()
	if config.Schedule == "" {
		config.Schedule = defaults.Schedule
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = defaults.RunTimeout
	}

	meter := otel.Meter("settlement-reconciliation")

	runsCounter, err := meter.Int64Counter(
		"reconciliation.sweeps.total",
		metric.WithDescription("Total number of reconciliation sweeps"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create sweeps counter: %w", err)
	}

	resumedCounter, err := meter.Int64Counter(
		"reconciliation.resumed.total",
		metric.WithDescription("Markers resumed by the worker, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resumed counter: %w", err)
	}

	durationHistogram, err := meter.Float64Histogram(
		"reconciliation.sweep.duration.seconds",
		metric.WithDescription("Reconciliation sweep duration in seconds"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &Worker{
		reconciler:        reconciler,
		config:            config,
		cron:              cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		logger:            logger,
		now:               time.Now,
		runsCounter:       runsCounter,
		resumedCounter:    resumedCounter,
		durationHistogram: durationHistogram,
	}, nil
}

func (w *Worker) Start() error {
	_, err := w.cron.AddFunc(w.config.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), w.config.RunTimeout)
		defer cancel()

		if err := w.RunOnce(ctx); err != nil {
			w.logger.Error("Reconciliation sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return err
	}

	w.cron.Start()
	w.logger.Info("Reconciliation worker started", zap.String("schedule", w.config.Schedule))
	return nil
}

// Shutdown waits for a running sweep to finish or ctx to end.
func (w *Worker) Shutdown(ctx context.Context) error {
	done := w.cron.Stop()
	select {
	case <-done.Done():
		w.logger.Info("Reconciliation worker stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunOnce resumes every open marker old enough to be abandoned.
func (w *Worker) RunOnce(ctx context.Context) error {
	start := time.Now()
	w.runsCounter.Add(ctx, 1)

	open, err := w.reconciler.ListOpen(ctx, w.config.BatchSize)
	if err != nil {
		return err
	}
	metrics.OpenReconciliations.Set(float64(len(open)))

	cutoff := w.now().Add(-w.config.MinAge)
	var resumed, failed int
	for _, rec := range open {
		if ctx.Err() != nil {
			break
		}
		if rec.UpdatedAt.After(cutoff) {
			continue
		}
		if err := w.reconciler.Resume(ctx, rec); err != nil {
			failed++
			w.logger.Warn("Failed to resume reconciliation",
				zap.String("reconciliation_id", rec.ID.String()),
				zap.String("state", string(rec.State)),
				zap.Error(err))
			continue
		}
		resumed++
	}

	w.resumedCounter.Add(ctx, int64(resumed), metric.WithAttributes(attribute.String("outcome", "ok")))
	w.resumedCounter.Add(ctx, int64(failed), metric.WithAttributes(attribute.String("outcome", "error")))
	w.durationHistogram.Record(ctx, time.Since(start).Seconds())

	if resumed > 0 || failed > 0 {
		w.logger.Info("Reconciliation sweep finished",
			zap.Int("open", len(open)),
			zap.Int("resumed", resumed),
			zap.Int("failed", failed))
	}
	return nil
}
