// Package worker runs the background jobs: the SLA alert scanner and the
// scheduled workload rebalance.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/domain"
	"github.com/spec-kit/helpdesk-sla/internal/observability"
)

var (
	// ErrScanInProgress is returned when a pass is already running here.
	ErrScanInProgress = errors.New("sla scan already in progress")
	// ErrLeaseHeld is returned when another instance owns the scan lease.
	ErrLeaseHeld = errors.New("sla scan lease held by another instance")
)

// DefaultScanInterval is used when the configured interval is not positive.
const DefaultScanInterval = time.Minute

// Scanner produces SLA alerts and dispatches their notifications.
type Scanner interface {
	Scan(ctx context.Context) ([]domain.TicketAlert, error)
}

// Snapshot is the outcome of the latest completed pass.
type Snapshot struct {
	Alerts    []domain.TicketAlert `json:"alerts"`
	ScannedAt time.Time            `json:"scanned_at"`
	Duration  time.Duration        `json:"-"`
}

// AlertWorker polls the scanner on a fixed interval, independent of any client.
type AlertWorker struct {
	scanner  Scanner
	leaser   Leaser
	interval time.Duration
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	running atomic.Bool
	mu      sync.RWMutex
	latest  Snapshot
}

// AlertWorkerOptions configures the worker. Leaser may be nil for a single instance.
type AlertWorkerOptions struct {
	Scanner  Scanner
	Leaser   Leaser
	Interval time.Duration
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Now      func() time.Time
}

// NewAlertWorker builds the worker.
func NewAlertWorker(opts AlertWorkerOptions) *AlertWorker {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultScanInterval
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &AlertWorker{
		scanner:  opts.Scanner,
		leaser:   opts.Leaser,
		interval: interval,
		logger:   logger.Named("sla_scanner"),
		metrics:  opts.Metrics,
		now:      now,
		latest:   Snapshot{Alerts: []domain.TicketAlert{}},
	}
}

// Run scans once immediately and then on every tick until ctx is cancelled.
func (w *AlertWorker) Run(ctx context.Context) {
	w.logger.Info("sla scanner started", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sla scanner stopped")
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *AlertWorker) tick(ctx context.Context) {
	if _, err := w.runPass(ctx); err != nil {
		switch {
		case errors.Is(err, ErrScanInProgress), errors.Is(err, ErrLeaseHeld):
			w.logger.Debug("sla scan skipped", zap.Error(err))
		case ctx.Err() != nil:
			// shutting down
		default:
			w.logger.Error("sla scan failed", zap.Error(err))
		}
	}
}

// Refresh runs a pass on demand and returns its snapshot.
func (w *AlertWorker) Refresh(ctx context.Context) (Snapshot, error) {
	return w.runPass(ctx)
}

// Latest returns the snapshot of the last completed pass.
func (w *AlertWorker) Latest() Snapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return copySnapshot(w.latest)
}

func (w *AlertWorker) runPass(ctx context.Context) (Snapshot, error) {
	if !w.running.CompareAndSwap(false, true) {
		w.metrics.RecordScan("skipped", 0)
		return Snapshot{}, ErrScanInProgress
	}
	defer w.running.Store(false)

	if w.leaser != nil {
		release, ok, err := w.leaser.Acquire(ctx)
		if err != nil {
			// Redis trouble must not stop alerting; scan without the lease.
			w.logger.Warn("acquire scan lease", zap.Error(err))
		} else if !ok {
			w.metrics.RecordScan("skipped", 0)
			return Snapshot{}, ErrLeaseHeld
		} else {
			defer release()
		}
	}

	started := w.now()
	alerts, err := w.scanner.Scan(ctx)
	elapsed := w.now().Sub(started)
	if err != nil {
		w.metrics.RecordScan("failed", elapsed)
		return Snapshot{}, err
	}
	w.metrics.RecordScan("completed", elapsed)

	snap := Snapshot{Alerts: alerts, ScannedAt: started, Duration: elapsed}
	if snap.Alerts == nil {
		snap.Alerts = []domain.TicketAlert{}
	}
	w.mu.Lock()
	w.latest = snap
	w.mu.Unlock()

	w.logger.Debug("sla scan completed", zap.Int("alerts", len(alerts)), zap.Duration("duration", elapsed))
	return copySnapshot(snap), nil
}

func copySnapshot(s Snapshot) Snapshot {
	s.Alerts = append([]domain.TicketAlert{}, s.Alerts...)
	return s
}
