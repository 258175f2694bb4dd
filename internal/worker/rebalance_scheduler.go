package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-sla/internal/observability"
	"github.com/spec-kit/helpdesk-sla/internal/service"
)

// Rebalancer evens out agent workload.
type Rebalancer interface {
	Rebalance(ctx context.Context) (service.RebalanceResult, error)
}

// RebalanceScheduler runs the rebalancer on a standard 5-field cron
// expression (minute hour day-of-month month day-of-week).
type RebalanceScheduler struct {
	cron       *cron.Cron
	rebalancer Rebalancer
	logger     *zap.Logger
	timeout    time.Duration
	spec       string
}

// NewRebalanceScheduler parses schedule and registers the job. An empty
// schedule disables the scheduler and returns nil.
func NewRebalanceScheduler(schedule string, rebalancer Rebalancer, logger *zap.Logger) (*RebalanceScheduler, error) {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		return nil, nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	cronLogger := observability.NewCronLogger(logger)
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(time.UTC),
		cron.WithLogger(cronLogger),
		cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
	)
	s := &RebalanceScheduler{
		cron:       c,
		rebalancer: rebalancer,
		logger:     logger.Named("rebalance"),
		timeout:    time.Minute,
		spec:       schedule,
	}
	if _, err := c.AddFunc(schedule, s.run); err != nil {
		return nil, fmt.Errorf("invalid rebalance schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start launches the cron loop in its own goroutine.
func (s *RebalanceScheduler) Start() {
	if s == nil {
		return
	}
	s.cron.Start()
	entries := s.cron.Entries()
	if len(entries) > 0 {
		s.logger.Info("rebalance scheduled", zap.String("cron", s.spec), zap.Time("next", entries[0].Next))
	}
}

// Stop halts scheduling and waits for a running job to finish or ctx to expire.
func (s *RebalanceScheduler) Stop(ctx context.Context) {
	if s == nil {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("rebalance still running at shutdown")
	}
}

func (s *RebalanceScheduler) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	result, err := s.rebalancer.Rebalance(ctx)
	if err != nil {
		s.logger.Error("scheduled rebalance failed", zap.Error(err))
		return
	}
	s.logger.Debug("scheduled rebalance finished",
		zap.Int("moved", result.Moved),
		zap.Int("max_load", result.MaxLoad),
		zap.Int("min_load", result.MinLoad),
	)
}
