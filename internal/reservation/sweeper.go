package reservation

import (
	"context"
	"sync"
	"time"

	"github.com/hydr0g3nz/tcg_order_core/internal/metrics"
	"github.com/hydr0g3nz/tcg_order_core/pkg/logger"
)

const DefaultSweepInterval = 5 * time.Minute

// Sweeper runs Engine.SweepExpired on a fixed interval (spec.md §5,
// RESERVATION_SWEEP_INTERVAL_MINUTES, default 5m), mirroring the
// start/stop goroutine-lifecycle shape the teacher uses for its Kafka
// consumer loop.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	log      logger.Logger

	metrics *metrics.Metrics

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// WithMetrics attaches a metrics collector recording sweep counts and
// durations. Optional.
func (s *Sweeper) WithMetrics(m *metrics.Metrics) *Sweeper {
	s.metrics = m
	return s
}

func NewSweeper(engine *Engine, interval time.Duration, log logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		engine:   engine,
		interval: interval,
		log:      log,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the sweep loop in a background goroutine until Stop is
// called or ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Sweeper) run(ctx context.Context) {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	start := time.Now()
	count, err := s.engine.SweepExpired(ctx, start)
	if err != nil {
		s.log.Error("reservation sweep failed", "error", err)
		return
	}
	if s.metrics != nil {
		s.metrics.ObserveSweep(count, time.Since(start))
	}
	if count > 0 {
		s.log.Info("expired reservations swept", "count", count)
	}
}

// Stop signals the sweep loop to exit and blocks until it has.
func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.doneCh
}
