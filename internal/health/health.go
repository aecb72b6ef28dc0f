// Package health probes backends and watches them in the background.
package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kamilpajak/testpilot/internal/observability"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 5 * time.Second

// ErrUnhealthy is reported by probers that only know healthy or not.
var ErrUnhealthy = errors.New("backend reported unhealthy")

// Prober checks a backend once. Any error means unhealthy.
type Prober interface {
	Ping(ctx context.Context) error
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context) error

func (f ProberFunc) Ping(ctx context.Context) error { return f(ctx) }

// FromCheck adapts a boolean health check to Prober.
func FromCheck(check func(ctx context.Context) bool) Prober {
	return ProberFunc(func(ctx context.Context) error {
		if check(ctx) {
			return nil
		}
		return ErrUnhealthy
	})
}

// Monitor runs bounded probes against one backend.
type Monitor struct {
	name    string
	prober  Prober
	timeout time.Duration
	logger  *zap.Logger
	metrics *observability.Metrics
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithTimeout bounds each probe.
func WithTimeout(d time.Duration) Option {
	return func(m *Monitor) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Monitor) { m.logger = l.Named("health") }
}

// WithMetrics counts probe results.
func WithMetrics(metrics *observability.Metrics) Option {
	return func(m *Monitor) { m.metrics = metrics }
}

// NewMonitor creates a monitor for the backend called name.
func NewMonitor(name string, p Prober, opts ...Option) *Monitor {
	m := &Monitor{
		name:    name,
		prober:  p,
		timeout: DefaultTimeout,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Check probes the backend. Timeouts, errors and panics all count as
// unhealthy; Check itself never fails.
func (m *Monitor) Check(ctx context.Context) bool {
	err := m.probe(ctx)
	healthy := err == nil
	m.metrics.RecordProbe(m.name, healthy)
	if !healthy {
		m.logger.Debug("Backend unhealthy", zap.String("backend", m.name), zap.Error(err))
	}
	return healthy
}

func (m *Monitor) probe(ctx context.Context) (err error) {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()
	return m.prober.Ping(ctx)
}

// Poller calls a health check on a fixed interval until its context ends.
type Poller struct {
	interval time.Duration
	check    func(ctx context.Context) bool
	logger   *zap.Logger
}

// NewPoller creates a poller. A nil logger disables logging.
func NewPoller(interval time.Duration, check func(ctx context.Context) bool, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{interval: interval, check: check, logger: logger.Named("poller")}
}

// Run checks once immediately and then on every tick. It blocks until ctx
// is done. A non-positive interval returns at once.
func (p *Poller) Run(ctx context.Context) {
	if p.interval <= 0 {
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		healthy := p.check(ctx)
		p.logger.Debug("Health poll", zap.Bool("healthy", healthy))

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
