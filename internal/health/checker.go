// Package health runs periodic probes of the service's backing
// dependencies and exposes an aggregated readiness view for /readyz.
package health

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds health check configuration.
type Config struct {
	CheckInterval time.Duration
	ProbeTimeout  time.Duration
	FailThreshold int
}

// Pinger probes a single dependency, such as a database pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// MetricsRecordFunc is an optional callback for recording probe results.
type MetricsRecordFunc func(dependency string, success bool)

type dependency struct {
	name   string
	pinger Pinger
}

// Checker runs periodic dependency probes. A dependency is marked
// degraded after FailThreshold consecutive failures and recovers on
// the first successful probe.
type Checker struct {
	deps       []dependency
	mu         sync.Mutex
	failCounts map[string]int
	degraded   map[string]bool
	cfg        Config
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// New creates a new Checker.
func New(cfg Config, logger *zap.Logger) *Checker {
	if cfg.CheckInterval == 0 {
		cfg.CheckInterval = 30 * time.Second
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}

	return &Checker{
		failCounts: make(map[string]int),
		degraded:   make(map[string]bool),
		cfg:        cfg,
		logger:     logger,
	}
}

// Register adds a named dependency to probe. Not safe to call after Start.
func (c *Checker) Register(name string, p Pinger) {
	c.deps = append(c.deps, dependency{name: name, pinger: p})
}

// SetMetricsRecord configures the metrics recording callback.
func (c *Checker) SetMetricsRecord(fn MetricsRecordFunc) {
	c.onMetrics = fn
}

// Start runs the probe loop until quit is signalled.
func (c *Checker) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(c.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.CheckInterval-time.Second)
			c.CheckAll(ctx)
			cancel()
		case <-quit:
			return
		}
	}
}

// CheckAll probes every registered dependency once.
func (c *Checker) CheckAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, d := range c.deps {
		wg.Add(1)
		go func(d dependency) {
			defer wg.Done()

			probeCtx, cancel := context.WithTimeout(ctx, c.cfg.ProbeTimeout)
			err := d.pinger.Ping(probeCtx)
			cancel()
			success := err == nil

			if c.onMetrics != nil {
				c.onMetrics(d.name, success)
			}

			c.mu.Lock()
			defer c.mu.Unlock()

			if success {
				if c.degraded[d.name] {
					c.logger.Info("health: recovered", zap.String("dependency", d.name))
				}
				c.failCounts[d.name] = 0
				c.degraded[d.name] = false
				return
			}

			c.failCounts[d.name]++
			if c.failCounts[d.name] == c.cfg.FailThreshold {
				c.degraded[d.name] = true
				c.logger.Warn("health: degraded",
					zap.String("dependency", d.name),
					zap.Int("fail_count", c.failCounts[d.name]),
					zap.Error(err),
				)
			}
		}(d)
	}
	wg.Wait()
}

// Ready reports whether all dependencies are healthy, plus per-dependency detail.
func (c *Checker) Ready() (bool, map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ready := true
	detail := make(map[string]string, len(c.deps))
	for _, d := range c.deps {
		if c.degraded[d.name] {
			ready = false
			detail[d.name] = "degraded"
		} else {
			detail[d.name] = "ok"
		}
	}
	return ready, detail
}
