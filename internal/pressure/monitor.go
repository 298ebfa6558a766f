// Package pressure samples resource usage on an independent periodic timer
// and classifies it into pressure tiers. The monitor never mutates worker
// records: tier changes are published on the event bus and handed to
// registered handlers, which re-enter the coordinator's serialized path.
package pressure

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/Iron-Ham/wrangler/internal/event"
	"github.com/Iron-Ham/wrangler/internal/logging"
)

// Counts supplies the live worker and process counts for a sample. The
// coordinator provides this; the monitor holds no worker references.
type Counts func() (activeWorkers, activeProcesses int)

// Handler is invoked on every tier change with the new classification.
type Handler func(old Tier, c Classification)

// Monitor periodically samples resources and classifies pressure.
type Monitor struct {
	mu         sync.Mutex
	thresholds Thresholds
	counts     Counts
	bus        *event.Bus
	handlers   []Handler
	interval   time.Duration
	current    Tier
	memSample  func() int // overridable for tests
	cancel     context.CancelFunc
	logger     *logging.Logger
}

// NewMonitor creates a Monitor. bus may be nil to disable publication.
func NewMonitor(thresholds Thresholds, interval time.Duration, counts Counts, bus *event.Bus, logger *logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Monitor{
		thresholds: thresholds,
		counts:     counts,
		bus:        bus,
		interval:   interval,
		current:    TierNormal,
		memSample:  heapMB,
		logger:     logger,
	}
}

// heapMB reads the current heap usage in megabytes.
func heapMB() int {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return int(ms.HeapAlloc / (1024 * 1024))
}

// SetThresholds swaps the thresholds used for subsequent evaluations.
func (m *Monitor) SetThresholds(t Thresholds) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.thresholds = t
}

// OnChange registers a handler invoked on every tier change.
func (m *Monitor) OnChange(h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

// Current returns the most recently classified tier.
func (m *Monitor) Current() Tier {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Start begins periodic sampling until the context is cancelled or Stop is
// called. It returns immediately; sampling runs on its own goroutine.
func (m *Monitor) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.cancel = cancel
	interval := m.interval
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Evaluate()
			}
		}
	}()
}

// Stop halts periodic sampling.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Evaluate takes one sample, classifies it, and dispatches a change if the
// tier moved. Exposed so tests and the coordinator can force an evaluation
// without waiting for the ticker. Returns the classification.
func (m *Monitor) Evaluate() Classification {
	workers, processes := 0, 0
	if m.counts != nil {
		workers, processes = m.counts()
	}

	m.mu.Lock()
	sample := Sample{
		MemoryMB:        m.memSample(),
		ActiveWorkers:   workers,
		ActiveProcesses: processes,
	}
	c := m.thresholds.Classify(sample)
	old := m.current
	changed := c.Tier != old
	if changed {
		m.current = c.Tier
	}
	handlers := make([]Handler, len(m.handlers))
	copy(handlers, m.handlers)
	bus := m.bus
	m.mu.Unlock()

	if !changed {
		return c
	}

	m.logger.Info("pressure tier changed",
		"old_tier", old.String(),
		"new_tier", c.Tier.String(),
		"reason", c.Reason,
		"memory_mb", sample.MemoryMB,
		"active_workers", sample.ActiveWorkers,
		"active_processes", sample.ActiveProcesses)

	if bus != nil {
		bus.Publish(event.NewPressureChangedEvent(old.String(), c.Tier.String(), c.Reason))
	}
	for _, h := range handlers {
		h(old, c)
	}
	return c
}

// setMemSampler replaces the memory reading function. Test hook.
func (m *Monitor) setMemSampler(f func() int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.memSample = f
}
