// Package pool implements the bounded cache of idle, reusable workers.
// Workers are keyed by role: acquire reuses a pooled worker of the same role
// when one exists and creates a fresh one otherwise, always returning it in
// Initializing so per-assignment setup is redone. The pool owns its entries'
// records while they are pooled; the coordinator owns them everywhere else.
package pool

import (
	"sync"
	"time"

	"github.com/Iron-Ham/wrangler/internal/logging"
	"github.com/Iron-Ham/wrangler/internal/sched"
	"github.com/Iron-Ham/wrangler/internal/worker"
)

// Config bounds the pool. Immutable at use; the coordinator swaps the whole
// value on hot reload.
type Config struct {
	// MaxPerRole caps pooled workers of a single role.
	MaxPerRole int
	// MaxPoolSize caps total pooled workers across roles.
	MaxPoolSize int
	// TTL is how long an unreacquired pooled worker survives before eviction.
	TTL time.Duration
}

// DefaultConfig returns the default pool bounds.
func DefaultConfig() Config {
	return Config{
		MaxPerRole:  3,
		MaxPoolSize: 8,
		TTL:         5 * time.Minute,
	}
}

// EvictFunc is invoked when a pooled worker's TTL expires. The callback
// receives the evicted record; it must re-enter the coordinator's serialized
// path to mark the worker Destroyed.
type EvictFunc func(w *worker.Worker)

// entry is one pooled worker with its enqueue timestamp.
type entry struct {
	worker     *worker.Worker
	enqueuedAt time.Time
}

// Metrics tracks pool effectiveness.
type Metrics struct {
	Hits      uint64 // acquires satisfied by reuse
	Misses    uint64 // acquires that created a fresh worker
	Evictions uint64 // TTL and LRU evictions combined
}

// HitRate returns hits/(hits+misses), or 0 with no acquires yet.
func (m Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// Pool is the reusable worker cache. Safe for concurrent use.
type Pool struct {
	mu      sync.Mutex
	cfg     Config
	entries map[string]*entry // worker id -> entry
	order   []string          // worker ids, oldest enqueue first
	timers  *sched.Scheduler
	onEvict EvictFunc
	metrics Metrics
	logger  *logging.Logger
}

// New creates a Pool. onEvict may be nil; TTL expiries then drop entries
// silently, which is only appropriate in tests.
func New(cfg Config, onEvict EvictFunc, logger *logging.Logger) *Pool {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Pool{
		cfg:     cfg,
		entries: make(map[string]*entry),
		timers:  sched.New(logger),
		onEvict: onEvict,
		logger:  logger,
	}
}

// SetConfig swaps the pool bounds. Existing entries above the new caps are
// not evicted eagerly; caps apply to subsequent releases.
func (p *Pool) SetConfig(cfg Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cfg = cfg
}

// Acquire returns a worker for the role, reusing the oldest matching pooled
// worker if one exists. The returned worker is always in Initializing with
// its linkage reset to teamID. The second return is true on a pool hit.
func (p *Pool) Acquire(role worker.Role, teamID string) (*worker.Worker, bool) {
	p.mu.Lock()

	for i, id := range p.order {
		e := p.entries[id]
		if e.worker.Role != role {
			continue
		}

		p.order = append(p.order[:i], p.order[i+1:]...)
		delete(p.entries, id)
		p.timers.Cancel(id)
		p.metrics.Hits++

		w := e.worker
		p.mu.Unlock()

		w.ResetForAssignment(teamID)
		p.logger.Debug("pool hit", "worker_id", w.ID, "role", string(role))
		return w, true
	}

	p.metrics.Misses++
	p.mu.Unlock()

	w := worker.New(role)
	w.TeamID = teamID
	p.logger.Debug("pool miss", "worker_id", w.ID, "role", string(role))
	return w, false
}

// HasCapacity reports whether a release for the role would be accepted.
// Used as the transition guard context for pooling decisions.
func (p *Pool) HasCapacity(role worker.Role) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasCapacityLocked(role)
}

func (p *Pool) hasCapacityLocked(role worker.Role) bool {
	if len(p.entries) >= p.cfg.MaxPoolSize {
		return false
	}
	count := 0
	for _, e := range p.entries {
		if e.worker.Role == role {
			count++
		}
	}
	return count < p.cfg.MaxPerRole
}

// Release donates a worker to the pool. Returns false when the per-role or
// global cap would be exceeded; the caller must then destroy the worker
// itself. On acceptance the worker's linkage is stripped, it is timestamped,
// and a TTL eviction timer is armed.
func (p *Pool) Release(w *worker.Worker) bool {
	p.mu.Lock()

	if !p.hasCapacityLocked(w.Role) {
		p.mu.Unlock()
		p.logger.Debug("pool rejected release", "worker_id", w.ID, "role", string(w.Role))
		return false
	}

	w.StripLinkage()
	w.State = worker.StatePooled
	p.entries[w.ID] = &entry{worker: w, enqueuedAt: time.Now()}
	p.order = append(p.order, w.ID)
	ttl := p.cfg.TTL
	p.mu.Unlock()

	p.timers.Schedule(w.ID, ttl, p.expire)

	p.logger.Debug("worker pooled", "worker_id", w.ID, "role", string(w.Role), "ttl", ttl.String())
	return true
}

// expire handles a TTL firing. The entry may already be gone if the worker
// was reacquired or evicted between the firing and the lock; that race is a
// no-op here.
func (p *Pool) expire(id string) {
	p.mu.Lock()
	e, ok := p.entries[id]
	if !ok {
		p.mu.Unlock()
		return
	}
	p.removeLocked(id)
	p.metrics.Evictions++
	onEvict := p.onEvict
	p.mu.Unlock()

	p.logger.Info("pooled worker expired", "worker_id", id)
	if onEvict != nil {
		onEvict(e.worker)
	}
}

// EvictOldest removes up to n globally-oldest entries across roles, cancels
// their TTL timers, and returns the records for the caller to mark
// Destroyed. The eviction callback is not invoked for these.
func (p *Pool) EvictOldest(n int) []*worker.Worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	if n > len(p.order) {
		n = len(p.order)
	}
	evicted := make([]*worker.Worker, 0, n)
	for i := 0; i < n; i++ {
		id := p.order[0]
		e := p.entries[id]
		p.removeLocked(id)
		p.metrics.Evictions++
		evicted = append(evicted, e.worker)
	}
	return evicted
}

// DrainAll empties the pool, cancelling all TTL timers, and returns every
// record. Used by critical-pressure emergency cleanup.
func (p *Pool) DrainAll() []*worker.Worker {
	p.mu.Lock()
	defer p.mu.Unlock()

	drained := make([]*worker.Worker, 0, len(p.order))
	for len(p.order) > 0 {
		id := p.order[0]
		e := p.entries[id]
		p.removeLocked(id)
		drained = append(drained, e.worker)
	}
	return drained
}

// removeLocked drops an entry from both indexes and cancels its timer.
func (p *Pool) removeLocked(id string) {
	delete(p.entries, id)
	for i, oid := range p.order {
		if oid == id {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	p.timers.Cancel(id)
}

// Contains reports whether a worker id is currently pooled.
func (p *Pool) Contains(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.entries[id]
	return ok
}

// Size returns the total number of pooled workers.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// RoleCount returns the number of pooled workers of one role.
func (p *Pool) RoleCount(role worker.Role) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	count := 0
	for _, e := range p.entries {
		if e.worker.Role == role {
			count++
		}
	}
	return count
}

// MetricsSnapshot returns a copy of the pool metrics.
func (p *Pool) MetricsSnapshot() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// Stop cancels every pending TTL timer. Entries remain but will not expire.
func (p *Pool) Stop() {
	p.timers.Stop()
}
