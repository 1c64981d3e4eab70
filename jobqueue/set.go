package jobqueue

import (
	"container/heap"
	"context"
	"sync"
	"sync/atomic"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/exp/maps"

	"github.com/devlibx/logrecovery/logfile"
)

// waiter is a pending getAsync call on one group, parked until Add
// hands it a job directly or its context is cancelled.
type waiter struct {
	ch        chan *queuedJob
	createdAt int64
}

// group is one resource group's bounded priority queue.
type group struct {
	mu        sync.Mutex
	heap      jobHeap
	waiters   []*waiter
	weight    int64
	maxWeight int64
	rejected  int64
}

// Option configures a CompactionJobQueueSet at construction.
type Option func(*CompactionJobQueueSet)

// WithWeigher overrides DefaultWeigher.
func WithWeigher(w Weigher) Option {
	return func(s *CompactionJobQueueSet) { s.weigher = w }
}

// WithLogger attaches a go-kit logger for reject/abandon diagnostics.
func WithLogger(l kitlog.Logger) Option {
	return func(s *CompactionJobQueueSet) { s.logger = l }
}

// WithClock overrides SystemClock, for deterministic wait-time tests.
func WithClock(c Clock) Option {
	return func(s *CompactionJobQueueSet) { s.clock = c }
}

// WithMetricsNamespace sets the Prometheus namespace the queue set's
// collectors are registered under.
func WithMetricsNamespace(ns string) Option {
	return func(s *CompactionJobQueueSet) { s.metrics = newMetrics(ns) }
}

// CompactionJobQueueSet is a set of per-resource-group bounded
// priority queues of CompactionJobs, per spec §4.5. Every exported
// method is safe for concurrent use; each group is independently
// locked so callers operating on different groups never contend.
type CompactionJobQueueSet struct {
	weigher Weigher
	clock   Clock
	logger  kitlog.Logger
	metrics *metrics

	groupsMu  sync.Mutex
	groups    map[string]*group
	maxWeight int64

	levelMu  sync.Mutex
	levelGen [numLevels]uint64

	seq      uint64
	rejected int64
}

// New returns a CompactionJobQueueSet whose group queues are each
// bounded to maxWeight, per the Weigher's cost function.
func New(maxWeight int64, opts ...Option) *CompactionJobQueueSet {
	s := &CompactionJobQueueSet{
		weigher:   DefaultWeigher,
		clock:     SystemClock,
		logger:    kitlog.NewNopLogger(),
		metrics:   newMetrics("logrecovery"),
		groups:    map[string]*group{},
		maxWeight: maxWeight,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metrics returns the Prometheus collectors backing this queue set,
// for registration with a registry.
func (s *CompactionJobQueueSet) Metrics() *metrics { return s.metrics }

func (s *CompactionJobQueueSet) group(id string) *group {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()
	g, ok := s.groups[id]
	if !ok {
		g = &group{maxWeight: s.maxWeight}
		s.groups[id] = g
	}
	return g
}

// BeginFullScan starts a new generation for level, returning it. Jobs
// added under this generation (or a later one) survive a matching
// EndFullScan; jobs tagged with an older generation are evicted, per
// spec §4.5's staleness rule.
func (s *CompactionJobQueueSet) BeginFullScan(level DataLevel) uint64 {
	s.levelMu.Lock()
	defer s.levelMu.Unlock()
	s.levelGen[level]++
	return s.levelGen[level]
}

func (s *CompactionJobQueueSet) currentGeneration(level DataLevel) uint64 {
	s.levelMu.Lock()
	defer s.levelMu.Unlock()
	return s.levelGen[level]
}

// Add enqueues jobs, tagging each with the current generation of its
// extent's data level. A job that would push its group's total weight
// over the bound first evicts strictly lower-priority entries (see
// evictForAdmission); if that cannot make room, the job is rejected
// rather than queued. Evicted and rejected jobs are both counted in
// RejectedJobCount. If the group has a pending getAsync waiter, the
// first-registered waiter is completed directly with the job,
// bypassing the heap entirely, per the consumer-wake rule.
func (s *CompactionJobQueueSet) Add(extent logfile.Extent, jobs ...CompactionJob) {
	lvl := LevelOf(extent.TableID)
	gen := s.currentGeneration(lvl)
	for _, j := range jobs {
		s.addOne(j, lvl, gen)
	}
}

func (s *CompactionJobQueueSet) addOne(job CompactionJob, lvl DataLevel, gen uint64) {
	g := s.group(job.Group)
	weight := s.weigher(job)
	seq := atomic.AddUint64(&s.seq, 1)
	qj := &queuedJob{job: job, weight: weight, level: lvl, generation: gen, seq: seq}

	g.mu.Lock()
	if len(g.waiters) > 0 {
		w := g.waiters[0]
		g.waiters = g.waiters[1:]
		g.mu.Unlock()
		w.ch <- qj
		s.metrics.observeWake(s.clock.NowNanos() - w.createdAt)
		return
	}

	if g.weight+weight > g.maxWeight && !s.evictForAdmission(g, weight, job.Priority) {
		g.rejected++
		g.mu.Unlock()
		atomic.AddInt64(&s.rejected, 1)
		s.metrics.observeRejected()
		level.Debug(s.logger).Log("msg", "rejected compaction job, queue overweight", "group", job.Group, "weight", weight, "max", g.maxWeight)
		return
	}

	heap.Push(&g.heap, qj)
	g.weight += weight
	g.mu.Unlock()
	s.metrics.observeQueued()
}

// evictForAdmission makes room for an incoming job of the given weight
// and priority by evicting already-queued entries with strictly lower
// priority, lowest first (ties broken toward the most recently queued
// entry). It returns false, evicting nothing, if the bound can't be
// met this way: either nothing resident has a lower priority than the
// incoming job, or evicting everything that does still isn't enough.
// Must be called with g.mu held.
func (s *CompactionJobQueueSet) evictForAdmission(g *group, weight int64, priority int) bool {
	var freeable int64
	for _, qj := range g.heap {
		if qj.job.Priority < priority {
			freeable += qj.weight
		}
	}
	if g.weight-freeable+weight > g.maxWeight {
		return false
	}
	for g.weight+weight > g.maxWeight {
		idx := -1
		for i, qj := range g.heap {
			if idx == -1 || qj.job.Priority < g.heap[idx].job.Priority ||
				(qj.job.Priority == g.heap[idx].job.Priority && qj.seq > g.heap[idx].seq) {
				idx = i
			}
		}
		if idx == -1 || g.heap[idx].job.Priority >= priority {
			return false
		}
		evicted := heap.Remove(&g.heap, idx).(*queuedJob)
		g.weight -= evicted.weight
		g.rejected++
		atomic.AddInt64(&s.rejected, 1)
		s.metrics.observeDequeued()
		s.metrics.observeRejected()
		level.Debug(s.logger).Log("msg", "evicted compaction job to admit higher-priority job",
			"group", evicted.job.Group, "evicted_priority", evicted.job.Priority, "admitted_priority", priority)
	}
	return true
}

// Poll returns the highest-priority queued job for groupID without
// blocking, or false if the queue is empty.
func (s *CompactionJobQueueSet) Poll(groupID string) (CompactionJob, bool) {
	g := s.group(groupID)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.heap.Len() == 0 {
		return CompactionJob{}, false
	}
	qj := heap.Pop(&g.heap).(*queuedJob)
	g.weight -= qj.weight
	s.metrics.observeDequeued()
	return qj.job, true
}

// GetAsync returns the next job for groupID, blocking until one is
// available or ctx is cancelled. It never blocks the caller beyond
// ctx's lifetime: if the queue already holds a job, GetAsync returns
// it immediately; otherwise it registers a waiter that Add completes
// directly.
func (s *CompactionJobQueueSet) GetAsync(ctx context.Context, groupID string) (CompactionJob, error) {
	g := s.group(groupID)
	g.mu.Lock()
	if g.heap.Len() > 0 {
		qj := heap.Pop(&g.heap).(*queuedJob)
		g.weight -= qj.weight
		g.mu.Unlock()
		s.metrics.observeDequeued()
		return qj.job, nil
	}
	w := &waiter{ch: make(chan *queuedJob, 1), createdAt: s.clock.NowNanos()}
	g.waiters = append(g.waiters, w)
	g.mu.Unlock()

	select {
	case qj := <-w.ch:
		return qj.job, nil
	case <-ctx.Done():
		s.abandon(g, w)
		return CompactionJob{}, ctx.Err()
	}
}

// abandon removes w from g's waiter list. If Add already popped w and
// is sending (or sent) it a job, the job is drained from w.ch and
// requeued so a cancelled getAsync never silently drops a job.
func (s *CompactionJobQueueSet) abandon(g *group, w *waiter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i, ww := range g.waiters {
		if ww == w {
			g.waiters = append(g.waiters[:i], g.waiters[i+1:]...)
			return
		}
	}
	select {
	case qj := <-w.ch:
		heap.Push(&g.heap, qj)
		g.weight += qj.weight
		s.metrics.observeQueued()
	default:
	}
}

// EndFullScan evicts every queued entry tagged with level and a
// generation older than level's current generation, across all
// groups, per spec §4.5's staleness rule.
func (s *CompactionJobQueueSet) EndFullScan(lvl DataLevel) {
	gen := s.currentGeneration(lvl)

	s.groupsMu.Lock()
	groups := make([]*group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	s.groupsMu.Unlock()

	for _, g := range groups {
		g.mu.Lock()
		kept := make(jobHeap, 0, len(g.heap))
		for _, qj := range g.heap {
			if qj.level == lvl && qj.generation < gen {
				g.weight -= qj.weight
				s.metrics.observeDequeued()
				continue
			}
			kept = append(kept, qj)
		}
		heap.Init(&kept)
		g.heap = kept
		g.mu.Unlock()
	}
}

// ResetMaxSize changes the weight bound applied to every group queue,
// existing and future.
func (s *CompactionJobQueueSet) ResetMaxSize(w int64) {
	s.groupsMu.Lock()
	s.maxWeight = w
	groups := make([]*group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	s.groupsMu.Unlock()

	for _, g := range groups {
		g.mu.Lock()
		g.maxWeight = w
		g.mu.Unlock()
	}
}

// GetQueueCount returns the number of distinct groups tracked so far.
func (s *CompactionJobQueueSet) GetQueueCount() int {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()
	return len(s.groups)
}

// GroupIDs returns the set of group ids tracked so far, for
// diagnostics (cmd/recoverctl's stats subcommand).
func (s *CompactionJobQueueSet) GroupIDs() []string {
	s.groupsMu.Lock()
	defer s.groupsMu.Unlock()
	return maps.Keys(s.groups)
}

// GetQueuedJobCount returns the number of jobs resident in groupID's
// queue, not counting any job already handed to a waiter.
func (s *CompactionJobQueueSet) GetQueuedJobCount(groupID string) int {
	g := s.group(groupID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.heap.Len()
}

// RejectedJobCount returns the cumulative number of jobs rejected for
// exceeding groupID's weight bound.
func (s *CompactionJobQueueSet) RejectedJobCount(groupID string) int64 {
	g := s.group(groupID)
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rejected
}

// TotalRejectedJobCount returns the cumulative number of jobs rejected
// across every group.
func (s *CompactionJobQueueSet) TotalRejectedJobCount() int64 {
	return atomic.LoadInt64(&s.rejected)
}
