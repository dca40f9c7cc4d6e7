// Package scheduler implements the Task Scheduler (§4.1): three task queues
// (priority, regular, deferred), a dependency-aware selection policy,
// adaptive worker concurrency, and a periodic-task registry whose fires are
// submitted into the queue matching their priority; there is no separate
// periodic-due queue. Grounded on the teacher daemon's cron service,
// generalized from a single cron-expression registry into this queue model.
package scheduler

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/AbdouB/memoryd/internal/models"
)

// Scheduler is the three-queue priority scheduler described in the package
// comment.
type Scheduler struct {
	mu sync.Mutex

	maxWorkers int
	resources  ResourceSampler

	priorityQ []*models.Task
	regularQ  []*models.Task
	deferredQ []*models.Task

	byID      map[string]*models.Task
	completed map[string]struct{}
	cancelled map[string]struct{}

	workers      map[int]chan struct{} // worker id -> stop channel
	nextWorkerID int

	periodic []*periodicEntry

	stopCh chan struct{}
	wg     sync.WaitGroup
	idle   chan struct{} // closed+replaced to wake idle workers when work arrives
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithResourceSampler overrides the default gopsutil-backed sampler, e.g.
// in tests.
func WithResourceSampler(r ResourceSampler) Option {
	return func(s *Scheduler) { s.resources = r }
}

// New constructs a Scheduler with a worker pool bounded by maxWorkers
// (config key scheduler.max_workers, default 4).
func New(maxWorkers int, opts ...Option) *Scheduler {
	if maxWorkers < 1 {
		maxWorkers = 4
	}
	s := &Scheduler{
		maxWorkers: maxWorkers,
		resources:  SystemSampler{},
		byID:       make(map[string]*models.Task),
		completed:  make(map[string]struct{}),
		cancelled:  make(map[string]struct{}),
		workers:    make(map[int]chan struct{}),
		stopCh:     make(chan struct{}),
		idle:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start spawns one worker and begins the adaptive-concurrency tick. Call
// once; Stop tears everything down.
func (s *Scheduler) Start() {
	s.spawnWorker()
	s.wg.Add(1)
	go s.adaptLoop()
}

// Stop requests cooperative shutdown: every running handler's cancel flag
// is set, and the call waits up to deadline for workers to drain (§5
// "System shutdown").
func (s *Scheduler) Stop(deadline time.Duration) {
	s.mu.Lock()
	for id := range s.byID {
		if s.byID[id].State == models.TaskRunning {
			s.cancelled[id] = struct{}{}
		}
	}
	s.mu.Unlock()

	close(s.stopCh)
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(deadline):
		s.mu.Lock()
		for _, t := range s.byID {
			if t.State == models.TaskRunning {
				t.State = models.TaskFailedTerminal
				t.LastError = "shutdown"
			}
		}
		s.mu.Unlock()
	}
}

// Submit enqueues a task per §4.1's public contract and returns its id.
func (s *Scheduler) Submit(t *models.Task) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	t.State = models.TaskQueued
	s.byID[t.ID] = t

	if !s.depsSatisfiedLocked(t) {
		s.deferredQ = append(s.deferredQ, t)
		s.wake()
		return t.ID
	}

	switch t.Priority {
	case models.PriorityCritical:
		s.priorityQ = append(s.priorityQ, t)
	case models.PriorityDeferred:
		s.deferredQ = append(s.deferredQ, t)
	default:
		s.regularQ = append(s.regularQ, t)
	}
	s.wake()
	return t.ID
}

// Cancel removes a queued task immediately; a running task only observes
// the cancel flag at its next cooperative checkpoint (§5).
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.byID[id]
	if !ok {
		return false
	}
	if t.State == models.TaskRunning {
		s.cancelled[id] = struct{}{}
		return true
	}
	s.priorityQ = removeTask(s.priorityQ, id)
	s.regularQ = removeTask(s.regularQ, id)
	s.deferredQ = removeTask(s.deferredQ, id)
	t.State = models.TaskCancelled
	return true
}

// Status returns the current status of a task.
func (s *Scheduler) Status(id string) (models.TaskStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok {
		return models.TaskStatus{}, false
	}
	return models.TaskStatus{State: t.State, Retries: t.Retries, LastError: t.LastError, Result: t.Result}, true
}

func removeTask(q []*models.Task, id string) []*models.Task {
	out := q[:0]
	for _, t := range q {
		if t.ID != id {
			out = append(out, t)
		}
	}
	return out
}

func (s *Scheduler) depsSatisfiedLocked(t *models.Task) bool {
	for dep := range t.Dependencies {
		if _, done := s.completed[dep]; !done {
			return false
		}
	}
	return true
}

// wake notifies idle workers that new work may be available.
func (s *Scheduler) wake() {
	close(s.idle)
	s.idle = make(chan struct{})
}

// score implements §4.1's computed priority score. Lower is more urgent.
func (s *Scheduler) scoreLocked(t *models.Task, blocking map[string]struct{}) float64 {
	score := t.Priority.Level()
	if t.UserTriggered {
		score *= 0.5
	}
	if _, isBlocking := blocking[t.ID]; isBlocking {
		score *= 0.66
	}
	score *= 1 / math.Max(0.5, math.Pow(0.8, float64(t.Retries)))
	if t.Deadline != nil {
		hours := time.Until(*t.Deadline).Hours()
		if hours <= 0 {
			score *= 3
		} else {
			score *= math.Min(3, 1/hours)
		}
	}
	return score
}

// blockingSetLocked returns the ids of every task that some other queued
// task depends on — used for the 0.66 "another task depends on me"
// multiplier.
func (s *Scheduler) blockingSetLocked() map[string]struct{} {
	blocking := make(map[string]struct{})
	for _, q := range [][]*models.Task{s.priorityQ, s.regularQ, s.deferredQ} {
		for _, t := range q {
			for dep := range t.Dependencies {
				blocking[dep] = struct{}{}
			}
		}
	}
	return blocking
}

// popBestLocked removes and returns the most urgent task from q, or nil.
func (s *Scheduler) popBestLocked(q *[]*models.Task, blocking map[string]struct{}) *models.Task {
	if len(*q) == 0 {
		return nil
	}
	items := *q
	sort.SliceStable(items, func(i, j int) bool {
		si, sj := s.scoreLocked(items[i], blocking), s.scoreLocked(items[j], blocking)
		if si != sj {
			return si < sj
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	best := items[0]
	*q = items[1:]
	return best
}

// popBestReadyLocked scans q for the most urgent task whose dependencies
// are satisfied, leaving unready tasks in place ("re-queued", §4.1 step 3).
func (s *Scheduler) popBestReadyLocked(q *[]*models.Task, blocking map[string]struct{}) *models.Task {
	items := *q
	var bestIdx = -1
	var bestScore float64
	for i, t := range items {
		if !s.depsSatisfiedLocked(t) {
			continue
		}
		sc := s.scoreLocked(t, blocking)
		if bestIdx == -1 || sc < bestScore ||
			(sc == bestScore && t.CreatedAt.Before(items[bestIdx].CreatedAt)) {
			bestIdx, bestScore = i, sc
		}
	}
	if bestIdx == -1 {
		return nil
	}
	best := items[bestIdx]
	*q = append(items[:bestIdx], items[bestIdx+1:]...)
	return best
}

// next picks the next task to run per the §4.1 selection policy, or nil if
// nothing is ready.
func (s *Scheduler) next() *models.Task {
	cpuPct, memPct, err := s.resources.Sample()
	highLoad := err == nil && (cpuPct > 80 || memPct > 85)

	s.mu.Lock()
	defer s.mu.Unlock()

	blocking := s.blockingSetLocked()

	if highLoad {
		return s.popBestLocked(&s.priorityQ, blocking)
	}
	if t := s.popBestLocked(&s.priorityQ, blocking); t != nil {
		return t
	}
	if t := s.popBestLocked(&s.regularQ, blocking); t != nil {
		return t
	}
	return s.popBestReadyLocked(&s.deferredQ, blocking)
}

func (s *Scheduler) isCancelled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.cancelled[id]
	return ok
}

// runTask executes one task's handler and applies the failure semantics of
// §4.1: exceptions are caught, retries increment with priority downgraded
// to low, and exhausted retries mark the task terminally failed.
func (s *Scheduler) runTask(t *models.Task) {
	s.mu.Lock()
	t.State = models.TaskRunning
	s.mu.Unlock()

	result, err := s.invoke(t)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cancelled, t.ID)

	if err == nil {
		t.State = models.TaskCompleted
		t.Result = result
		s.completed[t.ID] = struct{}{}
		s.promoteDeferredLocked()
		return
	}

	t.LastError = err.Error()
	t.Retries++
	if t.Retries < t.MaxRetries {
		t.Priority = models.PriorityLow
		t.State = models.TaskQueued
		s.regularQ = append(s.regularQ, t)
		return
	}
	t.State = models.TaskFailedTerminal
}

// invoke calls the handler with panic recovery — the "exceptions are
// caught" clause of §4.1 under Go's error-return idiom.
func (s *Scheduler) invoke(t *models.Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError{r}
		}
	}()
	rc := &models.RunContext{TaskID: t.ID, Cancelled: func() bool { return s.isCancelled(t.ID) }}
	return t.Handler(rc)
}

type panicError struct{ v any }

func (p panicError) Error() string { return "task panicked" }

// promoteDeferredLocked moves now-ready deferred tasks into queues matching
// their declared priority, so a completed dependency unblocks followers
// without waiting for the next selection pass to notice.
func (s *Scheduler) promoteDeferredLocked() {
	var stillDeferred []*models.Task
	for _, t := range s.deferredQ {
		if s.depsSatisfiedLocked(t) && t.Priority != models.PriorityDeferred {
			if t.Priority == models.PriorityCritical {
				s.priorityQ = append(s.priorityQ, t)
			} else {
				s.regularQ = append(s.regularQ, t)
			}
			continue
		}
		stillDeferred = append(stillDeferred, t)
	}
	s.deferredQ = stillDeferred
}

func (s *Scheduler) spawnWorker() {
	id := s.nextWorkerID
	s.nextWorkerID++
	stop := make(chan struct{})
	s.workers[id] = stop

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case <-s.stopCh:
				return
			case <-stop:
				return
			default:
			}

			t := s.next()
			if t == nil {
				s.mu.Lock()
				idle := s.idle
				s.mu.Unlock()
				select {
				case <-s.stopCh:
					return
				case <-stop:
					return
				case <-idle:
				case <-time.After(time.Second):
				}
				continue
			}
			s.runTask(t)
		}
	}()
}

// WorkerCount reports the current pool size, always within [1, maxWorkers]
// (§8 property 7).
func (s *Scheduler) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}
