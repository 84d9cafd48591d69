// Package scheduler implements the temporal scheduler (§4.19): a
// min-heap of scheduled jobs dispatched through the event bus or a
// worker pool, with persistence across restarts via the session store.
package scheduler

import (
	"container/heap"
	"encoding/json"
	"sync"
	"time"

	"github.com/flowtitan/flowtitan/internal/events"
	"github.com/flowtitan/flowtitan/internal/ids"
	"github.com/flowtitan/flowtitan/internal/logging"
)

const maxSleep = time.Second

// PersistenceKey is the session context key the scheduler's jobs are
// serialized under (§4.19's persistence via the session store).
const PersistenceKey = "cognition.scheduler.jobs"

// PersistedJob is the wire/storage shape of a ScheduledJob, round-tripped
// through a session's Context map.
type PersistedJob struct {
	ID         string                 `json:"id"`
	StartTS    time.Time              `json:"start_ts"`
	Payload    map[string]interface{} `json:"payload"`
	Recurrence time.Duration          `json:"recurrence"`
	LastRun    time.Time              `json:"last_run"`
	Cancelled  bool                   `json:"cancelled"`
}

// PersistenceStore is the narrow slice of internal/session.Store the
// scheduler needs to load and save its job set.
type PersistenceStore interface {
	Get(sessionID string) (context map[string]interface{}, ok bool)
	Save(sessionID string, jobs map[string]PersistedJob) error
}

// ScheduledJob is one job tracked by the scheduler.
type ScheduledJob struct {
	ID         string
	StartTS    time.Time
	Payload    map[string]interface{}
	Recurrence time.Duration
	LastRun    time.Time
	Cancelled  bool
}

func (j *ScheduledJob) nextRun() time.Time {
	if j.LastRun.IsZero() {
		return j.StartTS
	}
	if j.Recurrence > 0 {
		return j.LastRun.Add(j.Recurrence)
	}
	return time.Time{} // zero means "never again"
}

type heapEntry struct {
	runAt time.Time
	jobID string
}

type jobHeap []heapEntry

func (h jobHeap) Len() int            { return len(h) }
func (h jobHeap) Less(i, j int) bool  { return h[i].runAt.Before(h[j].runAt) }
func (h jobHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x interface{}) { *h = append(*h, x.(heapEntry)) }
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// WorkerPool is the narrow interface the scheduler dispatches to when a
// job carries no event-bus topic (§4.19, worker-pool fallback path).
type WorkerPool interface {
	Submit(fn func()) error
}

// TemporalScheduler pops due jobs off a min-heap of (next_run_ts, job_id)
// and dispatches them via the event bus or a worker pool, reinserting
// recurring jobs and discarding one-off ones after they run.
type TemporalScheduler struct {
	mu   sync.Mutex
	jobs map[string]*ScheduledJob
	pq   jobHeap

	bus        *events.Bus
	pool       WorkerPool
	store      PersistenceStore
	sessionID  string

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	log *logging.Logger
}

// New builds a TemporalScheduler. bus and pool may be nil; store may be
// nil to disable persistence.
func New(bus *events.Bus, pool WorkerPool, store PersistenceStore, sessionID string) *TemporalScheduler {
	s := &TemporalScheduler{
		jobs:      make(map[string]*ScheduledJob),
		bus:       bus,
		pool:      pool,
		store:     store,
		sessionID: sessionID,
		stop:      make(chan struct{}),
		log:       logging.Get(logging.CategoryCognition),
	}
	heap.Init(&s.pq)
	s.loadPersisted()
	return s
}

func (s *TemporalScheduler) loadPersisted() {
	if s.store == nil || s.sessionID == "" {
		return
	}
	ctx, ok := s.store.Get(s.sessionID)
	if !ok {
		return
	}
	raw, ok := ctx[PersistenceKey]
	if !ok {
		return
	}
	serialized, ok := raw.(map[string]PersistedJob)
	if !ok {
		// A context reloaded from storage holds the jobs as decoded JSON.
		encoded, err := json.Marshal(raw)
		if err != nil || json.Unmarshal(encoded, &serialized) != nil {
			return
		}
	}
	for id, pj := range serialized {
		job := &ScheduledJob{ID: id, StartTS: pj.StartTS, Payload: pj.Payload, Recurrence: pj.Recurrence, LastRun: pj.LastRun, Cancelled: pj.Cancelled}
		s.jobs[id] = job
		if nr := job.nextRun(); !nr.IsZero() && !job.Cancelled {
			heap.Push(&s.pq, heapEntry{runAt: nr, jobID: id})
		}
	}
}

func (s *TemporalScheduler) persistLocked() {
	if s.store == nil || s.sessionID == "" {
		return
	}
	serialized := make(map[string]PersistedJob, len(s.jobs))
	for id, j := range s.jobs {
		serialized[id] = PersistedJob{ID: j.ID, StartTS: j.StartTS, Payload: j.Payload, Recurrence: j.Recurrence, LastRun: j.LastRun, Cancelled: j.Cancelled}
	}
	if err := s.store.Save(s.sessionID, serialized); err != nil {
		s.log.Warn("failed to persist scheduled jobs: %v", err)
	}
}

// Schedule registers a job to fire at startAt (and every recurrence
// thereafter, if non-zero). An empty jobID generates one.
func (s *TemporalScheduler) Schedule(startAt time.Time, payload map[string]interface{}, recurrence time.Duration, jobID string) string {
	if jobID == "" {
		jobID = ids.NewPrefixed("job")
	}
	job := &ScheduledJob{ID: jobID, StartTS: startAt, Payload: payload, Recurrence: recurrence}

	s.mu.Lock()
	s.jobs[jobID] = job
	if nr := job.nextRun(); !nr.IsZero() {
		heap.Push(&s.pq, heapEntry{runAt: nr, jobID: jobID})
	}
	s.persistLocked()
	s.mu.Unlock()

	s.log.Info("scheduled job %s at %s recurrence=%s", jobID, startAt, recurrence)
	return jobID
}

// Cancel marks a job cancelled; it is skipped when its heap entry comes
// due rather than removed immediately (mirrors the original's lazy
// deletion).
func (s *TemporalScheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return false
	}
	job.Cancelled = true
	s.persistLocked()
	return true
}

// List returns a snapshot of every tracked job.
func (s *TemporalScheduler) List() []ScheduledJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledJob, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, *j)
	}
	return out
}

// Start launches the pop-all-due loop in a background goroutine.
func (s *TemporalScheduler) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop halts the loop and waits for it to exit.
func (s *TemporalScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()
}

func (s *TemporalScheduler) loop() {
	defer s.wg.Done()
	for {
		sleepFor := s.runDue()
		select {
		case <-s.stop:
			return
		case <-time.After(sleepFor):
		}
	}
}

// runDue pops and dispatches every job due at or before now, reinserts
// recurring ones, and returns how long to sleep before checking again
// (bounded by maxSleep, per §4.19).
func (s *TemporalScheduler) runDue() time.Duration {
	now := time.Now()
	var due []*ScheduledJob

	s.mu.Lock()
	for s.pq.Len() > 0 && !s.pq[0].runAt.After(now) {
		entry := heap.Pop(&s.pq).(heapEntry)
		job, ok := s.jobs[entry.jobID]
		if !ok || job.Cancelled {
			continue
		}
		due = append(due, job)
	}
	s.mu.Unlock()

	for _, job := range due {
		s.trigger(job)

		s.mu.Lock()
		job.LastRun = time.Now()
		if job.Recurrence > 0 && !job.Cancelled {
			heap.Push(&s.pq, heapEntry{runAt: job.nextRun(), jobID: job.ID})
		} else {
			delete(s.jobs, job.ID)
		}
		s.persistLocked()
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pq.Len() == 0 {
		return maxSleep
	}
	until := time.Until(s.pq[0].runAt)
	if until < 0 {
		until = 0
	}
	if until > maxSleep {
		until = maxSleep
	}
	return until
}

func (s *TemporalScheduler) trigger(job *ScheduledJob) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduled job %s trigger panicked: %v", job.ID, r)
		}
	}()

	topic, _ := job.Payload["type"].(string)
	if topic == "" {
		topic = "scheduler.trigger"
	}

	if s.bus != nil {
		s.bus.Publish(events.New(events.Type(topic), "", "", "", job.Payload))
		return
	}
	if s.pool != nil {
		payload := job.Payload
		jobID := job.ID
		if err := s.pool.Submit(func() {
			s.log.Debug("dispatched job %s via worker pool", jobID)
			_ = payload
		}); err == nil {
			return
		}
	}
	s.log.Info("scheduler trigger fallback (no bus or pool): %v", job.Payload)
}
