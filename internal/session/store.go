// Package session implements the session/context store (§4.12): an
// in-memory map of sessions with write-behind persistence, TTL eviction,
// and provenance append. All reads/writes of the map are serialized by a
// single mutex; per-session data is copied before being handed to the
// writer so a caller mutating its own copy can never race the flush.
package session

import (
	"sync"
	"time"

	"github.com/flowtitan/flowtitan/internal/events"
	"github.com/flowtitan/flowtitan/internal/ids"
	"github.com/flowtitan/flowtitan/internal/logging"
)

// Record is one session's KV schema: id, version, metadata, context,
// provenance, timestamps (§4.12).
type Record struct {
	ID         string                   `json:"id"`
	Version    int                      `json:"version"`
	Metadata   map[string]interface{}   `json:"metadata"`
	Context    map[string]interface{}   `json:"context"`
	Provenance []events.ProvenanceEntry `json:"provenance"`
	CreatedAt  time.Time                `json:"created_at"`
	UpdatedAt  time.Time                `json:"updated_at"`
	LastTouch  time.Time                `json:"last_touch"`
}

func (r *Record) clone() *Record {
	cp := *r
	cp.Metadata = cloneMap(r.Metadata)
	cp.Context = cloneMap(r.Context)
	cp.Provenance = append([]events.ProvenanceEntry(nil), r.Provenance...)
	return &cp
}

func cloneMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Adapter is the session storage adapter consumed contract (§6.6).
type Adapter interface {
	Init() error
	SaveSession(rec *Record) error
	LoadSession(id string) (*Record, error)
	DeleteSession(id string) error
	ListSessionIDs() ([]string, error)
	ExportAll() ([]*Record, error)
	Close() error
}

type writeJob struct {
	rec *Record
}

// Store is the in-memory session map plus its write-behind persistence.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Record
	adapter  Adapter
	ttl      time.Duration
	sliding  bool

	writeQueue chan writeJob
	writerDone chan struct{}
	stopSweep  chan struct{}
	sweepWG    sync.WaitGroup

	log *logging.Logger
}

// New constructs a Store. ttl<=0 disables sweeping. writeQueueSize bounds
// the write-behind queue; a full queue blocks the caller that triggered
// the write, preserving per-session publish order (§5).
func New(adapter Adapter, ttl time.Duration, sliding bool, writeQueueSize int) (*Store, error) {
	if writeQueueSize <= 0 {
		writeQueueSize = 256
	}
	if err := adapter.Init(); err != nil {
		return nil, err
	}
	s := &Store{
		sessions:   map[string]*Record{},
		adapter:    adapter,
		ttl:        ttl,
		sliding:    sliding,
		writeQueue: make(chan writeJob, writeQueueSize),
		writerDone: make(chan struct{}),
		stopSweep:  make(chan struct{}),
		log:        logging.Get(logging.CategorySession),
	}

	existing, err := adapter.ExportAll()
	if err != nil {
		return nil, err
	}
	for _, rec := range existing {
		s.sessions[rec.ID] = rec
	}
	s.log.Info("session store loaded %d sessions from storage", len(existing))

	go s.runWriter()
	return s, nil
}

// StartSweeper launches the TTL eviction loop; a no-op when ttl<=0.
func (s *Store) StartSweeper(interval time.Duration) {
	if s.ttl <= 0 {
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	s.sweepWG.Add(1)
	go func() {
		defer s.sweepWG.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopSweep:
				return
			case <-ticker.C:
				s.sweep()
			}
		}
	}()
}

func (s *Store) sweep() {
	now := time.Now()
	var expired []string
	s.mu.Lock()
	for id, rec := range s.sessions {
		anchor := rec.CreatedAt
		if s.sliding {
			anchor = rec.LastTouch
		}
		if now.Sub(anchor) > s.ttl {
			expired = append(expired, id)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, id := range expired {
		s.log.Info("session %s expired and evicted by sweeper", id)
		if err := s.adapter.DeleteSession(id); err != nil {
			s.log.Error("sweeper failed to delete session %s: %v", id, err)
		}
	}
}

// Stop halts the sweeper and drains the write queue before returning.
func (s *Store) Stop() error {
	close(s.stopSweep)
	s.sweepWG.Wait()
	close(s.writeQueue)
	<-s.writerDone
	return s.adapter.Close()
}

func (s *Store) runWriter() {
	defer close(s.writerDone)
	for job := range s.writeQueue {
		if err := s.adapter.SaveSession(job.rec); err != nil {
			s.log.Error("failed to persist session %s: %v", job.rec.ID, err)
		}
	}
}

func (s *Store) enqueueWrite(rec *Record) {
	s.writeQueue <- writeJob{rec: rec.clone()}
}

// Create starts a new session with version 1 and the given initial
// metadata/context (nil maps become empty maps).
func (s *Store) Create(id string, metadata, context map[string]interface{}) *Record {
	if id == "" {
		id = ids.NewPrefixed("session")
	}
	now := time.Now()
	rec := &Record{
		ID:        id,
		Version:   1,
		Metadata:  cloneMap(metadata),
		Context:   cloneMap(context),
		CreatedAt: now,
		UpdatedAt: now,
		LastTouch: now,
	}
	s.mu.Lock()
	s.sessions[id] = rec
	s.mu.Unlock()
	s.enqueueWrite(rec)
	return rec.clone()
}

// Get returns a copy of the session, touching _last_touch. Returns
// ok=false if the session does not exist.
func (s *Store) Get(id string) (*Record, bool) {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	if ok {
		rec.LastTouch = time.Now()
	}
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// Update applies mutate to a copy of the session under the store lock,
// bumps _version, and enqueues the result for write-behind persistence.
func (s *Store) Update(id string, mutate func(rec *Record)) (*Record, error) {
	s.mu.Lock()
	rec, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, errSessionNotFound(id)
	}
	mutate(rec)
	rec.Version++
	rec.UpdatedAt = time.Now()
	rec.LastTouch = rec.UpdatedAt
	out := rec.clone()
	s.mu.Unlock()

	s.enqueueWrite(out)
	return out, nil
}

// Delete removes the session from memory and deletes it from the storage
// adapter directly, without going through the write-behind queue.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return errSessionNotFound(id)
	}
	return s.adapter.DeleteSession(id)
}

// AppendProvenance records entry (auto-stamped with a trace id and
// timestamp) on the session's provenance chain and persists the result.
func (s *Store) AppendProvenance(id string, entry events.ProvenanceEntry) (*Record, error) {
	if entry.Event.ID == "" {
		entry.Event.ID = ids.New()
	}
	if entry.Event.Timestamp == "" {
		entry.Event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	return s.Update(id, func(rec *Record) {
		rec.Provenance = append(rec.Provenance, entry)
	})
}

// ListIDs returns every session id currently held in memory.
func (s *Store) ListIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	return out
}

type notFoundError struct{ id string }

func (e *notFoundError) Error() string { return "session not found: " + e.id }

func errSessionNotFound(id string) error { return &notFoundError{id: id} }
