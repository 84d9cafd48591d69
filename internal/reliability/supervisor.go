// Package reliability implements the supervisor (§4.17): per-service
// circuit state, timeout enforcement, and exponential-backoff restarts
// for the long-running goroutines the cognitive loop depends on.
package reliability

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/flowtitan/flowtitan/internal/events"
	"github.com/flowtitan/flowtitan/internal/logging"
)

const (
	defaultTimeout     = 60 * time.Second
	defaultMaxRetries  = 5
	backoffBase        = 2.0
	defaultMaxBackoff  = 300 * time.Second
	restartGrace       = 5 * time.Second
)

// CircuitState is a service's failure/backoff bookkeeping.
type CircuitState struct {
	Failures     int
	LastFailure  time.Time
	BackoffUntil time.Time
	Dead         bool
}

type serviceMeta struct {
	run        func(ctx context.Context) error
	restart    bool
	timeout    time.Duration
	maxRetries int
}

// Supervisor watches a set of named long-running functions, cancelling
// ones that hang past their timeout and restarting failed ones with
// exponential backoff, escalating to "dead" after MaxRetries (§4.17).
type Supervisor struct {
	mu       sync.Mutex
	services map[string]serviceMeta
	circuits map[string]*CircuitState
	cancels  map[string]context.CancelFunc

	maxBackoff time.Duration

	bus *events.Bus
	log *logging.Logger
	wg  sync.WaitGroup
}

// NewSupervisor builds an empty Supervisor. bus may be nil (events are
// skipped silently then).
func NewSupervisor(bus *events.Bus) *Supervisor {
	return &Supervisor{
		services:   make(map[string]serviceMeta),
		circuits:   make(map[string]*CircuitState),
		cancels:    make(map[string]context.CancelFunc),
		maxBackoff: defaultMaxBackoff,
		bus:        bus,
		log:        logging.Get(logging.CategoryReliability),
	}
}

// WatchOptions configures one watched service.
type WatchOptions struct {
	Restart    bool
	Timeout    time.Duration
	MaxRetries int
}

// Watch starts supervising run under serviceName. If already watched and
// running, it is a no-op (idempotent, per the original's "leave it alone").
func (s *Supervisor) Watch(serviceName string, run func(ctx context.Context) error, opts WatchOptions) {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}

	s.mu.Lock()
	if _, running := s.cancels[serviceName]; running {
		s.mu.Unlock()
		s.log.Debug("service %s already supervised", serviceName)
		return
	}
	s.services[serviceName] = serviceMeta{run: run, restart: opts.Restart, timeout: opts.Timeout, maxRetries: opts.MaxRetries}
	if _, ok := s.circuits[serviceName]; !ok {
		s.circuits[serviceName] = &CircuitState{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancels[serviceName] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.runService(ctx, serviceName)
}

// StopService cancels the supervised goroutine for serviceName and
// forgets it.
func (s *Supervisor) StopService(serviceName string) {
	s.mu.Lock()
	if cancel, ok := s.cancels[serviceName]; ok {
		cancel()
	}
	delete(s.cancels, serviceName)
	delete(s.services, serviceName)
	delete(s.circuits, serviceName)
	s.mu.Unlock()
}

// StopAll cancels every supervised service and waits for all runners to
// return.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	names := make([]string, 0, len(s.cancels))
	for n := range s.cancels {
		names = append(names, n)
	}
	s.mu.Unlock()
	for _, n := range names {
		s.StopService(n)
	}
	s.wg.Wait()
}

func (s *Supervisor) runService(ctx context.Context, name string) {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		meta, ok := s.services[name]
		circ := s.circuits[name]
		s.mu.Unlock()
		if !ok {
			return
		}

		if circ.Dead {
			s.log.Warn("service %s is dead; not restarting", name)
			return
		}
		if until := circ.BackoffUntil; !until.IsZero() {
			if wait := time.Until(until); wait > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
			}
		}

		err := s.runOnce(ctx, name, meta)
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err == nil {
			circ.Failures = 0
			circ.LastFailure = time.Time{}
			circ.BackoffUntil = time.Time{}
			if !meta.restart {
				s.log.Info("service %s finished without restart requested", name)
				return
			}
			time.Sleep(restartGrace)
			continue
		}

		circ.Failures++
		circ.LastFailure = time.Now()
		s.publishFailed(name, err, circ.Failures)

		if circ.Failures >= meta.maxRetries {
			circ.Dead = true
			circ.BackoffUntil = time.Now().Add(s.maxBackoff)
			s.log.Error("service %s marked dead after %d failures", name, circ.Failures)
			s.publishDead(name, circ.Failures)
			return
		}

		backoff := s.computeBackoff(circ.Failures)
		circ.BackoffUntil = time.Now().Add(backoff)
		s.log.Warn("service %s failed (%v); retrying in %s", name, err, backoff)
	}
}

// computeBackoff follows the same exponential-plus-bounded-jitter shape
// used by internal/exec's retry engine: base^failures seconds, capped at
// MaxBackoff, plus deterministic jitter bounded by min(0.1*delay, 1s).
func (s *Supervisor) computeBackoff(failures int) time.Duration {
	seconds := math.Min(s.maxBackoff.Seconds(), math.Pow(backoffBase, float64(failures)))
	jitter := math.Min(0.1*seconds, 1.0) * math.Sin(float64(failures))
	total := seconds + jitter
	if total < 0 {
		total = 0
	}
	return time.Duration(total * float64(time.Second))
}

func (s *Supervisor) runOnce(ctx context.Context, name string, meta serviceMeta) error {
	runCtx, cancel := context.WithTimeout(ctx, meta.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &panicError{name: name, value: r}
			}
		}()
		done <- meta.run(runCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errTimeout{service: name, timeout: meta.timeout}
	}
}

type errTimeout struct {
	service string
	timeout time.Duration
}

func (e errTimeout) Error() string {
	return "service " + e.service + " timed out after " + e.timeout.String()
}

type panicError struct {
	name  string
	value interface{}
}

func (e *panicError) Error() string {
	return "service panicked"
}

func (s *Supervisor) publishFailed(name string, err error, failures int) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.New("reliability.service.failed", "", "", "", map[string]interface{}{
		"service": name, "reason": err.Error(), "failures": failures,
	}))
}

func (s *Supervisor) publishDead(name string, failures int) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(events.New(events.ReliabilityServiceDead, "", "", "", map[string]interface{}{
		"service": name, "failures": failures,
	}))
}

// ServiceHealth is one service's reported status for Health().
type ServiceHealth struct {
	Running      bool
	Failures     int
	LastFailure  time.Time
	BackoffUntil time.Time
	Dead         bool
}

// Health returns a compact per-service health summary.
func (s *Supervisor) Health() map[string]ServiceHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]ServiceHealth, len(s.services))
	for name := range s.services {
		circ := s.circuits[name]
		_, running := s.cancels[name]
		out[name] = ServiceHealth{
			Running:      running,
			Failures:     circ.Failures,
			LastFailure:  circ.LastFailure,
			BackoffUntil: circ.BackoffUntil,
			Dead:         circ.Dead,
		}
	}
	return out
}
