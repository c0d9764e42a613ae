// Package deadline schedules one-shot callbacks on an injectable clock.
// Sessions use it for answer windows, phase delays and retention eviction.
package deadline

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Service owns at most one pending deadline per key. Scheduling a key again
// replaces the previous deadline; cancelling is idempotent and a no-op for
// keys that already fired.
type Service struct {
	clock  clockwork.Clock
	logger zerolog.Logger

	mu      sync.Mutex
	pending map[string]*handle
}

type handle struct {
	timer  clockwork.Timer
	cancel chan struct{}
}

// NewService builds a Service on the given clock; tests pass a fake clock.
func NewService(clock clockwork.Clock, logger zerolog.Logger) *Service {
	return &Service{
		clock:   clock,
		logger:  logger,
		pending: make(map[string]*handle),
	}
}

// Clock exposes the service clock so owners share the same time source.
func (s *Service) Clock() clockwork.Clock {
	return s.clock
}

// Schedule arms a deadline for key that invokes fn after d. The callback
// fires at most once, on its own goroutine, and only if the deadline was not
// cancelled or replaced first.
func (s *Service) Schedule(key string, d time.Duration, fn func()) {
	h := &handle{
		timer:  s.clock.NewTimer(d),
		cancel: make(chan struct{}),
	}

	s.mu.Lock()
	if prev, ok := s.pending[key]; ok {
		stopAndDrain(prev.timer)
		close(prev.cancel)
	}
	s.pending[key] = h
	s.mu.Unlock()

	s.logger.Debug().Str("key", key).Dur("in", d).Msg("deadline scheduled")

	go func() {
		select {
		case <-h.timer.Chan():
			if s.clearIfCurrent(key, h) {
				fn()
			}
		case <-h.cancel:
			stopAndDrain(h.timer)
		}
	}()
}

// Cancel discards the pending deadline for key, if any.
func (s *Service) Cancel(key string) {
	s.mu.Lock()
	h, ok := s.pending[key]
	if ok {
		delete(s.pending, key)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	stopAndDrain(h.timer)
	close(h.cancel)
	s.logger.Debug().Str("key", key).Msg("deadline cancelled")
}

// Shutdown cancels every pending deadline.
func (s *Service) Shutdown() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]*handle)
	s.mu.Unlock()
	for _, h := range pending {
		stopAndDrain(h.timer)
		close(h.cancel)
	}
}

// clearIfCurrent removes the handle if it is still the registered deadline
// for key. A false return means the deadline was replaced or cancelled
// between firing and delivery, so the callback must be suppressed.
func (s *Service) clearIfCurrent(key string, h *handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.pending[key]; ok && current == h {
		delete(s.pending, key)
		return true
	}
	return false
}

// stopAndDrain stops a timer and drains its channel if it already fired,
// per the time.Timer.Stop contract.
func stopAndDrain(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}
