// Package scheduler provides one-shot callbacks at absolute future instants.
// Entries live only for the lifetime of the process; nothing is persisted.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Action runs when an entry fires.
type Action func(ctx context.Context)

type entry struct {
	timer  *time.Timer
	fireAt time.Time
}

// Scheduler registers one-shot actions keyed by generated IDs.
type Scheduler struct {
	logger *zap.Logger
	now    func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
	wg      sync.WaitGroup
}

// New creates a scheduler.
func New(logger *zap.Logger) *Scheduler {
	return &Scheduler{
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Schedule registers action to run once at fireAt and returns the entry ID.
// An instant in the past fires immediately. Actions run on their own
// goroutine with a background context.
func (s *Scheduler) Schedule(fireAt time.Time, action Action) string {
	id := uuid.NewString()
	delay := fireAt.Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn("scheduler closed, dropping entry", zap.Time("fire_at", fireAt))
		return ""
	}

	s.wg.Add(1)
	e := &entry{fireAt: fireAt}
	e.timer = time.AfterFunc(delay, func() {
		defer s.wg.Done()

		s.mu.Lock()
		_, live := s.entries[id]
		delete(s.entries, id)
		closed := s.closed
		s.mu.Unlock()
		if !live || closed {
			return
		}

		s.logger.Debug("scheduled action firing",
			zap.String("id", id),
			zap.Time("fire_at", fireAt))
		action(context.Background())
	})
	s.entries[id] = e

	s.logger.Info("scheduled one-shot action",
		zap.String("id", id),
		zap.Time("fire_at", fireAt))
	return id
}

// Cancel removes a pending entry. It reports whether the entry was still
// pending; cancelling an unknown or already-fired entry returns false.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return false
	}
	delete(s.entries, id)
	if e.timer.Stop() {
		s.wg.Done()
	}
	return true
}

// Pending returns the number of registered entries that have not fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close cancels all pending entries and waits for in-flight actions.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, e := range s.entries {
		delete(s.entries, id)
		if e.timer.Stop() {
			s.wg.Done()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
}
