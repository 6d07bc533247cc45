// Package poll owns the repeating timers that drive the messaging
// core. Every poller is registered with a Supervisor tied to its
// surface, so closing the surface deterministically stops its timers;
// a dangling timer on a closed window is a defect, not a leak to
// tolerate.
package poll

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Supervisor runs named repeating tasks. Each task is one goroutine
// with its own ticker: a tick runs to completion before that task's
// next tick fires, but tasks are not coordinated with one another.
type Supervisor struct {
	logger *zap.Logger

	mu     sync.Mutex
	tasks  map[string]context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor(logger *zap.Logger) *Supervisor {
	return &Supervisor{
		logger: logger,
		tasks:  make(map[string]context.CancelFunc),
	}
}

// Add registers and starts a repeating task. Re-adding a name stops
// the previous task first. fn runs once immediately, then every
// interval until the task or the supervisor is stopped.
func (s *Supervisor) Add(name string, every time.Duration, fn func(ctx context.Context)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if cancel, ok := s.tasks[name]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.tasks[name] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		fn(ctx)
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fn(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop cancels one task. Stopping an unknown name is a no-op.
func (s *Supervisor) Stop(name string) {
	s.mu.Lock()
	cancel, ok := s.tasks[name]
	if ok {
		delete(s.tasks, name)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Running reports whether a task with the given name is registered.
func (s *Supervisor) Running(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

// StopAll cancels every task and waits for their goroutines to exit.
// The supervisor cannot be reused afterwards.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	s.closed = true
	cancels := make([]context.CancelFunc, 0, len(s.tasks))
	for name, cancel := range s.tasks {
		cancels = append(cancels, cancel)
		delete(s.tasks, name)
	}
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
	if s.logger != nil {
		s.logger.Info("pollers stopped")
	}
}
