package sso

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// Scheduler holds at most one pending task per session id. Scheduling a
// task for an id cancels the one already pending for it.
type Scheduler struct {
	clock clock.WithDelayedExecution

	mu    sync.Mutex
	seq   uint64
	tasks map[string]*scheduledTask
}

type scheduledTask struct {
	seq   uint64
	timer clock.Timer
}

// NewScheduler creates a scheduler on clk.
func NewScheduler(clk clock.WithDelayedExecution) *Scheduler {
	return &Scheduler{
		clock: clk,
		tasks: make(map[string]*scheduledTask),
	}
}

// Schedule runs fn after d on its own goroutine, replacing any task
// pending for id.
func (s *Scheduler) Schedule(id string, d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelLocked(id)

	s.seq++
	seq := s.seq
	task := &scheduledTask{seq: seq}
	// The fake clock runs timer callbacks with its own lock held, so the
	// callback must not touch the clock or s.mu synchronously.
	task.timer = s.clock.AfterFunc(d, func() {
		go s.fire(id, seq, fn)
	})
	s.tasks[id] = task
}

func (s *Scheduler) fire(id string, seq uint64, fn func()) {
	s.mu.Lock()
	task, ok := s.tasks[id]
	current := ok && task.seq == seq
	if current {
		delete(s.tasks, id)
	}
	s.mu.Unlock()

	if current {
		fn()
	}
}

// Cancel stops the task pending for id. It reports whether one existed.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelLocked(id)
}

func (s *Scheduler) cancelLocked(id string) bool {
	task, ok := s.tasks[id]
	if !ok {
		return false
	}
	task.timer.Stop()
	delete(s.tasks, id)
	return true
}

// CancelAll stops every pending task.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.tasks {
		s.cancelLocked(id)
	}
}

// Pending reports whether a task is pending for id.
func (s *Scheduler) Pending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[id]
	return ok
}

// Len returns the number of pending tasks.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
