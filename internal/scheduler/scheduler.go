// Package scheduler runs the engine's periodic work: named task loops
// whose next interval each cycle decides, with manual triggers for
// on-demand runs and an injectable clock for tests.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meridian-lab/meridian-trading/internal/logger"
)

const (
	// minWait floors whatever a cycle returns so a misbehaving task
	// cannot spin hot.
	minWait = time.Second
	// panicWait is the pause after a cycle panics.
	panicWait = time.Minute
)

// TaskFunc runs one cycle and returns the wait before the next.
type TaskFunc func(ctx context.Context) time.Duration

// Task is one periodic loop. The first cycle runs as soon as the loop
// starts; every later cycle waits for the duration the previous cycle
// returned, or for a manual trigger, whichever comes first.
type Task struct {
	name    string
	clock   Clock
	run     TaskFunc
	trigger chan struct{}
	logger  *logger.Logger
}

func NewTask(name string, clock Clock, log *logger.Logger, run TaskFunc) *Task {
	return &Task{
		name:    name,
		clock:   clock,
		run:     run,
		trigger: make(chan struct{}, 1),
		logger:  log,
	}
}

func (t *Task) Name() string {
	return t.name
}

// Trigger requests an immediate cycle. Triggers arriving while one is
// already pending coalesce into a single run.
func (t *Task) Trigger() {
	select {
	case t.trigger <- struct{}{}:
	default:
	}
}

// Run executes cycles until ctx is canceled.
func (t *Task) Run(ctx context.Context) {
	t.logger.Info("task loop started", zap.String("task", t.name))

	wait := time.Duration(0)

	for {
		if wait > 0 {
			select {
			case <-ctx.Done():
				t.logger.Info("task loop stopped", zap.String("task", t.name))
				return
			case <-t.clock.After(wait):
			case <-t.trigger:
			}
		} else if ctx.Err() != nil {
			t.logger.Info("task loop stopped", zap.String("task", t.name))
			return
		}

		wait = t.cycle(ctx)
		if wait < minWait {
			wait = minWait
		}
	}
}

// cycle runs the task function once. A panicking cycle must not take
// down the other loops, so it is caught here and the task resumes
// after a pause.
func (t *Task) cycle(ctx context.Context) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("task cycle panicked",
				zap.String("task", t.name),
				zap.Any("panic", r))
			wait = panicWait
		}
	}()

	return t.run(ctx)
}

// Scheduler owns a set of task loops and runs them together.
type Scheduler struct {
	tasks  []*Task
	logger *logger.Logger
}

func NewScheduler(log *logger.Logger) *Scheduler {
	return &Scheduler{logger: log}
}

func (s *Scheduler) Add(task *Task) {
	s.tasks = append(s.tasks, task)
}

// Task returns the named task so callers can trigger it on demand.
func (s *Scheduler) Task(name string) (*Task, bool) {
	for _, task := range s.tasks {
		if task.name == name {
			return task, true
		}
	}

	return nil, false
}

// Run starts every task loop and blocks until ctx is canceled and all
// loops have exited.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler starting", zap.Int("tasks", len(s.tasks)))

	var wg sync.WaitGroup
	for _, task := range s.tasks {
		wg.Add(1)

		go func(task *Task) {
			defer wg.Done()
			task.Run(ctx)
		}(task)
	}

	wg.Wait()
	s.logger.Info("scheduler stopped")
}
