// Package scheduler runs named periodic tasks on cron schedules against an
// injectable clock.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ServerMonitorAPI/internal/clock"
	"ServerMonitorAPI/internal/logger"

	"github.com/robfig/cron/v3"
)

type TaskFunc func(ctx context.Context) error

type task struct {
	name     string
	spec     string
	schedule cron.Schedule
	run      TaskFunc

	// serializes the loop with RunNow so a task never overlaps itself
	runMu sync.Mutex

	mu       sync.Mutex
	lastRun  time.Time
	lastErr  error
	runs     int64
	failures int64
	next     time.Time
}

type TaskStatus struct {
	Name      string     `json:"name"`
	Schedule  string     `json:"schedule"`
	LastRun   *time.Time `json:"last_run"`
	NextRun   *time.Time `json:"next_run"`
	LastError string     `json:"last_error,omitempty"`
	Runs      int64      `json:"runs"`
	Failures  int64      `json:"failures"`
}

// RunHook observes every completed run; used for metrics.
type RunHook func(name string, took time.Duration, err error)

type Scheduler struct {
	clock clock.Clock
	log   *logger.Logger
	hook  RunHook

	mu      sync.Mutex
	tasks   map[string]*task
	order   []string
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(clk clock.Clock, log *logger.Logger) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		clock: clk,
		log:   log,
		tasks: make(map[string]*task),
	}
}

func (s *Scheduler) OnRun(hook RunHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hook = hook
}

// Add registers a task. spec is a standard five-field cron expression or a
// descriptor such as "@daily" or "@every 30s".
func (s *Scheduler) Add(name, spec string, fn TaskFunc) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return fmt.Errorf("invalid schedule %q for task %s: %w", spec, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("cannot add task %s while scheduler is running", name)
	}
	if _, exists := s.tasks[name]; exists {
		return fmt.Errorf("task %s already registered", name)
	}

	s.tasks[name] = &task{name: name, spec: spec, schedule: schedule, run: fn}
	s.order = append(s.order, name)
	return nil
}

func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true

	for _, name := range s.order {
		t := s.tasks[name]
		s.wg.Add(1)
		go s.loop(ctx, t)
	}

	s.log.Info("Scheduler started with %d tasks", len(s.order))
}

func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()
	s.log.Info("Scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, t *task) {
	defer s.wg.Done()

	for {
		now := s.clock.Now()
		next := t.schedule.Next(now)

		t.mu.Lock()
		t.next = next
		t.mu.Unlock()

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(next.Sub(now)):
		}

		s.execute(ctx, t)
	}
}

// RunNow runs the named task immediately on the calling goroutine and
// returns its error.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	t, ok := s.tasks[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("task %s not found", name)
	}
	return s.execute(ctx, t)
}

func (s *Scheduler) execute(ctx context.Context, t *task) (err error) {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	start := s.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.name, r)
		}

		took := s.clock.Now().Sub(start)

		t.mu.Lock()
		t.lastRun = start
		t.lastErr = err
		t.runs++
		if err != nil {
			t.failures++
		}
		t.mu.Unlock()

		if err != nil {
			s.log.Error("Task %s failed after %v: %v", t.name, took, err)
		} else {
			s.log.Debug("Task %s completed in %v", t.name, took)
		}

		s.mu.Lock()
		hook := s.hook
		s.mu.Unlock()
		if hook != nil {
			hook(t.name, took, err)
		}
	}()

	return t.run(ctx)
}

func (s *Scheduler) Status() []TaskStatus {
	s.mu.Lock()
	tasks := make([]*task, 0, len(s.order))
	for _, name := range s.order {
		tasks = append(tasks, s.tasks[name])
	}
	s.mu.Unlock()

	statuses := make([]TaskStatus, 0, len(tasks))
	for _, t := range tasks {
		t.mu.Lock()
		st := TaskStatus{Name: t.name, Schedule: t.spec, Runs: t.runs, Failures: t.failures}
		if !t.lastRun.IsZero() {
			last := t.lastRun
			st.LastRun = &last
		}
		if !t.next.IsZero() {
			next := t.next
			st.NextRun = &next
		}
		if t.lastErr != nil {
			st.LastError = t.lastErr.Error()
		}
		t.mu.Unlock()

		statuses = append(statuses, st)
	}
	return statuses
}
