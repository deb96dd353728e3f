// Package scheduler runs background maintenance tasks within a bounded
// number of slots.
//
// Submit never queues: when every slot is taken the task is rejected with
// ErrRejectedScheduling and the submitter decides what to do. Rejections are
// logged and not retried.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/bitdb/internal/resource"
)

var (
	// ErrRejectedScheduling is returned when a task is submitted while all
	// background slots are busy.
	ErrRejectedScheduling = errors.New("rejected scheduling")

	// ErrClosed is returned when a task is submitted after Close.
	ErrClosed = errors.New("scheduler closed")
)

// RejectedError names the task that could not be scheduled.
//
// It matches ErrRejectedScheduling via errors.Is.
type RejectedError struct {
	Task string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected scheduling of task %q: no free background slot", e.Task)
}

func (e *RejectedError) Unwrap() error { return ErrRejectedScheduling }

// Task is a unit of background work. ctx is cancelled on Close.
type Task func(ctx context.Context)

// Config configures a Scheduler.
type Config struct {
	// Controller provides the background slots. If nil, a controller with
	// Workers slots is created.
	Controller *resource.Controller
	// Workers is used when Controller is nil. Defaults to 1.
	Workers int64
	// Logger receives rejections and task failures. If nil, logs are
	// discarded.
	Logger *slog.Logger
}

// Stats reports scheduler counters.
type Stats struct {
	Submitted uint64
	Completed uint64
	Rejected  uint64
	Panicked  uint64
	Running   int64
}

// Scheduler runs tasks on goroutines gated by background slots.
type Scheduler struct {
	rc     *resource.Controller
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex // guards closed and wg.Add against Close
	closed bool

	submitted atomic.Uint64
	completed atomic.Uint64
	rejected  atomic.Uint64
	panicked  atomic.Uint64
	running   atomic.Int64
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	rc := cfg.Controller
	if rc == nil {
		rc = resource.NewController(resource.Config{MaxBackgroundWorkers: cfg.Workers})
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		rc:     rc,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Submit starts task in the background if a slot is free. It never blocks.
func (s *Scheduler) Submit(name string, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if !s.rc.TryAcquireBackground() {
		s.rejected.Add(1)
		err := &RejectedError{Task: name}
		s.logger.LogAttrs(context.Background(), slog.LevelWarn, "background task rejected",
			slog.String("task", name),
			slog.Int64("running", s.running.Load()),
		)
		return err
	}

	s.submitted.Add(1)
	s.running.Add(1)
	s.wg.Add(1)
	go s.run(name, task)
	return nil
}

func (s *Scheduler) run(name string, task Task) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.panicked.Add(1)
			s.logger.LogAttrs(context.Background(), slog.LevelError, "background task panicked",
				slog.String("task", name),
				slog.Any("panic", r),
			)
		} else {
			s.completed.Add(1)
			s.logger.LogAttrs(context.Background(), slog.LevelDebug, "background task completed",
				slog.String("task", name),
				slog.Duration("duration", time.Since(start)),
			)
		}
		s.running.Add(-1)
		s.rc.ReleaseBackground()
		s.wg.Done()
	}()
	task(s.ctx)
}

// Wait blocks until all running tasks have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Close cancels running tasks and waits for them to return. Further
// submissions fail with ErrClosed.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

// Stats returns the current counters.
func (s *Scheduler) Stats() Stats {
	return Stats{
		Submitted: s.submitted.Load(),
		Completed: s.completed.Load(),
		Rejected:  s.rejected.Load(),
		Panicked:  s.panicked.Load(),
		Running:   s.running.Load(),
	}
}
