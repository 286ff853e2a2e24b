// Package scheduler provides a bounded-concurrency, priority-ordered
// executor for cancellable units of repository-scanning work.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// cancelWaitTimeout bounds how long CancelAll waits for active tasks to
// observe cancellation and exit.
const cancelWaitTimeout = 5 * time.Second

// degradationFraction is the divisor for the share of active low-priority
// tasks cancelled per degradation pass (1/4). The count rounds up, so a
// pass always sheds at least one task when any low-priority task is
// active, even in pools smaller than the fraction.
const degradationFraction = 4

// Work is a cancellable unit of work. It must observe ctx at its own
// suspension points; the scheduler never preempts.
type Work func(ctx context.Context) error

// TaskID is an opaque handle unique for the process lifetime.
type TaskID string

// TaskInfo describes an actively running task. It exists only for the
// task's active lifetime and is removed on completion or cancellation.
type TaskInfo struct {
	ID        TaskID
	Priority  TaskPriority
	StartedAt time.Time

	cancel context.CancelFunc
}

// Cancel cancels this task's own child signal, independently of siblings.
func (ti *TaskInfo) Cancel() {
	ti.cancel()
}

// outcome records a task's terminal state. It outlives the TaskInfo so a
// later await returns the stored result without re-running the task.
type outcome struct {
	done      chan struct{}
	err       error
	cancelled bool
}

// Stats is a point-in-time snapshot of scheduler counters.
type Stats struct {
	Active    int
	Pending   int
	Completed int
	Cancelled int
	Failed    int
}

// Scheduler executes submitted work under a counting-semaphore slot pool
// sized to MaxTotalTasks. Submission never blocks; only AwaitTask and
// CancelAll block their caller.
type Scheduler struct {
	constraints ResourceConstraints
	logger      *slog.Logger

	rootCtx    context.Context
	rootCancel context.CancelFunc

	// slots gates execution; a task holds its slot for its full run.
	slots chan struct{}

	seq atomic.Uint64

	mu        sync.Mutex
	active    map[TaskID]*TaskInfo
	pending   pendingQueue
	outcomes  map[TaskID]*outcome
	errs      []TaskError
	completed int
	cancelled int
	closed    bool

	wg sync.WaitGroup
}

// New creates a scheduler with the given constraints. A nil logger falls
// back to slog.Default().
func New(constraints ResourceConstraints, logger *slog.Logger) *Scheduler {
	constraints = constraints.normalize()

	if logger == nil {
		logger = slog.Default()
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())

	return &Scheduler{
		constraints: constraints,
		logger:      logger,
		rootCtx:     rootCtx,
		rootCancel:  rootCancel,
		slots:       make(chan struct{}, constraints.MaxTotalTasks),
		active:      make(map[TaskID]*TaskInfo),
		outcomes:    make(map[TaskID]*outcome),
	}
}

// Submit registers work for execution and returns its TaskID without
// blocking. If a slot is free and pressure is below threshold the task
// starts immediately; otherwise it joins the priority queue. The effective
// priority may be demoted based on current pressure.
func (s *Scheduler) Submit(name string, priority TaskPriority, work Work) (TaskID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrSchedulerClosed
	}

	seq := s.seq.Add(1)
	id := TaskID(fmt.Sprintf("%s-%d", name, seq))
	s.outcomes[id] = &outcome{done: make(chan struct{})}

	level := s.pressureLevelLocked()
	effective := demoteForPressure(priority, level)

	if effective != priority {
		s.logger.Debug("task priority demoted",
			slog.String("task_id", string(id)),
			slog.String("from", priority.String()),
			slog.String("to", effective.String()),
			slog.String("pressure", level.String()),
		)
	}

	if level < s.constraints.MemoryPressureThreshold && s.tryAcquireSlot() {
		s.startLocked(id, effective, work)

		return id, nil
	}

	s.pending.push(&PendingTask{
		ID:        id,
		Priority:  effective,
		Work:      work,
		CreatedAt: time.Now(),
		seq:       seq,
	})

	return id, nil
}

// AwaitTask blocks the caller until the task completes, the wait times out,
// or the task is discovered already done. A timeout of zero or less waits
// indefinitely. A wait timeout abandons only the wait; the task keeps
// running.
func (s *Scheduler) AwaitTask(id TaskID, timeout time.Duration) error {
	s.mu.Lock()

	out, ok := s.outcomes[id]
	if !ok {
		s.mu.Unlock()

		return fmt.Errorf("%w: %s", ErrUnknownTask, id)
	}

	// If the task is still queued, drain the pending queue first so the
	// wait is not at the mercy of unrelated completions.
	if s.isQueuedLocked(id) {
		s.dispatchLocked()
	}

	s.mu.Unlock()

	if timeout > 0 {
		select {
		case <-out.done:
		case <-time.After(timeout):
			return fmt.Errorf("%w: task %s still running after %s", ErrAwaitTimeout, id, timeout)
		}
	} else {
		<-out.done
	}

	return out.err
}

// CancelAll raises the hierarchical cancellation signal, fails every queued
// task, and waits (bounded) for active tasks to exit. The scheduler rejects
// further submissions afterwards.
func (s *Scheduler) CancelAll() {
	s.mu.Lock()

	s.closed = true

	// Queued tasks never ran; settle them as cancelled directly.
	for {
		task := s.pending.pop()
		if task == nil {
			break
		}

		out := s.outcomes[task.ID]
		out.cancelled = true
		out.err = fmt.Errorf("%w: %s", ErrTaskCancelled, task.ID)
		close(out.done)
		s.cancelled++
	}

	s.mu.Unlock()

	s.rootCancel()

	if !waitWithTimeout(&s.wg, cancelWaitTimeout) {
		s.logger.Warn("tasks did not exit within cancellation bound",
			slog.Duration("bound", cancelWaitTimeout),
			slog.Int("active", s.ActiveCount()),
		)
	}
}

// ActiveCount returns the number of currently running tasks.
func (s *Scheduler) ActiveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.active)
}

// PendingCount returns the number of queued, not-yet-started tasks.
func (s *Scheduler) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pending.Len()
}

// CompletedCount returns the number of tasks that finished successfully.
func (s *Scheduler) CompletedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.completed
}

// CancelledCount returns the number of tasks settled by cancellation.
func (s *Scheduler) CancelledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cancelled
}

// Errors returns the post-hoc list of task execution failures. Cancellation
// is a distinct outcome and is not included.
func (s *Scheduler) Errors() []TaskError {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := make([]TaskError, len(s.errs))
	copy(errs, s.errs)

	return errs
}

// SnapshotStats returns a point-in-time snapshot of all counters.
func (s *Scheduler) SnapshotStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Active:    len(s.active),
		Pending:   s.pending.Len(),
		Completed: s.completed,
		Cancelled: s.cancelled,
		Failed:    len(s.errs),
	}
}

// IsUnderPressure reports whether the pressure estimate has reached the
// configured threshold, slot utilization exceeds 0.8, or the pending count
// exceeds the slot pool size.
func (s *Scheduler) IsUnderPressure() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	level := s.pressureLevelLocked()
	utilization := s.utilizationLocked()

	return level >= s.constraints.MemoryPressureThreshold ||
		utilization > pressureUtilization ||
		s.pending.Len() > s.constraints.MaxTotalTasks
}

// PressureLevel returns the current derived pressure level.
func (s *Scheduler) PressureLevel() MemoryPressureLevel {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.pressureLevelLocked()
}

// ApplyDegradation sheds load under High or Critical pressure: it cancels
// a quarter of the active low-priority tasks rounded up, oldest first,
// pauses for the backoff duration so they can exit, then drains pending
// work. It returns the number of tasks cancelled.
func (s *Scheduler) ApplyDegradation() int {
	s.mu.Lock()

	if s.pressureLevelLocked() < PressureHigh {
		s.mu.Unlock()

		return 0
	}

	victims := s.lowPriorityOldestFirstLocked()

	count := (len(victims) + degradationFraction - 1) / degradationFraction
	for _, info := range victims[:count] {
		info.cancel()

		s.logger.Info("degradation cancelled low-priority task",
			slog.String("task_id", string(info.ID)),
		)
	}

	s.mu.Unlock()

	if count > 0 {
		time.Sleep(s.constraints.BackoffDuration)
	}

	s.mu.Lock()
	s.dispatchLocked()
	s.mu.Unlock()

	return count
}

// lowPriorityOldestFirstLocked returns active low-priority tasks sorted by
// start time ascending.
func (s *Scheduler) lowPriorityOldestFirstLocked() []*TaskInfo {
	var victims []*TaskInfo

	for _, info := range s.active {
		if info.Priority == PriorityLow {
			victims = append(victims, info)
		}
	}

	sort.Slice(victims, func(i, j int) bool {
		return victims[i].StartedAt.Before(victims[j].StartedAt)
	})

	return victims
}

// tryAcquireSlot acquires a concurrency slot without blocking.
func (s *Scheduler) tryAcquireSlot() bool {
	select {
	case s.slots <- struct{}{}:
		return true
	default:
		return false
	}
}

// startLocked launches work under an already-acquired slot.
func (s *Scheduler) startLocked(id TaskID, priority TaskPriority, work Work) {
	taskCtx, cancel := context.WithCancel(s.rootCtx)

	s.active[id] = &TaskInfo{
		ID:        id,
		Priority:  priority,
		StartedAt: time.Now(),
		cancel:    cancel,
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		err := runWork(taskCtx, work)
		cancel()

		s.finish(id, err)
	}()
}

// runWork executes the work function, converting panics into errors so a
// misbehaving task cannot take down the scheduler.
func runWork(ctx context.Context, work Work) (err error) {
	defer func() {
		r := recover()
		if r != nil {
			err = fmt.Errorf("task panic: %v", r)
		}
	}()

	return work(ctx)
}

// finish settles a task's outcome, releases its slot, and dispatches the
// next eligible pending work.
func (s *Scheduler) finish(id TaskID, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.active, id)

	out := s.outcomes[id]

	switch {
	case err == nil:
		s.completed++
	case errors.Is(err, context.Canceled) || errors.Is(err, ErrTaskCancelled):
		s.cancelled++
		out.cancelled = true
		out.err = fmt.Errorf("%w: %s", ErrTaskCancelled, id)
	default:
		s.errs = append(s.errs, TaskError{TaskID: id, Err: err})
		out.err = err
	}

	close(out.done)

	<-s.slots

	s.dispatchLocked()
}

// dispatchLocked starts pending tasks while slots are free and pressure is
// below the threshold, highest priority first, FIFO within a tier.
func (s *Scheduler) dispatchLocked() {
	for s.pending.Len() > 0 && !s.closed {
		if s.pressureLevelLocked() >= s.constraints.MemoryPressureThreshold {
			return
		}

		if !s.tryAcquireSlot() {
			return
		}

		task := s.pending.pop()
		s.startLocked(task.ID, task.Priority, task.Work)
	}
}

// isQueuedLocked reports whether the task is still waiting in the pending queue.
func (s *Scheduler) isQueuedLocked(id TaskID) bool {
	for _, task := range s.pending {
		if task.ID == id {
			return true
		}
	}

	return false
}

// utilizationLocked returns the active/limit slot ratio.
func (s *Scheduler) utilizationLocked() float64 {
	return float64(len(s.active)) / float64(s.constraints.MaxTotalTasks)
}

// pressureLevelLocked derives the pressure level from slot utilization.
func (s *Scheduler) pressureLevelLocked() MemoryPressureLevel {
	return levelForUtilization(s.utilizationLocked())
}

// waitWithTimeout waits for the group up to the given bound. Returns false
// when the bound elapsed first.
func waitWithTimeout(wg *sync.WaitGroup, bound time.Duration) bool {
	done := make(chan struct{})

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(bound):
		return false
	}
}
