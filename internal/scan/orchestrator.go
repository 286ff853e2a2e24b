package scan

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/deeprave/gstats/internal/scheduler"
)

// defaultProgressInterval is the cadence of progress signals.
const defaultProgressInterval = 250 * time.Millisecond

// defaultShutdownTimeout bounds the implicit graceful wait run by Close.
const defaultShutdownTimeout = 5 * time.Second

// defaultMessageBuffer is the output stream buffer size.
const defaultMessageBuffer = 64

// eventBuffer is the lifecycle event channel buffer size. Events are
// dropped rather than blocking the scan when no listener keeps up.
const eventBuffer = 16

// progressHorizon shapes the elapsed-time-based completion estimate: an
// asymptotic ramp that reaches 0.5 after one horizon.
const progressHorizon = 2 * time.Second

// maxEstimate caps the completion estimate below 1.0 until completion is
// actually signalled.
const maxEstimate = 0.99

// EventKind discriminates lifecycle signals.
type EventKind int

const (
	// EventStarted signals the scan began.
	EventStarted EventKind = iota
	// EventProgress is the periodic progress signal.
	EventProgress
	// EventCompleted signals the scan finished.
	EventCompleted
)

// Event is a scan lifecycle signal.
type Event struct {
	Kind EventKind
	At   time.Time

	// Progress fields.
	Elapsed   time.Duration
	Estimate  float64
	DataReady bool

	// Completion fields.
	Duration time.Duration
	Warnings []string
}

// Config holds orchestrator tunables. Zero values select defaults.
type Config struct {
	ProgressInterval time.Duration
	ShutdownTimeout  time.Duration
	MessageBuffer    int
	UnitPriority     scheduler.TaskPriority
}

// normalize fills zero fields with defaults.
func (c Config) normalize() Config {
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = defaultProgressInterval
	}

	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}

	if c.MessageBuffer <= 0 {
		c.MessageBuffer = defaultMessageBuffer
	}

	if c.UnitPriority == 0 {
		c.UnitPriority = scheduler.PriorityNormal
	}

	return c
}

// Orchestrator validates repository reachability, registers scan units,
// runs them concurrently through the task scheduler, and coordinates a
// safe shutdown with external consumers.
type Orchestrator struct {
	repoPath    string
	config      Config
	sched       *scheduler.Scheduler
	coordinator PluginCoordinator
	logger      *slog.Logger
	tracer      trace.Tracer

	units []Unit

	mu       sync.Mutex
	warnings []string

	dataReady atomic.Bool
	scanning  atomic.Bool
	events    chan Event
	closeOnce sync.Once
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCoordinator sets the consumer coordination interface polled during
// graceful shutdown.
func WithCoordinator(pc PluginCoordinator) Option {
	return func(o *Orchestrator) { o.coordinator = pc }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = logger }
}

// WithTracer sets the tracer used to span each scan.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = tracer }
}

// WithConfig overrides the default tunables.
func WithConfig(cfg Config) Option {
	return func(o *Orchestrator) { o.config = cfg.normalize() }
}

// NewOrchestrator creates an orchestrator for the repository at repoPath.
func NewOrchestrator(repoPath string, sched *scheduler.Scheduler, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		repoPath: repoPath,
		config:   Config{}.normalize(),
		sched:    sched,
		logger:   slog.Default(),
		tracer:   nooptrace.NewTracerProvider().Tracer("gstats"),
		events:   make(chan Event, eventBuffer),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// RegisterUnit adds a scan unit. Units registered after Scan starts are
// picked up by the next scan.
func (o *Orchestrator) RegisterUnit(unit Unit) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.units = append(o.units, unit)
}

// Events returns the lifecycle signal stream. Signals are dropped when the
// listener does not keep up; they are advisory, never load-bearing.
func (o *Orchestrator) Events() <-chan Event {
	return o.events
}

// Warnings returns the warnings collected so far.
func (o *Orchestrator) Warnings() []string {
	o.mu.Lock()
	defer o.mu.Unlock()

	warnings := make([]string, len(o.warnings))
	copy(warnings, o.warnings)

	return warnings
}

// Scan validates the repository, submits every registered unit to the
// scheduler, and returns the merged message stream. The stream closes once
// all units have finished. A failing unit aborts only its own stream.
// Cancelling ctx cancels every running unit through the scheduler.
func (o *Orchestrator) Scan(ctx context.Context) (<-chan Message, error) {
	o.mu.Lock()
	units := make([]Unit, len(o.units))
	copy(units, o.units)
	o.mu.Unlock()

	if len(units) == 0 {
		return nil, fmt.Errorf("%w: register at least one scan unit before calling Scan", ErrNoScanUnits)
	}

	err := o.validateRepository()
	if err != nil {
		return nil, err
	}

	if !o.scanning.CompareAndSwap(false, true) {
		return nil, ErrScanInProgress
	}

	start := time.Now()

	scanCtx, span := o.tracer.Start(ctx, "scan",
		trace.WithAttributes(
			attribute.String("repo.path", o.repoPath),
			attribute.Int("scan.units", len(units)),
		),
	)

	messages := make(chan Message, o.config.MessageBuffer)

	ids := make([]scheduler.TaskID, 0, len(units))

	for _, unit := range units {
		id, submitErr := o.submitUnit(scanCtx, unit, messages)
		if submitErr != nil {
			// Settle the units submitted before the failure so none keep
			// running against an abandoned stream.
			o.sched.CancelAll()
			o.awaitUnits(units[:len(ids)], ids)

			close(messages)
			span.End()
			o.scanning.Store(false)

			return nil, fmt.Errorf("submit scan unit %s: %w", unit.Name(), submitErr)
		}

		ids = append(ids, id)
	}

	o.sendEvent(Event{Kind: EventStarted, At: start})

	progressDone := make(chan struct{})

	go o.progressLoop(start, progressDone)

	// Unit work runs under the scheduler's own context tree, so the
	// caller's cancellation must be relayed explicitly.
	go func() {
		select {
		case <-scanCtx.Done():
			o.sched.CancelAll()
		case <-progressDone:
		}
	}()

	go func() {
		defer close(messages)
		defer span.End()

		o.awaitUnits(units, ids)

		close(progressDone)

		o.sendEvent(Event{
			Kind:     EventCompleted,
			At:       time.Now(),
			Duration: time.Since(start),
			Warnings: o.Warnings(),
		})

		o.scanning.Store(false)
	}()

	return messages, nil
}

// submitUnit schedules one unit's run, wiring its emit callback to the
// merged output stream.
func (o *Orchestrator) submitUnit(ctx context.Context, unit Unit, messages chan<- Message) (scheduler.TaskID, error) {
	return o.sched.Submit(unit.Name(), o.config.UnitPriority, func(taskCtx context.Context) error {
		emit := func(msg Message) {
			msg.Unit = unit.Name()

			if msg.Warning != "" {
				o.addWarning(msg.Warning)
			} else {
				o.dataReady.Store(true)
			}

			select {
			case messages <- msg:
			case <-taskCtx.Done():
			case <-ctx.Done():
			}
		}

		return unit.Run(taskCtx, emit)
	})
}

// awaitUnits blocks until every unit task settles, converting per-unit
// failures into warnings without touching siblings.
func (o *Orchestrator) awaitUnits(units []Unit, ids []scheduler.TaskID) {
	for i, id := range ids {
		err := o.sched.AwaitTask(id, 0)
		if err != nil {
			o.addWarning(fmt.Sprintf("scan unit %s aborted: %v", units[i].Name(), err))

			o.logger.Warn("scan unit aborted",
				slog.String("unit", units[i].Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}

// progressLoop emits periodic progress signals until stopped.
func (o *Orchestrator) progressLoop(start time.Time, done <-chan struct{}) {
	ticker := time.NewTicker(o.config.ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			elapsed := now.Sub(start)

			o.sendEvent(Event{
				Kind:      EventProgress,
				At:        now,
				Elapsed:   elapsed,
				Estimate:  completionEstimate(elapsed),
				DataReady: o.dataReady.Load(),
			})
		}
	}
}

// completionEstimate maps elapsed time onto (0, maxEstimate) with an
// asymptotic ramp. The scan has no total-work oracle, so the estimate is a
// pure function of elapsed time.
func completionEstimate(elapsed time.Duration) float64 {
	estimate := float64(elapsed) / float64(elapsed+progressHorizon)

	return min(estimate, maxEstimate)
}

// GracefulShutdown requests scheduler-wide cancellation, then polls the
// coordination interface until all consumers report idle or the timeout
// elapses. The poll re-reads consumer state each iteration; no access is
// held across the wait. On timeout the error names the busy consumers.
// The timeout bounds only the handshake: in-flight work may still be
// draining when it fires.
func (o *Orchestrator) GracefulShutdown(timeout time.Duration) error {
	o.sched.CancelAll()

	if o.coordinator == nil {
		return nil
	}

	deadline := time.Now().Add(timeout)

	for {
		if o.coordinator.AreAllActivePluginsIdle() {
			return nil
		}

		if time.Now().After(deadline) {
			busy := o.coordinator.GetActiveProcessingPlugins()

			return fmt.Errorf("%w after %s: consumers still processing: %s",
				ErrShutdownTimeout, timeout, strings.Join(busy, ", "))
		}

		time.Sleep(idlePollInterval)
	}
}

// Close runs the graceful consumer wait with the default timeout so
// discarding the orchestrator does not lose in-flight consumer output.
// Failures are logged only; callers wanting the error should call
// GracefulShutdown directly. Skipping Close skips the safety wait.
func (o *Orchestrator) Close() error {
	o.closeOnce.Do(func() {
		err := o.GracefulShutdown(o.config.ShutdownTimeout)
		if err != nil {
			o.logger.Warn("graceful shutdown on close failed",
				slog.String("error", err.Error()),
			)
		}
	})

	return nil
}

// addWarning records a warning for the completion signal.
func (o *Orchestrator) addWarning(warning string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.warnings = append(o.warnings, warning)
}

// sendEvent delivers a lifecycle signal without blocking the scan.
func (o *Orchestrator) sendEvent(event Event) {
	select {
	case o.events <- event:
	default:
	}
}

// validateRepository checks the target path is a reachable directory.
// Deeper validation happens when units open the repository.
func (o *Orchestrator) validateRepository() error {
	info, err := os.Stat(o.repoPath)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrRepositoryUnreachable, o.repoPath, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrRepositoryUnreachable, o.repoPath)
	}

	return nil
}
