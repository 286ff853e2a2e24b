package scan_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deeprave/gstats/internal/scan"
	"github.com/deeprave/gstats/internal/scheduler"
)

func newOrchestrator(t *testing.T, opts ...scan.Option) (*scan.Orchestrator, *scheduler.Scheduler) {
	t.Helper()

	sched := scheduler.New(scheduler.DefaultConstraints(), nil)

	orch := scan.NewOrchestrator(t.TempDir(), sched, opts...)

	return orch, sched
}

func emitNothing(_ context.Context, _ scan.Emit) error {
	return nil
}

func TestOrchestrator_ScanWithoutUnitsFailsFast(t *testing.T) {
	t.Parallel()

	orch, sched := newOrchestrator(t)
	defer sched.CancelAll()

	_, err := orch.Scan(context.Background())
	require.ErrorIs(t, err, scan.ErrNoScanUnits)
}

func TestOrchestrator_UnreachableRepository(t *testing.T) {
	t.Parallel()

	sched := scheduler.New(scheduler.DefaultConstraints(), nil)
	defer sched.CancelAll()

	orch := scan.NewOrchestrator("/definitely/not/a/repo", sched)
	orch.RegisterUnit(scan.UnitFunc{UnitName: "noop", RunFunc: emitNothing})

	_, err := orch.Scan(context.Background())
	require.ErrorIs(t, err, scan.ErrRepositoryUnreachable)
}

func TestOrchestrator_StreamsMessagesFromAllUnits(t *testing.T) {
	t.Parallel()

	orch, sched := newOrchestrator(t)
	defer sched.CancelAll()

	unit := func(name string, count int) scan.Unit {
		return scan.UnitFunc{
			UnitName: name,
			RunFunc: func(_ context.Context, emit scan.Emit) error {
				for range count {
					emit(scan.Message{CommitHash: "abc"})
				}

				return nil
			},
		}
	}

	orch.RegisterUnit(unit("alpha", 3))
	orch.RegisterUnit(unit("beta", 2))

	messages, err := orch.Scan(context.Background())
	require.NoError(t, err)

	counts := map[string]int{}
	for msg := range messages {
		counts[msg.Unit]++
	}

	require.Equal(t, 3, counts["alpha"])
	require.Equal(t, 2, counts["beta"])
}

func TestOrchestrator_FailingUnitDoesNotAbortSiblings(t *testing.T) {
	t.Parallel()

	orch, sched := newOrchestrator(t)
	defer sched.CancelAll()

	orch.RegisterUnit(scan.UnitFunc{
		UnitName: "broken",
		RunFunc: func(_ context.Context, _ scan.Emit) error {
			return errors.New("backend exploded")
		},
	})
	orch.RegisterUnit(scan.UnitFunc{
		UnitName: "healthy",
		RunFunc: func(_ context.Context, emit scan.Emit) error {
			emit(scan.Message{CommitHash: "def"})

			return nil
		},
	})

	messages, err := orch.Scan(context.Background())
	require.NoError(t, err)

	var received int
	for msg := range messages {
		if msg.Unit == "healthy" {
			received++
		}
	}

	require.Equal(t, 1, received)

	warnings := orch.Warnings()
	require.Len(t, warnings, 1)
	require.Contains(t, warnings[0], "broken")
}

func TestOrchestrator_LifecycleEvents(t *testing.T) {
	t.Parallel()

	cfg := scan.Config{ProgressInterval: 20 * time.Millisecond}

	orch, sched := newOrchestrator(t, scan.WithConfig(cfg))
	defer sched.CancelAll()

	orch.RegisterUnit(scan.UnitFunc{
		UnitName: "slowish",
		RunFunc: func(ctx context.Context, emit scan.Emit) error {
			emit(scan.Message{CommitHash: "abc"})

			select {
			case <-time.After(100 * time.Millisecond):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})

	messages, err := orch.Scan(context.Background())
	require.NoError(t, err)

	for range messages {
		// Drain.
	}

	var sawStarted, sawProgress, sawCompleted bool

	deadline := time.After(time.Second)

	for !(sawStarted && sawProgress && sawCompleted) {
		select {
		case event := <-orch.Events():
			switch event.Kind {
			case scan.EventStarted:
				sawStarted = true
			case scan.EventProgress:
				sawProgress = true
				require.Greater(t, event.Estimate, 0.0)
				require.Less(t, event.Estimate, 1.0)
				require.True(t, event.DataReady)
			case scan.EventCompleted:
				sawCompleted = true
				require.Greater(t, event.Duration, time.Duration(0))
			}
		case <-deadline:
			t.Fatalf("missing events: started=%v progress=%v completed=%v",
				sawStarted, sawProgress, sawCompleted)
		}
	}
}

func TestOrchestrator_GracefulShutdownWhenAllIdle(t *testing.T) {
	t.Parallel()

	registry := scan.NewStateRegistry()
	registry.Register("reporter")

	orch, _ := newOrchestrator(t, scan.WithCoordinator(registry))

	require.NoError(t, orch.GracefulShutdown(100*time.Millisecond))
}

// A consumer stuck in the processing state causes a timeout error that
// names it.
func TestOrchestrator_GracefulShutdownNamesBusyConsumers(t *testing.T) {
	t.Parallel()

	registry := scan.NewStateRegistry()
	registry.Register("exporter")
	registry.Register("renderer")
	registry.SetState("renderer", scan.PluginProcessing)

	orch, _ := newOrchestrator(t, scan.WithCoordinator(registry))

	err := orch.GracefulShutdown(100 * time.Millisecond)
	require.ErrorIs(t, err, scan.ErrShutdownTimeout)
	require.Contains(t, err.Error(), "renderer")
	require.NotContains(t, err.Error(), "exporter")
}

func TestOrchestrator_GracefulShutdownWaitsForConsumersToSettle(t *testing.T) {
	t.Parallel()

	registry := scan.NewStateRegistry()
	registry.Register("late")
	registry.SetState("late", scan.PluginProcessing)

	go func() {
		time.Sleep(50 * time.Millisecond)
		registry.SetState("late", scan.PluginIdle)
	}()

	orch, _ := newOrchestrator(t, scan.WithCoordinator(registry))

	require.NoError(t, orch.GracefulShutdown(time.Second))
}

func TestOrchestrator_CloseIsIdempotentAndLogOnly(t *testing.T) {
	t.Parallel()

	registry := scan.NewStateRegistry()
	registry.Register("stuck")
	registry.SetState("stuck", scan.PluginProcessing)

	cfg := scan.Config{ShutdownTimeout: 30 * time.Millisecond}

	orch, _ := newOrchestrator(t, scan.WithCoordinator(registry), scan.WithConfig(cfg))

	require.NoError(t, orch.Close())
	require.NoError(t, orch.Close())
}

func TestOrchestrator_ScanCancellation(t *testing.T) {
	t.Parallel()

	orch, sched := newOrchestrator(t)

	orch.RegisterUnit(scan.UnitFunc{
		UnitName: "longhaul",
		RunFunc: func(ctx context.Context, _ scan.Emit) error {
			<-ctx.Done()

			return ctx.Err()
		},
	})

	messages, err := orch.Scan(context.Background())
	require.NoError(t, err)

	sched.CancelAll()

	for range messages {
		// Drain until the stream closes.
	}

	require.Equal(t, 1, sched.CancelledCount())
}

// Cancelling the context handed to Scan must reach running units through
// the scheduler, not just the emit path.
func TestOrchestrator_CancellingScanContextStopsUnits(t *testing.T) {
	t.Parallel()

	orch, sched := newOrchestrator(t)

	running := make(chan struct{})

	orch.RegisterUnit(scan.UnitFunc{
		UnitName: "blocked",
		RunFunc: func(ctx context.Context, _ scan.Emit) error {
			close(running)
			<-ctx.Done()

			return ctx.Err()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	messages, err := orch.Scan(ctx)
	require.NoError(t, err)

	<-running
	cancel()

	drained := make(chan struct{})

	go func() {
		for range messages {
			// Drain until the stream closes.
		}

		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not close after scan context cancellation")
	}

	require.Equal(t, 1, sched.CancelledCount())
	require.Zero(t, sched.ActiveCount())
}

// A Submit failure mid-registration must leave the orchestrator reusable:
// the stream is settled and the scanning flag released.
func TestOrchestrator_SubmitFailureReleasesScan(t *testing.T) {
	t.Parallel()

	sched := scheduler.New(scheduler.DefaultConstraints(), nil)
	sched.CancelAll()

	orch := scan.NewOrchestrator(t.TempDir(), sched)
	orch.RegisterUnit(scan.UnitFunc{UnitName: "noop", RunFunc: emitNothing})

	_, err := orch.Scan(context.Background())
	require.ErrorIs(t, err, scheduler.ErrSchedulerClosed)

	// A failed Scan must not leave the in-progress flag set.
	_, err = orch.Scan(context.Background())
	require.ErrorIs(t, err, scheduler.ErrSchedulerClosed)
	require.NotErrorIs(t, err, scan.ErrScanInProgress)
}

func TestStateRegistry_WaitForAllPluginsIdle(t *testing.T) {
	t.Parallel()

	registry := scan.NewStateRegistry()
	registry.Register("worker")
	registry.SetState("worker", scan.PluginProcessing)

	err := registry.WaitForAllPluginsIdle(50 * time.Millisecond)
	require.ErrorIs(t, err, scan.ErrShutdownTimeout)

	registry.SetState("worker", scan.PluginIdle)
	require.NoError(t, registry.WaitForAllPluginsIdle(50*time.Millisecond))
}
