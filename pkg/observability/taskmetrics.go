package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

const (
	metricTasksActive    = "gstats.scheduler.tasks.active"
	metricTasksPending   = "gstats.scheduler.tasks.pending"
	metricTasksCompleted = "gstats.scheduler.tasks.completed"
	metricTasksCancelled = "gstats.scheduler.tasks.cancelled"
	metricTasksFailed    = "gstats.scheduler.tasks.failed"
)

// TaskSnapshot is one observation of scheduler occupancy. It mirrors the
// scheduler's own counters without importing the scheduler package, so the
// metric wiring stays one-directional.
type TaskSnapshot struct {
	Active    int64
	Pending   int64
	Completed int64
	Cancelled int64
	Failed    int64
}

// TaskMetrics exposes task scheduler occupancy as OTel instruments. The
// meter's periodic reader invokes the snapshot function automatically; no
// manual polling is needed.
type TaskMetrics struct {
	active    metric.Int64ObservableGauge
	pending   metric.Int64ObservableGauge
	completed metric.Int64ObservableCounter
	cancelled metric.Int64ObservableCounter
	failed    metric.Int64ObservableCounter

	snapshot func() TaskSnapshot
}

// NewTaskMetrics creates scheduler instruments backed by the given snapshot
// function.
func NewTaskMetrics(mt metric.Meter, snapshot func() TaskSnapshot) (*TaskMetrics, error) {
	active, err := mt.Int64ObservableGauge(metricTasksActive,
		metric.WithDescription("Tasks currently holding an execution slot"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTasksActive, err)
	}

	pending, err := mt.Int64ObservableGauge(metricTasksPending,
		metric.WithDescription("Tasks queued awaiting a slot"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTasksPending, err)
	}

	completed, err := mt.Int64ObservableCounter(metricTasksCompleted,
		metric.WithDescription("Tasks finished without error"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTasksCompleted, err)
	}

	cancelled, err := mt.Int64ObservableCounter(metricTasksCancelled,
		metric.WithDescription("Tasks ended by cancellation"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTasksCancelled, err)
	}

	failed, err := mt.Int64ObservableCounter(metricTasksFailed,
		metric.WithDescription("Tasks ended with an execution error"),
		metric.WithUnit("{task}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", metricTasksFailed, err)
	}

	tm := &TaskMetrics{
		active:    active,
		pending:   pending,
		completed: completed,
		cancelled: cancelled,
		failed:    failed,
		snapshot:  snapshot,
	}

	_, err = mt.RegisterCallback(tm.observe, active, pending, completed, cancelled, failed)
	if err != nil {
		return nil, fmt.Errorf("register task metrics callback: %w", err)
	}

	return tm, nil
}

// observe reports the latest scheduler snapshot to the OTel observer.
func (tm *TaskMetrics) observe(_ context.Context, obs metric.Observer) error {
	snap := tm.snapshot()

	obs.ObserveInt64(tm.active, snap.Active)
	obs.ObserveInt64(tm.pending, snap.Pending)
	obs.ObserveInt64(tm.completed, snap.Completed)
	obs.ObserveInt64(tm.cancelled, snap.Cancelled)
	obs.ObserveInt64(tm.failed, snap.Failed)

	return nil
}
