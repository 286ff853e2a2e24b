package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// TaskPriority orders tasks for dispatch. Higher values dispatch first.
type TaskPriority int

const (
	// PriorityLow is for background work that tolerates starvation.
	PriorityLow TaskPriority = iota
	// PriorityNormal is the default for scan units.
	PriorityNormal
	// PriorityHigh is for latency-sensitive work.
	PriorityHigh
	// PriorityCritical is for work that must not be deferred under
	// anything short of critical pressure.
	PriorityCritical
)

// String returns the priority name.
func (p TaskPriority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityNormal:
		return "normal"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "normal"
	}
}

// MemoryPressureLevel is a coarse, ordered scarcity classification derived
// from slot utilization. It is a utilization-ratio proxy, not true memory
// telemetry; real measurements can be substituted without changing the
// public contract.
type MemoryPressureLevel int

const (
	// PressureNormal means ample capacity remains.
	PressureNormal MemoryPressureLevel = iota
	// PressureModerate means capacity is tightening.
	PressureModerate
	// PressureHigh means capacity is nearly exhausted.
	PressureHigh
	// PressureCritical means capacity is exhausted or oversubscribed.
	PressureCritical
)

// ParsePressureLevel maps a level name to its MemoryPressureLevel,
// ignoring case.
func ParsePressureLevel(name string) (MemoryPressureLevel, error) {
	switch strings.ToLower(name) {
	case "normal":
		return PressureNormal, nil
	case "moderate":
		return PressureModerate, nil
	case "high":
		return PressureHigh, nil
	case "critical":
		return PressureCritical, nil
	default:
		return PressureNormal, fmt.Errorf("%w: %q", ErrUnknownPressureLevel, name)
	}
}

// String returns the pressure level name.
func (l MemoryPressureLevel) String() string {
	switch l {
	case PressureNormal:
		return "normal"
	case PressureModerate:
		return "moderate"
	case PressureHigh:
		return "high"
	case PressureCritical:
		return "critical"
	default:
		return "normal"
	}
}

// Utilization thresholds mapping the active/limit ratio to pressure levels.
const (
	moderateUtilization = 0.5
	highUtilization     = 0.75
	criticalUtilization = 0.9
)

// pressureUtilization is the utilization ratio above which the scheduler
// reports pressure regardless of the derived level.
const pressureUtilization = 0.8

// defaultBackoff is the pause applied between degradation passes.
const defaultBackoff = 100 * time.Millisecond

// defaultMaxTotalTasks bounds concurrent task execution when unconfigured.
const defaultMaxTotalTasks = 8

// ResourceConstraints bounds scheduler resource consumption.
type ResourceConstraints struct {
	// MaxTotalTasks is the concurrency slot pool size.
	MaxTotalTasks int

	// MemoryPressureThreshold is the level at or above which new
	// submissions queue instead of starting immediately.
	MemoryPressureThreshold MemoryPressureLevel

	// BackoffDuration is the pause between degradation passes.
	BackoffDuration time.Duration
}

// DefaultConstraints returns the default resource constraints.
func DefaultConstraints() ResourceConstraints {
	return ResourceConstraints{
		MaxTotalTasks:           defaultMaxTotalTasks,
		MemoryPressureThreshold: PressureHigh,
		BackoffDuration:         defaultBackoff,
	}
}

// normalize fills zero fields with defaults.
func (rc ResourceConstraints) normalize() ResourceConstraints {
	if rc.MaxTotalTasks <= 0 {
		rc.MaxTotalTasks = defaultMaxTotalTasks
	}

	if rc.BackoffDuration <= 0 {
		rc.BackoffDuration = defaultBackoff
	}

	return rc
}

// levelForUtilization maps an active/limit ratio to a pressure level.
func levelForUtilization(utilization float64) MemoryPressureLevel {
	switch {
	case utilization >= criticalUtilization:
		return PressureCritical
	case utilization >= highUtilization:
		return PressureHigh
	case utilization >= moderateUtilization:
		return PressureModerate
	default:
		return PressureNormal
	}
}

// demoteForPressure lowers a submission's priority according to the current
// pressure level. Critical pressure forces Low; High pressure demotes
// Critical to High and High to Normal; Moderate demotes only Critical.
func demoteForPressure(priority TaskPriority, level MemoryPressureLevel) TaskPriority {
	switch level {
	case PressureCritical:
		return PriorityLow
	case PressureHigh:
		switch priority {
		case PriorityCritical:
			return PriorityHigh
		case PriorityHigh:
			return PriorityNormal
		case PriorityNormal, PriorityLow:
			return priority
		}
	case PressureModerate:
		if priority == PriorityCritical {
			return PriorityHigh
		}
	case PressureNormal:
	}

	return priority
}
