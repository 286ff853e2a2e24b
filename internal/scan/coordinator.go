package scan

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// idlePollInterval is the cadence for re-checking consumer idleness during
// a shutdown handshake. State is re-read each iteration; no lock is held
// across the wait.
const idlePollInterval = 10 * time.Millisecond

// PluginCoordinator is the coordination interface the orchestrator polls
// during graceful shutdown. The orchestrator only calls it; consumer
// lifecycle is owned elsewhere.
type PluginCoordinator interface {
	// AreAllActivePluginsIdle reports whether every coordinated consumer
	// has no in-flight work.
	AreAllActivePluginsIdle() bool

	// GetActiveProcessingPlugins names the consumers still busy.
	GetActiveProcessingPlugins() []string

	// WaitForAllPluginsIdle blocks until all consumers report idle or the
	// timeout elapses.
	WaitForAllPluginsIdle(timeout time.Duration) error
}

// PluginState is a coordinated consumer's coarse activity state.
type PluginState int

const (
	// PluginIdle means no in-flight work; safe to shut down around.
	PluginIdle PluginState = iota
	// PluginProcessing means the consumer holds in-flight work.
	PluginProcessing
)

// StateRegistry is an in-process PluginCoordinator tracking per-consumer
// states. Consumers register themselves and flip between idle and
// processing around each unit of work.
type StateRegistry struct {
	mu     sync.RWMutex
	states map[string]PluginState
}

// NewStateRegistry creates an empty registry.
func NewStateRegistry() *StateRegistry {
	return &StateRegistry{states: make(map[string]PluginState)}
}

// Register adds a consumer in the idle state. Re-registering resets it.
func (sr *StateRegistry) Register(name string) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	sr.states[name] = PluginIdle
}

// SetState records a consumer's current state.
func (sr *StateRegistry) SetState(name string, state PluginState) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	sr.states[name] = state
}

// AreAllActivePluginsIdle implements PluginCoordinator.
func (sr *StateRegistry) AreAllActivePluginsIdle() bool {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	for _, state := range sr.states {
		if state == PluginProcessing {
			return false
		}
	}

	return true
}

// GetActiveProcessingPlugins implements PluginCoordinator. Names are sorted
// for stable error messages.
func (sr *StateRegistry) GetActiveProcessingPlugins() []string {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	var busy []string

	for name, state := range sr.states {
		if state == PluginProcessing {
			busy = append(busy, name)
		}
	}

	sort.Strings(busy)

	return busy
}

// WaitForAllPluginsIdle implements PluginCoordinator. It polls, re-reading
// state each iteration rather than holding the lock across the wait.
func (sr *StateRegistry) WaitForAllPluginsIdle(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		if sr.AreAllActivePluginsIdle() {
			return nil
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("%w after %s: still processing: %v",
				ErrShutdownTimeout, timeout, sr.GetActiveProcessingPlugins())
		}

		time.Sleep(idlePollInterval)
	}
}
