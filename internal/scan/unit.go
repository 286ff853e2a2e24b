// Package scan drives registered scan units through the task scheduler,
// emits lifecycle signals, and performs a graceful shutdown handshake with
// external analysis consumers.
package scan

import (
	"context"
	"time"

	"github.com/deeprave/gstats/internal/diffparse"
)

// Message is one analysis record streamed by a scan unit.
type Message struct {
	// Unit names the producing scan unit.
	Unit string

	// CommitHash identifies the commit the record describes, when any.
	CommitHash string

	// Author and AuthorEmail identify the commit author, when any.
	Author      string
	AuthorEmail string

	// When is the commit timestamp.
	When time.Time

	// Changes holds the per-file change records parsed from the commit.
	Changes []diffparse.FileChangeAnalysis

	// Warning carries a non-fatal condition; collected and reported with
	// the completion signal.
	Warning string
}

// Emit forwards a message to the orchestrator's output stream. It returns
// once the message is accepted or the scan is cancelled.
type Emit func(Message)

// Unit is a named, cancellable, streaming producer of analysis messages
// over the repository.
type Unit interface {
	// Name identifies the unit in task IDs, logs, and messages.
	Name() string

	// Run produces messages until the walk is exhausted or ctx is
	// cancelled. Cancellation is cooperative: Run must observe ctx at its
	// own suspension points.
	Run(ctx context.Context, emit Emit) error
}

// UnitFunc adapts a function to the Unit interface.
type UnitFunc struct {
	UnitName string
	RunFunc  func(ctx context.Context, emit Emit) error
}

// Name implements Unit.
func (u UnitFunc) Name() string { return u.UnitName }

// Run implements Unit.
func (u UnitFunc) Run(ctx context.Context, emit Emit) error {
	return u.RunFunc(ctx, emit)
}
