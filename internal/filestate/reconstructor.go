// Package filestate reconstructs, commit by commit from the tip backward,
// each file's existence and line count.
package filestate

import (
	"github.com/deeprave/gstats/internal/diffparse"
	"github.com/deeprave/gstats/pkg/safeconv"
)

// FileState describes a file immediately before the most recently processed
// commit. The table key re-homes to the old path on rename, while
// CurrentPath keeps the path the file has at the tip.
type FileState struct {
	LineCount   int
	BinarySize  int64
	IsBinary    bool
	Exists      bool
	CurrentPath string
}

// Reconstructor maintains a path-to-state table while consuming commit
// changes ordered newest to oldest. It is not safe for concurrent use.
type Reconstructor struct {
	states map[string]*FileState

	// seeded marks paths whose tip state came from an authoritative
	// repository read. Seeds always win over first-change inference.
	seeded map[string]bool
}

// NewReconstructor creates an empty reconstructor.
func NewReconstructor() *Reconstructor {
	return &Reconstructor{
		states: make(map[string]*FileState),
		seeded: make(map[string]bool),
	}
}

// InitializeFileAtHead seeds authoritative tip state for a path from a live
// repository read. It supersedes first-change inference for that path, even
// when the inference already happened.
func (r *Reconstructor) InitializeFileAtHead(path string, lineCount int, isBinary bool, binarySize int64) {
	r.states[path] = &FileState{
		LineCount:   safeconv.ClampNonNegative(lineCount),
		IsBinary:    isBinary,
		BinarySize:  binarySize,
		Exists:      true,
		CurrentPath: path,
	}
	r.seeded[path] = true
}

// ProcessCommit applies one commit's change records backward, mutating each
// touched file's state to describe it immediately before that commit.
// Commits must be supplied newest first.
func (r *Reconstructor) ProcessCommit(changes []diffparse.FileChangeAnalysis) {
	for i := range changes {
		r.applyChange(&changes[i])
	}
}

// applyChange undoes a single file change.
func (r *Reconstructor) applyChange(change *diffparse.FileChangeAnalysis) {
	state := r.ensureState(change)

	switch change.Type {
	case diffparse.Added:
		// The file did not exist before this commit.
		state.Exists = false
		state.LineCount = 0
		state.BinarySize = 0

	case diffparse.Deleted:
		// The file existed before; the deleted content is the diff's
		// removed lines, recorded as insertions when walking backward.
		state.Exists = true
		state.IsBinary = change.IsBinary

		if change.IsBinary {
			state.LineCount = 0
			state.BinarySize = change.BinarySize
		} else {
			state.LineCount = change.Insertions
		}

	case diffparse.Modified:
		r.undoContentDelta(state, change)

	case diffparse.Renamed:
		r.undoContentDelta(state, change)
		r.rehomeKey(change.Path, change.OldPath)

	case diffparse.Copied:
		// Only the copy itself vanishes further back; the source file is
		// untouched.
		state.Exists = false
		state.LineCount = 0
		state.BinarySize = 0
	}
}

// undoContentDelta applies the backward arithmetic for in-place changes:
// previous lines = current - insertions + deletions, saturating at zero.
func (r *Reconstructor) undoContentDelta(state *FileState, change *diffparse.FileChangeAnalysis) {
	state.Exists = true

	if change.IsBinary {
		state.IsBinary = true

		return
	}

	prev := safeconv.SaturatingSub(state.LineCount, change.Insertions)
	state.LineCount = safeconv.SaturatingAdd(prev, change.Deletions)
}

// ensureState returns the tracked state for a change's path, seeding one when
// the path has not been observed yet. Absent an authoritative tip read, the
// first observed change approximates the tip size as insertions+deletions.
func (r *Reconstructor) ensureState(change *diffparse.FileChangeAnalysis) *FileState {
	if state, ok := r.states[change.Path]; ok {
		return state
	}

	state := &FileState{
		LineCount:   safeconv.SaturatingAdd(change.Insertions, change.Deletions),
		IsBinary:    change.IsBinary,
		BinarySize:  change.BinarySize,
		Exists:      true,
		CurrentPath: change.Path,
	}
	r.states[change.Path] = state

	return state
}

// rehomeKey moves a tracked state from its tip-side path to the pre-rename
// path, keeping CurrentPath pointed at the tip identity.
func (r *Reconstructor) rehomeKey(newPath, oldPath string) {
	if oldPath == "" || oldPath == newPath {
		return
	}

	state, ok := r.states[newPath]
	if !ok {
		return
	}

	delete(r.states, newPath)
	r.states[oldPath] = state

	if r.seeded[newPath] {
		delete(r.seeded, newPath)
		r.seeded[oldPath] = true
	}
}

// FileState returns the tracked state for a path, or false when untracked.
func (r *Reconstructor) FileState(path string) (FileState, bool) {
	state, ok := r.states[path]
	if !ok {
		return FileState{}, false
	}

	return *state, true
}

// AllFileStates returns a snapshot of the full path-to-state table.
func (r *Reconstructor) AllFileStates() map[string]FileState {
	snapshot := make(map[string]FileState, len(r.states))

	for path, state := range r.states {
		snapshot[path] = *state
	}

	return snapshot
}

// IsFileDeleted reports whether a path is tracked and flagged non-existent.
func (r *Reconstructor) IsFileDeleted(path string) bool {
	state, ok := r.states[path]

	return ok && !state.Exists
}

// TrackedCount returns the number of tracked paths.
func (r *Reconstructor) TrackedCount() int {
	return len(r.states)
}
