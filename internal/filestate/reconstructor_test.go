package filestate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deeprave/gstats/internal/diffparse"
	"github.com/deeprave/gstats/internal/filestate"
)

func TestReconstructor_ModifiedArithmetic(t *testing.T) {
	t.Parallel()

	rec := filestate.NewReconstructor()
	rec.InitializeFileAtHead("f.go", 100, false, 0)

	rec.ProcessCommit([]diffparse.FileChangeAnalysis{
		{Path: "f.go", Type: diffparse.Modified, Insertions: 30, Deletions: 10},
	})

	state, ok := rec.FileState("f.go")
	require.True(t, ok)
	require.True(t, state.Exists)
	require.Equal(t, 80, state.LineCount) // 100 - 30 + 10.
}

func TestReconstructor_ModifiedSaturatesAtZero(t *testing.T) {
	t.Parallel()

	rec := filestate.NewReconstructor()
	rec.InitializeFileAtHead("f.go", 5, false, 0)

	rec.ProcessCommit([]diffparse.FileChangeAnalysis{
		{Path: "f.go", Type: diffparse.Modified, Insertions: 50, Deletions: 0},
	})

	state, _ := rec.FileState("f.go")
	require.Equal(t, 0, state.LineCount)
}

func TestReconstructor_AddedMeansNoPriorExistence(t *testing.T) {
	t.Parallel()

	rec := filestate.NewReconstructor()
	rec.InitializeFileAtHead("f.go", 42, false, 0)

	rec.ProcessCommit([]diffparse.FileChangeAnalysis{
		{Path: "f.go", Type: diffparse.Added, Insertions: 42},
	})

	state, ok := rec.FileState("f.go")
	require.True(t, ok)
	require.False(t, state.Exists)
	require.Zero(t, state.LineCount)
	require.True(t, rec.IsFileDeleted("f.go"))
}

func TestReconstructor_DeletedRestoresContent(t *testing.T) {
	t.Parallel()

	rec := filestate.NewReconstructor()

	// Walking backward over a deletion: the removed content reappears.
	rec.ProcessCommit([]diffparse.FileChangeAnalysis{
		{Path: "gone.txt", Type: diffparse.Deleted, Insertions: 77},
	})

	state, ok := rec.FileState("gone.txt")
	require.True(t, ok)
	require.True(t, state.Exists)
	require.Equal(t, 77, state.LineCount)
}

func TestReconstructor_DeletedBinaryRestoresSize(t *testing.T) {
	t.Parallel()

	rec := filestate.NewReconstructor()

	rec.ProcessCommit([]diffparse.FileChangeAnalysis{
		{Path: "img.png", Type: diffparse.Deleted, IsBinary: true, BinarySize: 2048},
	})

	state, _ := rec.FileState("img.png")
	require.True(t, state.Exists)
	require.True(t, state.IsBinary)
	require.Equal(t, int64(2048), state.BinarySize)
	require.Zero(t, state.LineCount)
}

func TestReconstructor_RenameRehomesKey(t *testing.T) {
	t.Parallel()

	rec := filestate.NewReconstructor()
	rec.InitializeFileAtHead("new/name.go", 10, false, 0)

	rec.ProcessCommit([]diffparse.FileChangeAnalysis{
		{Path: "new/name.go", OldPath: "old/name.go", Type: diffparse.Renamed},
	})

	_, newOK := rec.FileState("new/name.go")
	require.False(t, newOK)

	state, oldOK := rec.FileState("old/name.go")
	require.True(t, oldOK)
	require.Equal(t, "new/name.go", state.CurrentPath)
	require.Equal(t, 10, state.LineCount)
}

func TestReconstructor_RenameSeedsUnseenPath(t *testing.T) {
	t.Parallel()

	rec := filestate.NewReconstructor()

	rec.ProcessCommit([]diffparse.FileChangeAnalysis{
		{Path: "b.go", OldPath: "a.go", Type: diffparse.Renamed, Insertions: 3, Deletions: 1},
	})

	state, ok := rec.FileState("a.go")
	require.True(t, ok)
	require.True(t, state.Exists)
	// Seeded at insertions+deletions = 4, then 4 - 3 + 1 = 2.
	require.Equal(t, 2, state.LineCount)
}

func TestReconstructor_CopiedLeavesSourceUntouched(t *testing.T) {
	t.Parallel()

	rec := filestate.NewReconstructor()
	rec.InitializeFileAtHead("base.go", 50, false, 0)
	rec.InitializeFileAtHead("clone.go", 50, false, 0)

	rec.ProcessCommit([]diffparse.FileChangeAnalysis{
		{Path: "clone.go", OldPath: "base.go", Type: diffparse.Copied},
	})

	clone, _ := rec.FileState("clone.go")
	require.False(t, clone.Exists)

	base, _ := rec.FileState("base.go")
	require.True(t, base.Exists)
	require.Equal(t, 50, base.LineCount)
}

func TestReconstructor_FirstObservationSeedsApproximateTip(t *testing.T) {
	t.Parallel()

	rec := filestate.NewReconstructor()

	rec.ProcessCommit([]diffparse.FileChangeAnalysis{
		{Path: "f.go", Type: diffparse.Modified, Insertions: 6, Deletions: 4},
	})

	state, ok := rec.FileState("f.go")
	require.True(t, ok)
	// Seeded at 6+4=10, then backward rule: 10 - 6 + 4 = 8.
	require.Equal(t, 8, state.LineCount)
}

func TestReconstructor_HeadSeedSupersedesInference(t *testing.T) {
	t.Parallel()

	rec := filestate.NewReconstructor()

	rec.ProcessCommit([]diffparse.FileChangeAnalysis{
		{Path: "f.go", Type: diffparse.Modified, Insertions: 1, Deletions: 1},
	})

	// A later authoritative read replaces the inferred state outright.
	rec.InitializeFileAtHead("f.go", 500, false, 0)

	state, _ := rec.FileState("f.go")
	require.Equal(t, 500, state.LineCount)
}

// Scenario: file seeded at 150 lines; a Modified record (+2/-0) then an Added
// record processed backward ends with the file not existing before the
// earliest recorded commit.
func TestReconstructor_SeededFileTracedBackToCreation(t *testing.T) {
	t.Parallel()

	rec := filestate.NewReconstructor()
	rec.InitializeFileAtHead("story.md", 150, false, 0)

	rec.ProcessCommit([]diffparse.FileChangeAnalysis{
		{Path: "story.md", Type: diffparse.Modified, Insertions: 2, Deletions: 0},
	})

	state, _ := rec.FileState("story.md")
	require.Equal(t, 148, state.LineCount)

	rec.ProcessCommit([]diffparse.FileChangeAnalysis{
		{Path: "story.md", Type: diffparse.Added, Insertions: 148},
	})

	state, _ = rec.FileState("story.md")
	require.False(t, state.Exists)
}

func TestReconstructor_AllFileStatesSnapshot(t *testing.T) {
	t.Parallel()

	rec := filestate.NewReconstructor()
	rec.InitializeFileAtHead("a.go", 1, false, 0)
	rec.InitializeFileAtHead("b.go", 2, false, 0)

	snapshot := rec.AllFileStates()
	require.Len(t, snapshot, 2)

	// Mutating the snapshot must not affect tracked state.
	entry := snapshot["a.go"]
	entry.LineCount = 999
	snapshot["a.go"] = entry

	state, _ := rec.FileState("a.go")
	require.Equal(t, 1, state.LineCount)
}
