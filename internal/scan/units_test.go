package scan_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeprave/gstats/internal/filestate"
	"github.com/deeprave/gstats/internal/scan"
)

// scratchRepo builds throwaway repositories for unit tests.
type scratchRepo struct {
	t    *testing.T
	path string
	repo *git2go.Repository
}

func newScratchRepo(t *testing.T) *scratchRepo {
	t.Helper()

	dir := t.TempDir()

	repo, err := git2go.InitRepository(dir, false)
	require.NoError(t, err)

	t.Cleanup(repo.Free)

	return &scratchRepo{t: t, path: dir, repo: repo}
}

func (sr *scratchRepo) writeFile(name, content string) {
	sr.t.Helper()

	path := filepath.Join(sr.path, name)

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	require.NoError(sr.t, err)

	err = os.WriteFile(path, []byte(content), 0o644)
	require.NoError(sr.t, err)
}

func (sr *scratchRepo) commitAll(message, authorName, authorEmail string, when time.Time) {
	sr.t.Helper()

	index, err := sr.repo.Index()
	require.NoError(sr.t, err)

	defer index.Free()

	err = index.AddAll([]string{"*"}, git2go.IndexAddDefault, nil)
	require.NoError(sr.t, err)

	err = index.Write()
	require.NoError(sr.t, err)

	treeID, err := index.WriteTree()
	require.NoError(sr.t, err)

	tree, err := sr.repo.LookupTree(treeID)
	require.NoError(sr.t, err)

	defer tree.Free()

	sig := &git2go.Signature{Name: authorName, Email: authorEmail, When: when}

	var parents []*git2go.Commit

	head, err := sr.repo.Head()
	if err == nil {
		headCommit, lookupErr := sr.repo.LookupCommit(head.Target())
		require.NoError(sr.t, lookupErr)

		parents = append(parents, headCommit)

		head.Free()
	}

	_, err = sr.repo.CreateCommit("HEAD", sig, sig, message, tree, parents...)
	require.NoError(sr.t, err)

	for _, parent := range parents {
		parent.Free()
	}
}

func collectMessages(t *testing.T, unit scan.Unit) []scan.Message {
	t.Helper()

	var messages []scan.Message

	err := unit.Run(context.Background(), func(msg scan.Message) {
		messages = append(messages, msg)
	})
	require.NoError(t, err)

	return messages
}

func TestHistoryUnit_EmitsNewestFirst(t *testing.T) {
	sr := newScratchRepo(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sr.writeFile("a.txt", "one\ntwo\nthree\n")
	sr.commitAll("add a", "Alice", "alice@example.com", base)

	sr.writeFile("a.txt", "one\ntwo\nthree\nfour\nfive\n")
	sr.commitAll("grow a", "Alice", "alice@example.com", base.Add(time.Hour))

	unit := scan.NewHistoryUnit(scan.HistoryConfig{RepoPath: sr.path})
	messages := collectMessages(t, unit)

	require.Len(t, messages, 2)
	assert.Equal(t, scan.HistoryUnitName, messages[0].Unit)
	assert.Equal(t, "Alice", messages[0].Author)

	// Newest commit streams first.
	require.Len(t, messages[0].Changes, 1)
	assert.Equal(t, 2, messages[0].Changes[0].Insertions)

	require.Len(t, messages[1].Changes, 1)
	assert.Equal(t, 3, messages[1].Changes[0].Insertions)
}

func TestHistoryUnit_SeedFromHeadReconstructsBackward(t *testing.T) {
	sr := newScratchRepo(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sr.writeFile("a.txt", "one\ntwo\nthree\n")
	sr.commitAll("add a", "Alice", "alice@example.com", base)

	sr.writeFile("a.txt", "one\ntwo\nthree\nfour\nfive\n")
	sr.commitAll("grow a", "Alice", "alice@example.com", base.Add(time.Hour))

	unit := scan.NewHistoryUnit(scan.HistoryConfig{RepoPath: sr.path, SeedFromHead: true})
	collectMessages(t, unit)

	recon := unit.Reconstructor()

	// Walking the full history undoes the file back to before its creation.
	state, ok := recon.FileState("a.txt")
	require.True(t, ok)
	assert.False(t, state.Exists)
	assert.True(t, recon.IsFileDeleted("a.txt"))

	analysis := recon.AnalyzeLifecycle()
	assert.Equal(t, 1, analysis.Deleted)
	assert.Equal(t, filestate.Deleted, filestate.Classify("a.txt", state))
}

func TestHistoryUnit_MaxCommitsStopsEarly(t *testing.T) {
	sr := newScratchRepo(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sr.writeFile("a.txt", "one\ntwo\nthree\n")
	sr.commitAll("add a", "Alice", "alice@example.com", base)

	sr.writeFile("a.txt", "one\ntwo\nthree\nfour\nfive\n")
	sr.commitAll("grow a", "Alice", "alice@example.com", base.Add(time.Hour))

	unit := scan.NewHistoryUnit(scan.HistoryConfig{
		RepoPath:     sr.path,
		MaxCommits:   1,
		SeedFromHead: true,
	})
	messages := collectMessages(t, unit)

	require.Len(t, messages, 1)

	// Only the newest commit was undone: 5 seeded lines minus 2 insertions.
	state, ok := unit.Reconstructor().FileState("a.txt")
	require.True(t, ok)
	assert.True(t, state.Exists)
	assert.Equal(t, 3, state.LineCount)
}

func TestHistoryUnit_MissingRepositoryFails(t *testing.T) {
	t.Parallel()

	unit := scan.NewHistoryUnit(scan.HistoryConfig{
		RepoPath: filepath.Join(t.TempDir(), "absent"),
	})

	err := unit.Run(context.Background(), func(scan.Message) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), scan.HistoryUnitName)
}

func TestContributorUnit_TalliesPerAuthor(t *testing.T) {
	sr := newScratchRepo(t)

	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	sr.writeFile("a.txt", "one\ntwo\nthree\n")
	sr.commitAll("add a", "Alice", "alice@example.com", base)

	sr.writeFile("b.txt", "hello\n")
	sr.commitAll("add b", "Bob", "bob@example.com", base.Add(time.Hour))

	sr.writeFile("a.txt", "one\ntwo\nthree\nfour\nfive\n")
	sr.commitAll("grow a", "Alice", "alice@example.com", base.Add(2*time.Hour))

	unit := scan.NewContributorUnit(scan.ContributorConfig{RepoPath: sr.path})
	messages := collectMessages(t, unit)
	require.Len(t, messages, 3)

	stats := unit.Stats()
	require.Len(t, stats, 2)

	// Ordered by commit count descending.
	alice := stats[0]
	assert.Equal(t, "Alice", alice.Name)
	assert.Equal(t, "alice@example.com", alice.Email)
	assert.Equal(t, 2, alice.Commits)
	assert.Equal(t, 5, alice.Insertions)
	assert.Zero(t, alice.Deletions)
	assert.Equal(t, base, alice.First.UTC())
	assert.Equal(t, base.Add(2*time.Hour), alice.Last.UTC())

	bob := stats[1]
	assert.Equal(t, 1, bob.Commits)
	assert.Equal(t, 1, bob.Insertions)
}

func TestContributorUnit_CancelledContext(t *testing.T) {
	sr := newScratchRepo(t)

	sr.writeFile("a.txt", "one\n")
	sr.commitAll("add a", "Alice", "alice@example.com", time.Now())

	unit := scan.NewContributorUnit(scan.ContributorConfig{RepoPath: sr.path})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := unit.Run(ctx, func(scan.Message) {})
	require.ErrorIs(t, err, context.Canceled)
}
