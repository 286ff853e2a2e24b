package gitlib_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	git2go "github.com/libgit2/git2go/v34"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deeprave/gstats/pkg/gitlib"
)

// testRepo wraps a scratch repository for integration testing.
type testRepo struct {
	t      *testing.T
	path   string
	native *git2go.Repository
}

// newTestRepo creates a new scratch repository.
func newTestRepo(t *testing.T) *testRepo {
	t.Helper()

	dir := t.TempDir()

	repo, err := git2go.InitRepository(dir, false)
	require.NoError(t, err)

	t.Cleanup(repo.Free)

	return &testRepo{t: t, path: dir, native: repo}
}

// createFile writes a file into the working directory.
func (tr *testRepo) createFile(name, content string) {
	tr.t.Helper()

	path := filepath.Join(tr.path, name)
	dir := filepath.Dir(path)

	if dir != tr.path {
		err := os.MkdirAll(dir, 0o755)
		require.NoError(tr.t, err)
	}

	err := os.WriteFile(path, []byte(content), 0o644)
	require.NoError(tr.t, err)
}

// commit stages everything and creates a commit.
func (tr *testRepo) commit(message string) gitlib.Hash {
	tr.t.Helper()

	index, err := tr.native.Index()
	require.NoError(tr.t, err)

	defer index.Free()

	err = index.AddAll([]string{"*"}, git2go.IndexAddDefault, nil)
	require.NoError(tr.t, err)

	err = index.Write()
	require.NoError(tr.t, err)

	treeID, err := index.WriteTree()
	require.NoError(tr.t, err)

	tree, err := tr.native.LookupTree(treeID)
	require.NoError(tr.t, err)

	defer tree.Free()

	sig := &git2go.Signature{
		Name:  "Test User",
		Email: "test@example.com",
		When:  time.Now(),
	}

	var parents []*git2go.Commit

	head, err := tr.native.Head()
	if err == nil {
		headCommit, lookupErr := tr.native.LookupCommit(head.Target())
		require.NoError(tr.t, lookupErr)

		parents = append(parents, headCommit)

		head.Free()
	}

	oid, err := tr.native.CreateCommit("HEAD", sig, sig, message, tree, parents...)
	require.NoError(tr.t, err)

	for _, parent := range parents {
		parent.Free()
	}

	return gitlib.HashFromOid(oid)
}

func openRepo(t *testing.T, tr *testRepo) *gitlib.Repository {
	t.Helper()

	repo, err := gitlib.OpenRepository(tr.path)
	require.NoError(t, err)

	t.Cleanup(repo.Free)

	return repo
}

func TestOpenRepositoryMissingPath(t *testing.T) {
	t.Parallel()

	_, err := gitlib.OpenRepository(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
}

func TestHeadMatchesLastCommit(t *testing.T) {
	tr := newTestRepo(t)

	tr.createFile("a.txt", "one\n")
	tr.commit("first")

	tr.createFile("a.txt", "one\ntwo\n")
	want := tr.commit("second")

	repo := openRepo(t, tr)

	head, err := repo.Head()
	require.NoError(t, err)
	assert.Equal(t, want, head)
}

func TestWalkCommitsNewestFirst(t *testing.T) {
	tr := newTestRepo(t)

	tr.createFile("a.txt", "one\n")
	tr.commit("first")

	tr.createFile("b.txt", "two\n")
	tr.commit("second")

	tr.createFile("c.txt", "three\n")
	tr.commit("third")

	repo := openRepo(t, tr)

	var summaries []string

	err := repo.WalkCommits(context.Background(), gitlib.WalkOptions{}, func(c *gitlib.Commit) error {
		summaries = append(summaries, c.Summary())

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"third", "second", "first"}, summaries)
}

func TestWalkCommitsMaxCommits(t *testing.T) {
	tr := newTestRepo(t)

	tr.createFile("a.txt", "one\n")
	tr.commit("first")

	tr.createFile("b.txt", "two\n")
	tr.commit("second")

	repo := openRepo(t, tr)

	visited := 0

	err := repo.WalkCommits(context.Background(), gitlib.WalkOptions{MaxCommits: 1}, func(*gitlib.Commit) error {
		visited++

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, visited)
}

func TestWalkCommitsStop(t *testing.T) {
	tr := newTestRepo(t)

	tr.createFile("a.txt", "one\n")
	tr.commit("first")

	tr.createFile("b.txt", "two\n")
	tr.commit("second")

	repo := openRepo(t, tr)

	visited := 0

	err := repo.WalkCommits(context.Background(), gitlib.WalkOptions{}, func(*gitlib.Commit) error {
		visited++

		return gitlib.ErrWalkStopped
	})

	require.NoError(t, err)
	assert.Equal(t, 1, visited)
}

func TestWalkCommitsCancelledContext(t *testing.T) {
	tr := newTestRepo(t)

	tr.createFile("a.txt", "one\n")
	tr.commit("first")

	repo := openRepo(t, tr)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.WalkCommits(ctx, gitlib.WalkOptions{}, func(*gitlib.Commit) error {
		t.Fatal("callback should not run")

		return nil
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestCommitDiffTextModification(t *testing.T) {
	tr := newTestRepo(t)

	tr.createFile("a.txt", "one\ntwo\n")
	tr.commit("first")

	tr.createFile("a.txt", "one\ntwo\nthree\n")
	hash := tr.commit("second")

	repo := openRepo(t, tr)

	commit, err := repo.LookupCommit(hash)
	require.NoError(t, err)

	defer commit.Free()

	text, err := repo.CommitDiffText(commit)
	require.NoError(t, err)

	assert.Contains(t, text, "diff --git a/a.txt b/a.txt")
	assert.Contains(t, text, "+three")
	assert.NotContains(t, text, "-one")
}

func TestCommitDiffTextRootCommit(t *testing.T) {
	tr := newTestRepo(t)

	tr.createFile("a.txt", "one\ntwo\n")
	hash := tr.commit("first")

	repo := openRepo(t, tr)

	commit, err := repo.LookupCommit(hash)
	require.NoError(t, err)

	defer commit.Free()

	text, err := repo.CommitDiffText(commit)
	require.NoError(t, err)

	assert.Contains(t, text, "new file mode")
	assert.Contains(t, text, "+one")
	assert.Contains(t, text, "+two")
}

func TestHeadFileSnapshot(t *testing.T) {
	tr := newTestRepo(t)

	tr.createFile("a.txt", "one\ntwo\nthree\n")
	tr.createFile("sub/b.txt", "only line")
	tr.createFile("blob.bin", "abc\x00def")
	tr.commit("first")

	repo := openRepo(t, tr)

	files, err := repo.HeadFileSnapshot()
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, 3, files["a.txt"].Lines)
	assert.False(t, files["a.txt"].Binary)

	// No trailing newline still counts as a line.
	assert.Equal(t, 1, files["sub/b.txt"].Lines)

	assert.True(t, files["blob.bin"].Binary)
	assert.Zero(t, files["blob.bin"].Lines)
	assert.Equal(t, int64(7), files["blob.bin"].Size)
}

func TestHashRoundTrip(t *testing.T) {
	t.Parallel()

	const hex = "0123456789abcdef0123456789abcdef01234567"

	h := gitlib.NewHash(hex)
	assert.Equal(t, hex, h.String())
	assert.False(t, h.IsZero())
	assert.True(t, gitlib.ZeroHash().IsZero())
	assert.Equal(t, h, gitlib.HashFromOid(h.ToOid()))
}

func TestCommitMetadata(t *testing.T) {
	tr := newTestRepo(t)

	tr.createFile("a.txt", "one\n")
	first := tr.commit("first")

	tr.createFile("a.txt", "one\ntwo\n")
	second := tr.commit("second\n\nbody text\n")

	repo := openRepo(t, tr)

	commit, err := repo.LookupCommit(second)
	require.NoError(t, err)

	defer commit.Free()

	assert.Equal(t, "second", commit.Summary())
	assert.True(t, strings.HasPrefix(commit.Message(), "second"))
	assert.Equal(t, "Test User", commit.Author().Name)
	assert.Equal(t, "test@example.com", commit.Author().Email)
	require.Equal(t, 1, commit.NumParents())

	parent, err := commit.Parent(0)
	require.NoError(t, err)

	defer parent.Free()

	assert.Equal(t, first, parent.Hash())
}
