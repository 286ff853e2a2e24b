package scan

import (
	"context"
	"fmt"
	"strings"

	"github.com/deeprave/gstats/internal/diffparse"
	"github.com/deeprave/gstats/internal/filestate"
	"github.com/deeprave/gstats/pkg/gitlib"
)

// HistoryUnitName identifies the file history scan unit.
const HistoryUnitName = "file-history"

// HistoryConfig configures a HistoryUnit.
type HistoryConfig struct {
	// RepoPath locates the repository to scan.
	RepoPath string

	// MaxCommits bounds the walk. Zero means the full history.
	MaxCommits int

	// FirstParent follows only the first parent of merges.
	FirstParent bool

	// SeedFromHead pre-populates file states from the HEAD tree before
	// walking, so inferred sizes never override observed ones.
	SeedFromHead bool
}

// HistoryUnit walks commits newest-first, parses each commit's diff and
// feeds the per-file changes backward through a state reconstructor.
type HistoryUnit struct {
	cfg   HistoryConfig
	recon *filestate.Reconstructor
}

// NewHistoryUnit creates a file history scan unit.
func NewHistoryUnit(cfg HistoryConfig) *HistoryUnit {
	return &HistoryUnit{
		cfg:   cfg,
		recon: filestate.NewReconstructor(),
	}
}

// Name implements Unit.
func (u *HistoryUnit) Name() string { return HistoryUnitName }

// Reconstructor exposes the accumulated file state table. Valid once the
// scan has completed.
func (u *HistoryUnit) Reconstructor() *filestate.Reconstructor { return u.recon }

// Run implements Unit. Each unit opens its own repository handle because
// libgit2 objects are not safe for concurrent use.
func (u *HistoryUnit) Run(ctx context.Context, emit Emit) error {
	repo, err := gitlib.OpenRepository(u.cfg.RepoPath)
	if err != nil {
		return fmt.Errorf("%s: %w", HistoryUnitName, err)
	}
	defer repo.Free()

	if u.cfg.SeedFromHead {
		if seedErr := u.seedHead(repo); seedErr != nil {
			return seedErr
		}
	}

	opts := gitlib.WalkOptions{
		MaxCommits:  u.cfg.MaxCommits,
		FirstParent: u.cfg.FirstParent,
	}

	return repo.WalkCommits(ctx, opts, func(commit *gitlib.Commit) error {
		return u.processCommit(repo, commit, emit)
	})
}

// seedHead records observed line counts for every file at HEAD.
func (u *HistoryUnit) seedHead(repo *gitlib.Repository) error {
	snapshot, err := repo.HeadFileSnapshot()
	if err != nil {
		return fmt.Errorf("%s: seed from HEAD: %w", HistoryUnitName, err)
	}

	for path, info := range snapshot {
		u.recon.InitializeFileAtHead(path, info.Lines, info.Binary, info.Size)
	}

	return nil
}

// processCommit parses one commit's diff and emits its change records.
func (u *HistoryUnit) processCommit(repo *gitlib.Repository, commit *gitlib.Commit, emit Emit) error {
	text, err := repo.CommitDiffText(commit)
	if err != nil {
		return fmt.Errorf("%s: diff %s: %w", HistoryUnitName, commit.Hash(), err)
	}

	changes := diffparse.ParseString(text)

	u.recon.ProcessCommit(changes)

	author := commit.Author()

	emit(Message{
		Unit:        HistoryUnitName,
		CommitHash:  commit.Hash().String(),
		Author:      strings.TrimSpace(author.Name),
		AuthorEmail: author.Email,
		When:        author.When,
		Changes:     changes,
	})

	return nil
}
