package scan

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/deeprave/gstats/internal/diffparse"
	"github.com/deeprave/gstats/pkg/gitlib"
)

// ContributorUnitName identifies the contributor scan unit.
const ContributorUnitName = "contributors"

// ContributorStats aggregates one author's activity across the walk.
type ContributorStats struct {
	Name       string
	Email      string
	Commits    int
	Insertions int
	Deletions  int
	First      time.Time
	Last       time.Time
}

// ContributorConfig configures a ContributorUnit.
type ContributorConfig struct {
	// RepoPath locates the repository to scan.
	RepoPath string

	// MaxCommits bounds the walk. Zero means the full history.
	MaxCommits int

	// FirstParent follows only the first parent of merges.
	FirstParent bool
}

// ContributorUnit tallies per-author commit counts and line churn.
// Authors are keyed by email, falling back to name for commits without one.
type ContributorUnit struct {
	cfg   ContributorConfig
	stats map[string]*ContributorStats
}

// NewContributorUnit creates a contributor scan unit.
func NewContributorUnit(cfg ContributorConfig) *ContributorUnit {
	return &ContributorUnit{
		cfg:   cfg,
		stats: make(map[string]*ContributorStats),
	}
}

// Name implements Unit.
func (u *ContributorUnit) Name() string { return ContributorUnitName }

// Stats returns per-author aggregates ordered by commit count descending,
// then by name for stable output. Valid once the scan has completed.
func (u *ContributorUnit) Stats() []ContributorStats {
	out := make([]ContributorStats, 0, len(u.stats))
	for _, s := range u.stats {
		out = append(out, *s)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Commits != out[j].Commits {
			return out[i].Commits > out[j].Commits
		}

		return out[i].Name < out[j].Name
	})

	return out
}

// Run implements Unit.
func (u *ContributorUnit) Run(ctx context.Context, emit Emit) error {
	repo, err := gitlib.OpenRepository(u.cfg.RepoPath)
	if err != nil {
		return fmt.Errorf("%s: %w", ContributorUnitName, err)
	}
	defer repo.Free()

	opts := gitlib.WalkOptions{
		MaxCommits:  u.cfg.MaxCommits,
		FirstParent: u.cfg.FirstParent,
	}

	return repo.WalkCommits(ctx, opts, func(commit *gitlib.Commit) error {
		return u.tallyCommit(repo, commit, emit)
	})
}

// tallyCommit folds one commit into the per-author aggregates.
func (u *ContributorUnit) tallyCommit(repo *gitlib.Repository, commit *gitlib.Commit, emit Emit) error {
	text, err := repo.CommitDiffText(commit)
	if err != nil {
		return fmt.Errorf("%s: diff %s: %w", ContributorUnitName, commit.Hash(), err)
	}

	changes := diffparse.ParseString(text)
	author := commit.Author()

	key := author.Email
	if key == "" {
		key = author.Name
	}

	entry, ok := u.stats[key]
	if !ok {
		entry = &ContributorStats{
			Name:  strings.TrimSpace(author.Name),
			Email: author.Email,
			First: author.When,
			Last:  author.When,
		}
		u.stats[key] = entry
	}

	entry.Commits++

	for i := range changes {
		entry.Insertions += changes[i].Insertions
		entry.Deletions += changes[i].Deletions
	}

	// The walk runs newest-first, so earlier visits carry later timestamps.
	if author.When.Before(entry.First) {
		entry.First = author.When
	}

	if author.When.After(entry.Last) {
		entry.Last = author.When
	}

	emit(Message{
		Unit:        ContributorUnitName,
		CommitHash:  commit.Hash().String(),
		Author:      entry.Name,
		AuthorEmail: author.Email,
		When:        author.When,
		Changes:     changes,
	})

	return nil
}
