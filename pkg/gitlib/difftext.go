package gitlib

import (
	"fmt"
	"strings"

	git2go "github.com/libgit2/git2go/v34"
)

// CommitDiffText returns the unified diff text between a commit and its
// first parent. Root commits diff against the empty tree. Rename and copy
// detection is enabled so path moves appear as rename/copy sections rather
// than delete/add pairs.
func (r *Repository) CommitDiffText(commit *Commit) (string, error) {
	newTree, err := commit.tree()
	if err != nil {
		return "", err
	}
	defer newTree.Free()

	var oldTree *git2go.Tree

	if commit.NumParents() > 0 {
		parent, parentErr := commit.Parent(0)
		if parentErr != nil {
			return "", parentErr
		}
		defer parent.Free()

		oldTree, err = parent.tree()
		if err != nil {
			return "", err
		}
		defer oldTree.Free()
	}

	opts, err := git2go.DefaultDiffOptions()
	if err != nil {
		return "", fmt.Errorf("get diff options: %w", err)
	}

	diff, err := r.repo.DiffTreeToTree(oldTree, newTree, &opts)
	if err != nil {
		return "", fmt.Errorf("diff trees: %w", err)
	}

	defer func() {
		_ = diff.Free()
	}()

	findOpts, err := git2go.DefaultDiffFindOptions()
	if err != nil {
		return "", fmt.Errorf("get diff find options: %w", err)
	}

	findOpts.Flags = git2go.DiffFindRenames | git2go.DiffFindCopies

	err = diff.FindSimilar(&findOpts)
	if err != nil {
		return "", fmt.Errorf("find renames: %w", err)
	}

	numDeltas, err := diff.NumDeltas()
	if err != nil {
		return "", fmt.Errorf("get num deltas: %w", err)
	}

	var sb strings.Builder

	for i := range numDeltas {
		patch, patchErr := diff.Patch(i)
		if patchErr != nil {
			return "", fmt.Errorf("get patch %d: %w", i, patchErr)
		}

		text, strErr := patch.String()
		if strErr != nil {
			_ = patch.Free()

			return "", fmt.Errorf("render patch %d: %w", i, strErr)
		}

		sb.WriteString(text)

		_ = patch.Free()
	}

	return sb.String(), nil
}
