package gitlib

import (
	"context"
	"errors"
	"fmt"

	git2go "github.com/libgit2/git2go/v34"
)

// ErrWalkStopped is returned by the walk callback to stop iteration early.
var ErrWalkStopped = errors.New("commit walk stopped")

// WalkOptions configures a commit walk.
type WalkOptions struct {
	// MaxCommits bounds the number of commits visited. Zero means no limit.
	MaxCommits int

	// FirstParent follows only the first parent of merge commits.
	FirstParent bool
}

// WalkCommits visits commits reachable from HEAD in newest-first order.
// The callback owns each commit for the duration of the call; commits are
// freed after the callback returns. Returning ErrWalkStopped from the
// callback ends the walk without error.
func (r *Repository) WalkCommits(ctx context.Context, opts WalkOptions, visit func(*Commit) error) error {
	walk, err := r.repo.Walk()
	if err != nil {
		return fmt.Errorf("create revwalk: %w", err)
	}
	defer walk.Free()

	headRef, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("get HEAD: %w", err)
	}

	target := headRef.Target()
	headRef.Free()

	err = walk.Push(target)
	if err != nil {
		return fmt.Errorf("push HEAD to revwalk: %w", err)
	}

	// Topological order ensures a commit is never visited before its
	// descendants, which backward reconstruction depends on.
	walk.Sorting(git2go.SortTime | git2go.SortTopological)

	if opts.FirstParent {
		walk.SimplifyFirstParent()
	}

	visited := 0
	oid := new(git2go.Oid)

	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if opts.MaxCommits > 0 && visited >= opts.MaxCommits {
			return nil
		}

		nextErr := walk.Next(oid)
		if nextErr != nil {
			if git2go.IsErrorCode(nextErr, git2go.ErrorCodeIterOver) {
				return nil
			}

			return fmt.Errorf("revwalk next: %w", nextErr)
		}

		commit, lookupErr := r.LookupCommit(HashFromOid(oid))
		if lookupErr != nil {
			return lookupErr
		}

		visitErr := visit(commit)

		commit.Free()

		if visitErr != nil {
			if errors.Is(visitErr, ErrWalkStopped) {
				return nil
			}

			return visitErr
		}

		visited++
	}
}
