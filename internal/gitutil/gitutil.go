// Package gitutil wraps the go-git operations the wheel needs against the
// working repository: pre-cycle base-branch fast-forward sync, and the
// changed-file diff the drill planner's freshness filter consults.
package gitutil

import (
	"errors"
	"fmt"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/codewheel-dev/promptwheel/internal/domain/wheelerr"
)

// Repo wraps a single open working-tree repository.
type Repo struct {
	repo *git.Repository
	path string
}

// Open opens the repository rooted at path. Returns a CodeFatalConfig
// WheelError if path is not a git repository.
func Open(path string) (*Repo, error) {
	r, err := git.PlainOpen(path)
	if err != nil {
		return nil, wheelerr.Wrap(wheelerr.CodeFatalConfig, "not a git repository", err).WithContext(map[string]interface{}{"path": path})
	}
	return &Repo{repo: r, path: path}, nil
}

// SyncResult reports what FastForwardSync did.
type SyncResult struct {
	UpToDate bool
	Advanced bool
	Diverged bool
	OldHead  string
	NewHead  string
}

// FastForwardSync fetches remoteName and fast-forwards branch onto it.
// A non-fast-forward divergence is reported via SyncResult.Diverged rather
// than as an error; callers apply pullPolicy (halt vs warn) themselves.
func (r *Repo) FastForwardSync(remoteName, branch string) (SyncResult, error) {
	head, err := r.repo.Head()
	if err != nil {
		return SyncResult{}, wheelerr.Wrap(wheelerr.CodeTransient, "reading HEAD", err)
	}
	oldHead := head.Hash().String()

	err = r.repo.Fetch(&git.FetchOptions{RemoteName: remoteName})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return SyncResult{OldHead: oldHead}, wheelerr.Wrap(wheelerr.CodeTransient, "fetching remote", err).WithContext(map[string]interface{}{"remote": remoteName})
	}

	wt, err := r.repo.Worktree()
	if err != nil {
		return SyncResult{OldHead: oldHead}, wheelerr.Wrap(wheelerr.CodeTransient, "opening worktree", err)
	}

	pullErr := wt.Pull(&git.PullOptions{RemoteName: remoteName, ReferenceName: plumbing.NewBranchReferenceName(branch)})
	switch {
	case pullErr == nil:
		newHead, herr := r.repo.Head()
		if herr != nil {
			return SyncResult{OldHead: oldHead}, wheelerr.Wrap(wheelerr.CodeTransient, "reading HEAD after pull", herr)
		}
		newHash := newHead.Hash().String()
		return SyncResult{OldHead: oldHead, NewHead: newHash, Advanced: newHash != oldHead}, nil
	case errors.Is(pullErr, git.NoErrAlreadyUpToDate):
		return SyncResult{OldHead: oldHead, NewHead: oldHead, UpToDate: true}, nil
	case isNonFastForward(pullErr):
		return SyncResult{OldHead: oldHead, Diverged: true}, nil
	default:
		return SyncResult{OldHead: oldHead}, wheelerr.Wrap(wheelerr.CodeTransient, "pulling base branch", pullErr).WithContext(map[string]interface{}{"branch": branch})
	}
}

// ChangedFilesSince returns the set of file paths that differ between the
// commit at sinceHash and the repository's current HEAD, for the drill
// planner's freshness filter.
func (r *Repo) ChangedFilesSince(sinceHash string) (map[string]bool, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, wheelerr.Wrap(wheelerr.CodeTransient, "reading HEAD", err)
	}
	headCommit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, wheelerr.Wrap(wheelerr.CodeTransient, "resolving HEAD commit", err)
	}

	baseHash := plumbing.NewHash(sinceHash)
	baseCommit, err := r.repo.CommitObject(baseHash)
	if err != nil {
		return nil, wheelerr.Wrap(wheelerr.CodeNotFound, "resolving base commit", err).WithContext(map[string]interface{}{"hash": sinceHash})
	}

	changed, err := diffCommitPaths(baseCommit, headCommit)
	if err != nil {
		return nil, wheelerr.Wrap(wheelerr.CodeTransient, "diffing commits", err)
	}
	return changed, nil
}

func diffCommitPaths(base, head *object.Commit) (map[string]bool, error) {
	baseTree, err := base.Tree()
	if err != nil {
		return nil, err
	}
	headTree, err := head.Tree()
	if err != nil {
		return nil, err
	}
	changes, err := baseTree.Diff(headTree)
	if err != nil {
		return nil, err
	}
	paths := make(map[string]bool, len(changes))
	for _, c := range changes {
		from, to, err := c.Files()
		if err != nil {
			continue
		}
		if from != nil {
			paths[from.Name] = true
		}
		if to != nil {
			paths[to.Name] = true
		}
	}
	return paths, nil
}

// isNonFastForward detects go-git's non-fast-forward merge/update error by
// message, since its exact sentinel varies across the package's merge and
// push code paths.
func isNonFastForward(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "non-fast-forward")
}

// HeadHash returns the current HEAD commit hash as a string.
func (r *Repo) HeadHash() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("reading HEAD: %w", err)
	}
	return head.Hash().String(), nil
}
