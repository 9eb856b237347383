package gitutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
)

func initRepoWithCommit(t *testing.T, file, contents string) (dir string, commitHash string) {
	t.Helper()
	dir = t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(contents), 0o644))
	_, err = wt.Add(file)
	require.NoError(t, err)

	hash, err := wt.Commit("initial", &git.CommitOptions{
		Author: &object.Signature{Name: "wheel", Email: "wheel@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	return dir, hash.String()
}

func TestOpenRejectsNonRepo(t *testing.T) {
	_, err := Open(t.TempDir())
	require.Error(t, err)
}

func TestOpenSucceedsOnRepo(t *testing.T) {
	dir, _ := initRepoWithCommit(t, "README.md", "hello")
	r, err := Open(dir)
	require.NoError(t, err)
	require.NotNil(t, r)
}

func TestChangedFilesSinceReportsModifiedPaths(t *testing.T) {
	dir, baseHash := initRepoWithCommit(t, "README.md", "hello")
	r, err := Open(dir)
	require.NoError(t, err)

	wt, err := r.repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.go"), []byte("package x"), 0o644))
	_, err = wt.Add("other.go")
	require.NoError(t, err)
	_, err = wt.Commit("second", &git.CommitOptions{
		Author: &object.Signature{Name: "wheel", Email: "wheel@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	changed, err := r.ChangedFilesSince(baseHash)
	require.NoError(t, err)
	require.True(t, changed["other.go"])
	require.False(t, changed["README.md"])
}

func TestChangedFilesSinceUnknownHashFails(t *testing.T) {
	dir, _ := initRepoWithCommit(t, "README.md", "hello")
	r, err := Open(dir)
	require.NoError(t, err)

	_, err = r.ChangedFilesSince("0000000000000000000000000000000000000000")
	require.Error(t, err)
}

func TestHeadHashReturnsCurrentCommit(t *testing.T) {
	dir, want := initRepoWithCommit(t, "README.md", "hello")
	r, err := Open(dir)
	require.NoError(t, err)

	got, err := r.HeadHash()
	require.NoError(t, err)
	require.Equal(t, want, got)
}
