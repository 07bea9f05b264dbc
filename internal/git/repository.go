// Package git reads unified diffs from a local repository by shelling out
// to the git binary. Parsing is left to analysis.ParseUnifiedDiff.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

const unifiedContextFlag = "--unified=3"

// ErrNotRepository is returned by NewRepo outside a work tree.
var ErrNotRepository = errors.New("not a git repository")

// Repo runs git commands in one work tree.
type Repo struct {
	path string
}

// NewRepo opens the repository containing path.
func NewRepo(ctx context.Context, path string) (*Repo, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path: %w", err)
	}

	repo := &Repo{path: absPath}
	if _, err := repo.Root(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotRepository, err)
	}
	return repo, nil
}

func (r *Repo) runGit(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.path

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}
		return nil, fmt.Errorf("git %s: %w", args[0], err)
	}
	return stdout.Bytes(), nil
}

// StagedDiff returns the diff of the index against HEAD.
func (r *Repo) StagedDiff(ctx context.Context) ([]byte, error) {
	return r.runGit(ctx, "diff", "--cached", "--no-color", unifiedContextFlag)
}

// BranchDiff returns the changes on HEAD since it forked from base, the
// same set a pull request from HEAD into base would show.
func (r *Repo) BranchDiff(ctx context.Context, base string) ([]byte, error) {
	mergeBase, err := r.runGit(ctx, "merge-base", base, "HEAD")
	if err != nil {
		return nil, fmt.Errorf("failed to find merge base: %w", err)
	}
	return r.runGit(ctx, "diff", "--no-color", unifiedContextFlag,
		strings.TrimSpace(string(mergeBase)), "HEAD")
}

// CommitDiff returns the changes introduced by one commit.
func (r *Repo) CommitDiff(ctx context.Context, sha string) ([]byte, error) {
	return r.runGit(ctx, "show", "--no-color", unifiedContextFlag, "--format=", sha)
}

// CurrentBranch returns the checked out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.runGit(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// Root returns the top level directory of the work tree.
func (r *Repo) Root(ctx context.Context) (string, error) {
	out, err := r.runGit(ctx, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
