package fetch

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/manifest"
)

// fetchGit materializes a git source pinned to a commit. Checkouts are
// cached by commit pin: a cache hit copies the tree without invoking git or
// the network at all. Mutable refs are rejected at manifest validation, so
// the pin fully identifies the tree.
func (f *Fetcher) fetchGit(ctx context.Context, module string, src *manifest.Source, destDir string) error {
	logger := ctxlog.FromContext(ctx)

	cached, err := f.cachePath("git", src.Commit)
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(cached); statErr == nil {
		logger.Debug("Git cache hit.", "module", module, "commit", src.Commit)
		return copyTree(cached, destDir)
	}

	_, err, _ = f.group.Do("git:"+src.Commit, func() (any, error) {
		if _, statErr := os.Stat(cached); statErr == nil {
			return nil, nil
		}
		return nil, f.cloneAndPin(ctx, module, src, cached)
	})
	if err != nil {
		return err
	}

	return copyTree(cached, destDir)
}

// cloneAndPin clones the repository, detaches at the pinned commit, verifies
// the checkout actually resolves to the pin, and commits the stripped tree
// into the cache.
func (f *Fetcher) cloneAndPin(ctx context.Context, module string, src *manifest.Source, cached string) error {
	logger := ctxlog.FromContext(ctx)
	logger.Info("Cloning git source.", "module", module, "url", src.URL, "commit", src.Commit)

	tmp, err := os.MkdirTemp(filepath.Dir(cached), ".clone-*")
	if err != nil {
		return fmt.Errorf("module %q: failed to create clone dir: %w", module, err)
	}
	defer os.RemoveAll(tmp)

	checkout := filepath.Join(tmp, "repo")
	if _, err := f.git(ctx, tmp, "clone", src.URL, checkout); err != nil {
		return &FetchError{Module: module, URL: src.URL, Err: err}
	}
	if _, err := f.git(ctx, checkout, "checkout", "--detach", src.Commit); err != nil {
		return &FetchError{Module: module, URL: src.URL, Err: fmt.Errorf("commit %s: %w", src.Commit, err)}
	}

	head, err := f.git(ctx, checkout, "rev-parse", "HEAD")
	if err != nil {
		return &FetchError{Module: module, URL: src.URL, Err: err}
	}
	if !strings.HasPrefix(head, src.Commit) {
		return &IntegrityError{Module: module, URL: src.URL, Want: src.Commit, Got: head}
	}

	// The .git directory is not part of the source tree.
	if err := os.RemoveAll(filepath.Join(checkout, ".git")); err != nil {
		return fmt.Errorf("module %q: failed to strip .git: %w", module, err)
	}
	if err := os.Rename(checkout, cached); err != nil {
		return fmt.Errorf("module %q: failed to commit checkout to cache: %w", module, err)
	}
	logger.Debug("Git checkout cached.", "module", module, "commit", src.Commit)
	return nil
}

// git runs one git command in dir and returns its trimmed stdout.
func (f *Fetcher) git(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, f.gitBin, args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("git %s: %s", args[0], msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return strings.TrimSpace(stdout.String()), nil
}
