// Package fetch materializes module sources into workspaces. Archives and
// git checkouts are cached by content identity (sha256 digest, commit pin)
// so a cache hit never touches the network; the build sandbox may have no
// network access outside the explicit opt-in window, which makes the cache a
// correctness requirement rather than an optimization.
package fetch

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vk/buildgridgo/internal/manifest"
)

// Fetcher acquires and caches module sources. It is safe for concurrent use:
// concurrent fetches of the same cache key coalesce into a single in-flight
// download instead of duplicating network calls.
type Fetcher struct {
	cacheDir string
	client   *http.Client
	gitBin   string
	group    singleflight.Group
}

// NewFetcher creates a Fetcher rooted at cacheDir. A nil client selects a
// default with a generous download timeout.
func NewFetcher(cacheDir string, client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Minute}
	}
	return &Fetcher{
		cacheDir: cacheDir,
		client:   client,
		gitBin:   "git",
	}
}

// Fetch materializes one source descriptor into destDir.
func (f *Fetcher) Fetch(ctx context.Context, module string, src *manifest.Source, destDir string) error {
	switch src.Type {
	case manifest.SourceArchive:
		return f.fetchArchive(ctx, module, src, destDir)
	case manifest.SourceGit:
		return f.fetchGit(ctx, module, src, destDir)
	case manifest.SourceDir:
		// In-tree sources: no fetch, no integrity check.
		return f.copyLocal(ctx, module, src, destDir)
	default:
		return fmt.Errorf("module %q: unknown source type %q", module, src.Type)
	}
}

// cachePath returns the cache location for a given class and key, creating
// the class directory.
func (f *Fetcher) cachePath(class, key string) (string, error) {
	dir := filepath.Join(f.cacheDir, class)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory %s: %w", dir, err)
	}
	return filepath.Join(dir, key), nil
}

// copyLocal copies a local directory source into the workspace.
func (f *Fetcher) copyLocal(ctx context.Context, module string, src *manifest.Source, destDir string) error {
	info, err := os.Stat(src.Path)
	if err != nil {
		return fmt.Errorf("module %q: dir source %s: %w", module, src.Path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("module %q: dir source %s is not a directory", module, src.Path)
	}
	return copyTree(src.Path, destDir)
}

// copyTree copies the contents of srcDir into destDir, preserving symlinks.
func copyTree(srcDir, destDir string) error {
	return filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(destDir, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0o755)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			info, err := d.Info()
			if err != nil {
				return err
			}
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
