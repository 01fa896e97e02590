// Package artifact accumulates per-module install outputs into the single
// layered filesystem image that forms the final runtime. The image is
// append-only across a build: layers are merged in module completion order
// and nothing is ever rolled back.
package artifact

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/vk/buildgridgo/internal/ctxlog"
)

// Image is the accumulating merged output of all installed modules. Merges
// are serialized through a single mutex even though module builds run
// concurrently, so a reader never observes an interleaved partial layer.
type Image struct {
	root string

	mu sync.Mutex
	// owner maps each merged relative path to the module that wrote it
	// last, for overlap diagnostics.
	owner map[string]string
}

// NewImage creates an image rooted at dir.
func NewImage(dir string) (*Image, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image root %s: %w", dir, err)
	}
	return &Image{root: dir, owner: make(map[string]string)}, nil
}

// Root returns the image's filesystem root.
func (im *Image) Root() string {
	return im.root
}

// AddLayer prunes the module's install tree with its cleanup globs, then
// merges what remains into the image. Merge is last-writer-wins per path;
// a path already owned by an earlier module is logged as a warning, not an
// error, since later modules are assumed to supersede earlier ones
// deliberately (a patched header, for example).
func (im *Image) AddLayer(ctx context.Context, module, installDir string, cleanup []string) error {
	logger := ctxlog.FromContext(ctx)

	pruned, err := pruneTree(installDir, cleanup)
	if err != nil {
		return fmt.Errorf("module %q: cleanup failed: %w", module, err)
	}
	if pruned > 0 {
		logger.Debug("Pruned install tree.", "module", module, "removed", pruned)
	}

	im.mu.Lock()
	defer im.mu.Unlock()

	merged := 0
	err = filepath.WalkDir(installDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(installDir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		target := filepath.Join(im.root, rel)

		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}

		if prev, ok := im.owner[rel]; ok && prev != module {
			logger.Warn("Overlapping path in image, later module wins.",
				"path", rel, "previous", prev, "module", module)
		}
		im.owner[rel] = module
		merged++

		if d.Type()&fs.ModeSymlink != 0 {
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			os.Remove(target)
			return os.Symlink(link, target)
		}
		return copyFile(path, target)
	})
	if err != nil {
		return fmt.Errorf("module %q: failed to merge install output: %w", module, err)
	}

	logger.Info("Layer merged into image.", "module", module, "files", merged)
	return nil
}

// Paths returns every merged file path, sorted, relative to the image root.
func (im *Image) Paths() []string {
	im.mu.Lock()
	defer im.mu.Unlock()

	out := make([]string, 0, len(im.owner))
	for rel := range im.owner {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out
}

// Owner returns the module that last wrote the given relative path.
func (im *Image) Owner(rel string) (string, bool) {
	im.mu.Lock()
	defer im.mu.Unlock()
	module, ok := im.owner[rel]
	return module, ok
}

// pruneTree removes everything under root matched by the cleanup globs and
// returns how many entries were removed. A pattern with a leading slash is
// anchored at the install root; any other pattern matches basenames anywhere
// in the tree.
func pruneTree(root string, patterns []string) (int, error) {
	if len(patterns) == 0 {
		return 0, nil
	}

	var doomed []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		for _, pattern := range patterns {
			matched, err := matchCleanup(pattern, rel, d.Name())
			if err != nil {
				return fmt.Errorf("bad cleanup pattern %q: %w", pattern, err)
			}
			if matched {
				doomed = append(doomed, path)
				if d.IsDir() {
					return fs.SkipDir
				}
				break
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, path := range doomed {
		if err := os.RemoveAll(path); err != nil {
			return 0, err
		}
	}
	return len(doomed), nil
}

func matchCleanup(pattern, rel, base string) (bool, error) {
	if anchored, ok := strings.CutPrefix(pattern, "/"); ok {
		return doublestar.Match(anchored, rel)
	}
	return doublestar.Match(pattern, base)
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
