// Package workspace manages the ephemeral per-module build directories. A
// workspace is owned exclusively by the scheduler for the duration of one
// module's build and is destroyed once the module completes, unless the
// caller asked to retain it for debugging.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
)

// Workspace is one module's scratch area. Sources are materialized under
// SourceDir, out-of-tree build systems write intermediates to BuildDir, and
// install steps land their output under InstallDir via DESTDIR-style
// redirection.
type Workspace struct {
	Module     string
	Root       string
	SourceDir  string
	BuildDir   string
	InstallDir string
}

// New creates the directory skeleton for one module under baseDir.
func New(baseDir, module string) (*Workspace, error) {
	root := filepath.Join(baseDir, module)
	w := &Workspace{
		Module:     module,
		Root:       root,
		SourceDir:  filepath.Join(root, "source"),
		BuildDir:   filepath.Join(root, "build"),
		InstallDir: filepath.Join(root, "install"),
	}
	for _, dir := range []string{w.SourceDir, w.BuildDir, w.InstallDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create workspace for module %q: %w", module, err)
		}
	}
	return w, nil
}

// Destroy removes the workspace tree.
func (w *Workspace) Destroy() error {
	return os.RemoveAll(w.Root)
}
