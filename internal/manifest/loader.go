package manifest

import (
	"context"
	"path/filepath"
)

// Loader turns on-disk manifest files into the format-agnostic model. Each
// supported serialization (HCL, YAML) provides its own implementation; the
// rest of the engine only ever sees the Manifest model.
type Loader interface {
	// Load parses the manifest at path. Implementations validate the
	// parsed model before returning it.
	Load(ctx context.Context, path string) (*Manifest, error)
}

// resolveDirSources anchors relative dir-source paths at the manifest's own
// directory, so a manifest refers to in-tree sources the same way no matter
// where the build is invoked from.
func resolveDirSources(m *Manifest, baseDir string) {
	for _, mod := range m.Modules {
		for _, src := range mod.Sources {
			if src.Type == SourceDir && src.Path != "" && !filepath.IsAbs(src.Path) {
				src.Path = filepath.Join(baseDir, src.Path)
			}
		}
	}
}
