package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindFilesByExtension(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"zz-last.hcl",
		"aa-first.hcl",
		"nested/mid.hcl",
		"notes.txt",
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, nil, 0o644))
	}

	files, err := FindFilesByExtension(dir, ".hcl")
	require.NoError(t, err)

	// Sorted, so directory manifests merge in a stable order.
	assert.Equal(t, []string{
		filepath.Join(dir, "aa-first.hcl"),
		filepath.Join(dir, "nested", "mid.hcl"),
		filepath.Join(dir, "zz-last.hcl"),
	}, files)
}

func TestFindFilesByExtensionMissingRoot(t *testing.T) {
	_, err := FindFilesByExtension(filepath.Join(t.TempDir(), "nope"), ".hcl")
	require.Error(t, err)
}
