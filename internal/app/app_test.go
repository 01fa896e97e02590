package app_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildgridgo/internal/testutil"
)

const assemblyManifest = `
app {
  id      = "com.example.Greeter"
  runtime = "org.freedesktop.Platform"
  sdk     = "org.freedesktop.Sdk"
  command = "greeter"

  finish_args = [
    "--socket=wayland",
    "--share=ipc",
  ]
}

module "libgreet" {
  buildsystem    = "simple"
  build_commands = ["mkdir -p $DESTDIR/lib && cp libgreet.sh $DESTDIR/lib/"]

  source {
    type = "dir"
    path = "libgreet"
  }
}

module "greeter" {
  buildsystem    = "simple"
  depends_on     = ["libgreet"]
  build_commands = ["mkdir -p $DESTDIR/bin && cp greeter $DESTDIR/bin/"]

  source {
    type = "dir"
    path = "greeter"
  }
}
`

func TestFullAssembly(t *testing.T) {
	result := testutil.RunBuildTest(t, "app.hcl", map[string]string{
		"app.hcl":              assemblyManifest,
		"libgreet/libgreet.sh": "greet() { echo hello; }",
		"greeter/greeter":      "#!/bin/sh\ngreet",
	})
	require.NoError(t, result.Err, "logs:\n%s", result.LogOutput)

	// Both install outputs are merged into one image tree.
	for _, rel := range []string{"files/lib/libgreet.sh", "files/bin/greeter"} {
		_, err := os.Stat(filepath.Join(result.OutputDir, rel))
		require.NoError(t, err, "missing %s", rel)
	}

	// The metadata keyfile carries the identity and the launch grants.
	metadata, err := os.ReadFile(filepath.Join(result.OutputDir, "metadata"))
	require.NoError(t, err)
	assert.Contains(t, string(metadata), "name=com.example.Greeter")
	assert.Contains(t, string(metadata), "command=greeter")
	assert.Contains(t, string(metadata), "--socket=wayland")
	assert.Contains(t, string(metadata), "--share=ipc")
}

func TestFailedModuleSkipsDependent(t *testing.T) {
	result := testutil.RunBuildTest(t, "app.hcl", map[string]string{
		"app.hcl": `
app {
  id      = "com.example.Broken"
  runtime = "rt"
  sdk     = "sdk"
  command = "broken"
}

module "broken" {
  buildsystem    = "simple"
  build_commands = ["echo unresolved symbol >&2; exit 1"]

  source {
    type = "dir"
    path = "src"
  }
}

module "dependent" {
  buildsystem    = "simple"
  depends_on     = ["broken"]
  build_commands = ["touch $DESTDIR/never"]

  source {
    type = "dir"
    path = "src"
  }
}
`,
		"src/placeholder": "",
	})
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "broken")

	// The dependent never produced output.
	_, err := os.Stat(filepath.Join(result.OutputDir, "files", "never"))
	assert.True(t, os.IsNotExist(err))

	// And the summary reports both dispositions.
	assert.Contains(t, result.LogOutput, "failed")
	assert.Contains(t, result.LogOutput, "pending")
}

func TestCleanupGlobsShapeTheImage(t *testing.T) {
	result := testutil.RunBuildTest(t, "app.hcl", map[string]string{
		"app.hcl": `
app {
  id      = "com.example.Trimmed"
  runtime = "rt"
  sdk     = "sdk"
  command = "trimmed"
}

module "lib" {
  buildsystem = "simple"
  cleanup     = ["/include", "*.la"]
  build_commands = [
    "mkdir -p $DESTDIR/lib $DESTDIR/include",
    "touch $DESTDIR/lib/lib.so $DESTDIR/lib/lib.la $DESTDIR/include/lib.h",
  ]

  source {
    type = "dir"
    path = "src"
  }
}
`,
		"src/placeholder": "",
	})
	require.NoError(t, result.Err, "logs:\n%s", result.LogOutput)

	_, err := os.Stat(filepath.Join(result.OutputDir, "files", "lib", "lib.so"))
	require.NoError(t, err)
	for _, rel := range []string{"files/include/lib.h", "files/lib/lib.la"} {
		_, err := os.Stat(filepath.Join(result.OutputDir, rel))
		assert.True(t, os.IsNotExist(err), "%s should have been cleaned up", rel)
	}
}

func TestYAMLManifestAutoDetected(t *testing.T) {
	result := testutil.RunBuildTest(t, "app.yml", map[string]string{
		"app.yml": `
app:
  id: com.example.Yaml
  runtime: rt
  sdk: sdk
  command: yamlapp
modules:
  - name: yamlmod
    buildsystem: simple
    build-commands:
      - mkdir -p $DESTDIR/bin && touch $DESTDIR/bin/yamlapp
    sources:
      - type: dir
        path: src
`,
		"src/placeholder": "",
	})
	require.NoError(t, result.Err, "logs:\n%s", result.LogOutput)

	_, err := os.Stat(filepath.Join(result.OutputDir, "files", "bin", "yamlapp"))
	require.NoError(t, err)
}

func TestStartupFailsOnInvalidManifest(t *testing.T) {
	result := testutil.RunBuildTest(t, "app.hcl", map[string]string{
		"app.hcl": `
app {
  id      = "com.example.NoDigest"
  runtime = "rt"
  sdk     = "sdk"
  command = "x"
}

module "m" {
  buildsystem = "autotools"

  source {
    type = "archive"
    url  = "https://example.com/m.tar.gz"
  }
}
`,
	})
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "application startup panicked")
	assert.Contains(t, result.Err.Error(), "sha256")
}

func TestRunFailsOnCyclicManifest(t *testing.T) {
	result := testutil.RunBuildTest(t, "app.hcl", map[string]string{
		"app.hcl": `
app {
  id      = "com.example.Cycle"
  runtime = "rt"
  sdk     = "sdk"
  command = "x"
}

module "a" {
  buildsystem    = "simple"
  depends_on     = ["b"]
  build_commands = ["true"]

  source {
    type = "dir"
    path = "src"
  }
}

module "b" {
  buildsystem    = "simple"
  depends_on     = ["a"]
  build_commands = ["true"]

  source {
    type = "dir"
    path = "src"
  }
}
`,
		"src/placeholder": "",
	})
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "cycle")
}
