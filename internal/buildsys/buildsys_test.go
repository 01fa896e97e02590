package buildsys

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/buildgridgo/internal/manifest"
	"github.com/vk/buildgridgo/internal/workspace"
)

func testWorkspace(t *testing.T, module string) *workspace.Workspace {
	t.Helper()
	ws, err := workspace.New(t.TempDir(), module)
	require.NoError(t, err)
	return ws
}

func TestMesonPlan(t *testing.T) {
	ws := testWorkspace(t, "libthing")
	mod := &manifest.Module{
		Name:        "libthing",
		BuildSystem: "meson",
		Options:     map[string]string{"buildtype": "release"},
		ConfigOpts:  []string{"-Dtests=false"},
		RunTests:    true,
	}

	plan, err := (&Meson{}).Plan(mod, ws)
	require.NoError(t, err)

	require.Len(t, plan.Configure, 1)
	setup := plan.Configure[0].Argv
	assert.Equal(t, "meson", setup[0])
	assert.Contains(t, setup, "--prefix=/app")
	assert.Contains(t, setup, "--buildtype=release")
	assert.Equal(t, "-Dtests=false", setup[len(setup)-1])

	require.Len(t, plan.Install, 1)
	assert.Contains(t, plan.Install[0].Argv, "--destdir")
	assert.Contains(t, plan.Install[0].Argv, ws.InstallDir)
	require.Len(t, plan.Test, 1)
}

func TestCMakePlan(t *testing.T) {
	ws := testWorkspace(t, "libthing")
	mod := &manifest.Module{
		Name:        "libthing",
		BuildSystem: "cmake-ninja",
		ConfigOpts:  []string{"-DBUILD_TESTING=OFF"},
	}

	plan, err := (&CMake{}).Plan(mod, ws)
	require.NoError(t, err)

	configure := plan.Configure[0].Argv
	assert.Contains(t, configure, "Ninja")
	assert.Contains(t, configure, "-DCMAKE_INSTALL_PREFIX=/app")
	assert.Contains(t, configure, "-DBUILD_TESTING=OFF")

	// Install redirects through DESTDIR so nothing touches the real prefix.
	install := plan.Install[0].Argv
	assert.Equal(t, "env", install[0])
	assert.Equal(t, "DESTDIR="+ws.InstallDir, install[1])

	assert.Empty(t, plan.Test)
}

func TestAutotoolsPlan(t *testing.T) {
	ws := testWorkspace(t, "tool")
	mod := &manifest.Module{
		Name:        "tool",
		BuildSystem: "autotools",
		Options:     map[string]string{"test_target": "distcheck"},
		RunTests:    true,
	}

	plan, err := (&Autotools{}).Plan(mod, ws)
	require.NoError(t, err)

	assert.Equal(t, []string{"./configure", "--prefix=/app"}, plan.Configure[0].Argv)
	assert.Equal(t, []string{"make", "all"}, plan.Build[0].Argv)
	assert.Equal(t, []string{"make", "install", "DESTDIR=" + ws.InstallDir}, plan.Install[0].Argv)
	assert.Equal(t, []string{"make", "distcheck"}, plan.Test[0].Argv)
}

func TestSimplePlan(t *testing.T) {
	ws := testWorkspace(t, "app")

	t.Run("wraps each command in a shell", func(t *testing.T) {
		mod := &manifest.Module{
			Name:          "app",
			BuildSystem:   "simple",
			BuildCommands: []string{"make", "make install DESTDIR=$DESTDIR"},
		}
		plan, err := (&Simple{}).Plan(mod, ws)
		require.NoError(t, err)
		require.Len(t, plan.Build, 2)
		assert.Equal(t, []string{"sh", "-c", "make"}, plan.Build[0].Argv)
		assert.Empty(t, plan.Configure)
	})

	t.Run("requires build_commands", func(t *testing.T) {
		mod := &manifest.Module{Name: "app", BuildSystem: "simple"}
		_, err := (&Simple{}).Plan(mod, ws)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "build_commands")
	})

	t.Run("run_tests requires test_command", func(t *testing.T) {
		mod := &manifest.Module{
			Name:          "app",
			BuildSystem:   "simple",
			BuildCommands: []string{"true"},
			RunTests:      true,
		}
		_, err := (&Simple{}).Plan(mod, ws)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "test_command")
	})
}

func TestPlanRejectsUnknownOption(t *testing.T) {
	ws := testWorkspace(t, "libthing")
	mod := &manifest.Module{
		Name:        "libthing",
		BuildSystem: "meson",
		Options:     map[string]string{"optimize": "aggressively"},
	}

	_, err := (&Meson{}).Plan(mod, ws)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `option "optimize"`)
	assert.Contains(t, err.Error(), "config_opts")
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"autotools", "cmake-ninja", "meson", "simple"}, r.Kinds())

	a, err := r.Lookup("meson")
	require.NoError(t, err)
	assert.Equal(t, "meson", a.Kind())

	_, err = r.Lookup("bazel")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown buildsystem")
}

func TestNewRunnerEnvironment(t *testing.T) {
	t.Run("default PATH", func(t *testing.T) {
		r := NewRunner(nil, nil)
		assert.Equal(t, []string{"PATH=/usr/bin:/bin"}, r.Env)
	})

	t.Run("append_path extends in declaration order", func(t *testing.T) {
		r := NewRunner(map[string]string{"CARGO_HOME": "/run/build/cargo"},
			[]string{"/usr/lib/sdk/rust-stable/bin", "/opt/bin"})
		assert.Contains(t, r.Env, "CARGO_HOME=/run/build/cargo")
		assert.Contains(t, r.Env, "PATH=/usr/bin:/bin:/usr/lib/sdk/rust-stable/bin:/opt/bin")
	})

	t.Run("explicit PATH wins over the default", func(t *testing.T) {
		r := NewRunner(map[string]string{"PATH": "/custom"}, []string{"/extra"})
		assert.Contains(t, r.Env, "PATH=/custom:/extra")
	})
}

func TestRunPhaseExecutesInWorkspace(t *testing.T) {
	ws := testWorkspace(t, "app")
	r := NewRunner(nil, nil)

	cmds := []Command{{
		Argv: []string{"sh", "-c", `echo built > "$DESTDIR/marker"`},
		Dir:  ws.SourceDir,
	}}
	require.NoError(t, r.RunPhase(context.Background(), "app", "build", ws, cmds))

	data, err := os.ReadFile(filepath.Join(ws.InstallDir, "marker"))
	require.NoError(t, err)
	assert.Equal(t, "built\n", string(data))
}

func TestRunPhaseFailureReportsStderr(t *testing.T) {
	ws := testWorkspace(t, "app")
	r := NewRunner(nil, nil)

	cmds := []Command{{
		Argv: []string{"sh", "-c", "echo compile error >&2; exit 3"},
		Dir:  ws.SourceDir,
	}}
	err := r.RunPhase(context.Background(), "app", "build", ws, cmds)

	var buildErr *BuildError
	require.ErrorAs(t, err, &buildErr)
	assert.Equal(t, "app", buildErr.Module)
	assert.Equal(t, "build", buildErr.Phase)
	assert.Equal(t, 3, buildErr.ExitCode)
	assert.Contains(t, buildErr.Stderr, "compile error")
}

func TestRunPhaseStopsAtFirstFailure(t *testing.T) {
	ws := testWorkspace(t, "app")
	r := NewRunner(nil, nil)

	cmds := []Command{
		{Argv: []string{"sh", "-c", "exit 1"}, Dir: ws.SourceDir},
		{Argv: []string{"sh", "-c", "touch $DESTDIR/should-not-exist"}, Dir: ws.SourceDir},
	}
	require.Error(t, r.RunPhase(context.Background(), "app", "build", ws, cmds))

	_, err := os.Stat(filepath.Join(ws.InstallDir, "should-not-exist"))
	assert.True(t, os.IsNotExist(err))
}

func TestEngineBuildRunsAllPhases(t *testing.T) {
	ws := testWorkspace(t, "app")
	engine := NewEngine(NewRegistry(), NewRunner(nil, nil), nil)

	mod := &manifest.Module{
		Name:        "app",
		BuildSystem: "simple",
		BuildCommands: []string{
			`echo out > "$DESTDIR/app"`,
		},
	}
	require.NoError(t, engine.Build(context.Background(), mod, ws))

	_, err := os.Stat(filepath.Join(ws.InstallDir, "app"))
	require.NoError(t, err)
}

func TestEngineBuildUnknownBuildsystem(t *testing.T) {
	ws := testWorkspace(t, "app")
	engine := NewEngine(NewRegistry(), NewRunner(nil, nil), nil)

	mod := &manifest.Module{Name: "app", BuildSystem: "bazel"}
	require.Error(t, engine.Build(context.Background(), mod, ws))
}

func TestEngineTestPhaseUsesTestRunner(t *testing.T) {
	ws := testWorkspace(t, "app")
	buildRunner := NewRunner(map[string]string{"SHARED": "yes"}, nil)
	testRunner := NewRunner(map[string]string{"SHARED": "yes", "DISPLAY": ":0"}, nil)
	engine := NewEngine(NewRegistry(), buildRunner, testRunner)

	mod := &manifest.Module{
		Name:          "app",
		BuildSystem:   "simple",
		BuildCommands: []string{`echo "build=$DISPLAY" > "$DESTDIR/build-env"`},
		RunTests:      true,
		Options: map[string]string{
			"test_command": `echo "test=$DISPLAY" > "$DESTDIR/test-env"`,
		},
	}
	require.NoError(t, engine.Build(context.Background(), mod, ws))
	require.NoError(t, engine.Test(context.Background(), mod, ws))

	// The test-only grant reaches the test phase and nothing else.
	buildEnv, err := os.ReadFile(filepath.Join(ws.InstallDir, "build-env"))
	require.NoError(t, err)
	assert.Equal(t, "build=\n", string(buildEnv))

	testEnv, err := os.ReadFile(filepath.Join(ws.InstallDir, "test-env"))
	require.NoError(t, err)
	assert.Equal(t, "test=:0\n", string(testEnv))
}
