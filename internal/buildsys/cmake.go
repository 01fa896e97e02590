package buildsys

import (
	"github.com/vk/buildgridgo/internal/manifest"
	"github.com/vk/buildgridgo/internal/workspace"
)

// CMake plans builds for cmake-based modules, driving the Ninja generator.
//
// Recognized options: prefix (default /app), generator (default Ninja),
// build_type.
type CMake struct{}

func (c *CMake) Kind() string { return "cmake-ninja" }

func (c *CMake) Plan(mod *manifest.Module, ws *workspace.Workspace) (*Plan, error) {
	if err := checkOptions(mod, "prefix", "generator", "build_type"); err != nil {
		return nil, err
	}

	configure := []string{"cmake",
		"-G", optionValue(mod, "generator", "Ninja"),
		"-S", ws.SourceDir,
		"-B", ws.BuildDir,
		"-DCMAKE_INSTALL_PREFIX=" + optionValue(mod, "prefix", "/app"),
	}
	if bt := optionValue(mod, "build_type", ""); bt != "" {
		configure = append(configure, "-DCMAKE_BUILD_TYPE="+bt)
	}
	configure = append(configure, mod.ConfigOpts...)

	plan := &Plan{
		Configure: []Command{{Argv: configure, Dir: ws.SourceDir}},
		Build: []Command{
			{Argv: []string{"cmake", "--build", ws.BuildDir}, Dir: ws.SourceDir},
		},
		// DESTDIR redirection keeps the install out of the real prefix.
		Install: []Command{
			{Argv: []string{"env", "DESTDIR=" + ws.InstallDir, "cmake", "--install", ws.BuildDir}, Dir: ws.SourceDir},
		},
	}
	if mod.RunTests {
		plan.Test = []Command{
			{Argv: []string{"ctest", "--test-dir", ws.BuildDir, "--output-on-failure"}, Dir: ws.SourceDir},
		}
	}
	return plan, nil
}
