package buildsys

import (
	"github.com/vk/buildgridgo/internal/manifest"
	"github.com/vk/buildgridgo/internal/workspace"
)

// Meson plans builds for meson-based modules.
//
// Recognized options: prefix (default /app), libdir, buildtype.
type Meson struct{}

func (m *Meson) Kind() string { return "meson" }

func (m *Meson) Plan(mod *manifest.Module, ws *workspace.Workspace) (*Plan, error) {
	if err := checkOptions(mod, "prefix", "libdir", "buildtype"); err != nil {
		return nil, err
	}

	setup := []string{"meson", "setup", ws.BuildDir, ws.SourceDir,
		"--prefix=" + optionValue(mod, "prefix", "/app"),
	}
	if libdir := optionValue(mod, "libdir", ""); libdir != "" {
		setup = append(setup, "--libdir="+libdir)
	}
	if buildtype := optionValue(mod, "buildtype", ""); buildtype != "" {
		setup = append(setup, "--buildtype="+buildtype)
	}
	setup = append(setup, mod.ConfigOpts...)

	plan := &Plan{
		Configure: []Command{{Argv: setup, Dir: ws.SourceDir}},
		Build: []Command{
			{Argv: []string{"meson", "compile", "-C", ws.BuildDir}, Dir: ws.SourceDir},
		},
		Install: []Command{
			{Argv: []string{"meson", "install", "-C", ws.BuildDir, "--destdir", ws.InstallDir}, Dir: ws.SourceDir},
		},
	}
	if mod.RunTests {
		plan.Test = []Command{
			{Argv: []string{"meson", "test", "-C", ws.BuildDir, "--print-errorlogs"}, Dir: ws.SourceDir},
		}
	}
	return plan, nil
}
