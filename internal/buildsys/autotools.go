package buildsys

import (
	"github.com/vk/buildgridgo/internal/manifest"
	"github.com/vk/buildgridgo/internal/workspace"
)

// Autotools plans builds for configure/make modules.
//
// Recognized options: prefix (default /app), make_target (default all),
// test_target (default check).
type Autotools struct{}

func (a *Autotools) Kind() string { return "autotools" }

func (a *Autotools) Plan(mod *manifest.Module, ws *workspace.Workspace) (*Plan, error) {
	if err := checkOptions(mod, "prefix", "make_target", "test_target"); err != nil {
		return nil, err
	}

	configure := []string{"./configure", "--prefix=" + optionValue(mod, "prefix", "/app")}
	configure = append(configure, mod.ConfigOpts...)

	plan := &Plan{
		// Autotools builds in-tree, so every phase runs in the source dir.
		Configure: []Command{{Argv: configure, Dir: ws.SourceDir}},
		Build: []Command{
			{Argv: []string{"make", optionValue(mod, "make_target", "all")}, Dir: ws.SourceDir},
		},
		Install: []Command{
			{Argv: []string{"make", "install", "DESTDIR=" + ws.InstallDir}, Dir: ws.SourceDir},
		},
	}
	if mod.RunTests {
		plan.Test = []Command{
			{Argv: []string{"make", optionValue(mod, "test_target", "check")}, Dir: ws.SourceDir},
		}
	}
	return plan, nil
}
