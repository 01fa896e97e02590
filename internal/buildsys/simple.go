package buildsys

import (
	"fmt"

	"github.com/vk/buildgridgo/internal/manifest"
	"github.com/vk/buildgridgo/internal/workspace"
)

// Simple plans builds for modules that declare raw shell commands instead of
// a real build system. Each build_commands entry runs through the shell in
// the module's source directory, with FLATPAK_DEST-style install redirection
// available via the DESTDIR environment variable set by the runner.
//
// Recognized options: test_command.
type Simple struct{}

func (s *Simple) Kind() string { return "simple" }

func (s *Simple) Plan(mod *manifest.Module, ws *workspace.Workspace) (*Plan, error) {
	if err := checkOptions(mod, "test_command"); err != nil {
		return nil, err
	}
	if len(mod.BuildCommands) == 0 {
		return nil, fmt.Errorf("module %q: buildsystem \"simple\" requires build_commands", mod.Name)
	}

	plan := &Plan{}
	for _, cmd := range mod.BuildCommands {
		plan.Build = append(plan.Build, Command{
			Argv: []string{"sh", "-c", cmd},
			Dir:  ws.SourceDir,
		})
	}
	if mod.RunTests {
		testCmd := optionValue(mod, "test_command", "")
		if testCmd == "" {
			return nil, fmt.Errorf("module %q: run_tests with buildsystem \"simple\" requires the test_command option", mod.Name)
		}
		plan.Test = []Command{{Argv: []string{"sh", "-c", testCmd}, Dir: ws.SourceDir}}
	}
	return plan, nil
}
