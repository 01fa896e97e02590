package buildsys

import (
	"context"

	"github.com/vk/buildgridgo/internal/manifest"
	"github.com/vk/buildgridgo/internal/workspace"
)

// Engine combines the adapter registry with subprocess runners to execute
// whole build phases. It is the concrete Builder the scheduler drives. The
// test phase runs under its own runner, carrying the extra test-time grants
// on top of the build environment.
type Engine struct {
	registry   *Registry
	runner     *Runner
	testRunner *Runner
}

// NewEngine creates an Engine over the given registry and runners. A nil
// testRunner runs the test phase under the build runner.
func NewEngine(registry *Registry, runner, testRunner *Runner) *Engine {
	if testRunner == nil {
		testRunner = runner
	}
	return &Engine{registry: registry, runner: runner, testRunner: testRunner}
}

// Build plans and runs the configure, build and install phases for a module.
func (e *Engine) Build(ctx context.Context, mod *manifest.Module, ws *workspace.Workspace) error {
	plan, err := e.plan(mod, ws)
	if err != nil {
		return err
	}
	for _, phase := range []struct {
		name string
		cmds []Command
	}{
		{"configure", plan.Configure},
		{"build", plan.Build},
		{"install", plan.Install},
	} {
		if err := e.runner.RunPhase(ctx, mod.Name, phase.name, ws, phase.cmds); err != nil {
			return err
		}
	}
	return nil
}

// Test plans and runs the test phase for a module.
func (e *Engine) Test(ctx context.Context, mod *manifest.Module, ws *workspace.Workspace) error {
	plan, err := e.plan(mod, ws)
	if err != nil {
		return err
	}
	return e.testRunner.RunPhase(ctx, mod.Name, "test", ws, plan.Test)
}

func (e *Engine) plan(mod *manifest.Module, ws *workspace.Workspace) (*Plan, error) {
	adapter, err := e.registry.Lookup(mod.BuildSystem)
	if err != nil {
		return nil, err
	}
	return adapter.Plan(mod, ws)
}
