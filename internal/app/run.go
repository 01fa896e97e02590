package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/vk/buildgridgo/internal/artifact"
	"github.com/vk/buildgridgo/internal/buildsys"
	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/fetch"
	"github.com/vk/buildgridgo/internal/modgraph"
	"github.com/vk/buildgridgo/internal/policy"
	"github.com/vk/buildgridgo/internal/scheduler"
)

// Run executes the full assembly: policy resolution, graph validation,
// scheduled module builds, image aggregation and the final metadata write.
// Structural and policy errors abort before any build work starts.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")

	// Policy resolution runs once, independent of build order.
	resolution, err := policy.Resolve(ctx, a.manifest.App)
	if err != nil {
		return fmt.Errorf("failed to resolve sandbox policy: %w", err)
	}

	a.logger.Debug("Building module graph from manifest...")
	graph, err := modgraph.Build(ctx, a.manifest.Modules)
	if err != nil {
		return fmt.Errorf("failed to build module graph: %w", err)
	}
	a.logger.Debug("Module graph built.", "module_count", graph.Len())

	image, err := artifact.NewImage(filepath.Join(a.config.OutputDir, "files"))
	if err != nil {
		return err
	}

	fetcher := fetch.NewFetcher(a.config.CacheDir, nil)
	runner := buildsys.NewRunner(resolution.Build.Env(), resolution.AppendPath)

	// Test grants extend the build environment for the test phase only.
	testEnv := resolution.Build.Env()
	for key, value := range resolution.Test.Env() {
		testEnv[key] = value
	}
	testRunner := buildsys.NewRunner(testEnv, resolution.AppendPath)

	engine := buildsys.NewEngine(buildsys.NewRegistry(), runner, testRunner)

	testPolicy := scheduler.TestPolicyFatal
	if a.config.TestPolicy == "advisory" {
		testPolicy = scheduler.TestPolicyAdvisory
	}

	sched := scheduler.New(graph, fetcher, engine, image, scheduler.Options{
		Workers:        a.config.WorkerCount,
		WorkDir:        a.config.WorkDir,
		TestPolicy:     testPolicy,
		KeepWorkspaces: a.config.KeepWorkspaces,
	})

	a.logger.Info("🚀 Starting build.", "app", a.manifest.App.ID, "modules", graph.Len(), "workers", a.config.WorkerCount)
	runErr := sched.Run(ctx)
	a.logger.Info("🏁 Build finished.")

	a.renderSummary(sched.Results())

	if runErr != nil {
		return runErr
	}

	if err := a.writeMetadata(resolution); err != nil {
		return fmt.Errorf("failed to write image metadata: %w", err)
	}
	a.logger.Info("Image assembled.", "output", a.config.OutputDir, "runtime_grants", resolution.Runtime.Len())
	return nil
}
