// Package scheduler drives the validated module graph to completion: it
// topologically orders modules, fetches and builds independent modules
// concurrently under a bounded worker pool, and feeds each install output to
// the artifact aggregator.
//
// Failure policy: when a module fails, every module whose dependency chain
// includes it is skipped (never scheduled, left Pending), while independent
// subtrees already in flight run to their own completion. This bounded blast
// radius is a deliberate choice over a full abort: a leaf library failing
// should not waste the work of an unrelated toolchain build.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/manifest"
	"github.com/vk/buildgridgo/internal/modgraph"
	"github.com/vk/buildgridgo/internal/workspace"
)

// Fetcher acquires one source descriptor into a directory.
type Fetcher interface {
	Fetch(ctx context.Context, module string, src *manifest.Source, destDir string) error
}

// Builder runs a module's build and test phases inside its workspace.
type Builder interface {
	Build(ctx context.Context, mod *manifest.Module, ws *workspace.Workspace) error
	Test(ctx context.Context, mod *manifest.Module, ws *workspace.Workspace) error
}

// Aggregator merges one module's install output into the artifact image.
type Aggregator interface {
	AddLayer(ctx context.Context, module, installDir string, cleanup []string) error
}

// TestPolicy selects how a failing test suite affects its module. This is an
// explicit policy choice the caller must make, not an implicit default.
type TestPolicy int

const (
	// TestPolicyFatal fails the module when its tests fail.
	TestPolicyFatal TestPolicy = iota
	// TestPolicyAdvisory logs failing tests as warnings and installs the
	// module anyway.
	TestPolicyAdvisory
)

// Options configures a scheduler run.
type Options struct {
	// Workers bounds build parallelism across independent modules.
	Workers int
	// WorkDir is the parent of all per-module workspaces.
	WorkDir string
	// TestPolicy selects fatal or advisory test failures.
	TestPolicy TestPolicy
	// KeepWorkspaces retains successful modules' workspaces for debugging.
	KeepWorkspaces bool
}

// Result is one module's final disposition after a run.
type Result struct {
	Module string
	State  State
	Err    error
	// SkippedBy names the failed module that prevented this one from ever
	// being scheduled. Skipped modules remain Pending.
	SkippedBy string
}

// Scheduler executes one module graph. It is single-use: create, Run, then
// inspect Results.
type Scheduler struct {
	graph   *modgraph.Graph
	fetcher Fetcher
	builder Builder
	image   Aggregator
	opts    Options

	nodes map[string]*moduleNode
	wg    sync.WaitGroup
}

// New creates a scheduler over a validated graph.
func New(graph *modgraph.Graph, fetcher Fetcher, builder Builder, image Aggregator, opts Options) *Scheduler {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	s := &Scheduler{
		graph:   graph,
		fetcher: fetcher,
		builder: builder,
		image:   image,
		opts:    opts,
		nodes:   make(map[string]*moduleNode, graph.Len()),
	}
	for _, name := range graph.Order() {
		mod, _ := graph.Module(name)
		n := &moduleNode{mod: mod}
		n.depCount.Store(int32(len(graph.Dependencies(name))))
		s.nodes[name] = n
	}
	return s
}

// Run executes the graph and blocks until every module has reached a final
// disposition. It returns an error when any module failed; skipped modules
// and cancellations are symptoms, not root causes, and are excluded from it.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)

	readyChan := make(chan *moduleNode, s.graph.Len())

	rootCount := 0
	for _, name := range s.graph.Order() {
		n := s.nodes[name]
		if n.depCount.Load() == 0 {
			logger.Debug("Found root module.", "module", name)
			readyChan <- n
			rootCount++
		}
	}
	logger.Debug("Seeded root modules.", "count", rootCount)

	s.wg.Add(s.graph.Len())

	logger.Debug("Starting worker pool.", "workers", s.opts.Workers)
	for i := 0; i < s.opts.Workers; i++ {
		go s.worker(ctx, readyChan, i)
	}

	s.wg.Wait()
	close(readyChan)
	logger.Info("All modules completed.")

	var failed []string
	var rootCause error
	for _, name := range s.graph.Order() {
		n := s.nodes[name]
		if n.getState() != Failed {
			continue
		}
		if n.err != nil && !errors.Is(n.err, context.Canceled) {
			failed = append(failed, name)
			if rootCause == nil {
				rootCause = n.err
			}
		}
	}

	if rootCause != nil {
		return fmt.Errorf("build failed for %s: %w", strings.Join(failed, ", "), rootCause)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// worker is the processing loop for one concurrent worker.
func (s *Scheduler) worker(ctx context.Context, readyChan chan *moduleNode, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for n := range readyChan {
		name := n.mod.Name
		workerLogger := logger.With("workerID", workerID, "module", name)

		if ctx.Err() != nil {
			if n.skip("", &s.wg) {
				workerLogger.Debug("Run canceled, module not started.")
				// Dependents will never become ready; drain their
				// WaitGroup slots too or Run blocks forever.
				s.skipDependents(ctx, name, "")
			}
			continue
		}

		workerLogger.Debug("Worker picked up module.")
		if err := s.runModule(ctx, n); err != nil {
			workerLogger.Error("Module failed.", "state", n.getState(), "error", err)
			n.fail(err)
			s.skipDependents(ctx, name, name)
			s.wg.Done()
			continue
		}

		n.setState(Installed)
		workerLogger.Info("Module installed.")

		for _, depName := range s.graph.Dependents(name) {
			dep := s.nodes[depName]
			if dep.depCount.Add(-1) == 0 {
				workerLogger.Debug("Unlocking dependent module.", "dependent", depName)
				readyChan <- dep
			}
		}
		s.wg.Done()
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

// runModule walks one module through Fetching, Building, optional Testing
// and the image merge. The workspace is destroyed on success and retained on
// failure for diagnosis.
func (s *Scheduler) runModule(ctx context.Context, n *moduleNode) error {
	logger := ctxlog.FromContext(ctx).With("module", n.mod.Name)
	mod := n.mod

	ws, err := workspace.New(s.opts.WorkDir, mod.Name)
	if err != nil {
		return err
	}

	n.setState(Fetching)
	logger.Debug("Fetching sources.", "count", len(mod.Sources))
	for _, src := range mod.Sources {
		// Fetch failures are terminal for the module; retrying here
		// could mask an integrity mismatch as network flakiness.
		if err := s.fetcher.Fetch(ctx, mod.Name, src, ws.SourceDir); err != nil {
			return err
		}
	}

	n.setState(Building)
	logger.Debug("Building.", "buildsystem", mod.BuildSystem)
	if err := s.builder.Build(ctx, mod, ws); err != nil {
		return err
	}

	if mod.RunTests {
		n.setState(Testing)
		logger.Debug("Running tests.")
		if err := s.builder.Test(ctx, mod, ws); err != nil {
			if s.opts.TestPolicy == TestPolicyFatal {
				return &TestFailureError{Module: mod.Name, Err: err}
			}
			logger.Warn("Tests failed, continuing under advisory policy.", "error", err)
		}
	}

	if err := s.image.AddLayer(ctx, mod.Name, ws.InstallDir, mod.Cleanup); err != nil {
		return err
	}

	if !s.opts.KeepWorkspaces {
		if err := ws.Destroy(); err != nil {
			logger.Warn("Failed to destroy workspace.", "error", err)
		}
	}
	return nil
}

// skipDependents transitively marks every module depending on root as
// skipped. Skipped modules are never scheduled and stay Pending. by names
// the failed module recorded on each skipped node; it is empty when the
// dependents are drained because the run was canceled rather than because a
// dependency failed.
func (s *Scheduler) skipDependents(ctx context.Context, root, by string) {
	logger := ctxlog.FromContext(ctx)

	var visit func(name string)
	visit = func(name string) {
		for _, depName := range s.graph.Dependents(name) {
			dep := s.nodes[depName]
			if dep.skip(by, &s.wg) {
				if by != "" {
					logger.Warn("Skipping module, dependency chain failed.",
						"module", depName, "failed", by)
				} else {
					logger.Debug("Skipping module, run canceled.", "module", depName)
				}
				visit(depName)
			}
		}
	}
	visit(root)
}

// Results returns every module's final disposition, in topological order.
func (s *Scheduler) Results() []Result {
	out := make([]Result, 0, len(s.nodes))
	for _, name := range s.graph.Order() {
		n := s.nodes[name]
		out = append(out, Result{
			Module:    name,
			State:     n.getState(),
			Err:       n.err,
			SkippedBy: n.skippedBy,
		})
	}
	return out
}
