package policy

import (
	"context"
	"fmt"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/manifest"
)

// Resolution holds the two disjoint grant sets computed from one manifest:
// what the build sandbox is allowed while modules compile, and what the
// application sandbox is allowed at launch. Build-time opt-ins (network
// during build, extra env, search-path extensions) never leak into Runtime.
type Resolution struct {
	Build   *GrantSet
	Runtime *GrantSet
	Test    *GrantSet

	// AppendPath preserves the manifest's declaration order, which is
	// significant when the directories are joined into a search path.
	AppendPath []string
}

// BuildNetwork reports whether the manifest opted in to network access
// during the build phase.
func (r *Resolution) BuildNetwork() bool {
	return r.Build.Contains(KindShare, "network")
}

// Resolve runs once per build, independent of build order, computing the
// launch-time grant set from finish_args and the build-time set from
// build_options. Resolution is idempotent: resolving the same declarations
// twice yields identical sets.
func Resolve(ctx context.Context, app *manifest.App) (*Resolution, error) {
	logger := ctxlog.FromContext(ctx)

	res := &Resolution{
		Build:   NewGrantSet(),
		Runtime: NewGrantSet(),
		Test:    NewGrantSet(),
	}

	for _, arg := range app.FinishArgs {
		g, err := ParseArg(arg)
		if err != nil {
			return nil, fmt.Errorf("finish_args: %w", err)
		}
		if err := res.Runtime.Add(g); err != nil {
			return nil, fmt.Errorf("finish_args: %w", err)
		}
	}

	opts := app.BuildOptions
	if opts == nil {
		opts = &manifest.BuildOptions{}
	}

	for _, arg := range opts.BuildArgs {
		g, err := ParseArg(arg)
		if err != nil {
			return nil, fmt.Errorf("build_args: %w", err)
		}
		if err := res.Build.Add(g); err != nil {
			return nil, fmt.Errorf("build_args: %w", err)
		}
	}

	// The env map is the stronger build-time declaration: it overrides any
	// same-key env token from build_args. This is the strict override
	// context, not a conflict.
	for key, value := range opts.Env {
		res.Build.Override(Grant{Kind: KindEnv, Name: key, Value: value})
	}

	for _, dir := range opts.AppendPath {
		if err := res.Build.Add(Grant{Kind: KindPath, Name: dir}); err != nil {
			return nil, fmt.Errorf("append_path: %w", err)
		}
	}
	res.AppendPath = append(res.AppendPath, opts.AppendPath...)

	// Test grants extend the build set for the test phase only.
	for _, arg := range opts.TestArgs {
		g, err := ParseArg(arg)
		if err != nil {
			return nil, fmt.Errorf("test_args: %w", err)
		}
		if err := res.Test.Add(g); err != nil {
			return nil, fmt.Errorf("test_args: %w", err)
		}
	}

	logger.Debug("Sandbox policy resolved.",
		"runtime_grants", res.Runtime.Len(),
		"build_grants", res.Build.Len(),
		"test_grants", res.Test.Len(),
		"build_network", res.BuildNetwork(),
	)
	return res, nil
}
