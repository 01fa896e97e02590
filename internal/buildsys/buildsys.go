// Package buildsys adapts the external build systems a manifest may name
// (meson, cmake, autotools, plain command lists) into command sequences the
// scheduler executes inside a module's workspace. Adapters only *produce*
// commands; they never run anything themselves.
package buildsys

import (
	"fmt"
	"sort"

	"github.com/vk/buildgridgo/internal/manifest"
	"github.com/vk/buildgridgo/internal/workspace"
)

// Command is a single subprocess invocation, relative to a working directory
// inside the workspace.
type Command struct {
	Argv []string
	Dir  string
}

// Plan is the full command sequence for one module, split by build phase.
// Test is empty unless the module opted into running its test suite.
type Plan struct {
	Configure []Command
	Build     []Command
	Install   []Command
	Test      []Command
}

// Adapter produces a Plan for one build-system kind.
type Adapter interface {
	// Kind returns the build-system identifier modules reference.
	Kind() string
	// Plan computes the command sequence for the module inside the given
	// workspace. It fails on unrecognized typed options.
	Plan(mod *manifest.Module, ws *workspace.Workspace) (*Plan, error)
}

// Registry maps build-system kinds to their adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry returns a registry populated with the built-in adapters.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range []Adapter{
		&Meson{},
		&CMake{},
		&Autotools{},
		&Simple{},
	} {
		r.adapters[a.Kind()] = a
	}
	return r
}

// Register adds or replaces an adapter. Used by tests to inject fakes.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Kind()] = a
}

// Lookup returns the adapter for the given kind.
func (r *Registry) Lookup(kind string) (Adapter, error) {
	a, ok := r.adapters[kind]
	if !ok {
		return nil, fmt.Errorf("unknown buildsystem %q (known: %v)", kind, r.Kinds())
	}
	return a, nil
}

// Kinds returns the registered build-system identifiers, sorted.
func (r *Registry) Kinds() []string {
	out := make([]string, 0, len(r.adapters))
	for kind := range r.adapters {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

// optionValue reads one recognized typed option with a default.
func optionValue(mod *manifest.Module, key, def string) string {
	if v, ok := mod.Options[key]; ok {
		return v
	}
	return def
}

// checkOptions rejects typed options the adapter does not recognize. The
// free-form config_opts list is the escape hatch for everything else.
func checkOptions(mod *manifest.Module, recognized ...string) error {
	for key := range mod.Options {
		found := false
		for _, r := range recognized {
			if key == r {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("module %q: buildsystem %q does not recognize option %q (use config_opts for passthrough)", mod.Name, mod.BuildSystem, key)
		}
	}
	return nil
}
