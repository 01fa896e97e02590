// Package modgraph validates the manifest's module list into a dependency
// graph and derives the build order the scheduler executes.
package modgraph

import (
	"context"
	"fmt"
	"slices"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/manifest"
)

// Graph is the validated dependency graph over a manifest's modules. It is
// immutable after Build returns; the scheduler only queries it.
type Graph struct {
	modules    map[string]*manifest.Module
	deps       map[string][]string
	dependents map[string][]string
	order      []string
}

// Build constructs and validates a Graph from the manifest's ordered module
// list. It fails fast on duplicate names, dangling dependency references and
// cycles; no build work starts until validation has passed. Build is pure:
// it never touches the filesystem or network.
//
// When no module in the list declares explicit dependencies, the legacy
// sequential interpretation applies and each module depends on its
// predecessor. The moment any module declares depends_on, list order stops
// carrying meaning and only the explicit edges order the build.
func Build(ctx context.Context, modules []*manifest.Module) (*Graph, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Building module graph.", "module_count", len(modules))

	g := &Graph{
		modules:    make(map[string]*manifest.Module, len(modules)),
		deps:       make(map[string][]string, len(modules)),
		dependents: make(map[string][]string, len(modules)),
	}

	// First pass: register every module, rejecting duplicates.
	var names []string
	for _, mod := range modules {
		if _, ok := g.modules[mod.Name]; ok {
			return nil, &DuplicateModuleNameError{Name: mod.Name}
		}
		g.modules[mod.Name] = mod
		names = append(names, mod.Name)
	}

	// Second pass: link edges.
	explicit := false
	for _, mod := range modules {
		if len(mod.DependsOn) > 0 {
			explicit = true
			break
		}
	}
	if explicit {
		for _, mod := range modules {
			for _, dep := range mod.DependsOn {
				if dep == mod.Name {
					return nil, &CyclicDependencyError{Cycle: []string{mod.Name, mod.Name}}
				}
				if _, ok := g.modules[dep]; !ok {
					return nil, &DanglingDependencyError{Module: mod.Name, Dependency: dep}
				}
				g.addEdge(dep, mod.Name)
			}
		}
		logger.Debug("Linked explicit dependency edges.")
	} else {
		for i := 1; i < len(names); i++ {
			g.addEdge(names[i-1], names[i])
		}
		logger.Debug("No explicit dependencies declared, chained modules in list order.")
	}

	order, err := g.sort(names)
	if err != nil {
		return nil, err
	}
	g.order = order

	logger.Debug("Module graph validated.", "order", order)
	return g, nil
}

// addEdge records that `to` depends on `from`. Identical duplicate edges are
// collapsed.
func (g *Graph) addEdge(from, to string) {
	if slices.Contains(g.deps[to], from) {
		return
	}
	g.deps[to] = append(g.deps[to], from)
	g.dependents[from] = append(g.dependents[from], to)
}

const (
	colorWhite = iota // unvisited
	colorGray         // in the current DFS stack
	colorBlack        // fully processed
)

// sort performs a depth-first topological sort with three-color marking.
// Hitting a gray node means the DFS stack contains a cycle; the slice of the
// stack from that node onward is reported as the full cycle path.
func (g *Graph) sort(names []string) ([]string, error) {
	color := make(map[string]int, len(names))
	var order []string
	var stack []string

	var visit func(name string) error
	visit = func(name string) error {
		color[name] = colorGray
		stack = append(stack, name)

		// Iterate dependencies in declaration order for a deterministic result.
		for _, dep := range g.deps[name] {
			switch color[dep] {
			case colorBlack:
				continue
			case colorGray:
				at := slices.Index(stack, dep)
				cycle := append(slices.Clone(stack[at:]), dep)
				return &CyclicDependencyError{Cycle: cycle}
			default:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[name] = colorBlack
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if color[name] == colorWhite {
			if err := visit(name); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

// Order returns the module names in a topological order consistent with
// every dependency edge.
func (g *Graph) Order() []string {
	return slices.Clone(g.order)
}

// Module returns the module declaration for the given name.
func (g *Graph) Module(name string) (*manifest.Module, error) {
	mod, ok := g.modules[name]
	if !ok {
		return nil, fmt.Errorf("module not found: %s", name)
	}
	return mod, nil
}

// Dependencies returns the names of the modules the given module depends on.
func (g *Graph) Dependencies(name string) []string {
	return slices.Clone(g.deps[name])
}

// Dependents returns the names of the modules that directly depend on the
// given module.
func (g *Graph) Dependents(name string) []string {
	return slices.Clone(g.dependents[name])
}

// Len returns the number of modules in the graph.
func (g *Graph) Len() int {
	return len(g.modules)
}
