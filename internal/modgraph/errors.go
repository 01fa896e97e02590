package modgraph

import (
	"fmt"
	"strings"
)

// DuplicateModuleNameError reports two module declarations sharing one name.
type DuplicateModuleNameError struct {
	Name string
}

func (e *DuplicateModuleNameError) Error() string {
	return fmt.Sprintf("duplicate module name %q", e.Name)
}

// DanglingDependencyError reports a depends_on entry naming a module that is
// not declared anywhere in the manifest.
type DanglingDependencyError struct {
	Module     string
	Dependency string
}

func (e *DanglingDependencyError) Error() string {
	return fmt.Sprintf("module %q depends on undeclared module %q", e.Module, e.Dependency)
}

// CyclicDependencyError reports that the dependency relation is not a DAG.
// Cycle holds the full path, starting and ending at the same module, so the
// offending chain can be read directly from the error message.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}
