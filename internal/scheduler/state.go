package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/vk/buildgridgo/internal/manifest"
)

// State is a module's position in its build lifecycle. Pending is the
// initial state; Installed and Failed are terminal.
type State int32

const (
	// Pending indicates the module is waiting for its dependencies.
	Pending State = iota
	// Fetching indicates the module's sources are being acquired.
	Fetching
	// Building indicates the module's build system is running.
	Building
	// Testing indicates the module's test suite is running.
	Testing
	// Installed indicates the module's output has been merged into the image.
	Installed
	// Failed indicates the module failed fetching, building or testing.
	Failed
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Fetching:
		return "fetching"
	case Building:
		return "building"
	case Testing:
		return "testing"
	case Installed:
		return "installed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// TestFailureError reports a failing test suite under the fatal test policy.
type TestFailureError struct {
	Module string
	Err    error
}

func (e *TestFailureError) Error() string {
	return fmt.Sprintf("module %q tests failed: %v", e.Module, e.Err)
}

func (e *TestFailureError) Unwrap() error {
	return e.Err
}

// moduleNode is one module's scheduling state: its atomic lifecycle state,
// its unmet-dependency counter, and its skip bookkeeping.
type moduleNode struct {
	mod *manifest.Module

	state    atomic.Int32
	depCount atomic.Int32

	// err is written exactly once, before the state moves to Failed, and
	// only read after the run's WaitGroup has drained.
	err error

	// skipped marks a node that was never scheduled because a module in
	// its dependency chain failed. Skipped nodes stay Pending.
	skipOnce  sync.Once
	skipped   bool
	skippedBy string
}

func (n *moduleNode) setState(s State) {
	n.state.Store(int32(s))
}

func (n *moduleNode) getState() State {
	return State(n.state.Load())
}

func (n *moduleNode) fail(err error) {
	n.err = err
	n.setState(Failed)
}

// skip marks the node as skipped exactly once and releases its WaitGroup
// slot. It returns true the first time, so transitive skips recurse only
// once per node.
func (n *moduleNode) skip(by string, wg *sync.WaitGroup) bool {
	first := false
	n.skipOnce.Do(func() {
		n.skipped = true
		n.skippedBy = by
		wg.Done()
		first = true
	})
	return first
}
