package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vk/buildgridgo/internal/manifest"
	"github.com/vk/buildgridgo/internal/workspace"
)

// ExecutionRecord captures when one module's fake build ran, for asserting
// ordering and overlap in concurrency tests.
type ExecutionRecord struct {
	Start time.Time
	End   time.Time
}

// FakeFetcher satisfies the scheduler's Fetcher interface without touching
// the network. It records every fetched module and can be told to fail a
// specific one.
type FakeFetcher struct {
	mu      sync.Mutex
	fetched []string

	// FailModule names a module whose fetch fails.
	FailModule string
}

func (f *FakeFetcher) Fetch(_ context.Context, module string, _ *manifest.Source, destDir string) error {
	f.mu.Lock()
	f.fetched = append(f.fetched, module)
	f.mu.Unlock()

	if module == f.FailModule {
		return fmt.Errorf("fake fetch failure for %q", module)
	}
	return os.WriteFile(filepath.Join(destDir, "source.txt"), []byte(module), 0o644)
}

// Fetched returns the modules fetched so far.
func (f *FakeFetcher) Fetched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.fetched...)
}

// FakeBuilder satisfies the scheduler's Builder interface. Each build writes
// one marker file into the install tree and records its execution window.
type FakeBuilder struct {
	mu      sync.Mutex
	records map[string]*ExecutionRecord

	// FailModule names a module whose build fails.
	FailModule string
	// FailTests names a module whose test phase fails.
	FailTests string
	// Sleep stretches each build, making execution overlap observable.
	Sleep time.Duration
}

func NewFakeBuilder() *FakeBuilder {
	return &FakeBuilder{records: make(map[string]*ExecutionRecord)}
}

func (b *FakeBuilder) Build(ctx context.Context, mod *manifest.Module, ws *workspace.Workspace) error {
	start := time.Now()
	if b.Sleep > 0 {
		select {
		case <-time.After(b.Sleep):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.mu.Lock()
	b.records[mod.Name] = &ExecutionRecord{Start: start, End: time.Now()}
	b.mu.Unlock()

	if mod.Name == b.FailModule {
		return fmt.Errorf("fake build failure for %q", mod.Name)
	}
	return os.WriteFile(filepath.Join(ws.InstallDir, mod.Name+".built"), []byte("ok"), 0o644)
}

func (b *FakeBuilder) Test(_ context.Context, mod *manifest.Module, _ *workspace.Workspace) error {
	if mod.Name == b.FailTests {
		return fmt.Errorf("fake test failure for %q", mod.Name)
	}
	return nil
}

// Record returns the execution record for a module, or nil if it never built.
func (b *FakeBuilder) Record(module string) *ExecutionRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.records[module]
}

// Built returns the names of all modules that ran their build phase.
func (b *FakeBuilder) Built() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.records))
	for name := range b.records {
		out = append(out, name)
	}
	return out
}
