package testutil

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vk/buildgridgo/internal/app"
)

// SafeBuffer is a thread-safe buffer for capturing log output in tests.
type SafeBuffer struct {
	b  bytes.Buffer
	mu sync.Mutex
}

// Write implements the io.Writer interface for SafeBuffer.
func (b *SafeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.Write(p)
}

// String implements the fmt.Stringer interface for SafeBuffer.
func (b *SafeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.b.String()
}

// HarnessResult holds the outcomes of an integration test run.
type HarnessResult struct {
	LogOutput string
	Err       error
	App       *app.App
	OutputDir string
}

// RunBuildTest provides a standardized harness for running integration tests
// using a default background context.
func RunBuildTest(t *testing.T, manifestName string, files map[string]string) *HarnessResult {
	t.Helper()
	return RunBuildTestWithContext(context.Background(), t, manifestName, files)
}

// RunBuildTestWithContext writes the given fixture files into a temp root,
// points an App at the named manifest, and runs the full build: graph
// validation, scheduling, aggregation. Fixture paths are relative to the
// temp root, so dir-type sources can reference sibling fixture directories.
func RunBuildTestWithContext(ctx context.Context, t *testing.T, manifestName string, files map[string]string) *HarnessResult {
	t.Helper()

	tmpDir := t.TempDir()
	for name, content := range files {
		filePath := filepath.Join(tmpDir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0o755))
		require.NoError(t, os.WriteFile(filePath, []byte(content), 0o644))
	}

	outputDir := filepath.Join(tmpDir, "result")
	appConfig, err := app.NewConfig(app.Config{
		ManifestPath:   filepath.Join(tmpDir, manifestName),
		ManifestFormat: "auto",
		OutputDir:      outputDir,
		CacheDir:       filepath.Join(tmpDir, "cache"),
		WorkDir:        filepath.Join(tmpDir, "work"),
		LogLevel:       "debug",
		LogFormat:      "text",
		WorkerCount:    4,
		TestPolicy:     "fatal",
	})
	require.NoError(t, err)

	logBuffer := &SafeBuffer{}

	var testApp *app.App
	var panicErr any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicErr = r
			}
		}()
		testApp = app.NewApp(logBuffer, appConfig, nil)
	}()

	if panicErr != nil {
		return &HarnessResult{
			LogOutput: logBuffer.String(),
			Err:       fmt.Errorf("application startup panicked | %v", panicErr),
			OutputDir: outputDir,
		}
	}

	runErr := testApp.Run(ctx)

	if os.Getenv("BGGO_TEST_LOGS") == "true" {
		t.Logf("--- Full Log Output for %s ---\n%s", t.Name(), logBuffer.String())
	}

	return &HarnessResult{
		LogOutput: logBuffer.String(),
		Err:       runErr,
		App:       testApp,
		OutputDir: outputDir,
	}
}
