// Package app wires the manifest loader, policy resolver, module graph,
// scheduler and artifact aggregator into one application instance. All state
// is carried on the App value; two Apps in one process share nothing, which
// is what makes the integration tests able to run builds side by side.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/manifest"
)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW     io.Writer
	logger   *slog.Logger
	config   *Config
	manifest *manifest.Manifest
	runID    string
}

// NewApp is the constructor for the main application. It returns a fully
// initialized App instance with its own isolated logger and the manifest
// already loaded and validated.
func NewApp(outW io.Writer, cfg *Config, loader manifest.Loader) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, outW)
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	if loader == nil {
		loader = selectLoader(cfg)
	}

	m, err := loader.Load(ctx, cfg.ManifestPath)
	if err != nil {
		// A failure to load the manifest is a fatal startup error.
		panic(fmt.Errorf("failed to load manifest: %w", err))
	}
	logger.Debug("Manifest loaded.", "app", m.App.ID, "modules", len(m.Modules))

	return &App{
		outW:     outW,
		logger:   logger,
		config:   cfg,
		manifest: m,
		runID:    runID,
	}
}

// Manifest returns the loaded manifest. This is primarily for testing.
func (a *App) Manifest() *manifest.Manifest {
	return a.manifest
}

// selectLoader picks the manifest loader from the configured format, falling
// back to the file extension when the format is "auto".
func selectLoader(cfg *Config) manifest.Loader {
	format := cfg.ManifestFormat
	if format == "" || format == "auto" {
		switch strings.ToLower(filepath.Ext(cfg.ManifestPath)) {
		case ".yml", ".yaml":
			format = "yaml"
		default:
			format = "hcl"
		}
	}
	if format == "yaml" {
		return manifest.NewYAMLLoader()
	}
	return manifest.NewHCLLoader()
}
