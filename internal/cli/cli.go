package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/vk/buildgridgo/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated app.Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("buildgridgo", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
BuildGridGo - A declarative, sandbox-first application assembly tool.

Usage:
  buildgridgo [options] [MANIFEST_PATH]

Arguments:
  MANIFEST_PATH
    Path to a manifest: a single .hcl or .yml file, or a directory
    containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	manifestFlag := flagSet.String("manifest", "", "Path to the application manifest.")
	mFlag := flagSet.String("m", "", "Path to the application manifest (shorthand).")
	formatFlag := flagSet.String("manifest-format", "auto", "Manifest format. Options: 'auto', 'hcl' or 'yaml'.")
	outputFlag := flagSet.String("output", "result", "Directory receiving the assembled image and metadata.")
	cacheFlag := flagSet.String("cache-dir", ".cache", "Directory for the content-addressed source cache.")
	workFlag := flagSet.String("work-dir", ".work", "Parent directory for per-module build workspaces.")
	logFormatFlag := flagSet.String("log-format", "json", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	workersFlag := flagSet.Int("workers", 4, "Number of concurrent workers for the build scheduler.")
	testPolicyFlag := flagSet.String("test-policy", "fatal", "Effect of failing module tests. Options: 'fatal' or 'advisory'.")
	keepWorkspacesFlag := flagSet.Bool("keep-workspaces", false, "Retain per-module workspaces after successful builds.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if *manifestFlag != "" {
		path = *manifestFlag
	} else if *mFlag != "" {
		path = *mFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	slog.Debug("Manifest path determined.", "path", path)

	if path == "" {
		slog.Debug("No manifest path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	format := strings.ToLower(*formatFlag)
	switch format {
	case "auto", "hcl", "yaml":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid manifest-format: must be 'auto', 'hcl' or 'yaml'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ManifestPath:   path,
		ManifestFormat: format,
		OutputDir:      *outputFlag,
		CacheDir:       *cacheFlag,
		WorkDir:        *workFlag,
		LogFormat:      logFormat,
		LogLevel:       logLevel,
		WorkerCount:    *workersFlag,
		TestPolicy:     strings.ToLower(*testPolicyFlag),
		KeepWorkspaces: *keepWorkspacesFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
