package app

import "errors"

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ManifestPath   string // .hcl file, directory of .hcl files, or a .yml/.yaml file
	ManifestFormat string // "auto", "hcl" or "yaml"

	OutputDir string // root of the final image and metadata
	CacheDir  string // content-addressed source cache
	WorkDir   string // parent of per-module workspaces

	LogFormat string
	LogLevel  string

	WorkerCount    int
	TestPolicy     string // "fatal" or "advisory"
	KeepWorkspaces bool
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ManifestPath == "" {
		return nil, errors.New("ManifestPath is a required configuration field and cannot be empty")
	}
	if cfg.OutputDir == "" {
		return nil, errors.New("OutputDir is a required configuration field and cannot be empty")
	}
	if cfg.TestPolicy != "fatal" && cfg.TestPolicy != "advisory" {
		return nil, errors.New("invalid test-policy: must be 'fatal' or 'advisory'")
	}
	if cfg.WorkerCount < 1 {
		return nil, errors.New("invalid workers: must be at least 1")
	}
	return &cfg, nil
}
