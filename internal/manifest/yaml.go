package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/vk/buildgridgo/internal/ctxlog"
)

// YAMLLoader is the YAML implementation of the Loader interface. It parses a
// single manifest file in the kebab-case form common to packaging manifests.
type YAMLLoader struct{}

// NewYAMLLoader creates a new YAML manifest loader.
func NewYAMLLoader() *YAMLLoader {
	return &YAMLLoader{}
}

type yamlRoot struct {
	App     *yamlApp      `yaml:"app"`
	Modules []*yamlModule `yaml:"modules"`
}

type yamlApp struct {
	ID             string            `yaml:"id"`
	Runtime        string            `yaml:"runtime"`
	RuntimeVersion string            `yaml:"runtime-version"`
	SDK            string            `yaml:"sdk"`
	Command        string            `yaml:"command"`
	FinishArgs     []string          `yaml:"finish-args"`
	BuildOptions   *yamlBuildOptions `yaml:"build-options"`
}

type yamlBuildOptions struct {
	BuildArgs  []string          `yaml:"build-args"`
	TestArgs   []string          `yaml:"test-args"`
	Env        map[string]string `yaml:"env"`
	AppendPath []string          `yaml:"append-path"`
}

type yamlModule struct {
	Name          string            `yaml:"name"`
	BuildSystem   string            `yaml:"buildsystem"`
	Options       map[string]string `yaml:"options"`
	ConfigOpts    []string          `yaml:"config-opts"`
	BuildCommands []string          `yaml:"build-commands"`
	RunTests      bool              `yaml:"run-tests"`
	Cleanup       []string          `yaml:"cleanup"`
	DependsOn     []string          `yaml:"depends-on"`
	Sources       []*yamlSource     `yaml:"sources"`
}

type yamlSource struct {
	Type   string `yaml:"type"`
	URL    string `yaml:"url"`
	SHA256 string `yaml:"sha256"`
	Commit string `yaml:"commit"`
	Path   string `yaml:"path"`
}

// Load implements the Loader interface.
func (l *YAMLLoader) Load(ctx context.Context, path string) (*Manifest, error) {
	logger := ctxlog.FromContext(ctx)

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading manifest %s: %w", path, err)
	}

	var root yamlRoot
	if err := yaml.Unmarshal(raw, &root); err != nil {
		return nil, fmt.Errorf("failed to decode manifest %s: %w", path, err)
	}

	manifest := &Manifest{}
	if root.App != nil {
		manifest.App = &App{
			ID:             root.App.ID,
			Runtime:        root.App.Runtime,
			RuntimeVersion: root.App.RuntimeVersion,
			SDK:            root.App.SDK,
			Command:        root.App.Command,
			FinishArgs:     root.App.FinishArgs,
			BuildOptions:   &BuildOptions{},
		}
		if root.App.BuildOptions != nil {
			manifest.App.BuildOptions = &BuildOptions{
				BuildArgs:  root.App.BuildOptions.BuildArgs,
				TestArgs:   root.App.BuildOptions.TestArgs,
				Env:        root.App.BuildOptions.Env,
				AppendPath: root.App.BuildOptions.AppendPath,
			}
		}
	}

	for _, mod := range root.Modules {
		out := &Module{
			Name:          mod.Name,
			BuildSystem:   mod.BuildSystem,
			Options:       mod.Options,
			ConfigOpts:    mod.ConfigOpts,
			BuildCommands: mod.BuildCommands,
			RunTests:      mod.RunTests,
			Cleanup:       mod.Cleanup,
			DependsOn:     mod.DependsOn,
		}
		for _, src := range mod.Sources {
			out.Sources = append(out.Sources, &Source{
				Type:   SourceType(src.Type),
				URL:    src.URL,
				SHA256: src.SHA256,
				Commit: src.Commit,
				Path:   src.Path,
			})
		}
		manifest.Modules = append(manifest.Modules, out)
	}

	resolveDirSources(manifest, filepath.Dir(path))

	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("YAML manifest loaded.", "app", manifest.App.ID, "modules", len(manifest.Modules))
	return manifest, nil
}
