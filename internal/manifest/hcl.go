package manifest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/fsutil"
)

// HCLLoader is the HCL implementation of the Loader interface. It accepts
// either a single .hcl file or a directory, in which case every .hcl file
// found below it contributes blocks to one merged manifest.
type HCLLoader struct{}

// NewHCLLoader creates a new HCL manifest loader.
func NewHCLLoader() *HCLLoader {
	return &HCLLoader{}
}

// hclRoot is the top-level decode target for a manifest file.
type hclRoot struct {
	Apps    []*hclApp    `hcl:"app,block"`
	Modules []*hclModule `hcl:"module,block"`
}

type hclApp struct {
	ID             string           `hcl:"id"`
	Runtime        string           `hcl:"runtime"`
	RuntimeVersion string           `hcl:"runtime_version,optional"`
	SDK            string           `hcl:"sdk"`
	Command        string           `hcl:"command"`
	FinishArgs     []string         `hcl:"finish_args,optional"`
	BuildOptions   *hclBuildOptions `hcl:"build_options,block"`
}

type hclBuildOptions struct {
	BuildArgs  []string          `hcl:"build_args,optional"`
	TestArgs   []string          `hcl:"test_args,optional"`
	Env        map[string]string `hcl:"env,optional"`
	AppendPath []string          `hcl:"append_path,optional"`
}

type hclModule struct {
	Name          string            `hcl:"name,label"`
	BuildSystem   string            `hcl:"buildsystem"`
	Options       map[string]string `hcl:"options,optional"`
	ConfigOpts    []string          `hcl:"config_opts,optional"`
	BuildCommands []string          `hcl:"build_commands,optional"`
	RunTests      bool              `hcl:"run_tests,optional"`
	Cleanup       []string          `hcl:"cleanup,optional"`
	DependsOn     []string          `hcl:"depends_on,optional"`
	Sources       []*hclSource      `hcl:"source,block"`
}

type hclSource struct {
	Type   string `hcl:"type"`
	URL    string `hcl:"url,optional"`
	SHA256 string `hcl:"sha256,optional"`
	Commit string `hcl:"commit,optional"`
	Path   string `hcl:"path,optional"`
}

// evalContext exposes the built-in variables manifests may interpolate, e.g.
// `url = "https://example.com/lib-${arch}.tar.gz"`.
func evalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"arch": cty.StringVal(runtime.GOARCH),
			"os":   cty.StringVal(runtime.GOOS),
		},
	}
}

// Load implements the Loader interface.
func (l *HCLLoader) Load(ctx context.Context, path string) (*Manifest, error) {
	logger := ctxlog.FromContext(ctx)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("error accessing manifest path %s: %w", path, err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, fmt.Errorf("failed to find manifest files in %s: %w", path, err)
		}
		if len(files) == 0 {
			return nil, fmt.Errorf("no .hcl manifest files found in %s", path)
		}
	}
	logger.Debug("Loading HCL manifest.", "files", len(files))

	parser := hclparse.NewParser()
	evalCtx := evalContext()
	manifest := &Manifest{}

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse manifest file %s: %w", file, diags)
		}

		var root hclRoot
		diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode manifest file %s: %w", file, diags)
		}

		for _, app := range root.Apps {
			if manifest.App != nil {
				return nil, fmt.Errorf("manifest declares more than one app block (second in %s)", file)
			}
			manifest.App = translateApp(app)
		}
		for _, mod := range root.Modules {
			manifest.Modules = append(manifest.Modules, translateModule(mod))
		}
	}

	baseDir := path
	if !info.IsDir() {
		baseDir = filepath.Dir(path)
	}
	resolveDirSources(manifest, baseDir)

	if err := manifest.Validate(); err != nil {
		return nil, err
	}
	logger.Debug("HCL manifest loaded.", "app", manifest.App.ID, "modules", len(manifest.Modules))
	return manifest, nil
}

func translateApp(in *hclApp) *App {
	out := &App{
		ID:             in.ID,
		Runtime:        in.Runtime,
		RuntimeVersion: in.RuntimeVersion,
		SDK:            in.SDK,
		Command:        in.Command,
		FinishArgs:     in.FinishArgs,
		BuildOptions:   &BuildOptions{},
	}
	if in.BuildOptions != nil {
		out.BuildOptions = &BuildOptions{
			BuildArgs:  in.BuildOptions.BuildArgs,
			TestArgs:   in.BuildOptions.TestArgs,
			Env:        in.BuildOptions.Env,
			AppendPath: in.BuildOptions.AppendPath,
		}
	}
	return out
}

func translateModule(in *hclModule) *Module {
	out := &Module{
		Name:          in.Name,
		BuildSystem:   in.BuildSystem,
		Options:       in.Options,
		ConfigOpts:    in.ConfigOpts,
		BuildCommands: in.BuildCommands,
		RunTests:      in.RunTests,
		Cleanup:       in.Cleanup,
		DependsOn:     in.DependsOn,
	}
	for _, src := range in.Sources {
		out.Sources = append(out.Sources, &Source{
			Type:   SourceType(src.Type),
			URL:    src.URL,
			SHA256: src.SHA256,
			Commit: src.Commit,
			Path:   src.Path,
		})
	}
	return out
}
