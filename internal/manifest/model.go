package manifest

// Manifest is the unified, format-agnostic representation of an application
// manifest: the app identity and sandbox declarations, plus the ordered list
// of buildable modules.
type Manifest struct {
	App     *App
	Modules []*Module
}

// App describes the final application: its identity, the runtime/SDK pair it
// is assembled against, the command the sandbox launcher runs, and the
// capability declarations for both build time and launch time.
type App struct {
	ID             string
	Runtime        string
	RuntimeVersion string
	SDK            string
	Command        string

	// FinishArgs are the launch-time capability tokens, in flatpak-style
	// `--socket=wayland` form. Declaration order is significant for
	// conflict detection.
	FinishArgs []string

	BuildOptions *BuildOptions
}

// BuildOptions holds capability and environment overrides that apply only
// while modules are being built, never at application launch.
type BuildOptions struct {
	// BuildArgs are capability tokens granted to every build, e.g.
	// `--share=network` to open the network during source-less builds.
	BuildArgs []string
	// TestArgs are extra capability tokens granted only while a module's
	// test suite runs.
	TestArgs []string
	// Env is applied on top of any environment tokens from BuildArgs.
	Env map[string]string
	// AppendPath lists directories appended to the executable search path
	// inside the build environment.
	AppendPath []string
}

// Module is one buildable unit in the dependency graph. It is immutable once
// parsed; the scheduler consumes it exactly once.
type Module struct {
	Name        string
	BuildSystem string

	// Options are the recognized, typed configuration knobs for the
	// module's build system. Unrecognized keys are rejected by the
	// build-system adapter, not silently passed through.
	Options map[string]string
	// ConfigOpts is the free-form escape hatch: options appended verbatim
	// to the configure invocation.
	ConfigOpts []string
	// BuildCommands is only meaningful for the `simple` build system.
	BuildCommands []string

	RunTests bool
	// Cleanup globs prune the module's install tree before it is merged
	// into the artifact image. A leading slash anchors the pattern at the
	// install root; otherwise it matches basenames anywhere.
	Cleanup []string

	// DependsOn names the modules that must be installed before this one
	// may start fetching. When no module in the manifest declares explicit
	// dependencies, list order is treated as a sequential chain.
	DependsOn []string

	Sources []*Source
}

// SourceType discriminates the Source variants.
type SourceType string

const (
	SourceArchive SourceType = "archive"
	SourceGit     SourceType = "git"
	SourceDir     SourceType = "dir"
)

// Source describes one input tree for a module. Exactly one variant applies
// depending on Type: archives carry a URL plus a mandatory content digest,
// git sources carry a URL plus a mandatory commit pin, and dir sources name a
// local path that is copied in as-is.
type Source struct {
	Type   SourceType
	URL    string
	SHA256 string
	Commit string
	Path   string
}
