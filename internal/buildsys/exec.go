package buildsys

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/vk/buildgridgo/internal/ctxlog"
	"github.com/vk/buildgridgo/internal/workspace"
)

// BuildError reports a failed command from one of a module's build phases.
type BuildError struct {
	Module   string
	Phase    string
	Argv     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *BuildError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("module %q %s failed (exit %d): %s", e.Module, e.Phase, e.ExitCode, strings.TrimSpace(e.Stderr))
	}
	return fmt.Sprintf("module %q %s failed: %v", e.Module, e.Phase, e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// Runner executes adapter-produced command sequences inside a workspace.
// The environment passed to every subprocess is exactly the build-time grant
// environment; nothing from the orchestrator's own environment leaks in
// beyond an explicit allow-list.
type Runner struct {
	// Env is the base environment applied to every command, as KEY=VALUE.
	Env []string
}

// NewRunner builds a Runner from the resolved build-time environment map and
// the ordered search-path extensions.
func NewRunner(env map[string]string, appendPath []string) *Runner {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var kv []string
	for _, k := range keys {
		kv = append(kv, k+"="+env[k])
	}

	path := "/usr/bin:/bin"
	if p, ok := env["PATH"]; ok {
		path = p
	}
	if len(appendPath) > 0 {
		path = path + ":" + strings.Join(appendPath, ":")
	}
	if _, ok := env["PATH"]; !ok {
		kv = append(kv, "PATH="+path)
	} else {
		for i, entry := range kv {
			if strings.HasPrefix(entry, "PATH=") {
				kv[i] = "PATH=" + path
			}
		}
	}

	return &Runner{Env: kv}
}

// RunPhase executes one phase's commands in order, stopping at the first
// failure. ctx cancellation kills the in-flight subprocess.
func (r *Runner) RunPhase(ctx context.Context, module, phase string, ws *workspace.Workspace, cmds []Command) error {
	logger := ctxlog.FromContext(ctx)

	for _, cmd := range cmds {
		logger.Debug("Running build command.", "module", module, "phase", phase, "argv", cmd.Argv)

		proc := exec.CommandContext(ctx, cmd.Argv[0], cmd.Argv[1:]...)
		proc.Dir = cmd.Dir
		proc.Env = append(append([]string{}, r.Env...),
			"DESTDIR="+ws.InstallDir,
			"BUILDDIR="+ws.BuildDir,
		)

		var stderr bytes.Buffer
		proc.Stderr = &stderr
		proc.Stdout = &logWriter{logger: logger, module: module, phase: phase}

		if err := proc.Run(); err != nil {
			exitCode := -1
			if exitErr, ok := err.(*exec.ExitError); ok {
				exitCode = exitErr.ExitCode()
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return &BuildError{
				Module:   module,
				Phase:    phase,
				Argv:     cmd.Argv,
				ExitCode: exitCode,
				Stderr:   tail(stderr.String(), 2048),
				Err:      err,
			}
		}
	}
	return nil
}

// logWriter forwards subprocess stdout to the structured logger line by line.
type logWriter struct {
	logger interface {
		Debug(msg string, args ...any)
	}
	module string
	phase  string
	buf    bytes.Buffer
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line, keep it buffered for the next write.
			w.buf.WriteString(line)
			break
		}
		w.logger.Debug("build output", "module", w.module, "phase", w.phase, "line", strings.TrimRight(line, "\n"))
	}
	return len(p), nil
}

// tail returns at most n trailing bytes of s.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
