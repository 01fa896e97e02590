package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vk/buildgridgo/internal/policy"
)

// writeMetadata records the application identity and the resolved runtime
// grant set next to the image, in the keyfile form an external sandbox
// launcher consumes. Build-time grants are deliberately absent: they expired
// with the build.
func (a *App) writeMetadata(res *policy.Resolution) error {
	appDecl := a.manifest.App

	runtime := appDecl.Runtime
	if appDecl.RuntimeVersion != "" {
		runtime = runtime + "/" + appDecl.RuntimeVersion
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[Application]\n")
	fmt.Fprintf(&b, "name=%s\n", appDecl.ID)
	fmt.Fprintf(&b, "runtime=%s\n", runtime)
	fmt.Fprintf(&b, "sdk=%s\n", appDecl.SDK)
	fmt.Fprintf(&b, "command=%s\n", appDecl.Command)
	fmt.Fprintf(&b, "\n[Context]\n")
	for _, arg := range res.Runtime.Args() {
		fmt.Fprintf(&b, "%s\n", arg)
	}

	path := filepath.Join(a.config.OutputDir, "metadata")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return err
	}
	a.logger.Debug("Metadata written.", "path", path)
	return nil
}
