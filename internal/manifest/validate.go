package manifest

import (
	"fmt"
)

// Validate checks the structural invariants of a parsed manifest that are
// independent of the dependency graph: required app fields, per-module
// required fields, and the reproducibility invariants of source descriptors.
func (m *Manifest) Validate() error {
	if m.App == nil {
		return fmt.Errorf("manifest has no app block")
	}
	if m.App.ID == "" {
		return fmt.Errorf("app id must not be empty")
	}
	if m.App.Command == "" {
		return fmt.Errorf("app %q declares no command", m.App.ID)
	}
	if m.App.Runtime == "" || m.App.SDK == "" {
		return fmt.Errorf("app %q must declare both a runtime and an sdk", m.App.ID)
	}

	if len(m.Modules) == 0 {
		return fmt.Errorf("manifest declares no modules")
	}

	for _, mod := range m.Modules {
		if err := mod.validate(); err != nil {
			return err
		}
	}
	return nil
}

func (mod *Module) validate() error {
	if mod.Name == "" {
		return fmt.Errorf("module with empty name")
	}
	if mod.BuildSystem == "" {
		return fmt.Errorf("module %q declares no buildsystem", mod.Name)
	}
	if len(mod.Sources) == 0 {
		return fmt.Errorf("module %q declares no sources", mod.Name)
	}
	for _, src := range mod.Sources {
		if err := src.validate(mod.Name); err != nil {
			return err
		}
	}
	return nil
}

// validate enforces the reproducibility contract: archives always carry a
// content digest and git sources always carry a commit pin. A mutable branch
// or tag in place of a pin would make two runs of the same manifest
// non-identical, so it is rejected at parse time.
func (s *Source) validate(module string) error {
	switch s.Type {
	case SourceArchive:
		if s.URL == "" {
			return fmt.Errorf("module %q: archive source has no url", module)
		}
		if s.SHA256 == "" {
			return fmt.Errorf("module %q: archive source %s has no sha256 digest", module, s.URL)
		}
		if len(s.SHA256) != 64 {
			return fmt.Errorf("module %q: archive source %s digest is not a sha256 hex string", module, s.URL)
		}
	case SourceGit:
		if s.URL == "" {
			return fmt.Errorf("module %q: git source has no url", module)
		}
		if s.Commit == "" {
			return fmt.Errorf("module %q: git source %s has no commit pin", module, s.URL)
		}
	case SourceDir:
		if s.Path == "" {
			return fmt.Errorf("module %q: dir source has no path", module)
		}
	default:
		return fmt.Errorf("module %q: unknown source type %q", module, s.Type)
	}
	return nil
}
