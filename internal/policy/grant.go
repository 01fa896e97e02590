// Package policy resolves the manifest's capability declarations into the
// grant sets an external sandbox launcher consumes: one set for build-time
// execution and a disjoint set for the final application's launch.
package policy

import (
	"fmt"
	"sort"
	"strings"
)

// Kind classifies a single capability token.
type Kind string

const (
	// KindSocket exposes a named socket (wayland, pulseaudio, ...).
	KindSocket Kind = "socket"
	// KindDevice exposes a device node class (dri, ...).
	KindDevice Kind = "device"
	// KindShare shares a namespace with the host (ipc, network).
	KindShare Kind = "share"
	// KindFilesystem exposes a filesystem subtree with an access mode.
	KindFilesystem Kind = "filesystem"
	// KindEnv sets an environment variable inside the sandbox.
	KindEnv Kind = "env"
	// KindPath appends a directory to the executable search path. Only
	// meaningful in the build-time set.
	KindPath Kind = "path"
)

// Filesystem access modes.
const (
	ModeRead   = "ro"
	ModeWrite  = "rw"
	ModeCreate = "create"
)

// Grant is one capability token. Its identity is (Kind, Name); Mode and
// Value are the scalar payload for filesystem and env tokens respectively.
type Grant struct {
	Kind  Kind
	Name  string
	Mode  string
	Value string
}

// key is the set-membership identity of a grant. Two grants with the same
// key are the same token; their scalar payload may still differ.
func (g Grant) key() string {
	return string(g.Kind) + ":" + g.Name
}

// Arg renders the grant back into its declaration form.
func (g Grant) Arg() string {
	switch g.Kind {
	case KindFilesystem:
		if g.Mode != "" && g.Mode != ModeWrite {
			return fmt.Sprintf("--filesystem=%s:%s", g.Name, g.Mode)
		}
		return fmt.Sprintf("--filesystem=%s", g.Name)
	case KindEnv:
		return fmt.Sprintf("--env=%s=%s", g.Name, g.Value)
	case KindPath:
		return fmt.Sprintf("--append-path=%s", g.Name)
	default:
		return fmt.Sprintf("--%s=%s", g.Kind, g.Name)
	}
}

// ParseArg parses one flatpak-style capability token, e.g. `--socket=wayland`,
// `--filesystem=xdg-documents:ro` or `--env=RUST_LOG=info`.
func ParseArg(arg string) (Grant, error) {
	body, ok := strings.CutPrefix(arg, "--")
	if !ok {
		return Grant{}, fmt.Errorf("malformed capability token %q: missing -- prefix", arg)
	}
	kindStr, rest, ok := strings.Cut(body, "=")
	if !ok || rest == "" {
		return Grant{}, fmt.Errorf("malformed capability token %q: missing value", arg)
	}

	switch Kind(kindStr) {
	case KindSocket, KindDevice, KindShare:
		return Grant{Kind: Kind(kindStr), Name: rest}, nil
	case KindFilesystem:
		path, mode, hasMode := strings.Cut(rest, ":")
		if !hasMode {
			mode = ModeWrite
		}
		switch mode {
		case ModeRead, ModeWrite, ModeCreate:
		default:
			return Grant{}, fmt.Errorf("capability token %q: unknown filesystem mode %q", arg, mode)
		}
		return Grant{Kind: KindFilesystem, Name: path, Mode: mode}, nil
	case KindEnv:
		name, value, hasValue := strings.Cut(rest, "=")
		if !hasValue || name == "" {
			return Grant{}, fmt.Errorf("capability token %q: env tokens need KEY=VALUE", arg)
		}
		return Grant{Kind: KindEnv, Name: name, Value: value}, nil
	default:
		return Grant{}, fmt.Errorf("capability token %q: unknown kind %q", arg, kindStr)
	}
}

// ConflictingGrantError reports a scalar-valued grant key declared twice with
// different values in the same phase. The manifest is ambiguous and the
// ambiguity must be surfaced rather than silently resolved.
type ConflictingGrantError struct {
	Key    string
	First  string
	Second string
}

func (e *ConflictingGrantError) Error() string {
	return fmt.Sprintf("conflicting grant for env %q: declared as %q and %q", e.Key, e.First, e.Second)
}

// GrantSet is a set of capability tokens. Union is idempotent: adding a token
// that is already present, with an identical payload, is a no-op.
type GrantSet struct {
	grants map[string]Grant
}

// NewGrantSet creates an empty GrantSet.
func NewGrantSet() *GrantSet {
	return &GrantSet{grants: make(map[string]Grant)}
}

// Add inserts a grant into the set. Redeclaring an env key with a different
// value fails with ConflictingGrantError; redeclaring a filesystem path with
// a different mode is a scalar override and the last declaration wins.
func (s *GrantSet) Add(g Grant) error {
	existing, ok := s.grants[g.key()]
	if !ok || existing == g {
		s.grants[g.key()] = g
		return nil
	}
	if g.Kind == KindEnv {
		return &ConflictingGrantError{Key: g.Name, First: existing.Value, Second: g.Value}
	}
	// Non-env payload difference (filesystem mode): last declared wins.
	s.grants[g.key()] = g
	return nil
}

// Override inserts a grant unconditionally. It is the strict-override path
// used when a build-time declaration supersedes a runtime-scoped one.
func (s *GrantSet) Override(g Grant) {
	s.grants[g.key()] = g
}

// Contains reports whether a token with the given kind and name is present.
func (s *GrantSet) Contains(kind Kind, name string) bool {
	_, ok := s.grants[Grant{Kind: kind, Name: name}.key()]
	return ok
}

// Len returns the number of tokens in the set.
func (s *GrantSet) Len() int {
	return len(s.grants)
}

// List returns the grants sorted by identity, for deterministic output.
func (s *GrantSet) List() []Grant {
	out := make([]Grant, 0, len(s.grants))
	for _, g := range s.grants {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

// Args renders the set back into declaration tokens, sorted.
func (s *GrantSet) Args() []string {
	grants := s.List()
	out := make([]string, 0, len(grants))
	for _, g := range grants {
		out = append(out, g.Arg())
	}
	return out
}

// Env collects the env tokens of the set into a map.
func (s *GrantSet) Env() map[string]string {
	out := make(map[string]string)
	for _, g := range s.grants {
		if g.Kind == KindEnv {
			out[g.Name] = g.Value
		}
	}
	return out
}

// PathDirs collects the path-append tokens of the set, sorted.
func (s *GrantSet) PathDirs() []string {
	var out []string
	for _, g := range s.grants {
		if g.Kind == KindPath {
			out = append(out, g.Name)
		}
	}
	sort.Strings(out)
	return out
}
