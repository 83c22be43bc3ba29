package config

import (
	"fmt"
	"sort"
	"time"
)

const (
	// DefaultReadTimeout bounds a single output poll when the manifest does
	// not specify one.
	DefaultReadTimeout = 100 * time.Millisecond

	// DefaultReadBufferSize caps a single output read when the manifest
	// does not specify one.
	DefaultReadBufferSize = 4096

	defaultRuntimeName = "beam"
)

// Duration wraps time.Duration for YAML unmarshalling.
type Duration struct {
	time.Duration
	explicit bool
}

// UnmarshalText parses a textual duration, accepting empty strings.
func (d *Duration) UnmarshalText(text []byte) error {
	d.explicit = true
	if len(text) == 0 {
		d.Duration = 0
		return nil
	}
	dur, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", string(text), err)
	}
	d.Duration = dur
	return nil
}

// MarshalText renders the duration using time.Duration formatting.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// IsSet reports whether the duration was explicitly provided or non-zero.
func (d Duration) IsSet() bool {
	return d.explicit || d.Duration != 0
}

// Manifest mirrors the runtime.yaml document structure.
type Manifest struct {
	Runtime RuntimeSpec  `yaml:"runtime"`
	Prepare *PrepareSpec `yaml:"prepare"`
}

// RuntimeSpec describes the supervised runtime and how to launch it.
type RuntimeSpec struct {
	// Name labels log records and metrics for this runtime.
	Name string `yaml:"name"`

	// Executable is the runtime binary. Relative paths are resolved
	// against the manifest's directory.
	Executable string `yaml:"executable"`

	// Home becomes the runtime's HOME directory. Relative paths are
	// resolved against the manifest's directory.
	Home string `yaml:"home"`

	// Boot is the expression handed to the runtime's -eval flag.
	Boot string `yaml:"boot"`

	// Env lists additional environment variables for the runtime. The
	// launch contract's HOME and TERM additions always win on conflict.
	Env map[string]string `yaml:"env"`

	// ReadTimeout bounds how long a single output poll waits for data.
	ReadTimeout Duration `yaml:"readTimeout"`

	// ReadBufferSize caps how many bytes a single output read returns.
	ReadBufferSize int `yaml:"readBufferSize"`
}

// EnvList renders the extra environment in deterministic KEY=VALUE form.
func (r *RuntimeSpec) EnvList() []string {
	if len(r.Env) == 0 {
		return nil
	}
	list := make([]string, 0, len(r.Env))
	for k, v := range r.Env {
		list = append(list, k+"="+v)
	}
	sort.Strings(list)
	return list
}

// PrepareSpec describes the filesystem tree to materialise before launch.
type PrepareSpec struct {
	// Dirs are directories created (with parents) before the links.
	Dirs []string `yaml:"dirs"`

	// Links are symlinks replaced on every run.
	Links []Link `yaml:"links"`
}

// Link is a single symlink in the prepared tree. Name is resolved against
// the manifest's directory; Target is used verbatim so relative symlinks
// stay relative.
type Link struct {
	Target string `yaml:"target"`
	Name   string `yaml:"name"`
}
