package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Load reads a runtime manifest from the provided path, applies defaults and
// resolves relative paths against the manifest's directory.
func Load(path string) (*Manifest, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve manifest path: %w", err)
	}

	f, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open manifest: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	var doc Manifest
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%s: decode: %w", absPath, err)
	}

	manifestDir := filepath.Dir(absPath)
	doc.Runtime.Executable = resolvePath(manifestDir, os.ExpandEnv(doc.Runtime.Executable))
	doc.Runtime.Home = resolvePath(manifestDir, os.ExpandEnv(doc.Runtime.Home))
	if len(doc.Runtime.Env) > 0 {
		expanded := make(map[string]string, len(doc.Runtime.Env))
		for k, v := range doc.Runtime.Env {
			expanded[k] = os.ExpandEnv(v)
		}
		doc.Runtime.Env = expanded
	}

	if doc.Prepare != nil {
		for i, dir := range doc.Prepare.Dirs {
			doc.Prepare.Dirs[i] = resolvePath(manifestDir, os.ExpandEnv(dir))
		}
		for i, link := range doc.Prepare.Links {
			doc.Prepare.Links[i].Name = resolvePath(manifestDir, os.ExpandEnv(link.Name))
			doc.Prepare.Links[i].Target = os.ExpandEnv(link.Target)
		}
	}

	doc.applyDefaults()
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	return &doc, nil
}

func (m *Manifest) applyDefaults() {
	if m.Runtime.Name == "" {
		m.Runtime.Name = defaultRuntimeName
	}
	if !m.Runtime.ReadTimeout.IsSet() {
		m.Runtime.ReadTimeout.Duration = DefaultReadTimeout
	}
	if m.Runtime.ReadBufferSize == 0 {
		m.Runtime.ReadBufferSize = DefaultReadBufferSize
	}
}

func resolvePath(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Clean(filepath.Join(base, path))
}
