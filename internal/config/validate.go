package config

import (
	"errors"
	"fmt"
)

// Validate checks a manifest for structural problems after defaults have
// been applied.
func (m *Manifest) Validate() error {
	if m.Runtime.Executable == "" {
		return errors.New("runtime.executable is required")
	}
	if m.Runtime.Home == "" {
		return errors.New("runtime.home is required")
	}
	if m.Runtime.Boot == "" {
		return errors.New("runtime.boot is required")
	}
	if m.Runtime.ReadTimeout.Duration <= 0 {
		return fmt.Errorf("runtime.readTimeout must be positive, got %s", m.Runtime.ReadTimeout.Duration)
	}
	if m.Runtime.ReadBufferSize <= 0 {
		return fmt.Errorf("runtime.readBufferSize must be positive, got %d", m.Runtime.ReadBufferSize)
	}
	for k := range m.Runtime.Env {
		if k == "" {
			return errors.New("runtime.env contains an empty variable name")
		}
	}

	if m.Prepare != nil {
		for i, dir := range m.Prepare.Dirs {
			if dir == "" {
				return fmt.Errorf("prepare.dirs[%d] is empty", i)
			}
		}
		for i, link := range m.Prepare.Links {
			if link.Name == "" {
				return fmt.Errorf("prepare.links[%d]: name is required", i)
			}
			if link.Target == "" {
				return fmt.Errorf("prepare.links[%d]: target is required", i)
			}
		}
	}
	return nil
}
