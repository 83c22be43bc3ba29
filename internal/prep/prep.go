// Package prep materialises the runtime's filesystem tree before launch:
// the home directory, the ERTS bin directory and the symlinks that map
// packaged shared objects onto the binary names the runtime expects.
package prep

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/beamapp/beamvisor/internal/config"
)

// Apply creates the directories and replaces the symlinks described by the
// spec. It is idempotent: running it against an already prepared tree yields
// the same tree. A nil spec is a no-op.
func Apply(spec *config.PrepareSpec) error {
	if spec == nil {
		return nil
	}

	for _, dir := range spec.Dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	for _, link := range spec.Links {
		if err := replaceLink(link); err != nil {
			return err
		}
	}
	return nil
}

// replaceLink installs target under name, removing whatever occupied the
// name before. Symlinks are replaced rather than updated so a re-run always
// points at the current target.
func replaceLink(link config.Link) error {
	if err := os.MkdirAll(filepath.Dir(link.Name), 0o755); err != nil {
		return fmt.Errorf("create link directory for %s: %w", link.Name, err)
	}
	if err := os.Remove(link.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove stale link %s: %w", link.Name, err)
	}
	if err := os.Symlink(link.Target, link.Name); err != nil {
		return fmt.Errorf("link %s -> %s: %w", link.Name, link.Target, err)
	}
	return nil
}
