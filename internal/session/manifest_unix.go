//go:build !windows

package session

import (
	"fmt"

	"github.com/google/renameio/v2"
)

func writeFileAtomic(path string, data []byte) error {
	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending manifest: %w", err)
	}
	defer func() {
		if err := pending.Cleanup(); err != nil {
			log.Debug("cleanup pending manifest", "error", err)
		}
	}()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}
