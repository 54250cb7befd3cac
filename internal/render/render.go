// Package render turns peer records into client configuration bundles and
// the exported server config projection.
//
// Rendering is deterministic for identical inputs except for the generation
// timestamp comment at the top of each bundle. Bundles embed one peer's
// secrets and nothing else.
package render

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteArtifact writes a rendered bundle into dir under the given file name,
// readable by the owning operator only. The write goes through a temp file
// and a rename so a crash cannot leave a partial bundle behind.
func WriteArtifact(dir, name string, data []byte) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", fmt.Errorf("create artifact temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("restrict artifact permissions: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close artifact: %w", err)
	}

	path := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("replace artifact: %w", err)
	}
	return path, nil
}
