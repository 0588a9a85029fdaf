package fsops

import (
	"os"
	"path/filepath"

	"github.com/petasbytes/recagent/internal/safety"
)

// WriteFile writes data under the write root, creating parent directories.
// It returns the absolute path written.
func WriteFile(relPath string, data []byte) (string, error) {
	_, writeRoot, err := getRoots()
	if err != nil {
		return "", err
	}
	absPath, err := safety.ValidateWritePath(writeRoot, relPath)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return "", err
	}
	return absPath, os.WriteFile(absPath, data, 0o644)
}
