package fsops

import (
	"os"

	"github.com/petasbytes/recagent/internal/safety"
)

// maxReadBytes caps a single data file read.
const maxReadBytes = 8 << 20

// ReadFile reads a file addressed by a relative path under the read root.
// Policy violations come back as safety.ToolError.
func ReadFile(relPath string) ([]byte, error) {
	readRoot, _, err := getRoots()
	if err != nil {
		return nil, err
	}
	absPath, err := safety.ValidateRelPath(readRoot, relPath)
	if err != nil {
		return nil, err
	}

	fi, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, safety.ToolError{Code: "ERR_NOT_A_FILE", Message: "path is a directory"}
	}
	if fi.Size() > maxReadBytes {
		return nil, safety.ToolError{Code: "ERR_FILE_TOO_LARGE", Message: "file exceeds the read limit"}
	}
	return os.ReadFile(absPath)
}
