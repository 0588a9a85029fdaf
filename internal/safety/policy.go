package safety

import (
	"path"
	"strings"
)

// deniedDirs are never read or written.
var deniedDirs = []string{".git", ".agent"}

// deniedWriteNames are protected basenames at any depth.
var deniedWriteNames = map[string]bool{
	"go.mod": true,
	"go.sum": true,
	".env":   true,
}

// ValidateWritePath returns the absolute form of relPath under absRoot for writing.
// On top of the read checks it protects module files and .env at any depth.
func ValidateWritePath(absRoot, relPath string) (string, error) {
	abs, rel, err := resolveInside(absRoot, relPath)
	if err != nil {
		return "", err
	}
	if underAny(rel, deniedDirs) || deniedWriteNames[path.Base(rel)] {
		return "", ToolError{Code: "ERR_DENIED_WRITE", Message: "writes to this path are not allowed"}
	}
	return abs, nil
}

func underAny(rel string, dirs []string) bool {
	for _, d := range dirs {
		if rel == d || strings.HasPrefix(rel, d+"/") {
			return true
		}
	}
	return false
}
