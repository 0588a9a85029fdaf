// Package safety confines data-root file access used by catalog tools and transcript export.
package safety

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ToolError is a machine-readable error body surfaced to the model inside a tool message.
type ToolError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error returns compact single-line JSON so tool messages stay small.
func (e ToolError) Error() string {
	b, _ := json.Marshal(e)
	return string(b)
}

// InitSandboxRoot resolves absolute roots for reads and writes.
// An empty readRoot means the working directory; an empty writeRoot means readRoot.
func InitSandboxRoot(readRoot, writeRoot string) (absRead string, absWrite string, err error) {
	if readRoot == "" {
		if readRoot, err = os.Getwd(); err != nil {
			return "", "", fmt.Errorf("getwd: %w", err)
		}
	}
	if writeRoot == "" {
		writeRoot = readRoot
	}
	if absRead, err = resolveRoot(readRoot); err != nil {
		return "", "", fmt.Errorf("read root: %w", err)
	}
	if absWrite, err = resolveRoot(writeRoot); err != nil {
		return "", "", fmt.Errorf("write root: %w", err)
	}
	return absRead, absWrite, nil
}

// resolveRoot makes root absolute and resolves symlinks when it exists.
func resolveRoot(root string) (string, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	if r, err := filepath.EvalSymlinks(abs); err == nil {
		return r, nil
	}
	return abs, nil
}

// resolveInside joins relPath to absRoot and returns the symlink-resolved
// absolute path plus its slash-separated form relative to the root.
func resolveInside(absRoot, relPath string) (abs string, rel string, err error) {
	if filepath.IsAbs(relPath) {
		return "", "", ToolError{Code: "ERR_PATH_OUTSIDE_SANDBOX", Message: "absolute paths are not allowed"}
	}
	candidate := filepath.Join(absRoot, filepath.Clean(relPath))

	// Resolve the whole path if it exists, otherwise its parent, so a symlinked
	// ancestor cannot smuggle a new file outside the root.
	if resolved, err := filepath.EvalSymlinks(candidate); err == nil {
		candidate = resolved
	} else if parent, err := filepath.EvalSymlinks(filepath.Dir(candidate)); err == nil {
		candidate = filepath.Join(parent, filepath.Base(candidate))
	}

	r, err := filepath.Rel(absRoot, candidate)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) || filepath.IsAbs(r) {
		return "", "", ToolError{Code: "ERR_PATH_OUTSIDE_SANDBOX", Message: "requested path resolves outside the sandbox root"}
	}
	return candidate, filepath.ToSlash(r), nil
}

// ValidateRelPath returns the absolute form of relPath under absRoot for reading.
// Absolute inputs, traversal, symlink escapes and reads under .git/ or .agent/ are rejected.
func ValidateRelPath(absRoot, relPath string) (string, error) {
	abs, rel, err := resolveInside(absRoot, relPath)
	if err != nil {
		return "", err
	}
	if underAny(rel, deniedDirs) {
		return "", ToolError{Code: "ERR_DENIED_READ", Message: "reads under .git/ or .agent/ are not allowed"}
	}
	return abs, nil
}
