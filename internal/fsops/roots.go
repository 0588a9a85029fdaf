// Package fsops reads catalog data and writes exports relative to the sandbox roots.
package fsops

import (
	"os"
	"sync"

	"github.com/petasbytes/recagent/internal/safety"
)

var (
	rootsMu      sync.Mutex
	rootsSet     bool
	absReadRoot  string
	absWriteRoot string
	initRootsErr error
)

// Configure resolves and caches the roots. Empty values fall back to
// AGT_READ_ROOT / AGT_WRITE_ROOT, then to the working directory.
func Configure(read, write string) error {
	if read == "" {
		read = os.Getenv("AGT_READ_ROOT")
	}
	if write == "" {
		write = os.Getenv("AGT_WRITE_ROOT")
	}
	rootsMu.Lock()
	defer rootsMu.Unlock()
	absReadRoot, absWriteRoot, initRootsErr = safety.InitSandboxRoot(read, write)
	rootsSet = true
	return initRootsErr
}

// getRoots returns the cached roots, configuring them from the environment on first use.
func getRoots() (string, string, error) {
	rootsMu.Lock()
	set := rootsSet
	rootsMu.Unlock()
	if !set {
		_ = Configure("", "")
	}
	rootsMu.Lock()
	defer rootsMu.Unlock()
	return absReadRoot, absWriteRoot, initRootsErr
}

// Roots returns the resolved read and write roots.
func Roots() (read, write string, err error) {
	return getRoots()
}
