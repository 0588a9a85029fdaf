package tools_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/petasbytes/recagent/internal/fsops"
)

var sharedDir string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "tools-tests-")
	if err != nil {
		panic(err)
	}
	if err := fsops.Configure(dir, dir); err != nil {
		panic(err)
	}
	sharedDir, _, _ = fsops.Roots()

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

// Helper to create per-test relative paths
func rel(t *testing.T, elems ...string) string {
	return filepath.Join(append([]string{t.Name()}, elems...)...)
}

// writeData places content at a per-test relative path under the data root.
func writeData(t *testing.T, relPath, content string) {
	t.Helper()
	p := filepath.Join(sharedDir, relPath)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("prepare: %v", err)
	}
}
