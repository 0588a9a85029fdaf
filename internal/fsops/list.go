package fsops

import (
	"os"
	"sort"
	"strings"

	"github.com/petasbytes/recagent/internal/safety"
)

// ListFiles lists non-recursive entries of a relative directory under the read root.
// Directories carry a trailing "/". When suffix is non-empty only files ending in it are kept.
// Names are sorted.
func ListFiles(relDir, suffix string) ([]string, error) {
	readRoot, _, err := getRoots()
	if err != nil {
		return nil, err
	}
	if relDir == "" {
		relDir = "."
	}
	absDir, err := safety.ValidateRelPath(readRoot, relDir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(absDir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		switch {
		case e.IsDir() && suffix == "":
			names = append(names, name+"/")
		case e.IsDir():
		case suffix == "" || strings.HasSuffix(name, suffix):
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
