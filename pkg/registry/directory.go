package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/josephblackelite/spur-protocol/pkg/loader"
)

// NewDirectory loads every *.json, *.yaml and *.yml adapter contract in dir
// into an in-memory registry. Each file is schema-validated; two files
// declaring the same adapter id are an error.
func NewDirectory(dir string) (*InMemory, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("registry: read adapter dir: %w", err)
	}

	r := NewInMemory()
	seen := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
		default:
			continue
		}

		path := filepath.Join(dir, e.Name())
		a, err := loader.LoadAdapter(path)
		if err != nil {
			return nil, fmt.Errorf("registry: %w", err)
		}
		if prev, dup := seen[a.AdapterID]; dup {
			return nil, fmt.Errorf("registry: adapter %q declared in both %s and %s", a.AdapterID, prev, path)
		}
		seen[a.AdapterID] = path
		r.adapters[a.AdapterID] = a
	}
	return r, nil
}
