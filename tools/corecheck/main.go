// Command corecheck enforces the import boundary of the pure core.
//
// The core packages (canonicalize, compiler, contracts, enforcement,
// explain) must stay free of I/O and of the collaborator packages built
// around them. corecheck parses the non-test sources of each core package
// and reports any import outside the allow list.
//
// Usage:
//
//	go run ./tools/corecheck [-root <module-root>]
package main

import (
	"flag"
	"fmt"
	"go/parser"
	"go/token"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const modulePath = "github.com/josephblackelite/spur-protocol"

// corePackages are the packages under pkg/ that form the core.
var corePackages = []string{"canonicalize", "compiler", "contracts", "enforcement", "explain"}

// allowedStdlib lists the standard library imports the core may use.
var allowedStdlib = map[string]bool{
	"bytes":         true,
	"crypto/sha256": true,
	"encoding/hex":  true,
	"encoding/json": true,
	"errors":        true,
	"fmt":           true,
	"slices":        true,
	"sort":          true,
	"strconv":       true,
	"strings":       true,
	"unicode/utf8":  true,
}

// Violation is one forbidden import.
type Violation struct {
	File   string
	Line   int
	Import string
}

func (v Violation) String() string {
	return fmt.Sprintf("%s:%d imports %q", v.File, v.Line, v.Import)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := flag.NewFlagSet("corecheck", flag.ContinueOnError)
	cmd.SetOutput(stderr)
	root := cmd.String("root", ".", "Module root directory")
	if err := cmd.Parse(args); err != nil {
		return 2
	}

	violations, err := check(*root)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "ERROR: %v\n", err)
		return 2
	}
	for _, v := range violations {
		_, _ = fmt.Fprintf(stdout, "CORE VIOLATION: %s\n", v)
	}
	if len(violations) > 0 {
		_, _ = fmt.Fprintf(stdout, "%d core import violation(s)\n", len(violations))
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "core import boundary OK")
	return 0
}

// check scans every core package under root/pkg.
func check(root string) ([]Violation, error) {
	var out []Violation
	fset := token.NewFileSet()
	for _, name := range corePackages {
		dir := filepath.Join(root, "pkg", name)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !strings.HasSuffix(e.Name(), ".go") || strings.HasSuffix(e.Name(), "_test.go") {
				continue
			}
			path := filepath.Join(dir, e.Name())
			f, err := parser.ParseFile(fset, path, nil, parser.ImportsOnly)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			for _, imp := range f.Imports {
				ip := strings.Trim(imp.Path.Value, `"`)
				if allowed(ip) {
					continue
				}
				rel, _ := filepath.Rel(root, path)
				out = append(out, Violation{
					File:   filepath.ToSlash(rel),
					Line:   fset.Position(imp.Pos()).Line,
					Import: ip,
				})
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].File != out[j].File {
			return out[i].File < out[j].File
		}
		return out[i].Line < out[j].Line
	})
	return out, nil
}

func allowed(importPath string) bool {
	if allowedStdlib[importPath] {
		return true
	}
	pkg, ok := strings.CutPrefix(importPath, modulePath+"/pkg/")
	if !ok {
		return false
	}
	for _, c := range corePackages {
		if pkg == c {
			return true
		}
	}
	return false
}
