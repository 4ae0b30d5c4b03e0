// Package testutil holds helpers that keep package dependency boundaries
// honest from inside each package's own tests.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// ImportRule reports whether an import path is forbidden.
type ImportRule func(importPath string) bool

// Internal matches any path below an internal/ directory.
func Internal(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasSuffix(path, "/internal")
}

// ThirdParty matches module paths outside the standard library, excluding
// packages of this module.
func ThirdParty(path string) bool {
	first, _, _ := strings.Cut(path, "/")
	return strings.Contains(first, ".")
}

// Any combines rules.
func Any(rules ...ImportRule) ImportRule {
	return func(path string) bool {
		for _, r := range rules {
			if r(path) {
				return true
			}
		}
		return false
	}
}

// AssertDirectImports fails when a non-test Go file in dir imports a path
// matched by forbidden.
func AssertDirectImports(t testing.TB, dir string, forbidden ImportRule, reason string) {
	t.Helper()
	viols, err := directImports(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	report(t, "direct import", reason, viols)
}

// AssertTransitiveImports runs `go list -deps` for pattern and fails when any
// dependency is matched by forbidden.
func AssertTransitiveImports(t testing.TB, pattern string, forbidden ImportRule, reason string) {
	t.Helper()
	viols, out, err := transitiveImports(pattern, forbidden)
	if err != nil {
		t.Fatalf("go list -deps %s: %v\n%s", pattern, err, out)
	}
	report(t, "transitive dependency", reason, viols)
}

func transitiveImports(pattern string, forbidden ImportRule) ([]string, []byte, error) {
	out, err := goListDeps(pattern)
	if err != nil {
		return nil, out, err
	}
	var viols []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" && forbidden(line) {
			viols = append(viols, line)
		}
	}
	return viols, out, nil
}

var goListDeps = func(pattern string) ([]byte, error) {
	return exec.Command("go", "list", "-deps", pattern).CombinedOutput()
}

func directImports(dir string, forbidden ImportRule) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range file.Imports {
			if path := strings.Trim(imp.Path.Value, `"`); forbidden(path) {
				viols = append(viols, fmt.Sprintf("%s (in %s)", path, name))
			}
		}
	}
	sort.Strings(viols)
	return viols, nil
}

type fatalf interface {
	Fatalf(format string, args ...any)
}

func report(t fatalf, kind, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden %s (%s):\n%s", kind, reason, strings.Join(viols, "\n"))
	}
}
