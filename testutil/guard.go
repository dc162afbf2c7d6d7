// Package testutil holds the import-boundary assertions the architecture
// tests share: direct-import scans over a package directory and transitive
// scans through `go list -deps`.
package testutil

import (
	"go/parser"
	"go/token"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// modulePath anchors the predicates so stdlib internal packages
// (crypto/internal/..., internal/abi, ...) never match.
const modulePath = "recordcore"

// InternalImportForbidden matches this module's internal tree. Public
// packages under pkg/ use it to stay importable without internal/.
func InternalImportForbidden(path string) bool {
	return hasPrefix(path, modulePath+"/internal")
}

// InfraImportForbidden matches the infra driver packages. Packages outside
// the facades use it to stay on the facade interfaces.
func InfraImportForbidden(path string) bool {
	return hasPrefix(path, modulePath+"/internal/infra")
}

func hasPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// AssertNoDirectImports parses every non-test .go file in dir and fails the
// test when an import path matches the forbidden predicate. Build tags are
// not honoured.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	violations, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan %s: %v", dir, err)
	}
	failOnViolations(t, "direct import", reason, violations)
}

// AssertNoTransitiveDependency shells out to `go list -deps` with pattern
// (e.g. "." or "./...") and fails the test when any resolved dependency path
// matches the forbidden predicate.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	violations, out, err := transitiveViolations(pattern, forbidden)
	if err != nil {
		t.Fatalf("go list failed: %v\n%s", err, string(out))
	}
	failOnViolations(t, "transitive dependency", reason, violations)
}

// goListDeps is a seam for tests; production callers always shell out.
var goListDeps = func(pattern string) ([]byte, error) {
	cmd := exec.Command("go", "list", "-deps", pattern)
	return cmd.CombinedOutput()
}

func transitiveViolations(pattern string, forbidden func(path string) bool) ([]string, []byte, error) {
	out, err := goListDeps(pattern)
	if err != nil {
		return nil, out, err
	}
	var violations []string
	for _, line := range strings.Split(string(out), "\n") {
		path := strings.TrimSpace(line)
		if path != "" && forbidden(path) {
			violations = append(violations, path)
		}
	}
	return violations, out, nil
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var violations []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".go") || strings.HasSuffix(name, "_test.go") {
			continue
		}
		parsed, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range parsed.Imports {
			path := strings.Trim(imp.Path.Value, `"`)
			if forbidden(path) {
				violations = append(violations, path+" (in "+name+")")
			}
		}
	}
	return violations, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failOnViolations(t fatalLogger, kind, reason string, violations []string) {
	if len(violations) > 0 {
		t.Fatalf("forbidden %s (%s):\n%s", kind, reason, strings.Join(violations, "\n"))
	}
}
