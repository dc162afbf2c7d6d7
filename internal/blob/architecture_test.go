package blob

import (
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// TestOnlyFacadeImportsInfraDrivers keeps every other package on the
// blob.Store interface: the infra driver packages may be imported only by
// this facade and by each other.
func TestOnlyFacadeImportsInfraDrivers(t *testing.T) {
	const (
		infraPrefix  = "recordcore/internal/infra/blob"
		facadePrefix = "recordcore/internal/blob"
	)

	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports, Tests: true}
	pkgs, err := packages.Load(cfg, "recordcore/...")
	if err != nil {
		t.Fatalf("load packages: %v", err)
	}

	var violations []string
	for _, pkg := range pkgs {
		if hasPathPrefix(pkg.PkgPath, facadePrefix) || hasPathPrefix(pkg.PkgPath, infraPrefix) {
			continue
		}
		for importPath := range pkg.Imports {
			if hasPathPrefix(importPath, infraPrefix) {
				violations = append(violations, pkg.PkgPath+" imports "+importPath)
			}
		}
	}

	sort.Strings(violations)
	for _, v := range violations {
		t.Errorf("forbidden blob driver import: %s", v)
	}
}

func hasPathPrefix(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}
