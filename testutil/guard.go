// Package testutil holds test helpers that keep package boundaries honest.
package testutil

import (
	"fmt"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// PlanningCoreForbidden matches imports the planning core must not take on:
// output stores, template readers, writers and the SDKs behind them.
func PlanningCoreForbidden(path string) bool {
	switch path {
	case "os", "os/exec", "net/http":
		return true
	}
	for _, seg := range []string{"/internal/blob", "/internal/infra/", "/internal/template", "/internal/adapters/", "/internal/report"} {
		if strings.Contains(path, seg) {
			return true
		}
	}
	return strings.HasPrefix(path, "github.com/aws/") || strings.HasPrefix(path, "github.com/xuri/excelize")
}

// AssertNoDirectImports parses the non-test .go files directly in dir and
// fails if any import satisfies forbidden. Subdirectories and build tags are
// ignored.
func AssertNoDirectImports(t testing.TB, dir string, forbidden func(importPath string) bool, reason string) {
	t.Helper()
	viols, err := directImportViolations(dir, forbidden)
	if err != nil {
		t.Fatalf("scan imports in %s: %v", dir, err)
	}
	failIfDirectViolations(t, reason, viols)
}

// AssertNoTransitiveDependency loads pattern with its full dependency graph
// and fails if any package in it satisfies forbidden.
func AssertNoTransitiveDependency(t testing.TB, pattern string, forbidden func(path string) bool, reason string) {
	t.Helper()
	deps, err := loadDeps(pattern)
	if err != nil {
		t.Fatalf("load %s: %v", pattern, err)
	}
	failIfTransitiveViolations(t, reason, transitiveViolations(deps, forbidden))
}

var loadDeps = func(pattern string) ([]string, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps}
	roots, err := packages.Load(cfg, pattern)
	if err != nil {
		return nil, err
	}
	seen := map[string]struct{}{}
	packages.Visit(roots, func(p *packages.Package) bool {
		seen[p.PkgPath] = struct{}{}
		return true
	}, nil)
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func transitiveViolations(deps []string, forbidden func(path string) bool) []string {
	var viols []string
	for _, dep := range deps {
		if dep = strings.TrimSpace(dep); dep != "" && forbidden(dep) {
			viols = append(viols, dep)
		}
	}
	return viols
}

func directImportViolations(dir string, forbidden func(importPath string) bool) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	fset := token.NewFileSet()
	var viols []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".go" || strings.HasSuffix(name, "_test.go") {
			continue
		}
		f, err := parser.ParseFile(fset, filepath.Join(dir, name), nil, parser.ImportsOnly)
		if err != nil {
			return nil, err
		}
		for _, imp := range f.Imports {
			path, err := strconv.Unquote(imp.Path.Value)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			if forbidden(path) {
				viols = append(viols, fmt.Sprintf("%s (in %s)", path, name))
			}
		}
	}
	return viols, nil
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfTransitiveViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden transitive dependency detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}

func failIfDirectViolations(t fatalLogger, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden direct imports detected (%s):\n%s", reason, strings.Join(viols, "\n"))
	}
}
