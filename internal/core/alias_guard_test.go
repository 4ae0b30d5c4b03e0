package core

import (
	"fmt"
	"go/ast"
	"go/token"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

func loadCorePackage(t *testing.T) *packages.Package {
	t.Helper()
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedSyntax | packages.NeedFiles}
	pkgs, err := packages.Load(cfg, "labbench/internal/core")
	if err != nil {
		t.Fatalf("load core package: %v", err)
	}
	for _, pkg := range pkgs {
		if len(pkg.Errors) > 0 {
			t.Fatalf("package load errors: %v", pkg.Errors)
		}
		if pkg.PkgPath == "labbench/internal/core" {
			return pkg
		}
	}
	t.Fatalf("core package not found")
	return nil
}

// TestAliasesOnlyReexportDomain keeps core from growing its own alias layer:
// the only permitted aliases re-export pkg/domain contracts.
func TestAliasesOnlyReexportDomain(t *testing.T) {
	pkg := loadCorePackage(t)
	var aliases []string

	for _, file := range pkg.Syntax {
		for _, decl := range file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.TYPE {
				continue
			}
			for _, spec := range gen.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok || !ts.Assign.IsValid() {
					continue
				}
				if sel, ok := ts.Type.(*ast.SelectorExpr); ok {
					if ident, ok := sel.X.(*ast.Ident); ok && ident.Name == "domain" {
						continue
					}
				}
				pos := pkg.Fset.Position(ts.Pos())
				aliases = append(aliases, fmt.Sprintf("%s:%d type %s", filepath.Base(pos.Filename), pos.Line, ts.Name.Name))
			}
		}
	}

	if len(aliases) > 0 {
		t.Fatalf("internal/core may only alias domain types; found %d:\n%s", len(aliases), strings.Join(aliases, "\n"))
	}
}
