// Package typeprovider is a minimal, source-level realization of the
// TypeProvider collaborator (§6): it walks a directory of Go source under
// a root package and produces the []module.Type slice the Module Model
// indexes. TypeProvider is explicitly an external collaborator the core
// only defines a narrow contract for; this implementation is intentionally
// simple (it does not type-check imports or resolve third-party types) and
// exists so the CLI has something concrete to run `verify`/`graph export`
// against.
//
// Packages are named by the root directory's base name followed by their
// directory path relative to root, joined with ".", mirroring the
// dot-separated package names the Module Model expects (e.g. "app.orders.api"
// for orders/api under a root directory named app). Annotations are recovered from a type's doc
// comment, one line per annotation, of the form:
//
//	// @ApplicationModule(open=true, displayName="Orders", allowedDependencies=catalog::api)
//	// @NamedInterface(api)
//	// @EventListener(orders.OrderPlaced)
//	// @UsesComponent(catalog.api.CatalogClient)
//	// @ConfigurationProperties
package typeprovider

import (
	"fmt"
	"go/ast"
	"go/doc"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/ncobase/modulith/module"
)

// Load walks rootDir, parsing every non-test .go file, and returns the
// types it finds in deterministic (path, then type name) order.
func Load(rootDir string) ([]module.Type, error) {
	fset := token.NewFileSet()

	var dirs []string
	err := filepath.WalkDir(rootDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("typeprovider: walk %s: %w", rootDir, err)
	}
	sort.Strings(dirs)

	var types []module.Type
	for _, dir := range dirs {
		pkgTypes, err := loadDir(fset, rootDir, dir)
		if err != nil {
			return nil, err
		}
		types = append(types, pkgTypes...)
	}
	return types, nil
}

func loadDir(fset *token.FileSet, rootDir, dir string) ([]module.Type, error) {
	pkgs, err := parser.ParseDir(fset, dir, func(fi os.FileInfo) bool {
		return !strings.HasSuffix(fi.Name(), "_test.go")
	}, parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("typeprovider: parse %s: %w", dir, err)
	}
	if len(pkgs) == 0 {
		return nil, nil
	}

	pkgPath := dotPackagePath(rootDir, dir)

	var out []module.Type
	for _, pkg := range pkgs {
		docPkg := doc.New(pkg, pkgPath, doc.AllDecls)
		for _, t := range docPkg.Types {
			out = append(out, buildType(pkgPath, t))
		}
	}
	return out, nil
}

// RootPackage returns the package path Load assigns to rootDir itself,
// suitable as the default root passed to module.Of.
func RootPackage(rootDir string) string {
	return filepath.Base(filepath.Clean(rootDir))
}

// dotPackagePath converts dir, relative to rootDir, into a dot-joined
// package path; rootDir itself maps to its own base name.
func dotPackagePath(rootDir, dir string) string {
	rel, err := filepath.Rel(rootDir, dir)
	if err != nil || rel == "." {
		return filepath.Base(rootDir)
	}
	segments := strings.Split(filepath.ToSlash(rel), "/")
	return filepath.Base(rootDir) + "." + strings.Join(segments, ".")
}

var annotationLine = regexp.MustCompile(`^@(\w+)(?:\(([^)]*)\))?\s*$`)

func buildType(pkgPath string, t *doc.Type) module.Type {
	mt := module.Type{
		FQName:  pkgPath + "." + t.Name,
		Package: pkgPath,
	}

	for _, line := range strings.Split(t.Doc, "\n") {
		line = strings.TrimSpace(line)
		m := annotationLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		ann := module.Annotation{Name: m[1], Values: parseAnnotationArgs(m[2])}
		applyAnnotation(&mt, ann)
	}

	if spec, ok := t.Decl.Specs[0].(*ast.TypeSpec); ok {
		if st, ok := spec.Type.(*ast.StructType); ok {
			for _, field := range st.Fields.List {
				if len(field.Names) > 0 && !field.Names[0].IsExported() {
					continue
				}
				if typeName := exprTypeName(field.Type); typeName != "" {
					mt.ReferencedTypes = append(mt.ReferencedTypes, typeName)
				}
				if len(field.Names) > 0 && isPublicFieldInjection(field) {
					mt.PublicFieldInjections = append(mt.PublicFieldInjections, field.Names[0].Name)
				}
			}
		}
	}

	return mt
}

// applyAnnotation records ann on mt and, for the annotations the model
// reasons about directly (EventListener, UsesComponent,
// ConfigurationProperties), also populates the corresponding typed field.
func applyAnnotation(mt *module.Type, ann module.Annotation) {
	mt.Annotations = append(mt.Annotations, ann)
	switch ann.Name {
	case "EventListener":
		if v, ok := ann.Value("value"); ok {
			mt.ListenerOf = append(mt.ListenerOf, v)
		}
	case "UsesComponent":
		if v, ok := ann.Value("value"); ok {
			mt.UsesComponents = append(mt.UsesComponents, v)
		}
	case "ConfigurationProperties":
		mt.ConfigurationPropertiesOf = true
	}
}

// parseAnnotationArgs parses "key=value, key2=value2" or a single
// positional "value" into a Values map with a synthetic "value" key for
// the positional form.
func parseAnnotationArgs(raw string) map[string][]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	out := map[string][]string{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if idx := strings.Index(part, "="); idx >= 0 {
			key := strings.TrimSpace(part[:idx])
			val := strings.Trim(strings.TrimSpace(part[idx+1:]), `"`)
			out[key] = append(out[key], val)
		} else {
			out["value"] = append(out["value"], strings.Trim(part, `"`))
		}
	}
	return out
}

// exprTypeName renders a field type expression as a dotted name matching
// the FQName convention, when it is a plain identifier or
// package-qualified selector; anything else (slices, maps, funcs) is
// unwrapped one level and otherwise skipped.
func exprTypeName(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.Ident:
		return e.Name
	case *ast.SelectorExpr:
		if pkg, ok := e.X.(*ast.Ident); ok {
			return pkg.Name + "." + e.Sel.Name
		}
	case *ast.StarExpr:
		return exprTypeName(e.X)
	case *ast.ArrayType:
		return exprTypeName(e.Elt)
	}
	return ""
}

// isPublicFieldInjection reports whether field looks like a dependency
// injected directly onto an exported struct field (exported name with a
// pointer, interface literal or named type) rather than via a constructor,
// matching verifier rule 4's concern. Without type checking, any named type
// counts, including non-interface ones such as string.
func isPublicFieldInjection(field *ast.Field) bool {
	name := field.Names[0]
	if !name.IsExported() {
		return false
	}
	switch field.Type.(type) {
	case *ast.StarExpr, *ast.InterfaceType:
		return true
	case *ast.SelectorExpr, *ast.Ident:
		return true
	default:
		return false
	}
}
