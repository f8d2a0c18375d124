// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Command tagserde-gen scans a package for struct types carrying `ws:`
// tags and emits a source file that registers each one on a
// *tagserde.Builder, so call sites don't hand-maintain a Builder.Struct
// call per type as the schema grows. Type-level options (type code,
// base interface, constructor, ...) still need a StructOption passed by
// hand afterward; the generator only ever emits the call, never the
// options, since those aren't recoverable from struct tags alone.
package main

import (
	"bytes"
	"fmt"
	"go/types"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
	"golang.org/x/tools/go/packages"
)

type structDecl struct {
	Name string
}

var genTmpl = template.Must(template.New("gen").Parse(`// Code generated by tagserde-gen. DO NOT EDIT.

package {{.Package}}

import "github.com/metaplay-oss/tagserde"

// RegisterGenerated adds every {{.Package}} struct type that declared
// ws tags to b. Callers still attach type codes, base interfaces,
// constructors, and hooks via StructOption after this call, or before
// via b.Struct(&Foo{}, "...", opts...) directly (planFor is idempotent
// on repeated registration of the same Go type).
func RegisterGenerated(b *tagserde.Builder) *tagserde.Builder {
{{- range .Structs}}
	b.Struct(&{{.Name}}{}, "{{$.Package}}.{{.Name}}")
{{- end}}
	return b
}
`))

func main() {
	var outPath string
	root := &cobra.Command{
		Use:   "tagserde-gen <package>",
		Short: "Generate Builder registration calls for ws-tagged struct types",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(args[0], outPath)
		},
	}
	root.Flags().StringVarP(&outPath, "out", "o", "tagserde_gen.go", "output file path, relative to the target package directory")
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(pkgPath, outPath string) error {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedTypes | packages.NeedSyntax | packages.NeedFiles}
	pkgs, err := packages.Load(cfg, pkgPath)
	if err != nil {
		return fmt.Errorf("loading package: %w", err)
	}
	if len(pkgs) != 1 {
		return fmt.Errorf("expected exactly one package, got %d", len(pkgs))
	}
	pkg := pkgs[0]
	if len(pkg.Errors) > 0 {
		return fmt.Errorf("package %s has errors: %v", pkgPath, pkg.Errors[0])
	}

	structs := discoverTaggedStructs(pkg.Types)
	if len(structs) == 0 {
		return fmt.Errorf("no ws-tagged struct types found in %s", pkgPath)
	}

	var buf bytes.Buffer
	if err := genTmpl.Execute(&buf, struct {
		Package string
		Structs []structDecl
	}{Package: pkg.Types.Name(), Structs: structs}); err != nil {
		return fmt.Errorf("rendering template: %w", err)
	}

	dir := filepath.Dir(pkg.GoFiles[0])
	return os.WriteFile(filepath.Join(dir, outPath), buf.Bytes(), 0o644)
}

// discoverTaggedStructs walks the package's type-checked scope for
// named struct types with at least one field carrying a `ws:` tag.
func discoverTaggedStructs(pkg *types.Package) []structDecl {
	var out []structDecl
	scope := pkg.Scope()
	for _, name := range scope.Names() {
		obj, ok := scope.Lookup(name).(*types.TypeName)
		if !ok {
			continue
		}
		named, ok := obj.Type().(*types.Named)
		if !ok {
			continue
		}
		st, ok := named.Underlying().(*types.Struct)
		if !ok {
			continue
		}
		if !structHasWsTag(st) {
			continue
		}
		out = append(out, structDecl{Name: name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func structHasWsTag(st *types.Struct) bool {
	for i := 0; i < st.NumFields(); i++ {
		tag := st.Tag(i)
		if strings.Contains(tag, `ws:"`) {
			return true
		}
	}
	return false
}
