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

// Command tagserde-lint is a schema-only CI checker: it parses every
// `ws:"..."` struct tag reachable from a package without ever building
// a Registry, so it catches tag-id collisions before a full scan does
// (which needs a running program to call RegisterAll from).
package main

import (
	"fmt"
	"go/ast"
	"go/token"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/tools/go/packages"
)

type tagIssue struct {
	pos     token.Position
	typeName string
	message string
}

func main() {
	root := &cobra.Command{
		Use:   "tagserde-lint [packages...]",
		Short: "Check ws struct tags for tag-id collisions and malformed options",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runLint,
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runLint(cmd *cobra.Command, args []string) error {
	cfg := &packages.Config{Mode: packages.NeedSyntax | packages.NeedFiles | packages.NeedName}
	pkgs, err := packages.Load(cfg, args...)
	if err != nil {
		return fmt.Errorf("loading packages: %w", err)
	}

	var issues []tagIssue
	for _, pkg := range pkgs {
		for _, file := range pkg.Syntax {
			issues = append(issues, lintFile(pkg.Fset, file)...)
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		if issues[i].pos.Filename != issues[j].pos.Filename {
			return issues[i].pos.Filename < issues[j].pos.Filename
		}
		return issues[i].pos.Line < issues[j].pos.Line
	})

	for _, iss := range issues {
		fmt.Fprintf(os.Stdout, "%s: %s: %s\n", iss.pos, iss.typeName, iss.message)
	}
	if len(issues) > 0 {
		return fmt.Errorf("%d schema issue(s) found", len(issues))
	}
	return nil
}

func lintFile(fset *token.FileSet, file *ast.File) []tagIssue {
	var issues []tagIssue
	ast.Inspect(file, func(n ast.Node) bool {
		ts, ok := n.(*ast.TypeSpec)
		if !ok {
			return true
		}
		st, ok := ts.Type.(*ast.StructType)
		if !ok || st.Fields == nil {
			return true
		}
		issues = append(issues, lintStruct(fset, ts.Name.Name, st)...)
		return true
	})
	return issues
}

func lintStruct(fset *token.FileSet, typeName string, st *ast.StructType) []tagIssue {
	var issues []tagIssue
	seenTags := map[int64]string{}
	for _, field := range st.Fields.List {
		if field.Tag == nil {
			continue
		}
		raw, ok := tagValue(field.Tag.Value, "ws")
		if !ok || raw == "-" || raw == "" {
			continue
		}
		fieldName := fieldLabel(field)
		pos := fset.Position(field.Pos())
		for _, tok := range strings.Split(raw, ",") {
			tok = strings.TrimSpace(tok)
			if !strings.HasPrefix(tok, "tag=") {
				continue
			}
			n, err := strconv.ParseInt(strings.TrimPrefix(tok, "tag="), 10, 32)
			if err != nil {
				issues = append(issues, tagIssue{pos, typeName, fmt.Sprintf("member %q: malformed tag id %q", fieldName, tok)})
				continue
			}
			if n <= 0 {
				issues = append(issues, tagIssue{pos, typeName, fmt.Sprintf("member %q: tag id %d must be strictly positive", fieldName, n)})
			}
			if prev, dup := seenTags[n]; dup {
				issues = append(issues, tagIssue{pos, typeName, fmt.Sprintf("tag id %d used by both %q and %q", n, prev, fieldName)})
			}
			seenTags[n] = fieldName
		}
	}
	return issues
}

func fieldLabel(field *ast.Field) string {
	if len(field.Names) == 0 {
		return "<embedded>"
	}
	names := make([]string, len(field.Names))
	for i, n := range field.Names {
		names[i] = n.Name
	}
	return strings.Join(names, ",")
}

// tagValue extracts the value of key from a raw Go struct tag literal
// (still including its surrounding backticks/quotes, as ast hands it
// back) without pulling in reflect.StructTag, since we never have a
// live reflect.Type here — only source text.
func tagValue(raw, key string) (string, bool) {
	unquoted := strings.Trim(raw, "`\"")
	for _, part := range strings.Fields(unquoted) {
		colon := strings.IndexByte(part, ':')
		if colon < 0 || part[:colon] != key {
			continue
		}
		v := part[colon+1:]
		return strings.Trim(v, `"`), true
	}
	return "", false
}
