// Command sqllint checks that every inline SQL constant starts with a unique
// "--sql <uuid>" marker line, which SQLRunner requires and logs by.
package main

import (
	"flag"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	sqlKeywordPattern = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with|create|alter)\b`)
	uuidMarkerPattern = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

type violation struct {
	file    string
	name    string
	line    int
	message string
}

func (v violation) String() string {
	return fmt.Sprintf("%s:%d %s (%s)", v.file, v.line, v.message, v.name)
}

type markerSite struct {
	name string
	file string
	line int
}

func main() {
	flag.Parse()
	targets := flag.Args()
	if len(targets) == 0 {
		targets = []string{"internal/sqlinline"}
	}

	violations, err := lint(targets)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sqllint: %v\n", err)
		os.Exit(1)
	}
	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "sqllint: SQL audit marker problems")
		for _, v := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", v)
		}
		os.Exit(1)
	}
}

// lint walks targets (files or directories) and reports missing, malformed
// and reused markers. Test files are skipped.
func lint(targets []string) ([]violation, error) {
	var (
		violations []violation
		seen       = map[string]markerSite{}
	)
	visit := func(path string) error {
		vs, err := lintFile(path, seen)
		if err != nil {
			return err
		}
		violations = append(violations, vs...)
		return nil
	}

	for _, target := range targets {
		info, err := os.Stat(target)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if isLintable(target) {
				if err := visit(target); err != nil {
					return nil, err
				}
			}
			continue
		}
		err = filepath.WalkDir(target, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				name := d.Name()
				if path != target && (strings.HasPrefix(name, ".") || strings.HasPrefix(name, "_") || name == "vendor") {
					return filepath.SkipDir
				}
				return nil
			}
			if !isLintable(path) {
				return nil
			}
			return visit(path)
		})
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(violations, func(i, j int) bool {
		if violations[i].file != violations[j].file {
			return violations[i].file < violations[j].file
		}
		return violations[i].line < violations[j].line
	})
	return violations, nil
}

func isLintable(path string) bool {
	return filepath.Ext(path) == ".go" && !strings.HasSuffix(path, "_test.go")
}

func lintFile(path string, seen map[string]markerSite) ([]violation, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, 0)
	if err != nil {
		return nil, err
	}
	var violations []violation
	ast.Inspect(file, func(n ast.Node) bool {
		vs, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range vs.Values {
			bl, ok := value.(*ast.BasicLit)
			if !ok || bl.Kind != token.STRING {
				continue
			}
			raw, err := unquote(bl.Value)
			if err != nil || !sqlKeywordPattern.MatchString(raw) {
				continue
			}
			site := markerSite{name: specName(vs.Names, i), file: path, line: fset.Position(bl.Pos()).Line}
			marker := firstLine(raw)
			if !uuidMarkerPattern.MatchString(marker) {
				violations = append(violations, violation{
					file: site.file, line: site.line, name: site.name,
					message: "missing or invalid --sql <uuid> marker",
				})
				continue
			}
			if prev, dup := seen[marker]; dup {
				violations = append(violations, violation{
					file: site.file, line: site.line, name: site.name,
					message: fmt.Sprintf("marker already used by %s at %s:%d", prev.name, prev.file, prev.line),
				})
				continue
			}
			seen[marker] = site
		}
		return true
	})
	return violations, nil
}

func firstLine(s string) string {
	s = strings.TrimLeft(s, "\n\r \t")
	if idx := strings.IndexAny(s, "\n\r"); idx >= 0 {
		return strings.TrimSpace(s[:idx])
	}
	return strings.TrimSpace(s)
}

func unquote(v string) (string, error) {
	if len(v) == 0 {
		return v, nil
	}
	if v[0] == '`' {
		return v[1 : len(v)-1], nil
	}
	return strconv.Unquote(v)
}

func specName(idents []*ast.Ident, i int) string {
	if i < len(idents) && idents[i] != nil {
		return idents[i].Name
	}
	parts := make([]string, 0, len(idents))
	for _, ident := range idents {
		if ident != nil {
			parts = append(parts, ident.Name)
		}
	}
	return strings.Join(parts, ",")
}
