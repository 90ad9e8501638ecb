package generator

import (
	"errors"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)[ \t]*\r?\n(.*?)```")

// ErrNoCode means the model response held no usable parser source.
var ErrNoCode = errors.New("response contains no Go parser source")

// ExtractCode pulls parser source out of a model response. The first
// fenced block declaring Parse wins, then the first fenced block, then the
// whole response if it is bare Go source. The result must parse as a Go
// file in package main that declares func Parse.
func ExtractCode(response string) (string, error) {
	var candidate string

	matches := fencedBlock.FindAllStringSubmatch(response, -1)
	for _, m := range matches {
		if strings.Contains(m[2], "func Parse(") {
			candidate = m[2]
			break
		}
	}
	if candidate == "" && len(matches) > 0 {
		candidate = matches[0][2]
	}
	if candidate == "" && strings.HasPrefix(strings.TrimSpace(response), "package ") {
		candidate = response
	}
	if strings.TrimSpace(candidate) == "" {
		return "", ErrNoCode
	}

	src := strings.TrimSpace(candidate) + "\n"
	if err := checkSource(src); err != nil {
		return "", err
	}
	return src, nil
}

func checkSource(src string) error {
	f, err := parser.ParseFile(token.NewFileSet(), "parser.go", src, parser.SkipObjectResolution)
	if err != nil {
		return err
	}
	if f.Name.Name != "main" {
		return errors.New("parser source must be package main, got package " + f.Name.Name)
	}
	for _, d := range f.Decls {
		if fn, ok := d.(*ast.FuncDecl); ok && fn.Recv == nil && fn.Name.Name == "Parse" {
			return nil
		}
	}
	return errors.New("parser source does not declare func Parse")
}
