package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/antchfx/xpath"
)

// ErrInvalidPath is returned for lookup paths that do not compile.
var ErrInvalidPath = errors.New("invalid lookup path")

// Path is a compiled XPath lookup such as ".//irs:IRS990/irs:TotalAssetsGrp/irs:EOYAmt".
// Prefixed steps match by namespace URI; unprefixed steps match elements
// written without a prefix.
type Path struct {
	raw  string
	expr *xpath.Expr
}

// CompilePath compiles s with the given prefix to namespace URI bindings.
func CompilePath(s string, namespaces map[string]string) (Path, error) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return Path{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	expr, err := xpath.CompileWithNS(raw, namespaces)
	if err != nil {
		return Path{}, fmt.Errorf("%w: %q: %v", ErrInvalidPath, s, err)
	}

	return Path{raw: raw, expr: expr}, nil
}

// MustCompilePath is CompilePath for static paths; it panics on error.
func MustCompilePath(s string, namespaces map[string]string) Path {
	p, err := CompilePath(s, namespaces)
	if err != nil {
		panic(err)
	}

	return p
}

// Expr returns the compiled expression, nil for the zero Path.
func (p Path) Expr() *xpath.Expr {
	return p.expr
}

// String returns the path as written.
func (p Path) String() string {
	return p.raw
}

func compileAll(paths []string, namespaces map[string]string) ([]Path, error) {
	out := make([]Path, 0, len(paths))

	for _, s := range paths {
		p, err := CompilePath(s, namespaces)
		if err != nil {
			return nil, err
		}

		out = append(out, p)
	}

	return out, nil
}
