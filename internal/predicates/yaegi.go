package predicates

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"chrysalis/internal/types"
)

// =============================================================================
// GO-SOURCE PREDICATES (yaegi)
// =============================================================================
// Go predicates are interpreted, never compiled. The source is either a bare
// function literal:
//
//	func(v interface{}) bool { m, ok := v.(map[string]interface{}); return ok && len(m) > 2 }
//
// or a file body defining `func Accept(v interface{}) bool`, which may import
// allowed stdlib packages. The candidate is passed in its plain Go form.

// allowedImports are the stdlib packages Go predicates may use.
var allowedImports = map[string]bool{
	"strings":       true,
	"strconv":       true,
	"fmt":           true,
	"math":          true,
	"regexp":        true,
	"encoding/json": true,
	"sort":          true,
	"bytes":         true,
	"unicode":       true,

	// Blocked: os, os/exec, net, net/http, syscall, unsafe
}

// goPredicate is an interpreted Go test. Calls are serialized since the
// interpreter state is shared.
type goPredicate struct {
	mu sync.Mutex
	fn func(interface{}) bool
}

func compileGo(code string) (*goPredicate, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: go predicate requires code", ErrInvalidSpec)
	}
	if err := validateImports(code); err != nil {
		return nil, fmt.Errorf("invalid imports: %w", err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if _, err := i.Eval(wrapCode(code)); err != nil {
		return nil, fmt.Errorf("code evaluation failed: %w", err)
	}

	v, err := i.Eval("main.Accept")
	if err != nil {
		return nil, fmt.Errorf("Accept function not found: %w", err)
	}
	fn, ok := v.Interface().(func(interface{}) bool)
	if !ok {
		return nil, fmt.Errorf("%w: Accept has incorrect signature (expected: func(interface{}) bool)", ErrInvalidSpec)
	}
	return &goPredicate{fn: fn}, nil
}

func (g *goPredicate) test(c types.Candidate) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fn(c.ToAny()), nil
}

// wrapCode turns a function literal into a package-level Accept variable and
// adds the package clause when missing.
func wrapCode(code string) string {
	trimmed := strings.TrimSpace(code)
	if strings.HasPrefix(trimmed, "func(") || strings.HasPrefix(trimmed, "func (") {
		return fmt.Sprintf("package main\n\nvar Accept = %s\n", trimmed)
	}
	if strings.HasPrefix(trimmed, "package main") {
		return trimmed
	}
	return fmt.Sprintf("package main\n\n%s\n", trimmed)
}

// validateImports checks that the code only imports allowed packages.
func validateImports(code string) error {
	var imports []string
	inImportBlock := false
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "import ("):
			inImportBlock = true
		case inImportBlock && strings.HasPrefix(trimmed, ")"):
			inImportBlock = false
		case inImportBlock && trimmed != "":
			imports = append(imports, importPath(trimmed))
		case strings.HasPrefix(trimmed, "import "):
			imports = append(imports, importPath(strings.TrimPrefix(trimmed, "import ")))
		}
	}

	var forbidden []string
	for _, pkg := range imports {
		if !allowedImports[pkg] {
			forbidden = append(forbidden, pkg)
		}
	}
	if len(forbidden) > 0 {
		allowed := make([]string, 0, len(allowedImports))
		for pkg := range allowedImports {
			allowed = append(allowed, pkg)
		}
		sort.Strings(allowed)
		return fmt.Errorf("forbidden imports detected: %v (allowed: %v)", forbidden, allowed)
	}
	return nil
}

// importPath strips an optional alias and the quotes from an import spec.
func importPath(spec string) string {
	fields := strings.Fields(spec)
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[len(fields)-1], `"`)
}
