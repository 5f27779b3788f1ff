// Package predicates loads declarative predicate catalogs from YAML and
// compiles them into engine predicates. Besides built-in kinds, a predicate
// may be written as interpreted Go source or as a Mangle rule.
package predicates

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"chrysalis/internal/core"
	"chrysalis/internal/logging"
	"chrysalis/internal/mangle"
	"chrysalis/internal/types"
)

var (
	// ErrUnknownKind is returned for a spec whose kind is not recognized.
	ErrUnknownKind = errors.New("unknown predicate kind")
	// ErrInvalidSpec is returned for a spec missing a required field.
	ErrInvalidSpec = errors.New("invalid predicate spec")
)

// Kinds.
const (
	KindNotNone   = "not_none"
	KindIsStruct  = "is_struct"
	KindHasKey    = "has_key"
	KindKeyEquals = "key_equals"
	KindIsInt     = "is_int"
	KindPositive  = "positive"
	KindEven      = "even"
	KindGo        = "go"
	KindMangle    = "mangle"
)

// Spec is one catalog entry.
type Spec struct {
	Name   string          `yaml:"name"`
	Kind   string          `yaml:"kind"`
	Layer  string          `yaml:"layer,omitempty"`
	Source string          `yaml:"source,omitempty"`
	Key    string          `yaml:"key,omitempty"`
	Value  types.Candidate `yaml:"value"`
	Code   string          `yaml:"code,omitempty"`
	Rule   string          `yaml:"rule,omitempty"`
}

// Catalog is an ordered list of predicate specs.
type Catalog struct {
	Path       string `yaml:"-"`
	Predicates []Spec `yaml:"predicates"`
}

// Compiled is a spec ready for declaration.
type Compiled struct {
	Spec  Spec
	Layer core.Layer
	Test  core.TestFunc
}

// Load reads a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read predicate catalog: %w", err)
	}
	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cat.Path = path
	return cat, nil
}

// Parse decodes catalog YAML.
func Parse(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse predicate catalog: %w", err)
	}
	return &cat, nil
}

// Compile builds every spec in file order. The first failing spec aborts.
func (c *Catalog) Compile() ([]Compiled, error) {
	timer := logging.StartTimer(logging.CategoryPredicates, "compile catalog")
	defer timer.Stop()

	out := make([]Compiled, 0, len(c.Predicates))
	for i, spec := range c.Predicates {
		compiled, err := CompileSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("predicate %d (%s): %w", i, spec.Name, err)
		}
		out = append(out, compiled)
	}
	logging.Predicates("Compiled %d predicates from %s", len(out), c.Path)
	return out, nil
}

// DeclareAll compiles the catalog and declares every predicate on e in file
// order. Nothing is declared if any spec fails to compile.
func (c *Catalog) DeclareAll(e *core.Engine) ([]*core.Predicate, error) {
	compiled, err := c.Compile()
	if err != nil {
		return nil, err
	}
	return Declare(e, compiled), nil
}

// Declare declares already compiled predicates on e in order.
func Declare(e *core.Engine, compiled []Compiled) []*core.Predicate {
	declared := make([]*core.Predicate, 0, len(compiled))
	for _, cp := range compiled {
		declared = append(declared, e.Declare(cp.Spec.Name, cp.Test, cp.Layer, cp.Spec.Source))
	}
	return declared
}

// CompileSpec builds the test for a single spec.
func CompileSpec(spec Spec) (Compiled, error) {
	if spec.Name == "" {
		return Compiled{}, fmt.Errorf("%w: name is required", ErrInvalidSpec)
	}
	layer, err := core.ParseLayer(spec.Layer)
	if err != nil {
		return Compiled{}, fmt.Errorf("%w: %v", ErrInvalidSpec, err)
	}
	test, err := buildTest(spec)
	if err != nil {
		return Compiled{}, err
	}
	logging.PredicatesDebug("Compiled %s (%s)", spec.Name, spec.Kind)
	return Compiled{Spec: spec, Layer: layer, Test: test}, nil
}

func buildTest(spec Spec) (core.TestFunc, error) {
	switch spec.Kind {
	case KindNotNone:
		return core.Check(func(c types.Candidate) bool { return !c.IsNone() }), nil
	case KindIsStruct:
		return core.Check(types.Candidate.IsStruct), nil
	case KindHasKey:
		if spec.Key == "" {
			return nil, fmt.Errorf("%w: %s requires key", ErrInvalidSpec, spec.Kind)
		}
		return core.RequiresKey(spec.Key), nil
	case KindKeyEquals:
		if spec.Key == "" {
			return nil, fmt.Errorf("%w: %s requires key", ErrInvalidSpec, spec.Kind)
		}
		key, want := spec.Key, spec.Value
		return core.Check(func(c types.Candidate) bool {
			v, ok := c.Get(key)
			return ok && v.Equal(want)
		}), nil
	case KindIsInt:
		return core.Check(func(c types.Candidate) bool {
			_, ok := c.AsInt()
			return ok
		}), nil
	case KindPositive:
		return core.Check(func(c types.Candidate) bool {
			f, ok := c.AsFloat()
			return ok && f > 0
		}), nil
	case KindEven:
		return core.Check(func(c types.Candidate) bool {
			i, ok := c.AsInt()
			return ok && i%2 == 0
		}), nil
	case KindGo:
		g, err := compileGo(spec.Code)
		if err != nil {
			return nil, err
		}
		return g.test, nil
	case KindMangle:
		if spec.Rule == "" {
			return nil, fmt.Errorf("%w: %s requires rule", ErrInvalidSpec, spec.Kind)
		}
		rule, err := mangle.Compile(spec.Rule)
		if err != nil {
			return nil, err
		}
		return rule.Accepts, nil
	case "":
		return nil, fmt.Errorf("%w: kind is required", ErrInvalidSpec)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind)
	}
}
