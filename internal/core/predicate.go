package core

import (
	"fmt"
	"strings"

	"chrysalis/internal/types"
)

// Provenance tags.
const (
	SourceExternal   = "external"
	SourceReflection = "self-reflection"
)

// reflectionPrefix names predicates synthesized by reflection.
const reflectionPrefix = "requires_"

// TestFunc is the boolean test behind a predicate. A returned error counts as
// "does not satisfy".
type TestFunc func(c types.Candidate) (bool, error)

// Check adapts an infallible test.
func Check(f func(c types.Candidate) bool) TestFunc {
	return func(c types.Candidate) (bool, error) {
		return f(c), nil
	}
}

// RequiresKey is satisfied by structured candidates that contain key.
func RequiresKey(key string) TestFunc {
	return func(c types.Candidate) (bool, error) {
		return c.IsStruct() && c.Has(key), nil
	}
}

// Predicate is a named boolean test with provenance metadata. Immutable once
// created.
type Predicate struct {
	name       string
	test       TestFunc
	layer      Layer
	source     string
	declaredAt int
}

// NewPredicate builds a predicate. Empty layer and source default to
// LayerMental and SourceExternal.
func NewPredicate(name string, test TestFunc, layer Layer, source string, declaredAt int) *Predicate {
	if layer == "" {
		layer = LayerMental
	}
	if source == "" {
		source = SourceExternal
	}
	return &Predicate{name: name, test: test, layer: layer, source: source, declaredAt: declaredAt}
}

func (p *Predicate) Name() string    { return p.name }
func (p *Predicate) Layer() Layer    { return p.layer }
func (p *Predicate) Source() string  { return p.source }
func (p *Predicate) DeclaredAt() int { return p.declaredAt }

// Satisfied evaluates the test. Errors and panics from the test are reported
// as false and never escape.
func (p *Predicate) Satisfied(c types.Candidate) (ok bool) {
	if p.test == nil {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	ok, err := p.test(c)
	if err != nil {
		return false
	}
	return ok
}

// PredicateDescription is the serializable self-description of a predicate.
type PredicateDescription struct {
	Name       string `json:"name" yaml:"name"`
	Layer      Layer  `json:"layer" yaml:"layer"`
	Source     string `json:"source" yaml:"source"`
	DeclaredAt int    `json:"declared_at" yaml:"declared_at"`
}

// Describe returns the predicate's metadata.
func (p *Predicate) Describe() PredicateDescription {
	return PredicateDescription{
		Name:       p.name,
		Layer:      p.layer,
		Source:     p.source,
		DeclaredAt: p.declaredAt,
	}
}

func (p *Predicate) String() string {
	return fmt.Sprintf("%s (%s, from %s)", p.name, p.layer, p.source)
}

// restorePredicate rebuilds a reflection predicate from its description.
// Only reflection predicates can be rebuilt since their test is fully
// determined by the required key.
func restorePredicate(d PredicateDescription) (*Predicate, bool) {
	if d.Source != SourceReflection || !strings.HasPrefix(d.Name, reflectionPrefix) {
		return nil, false
	}
	key := strings.TrimPrefix(d.Name, reflectionPrefix)
	if key == "" {
		return nil, false
	}
	return NewPredicate(d.Name, RequiresKey(key), d.Layer, d.Source, d.DeclaredAt), true
}

func describeAll(preds []*Predicate) []PredicateDescription {
	out := make([]PredicateDescription, len(preds))
	for i, p := range preds {
		out[i] = p.Describe()
	}
	return out
}
