// Package mangle evaluates Google Mangle (Datalog) rules against candidates.
// A candidate is asserted as a small set of EDB facts and a rule accepts it
// when the program derives at least one accept fact.
package mangle

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/mangle/analysis"
	"github.com/google/mangle/ast"
	_ "github.com/google/mangle/builtin"
	mengine "github.com/google/mangle/engine"
	"github.com/google/mangle/factstore"
	"github.com/google/mangle/parse"

	"chrysalis/internal/logging"
	"chrysalis/internal/types"
)

// AcceptPredicate is the predicate a rule derives to accept a candidate.
const AcceptPredicate = "accept"

// DefaultFactLimit caps facts created per evaluation.
const DefaultFactLimit = 10000

// Prelude declares the EDB predicates describing a candidate:
//
//	kind(/none|/bool|/int|/float|/string|/list|/struct)
//	scalar(Value)          for bool, int, float and string candidates
//	field(Key, Value)      one per key of a structure
//	item(Index, Value)     one per element of a list
//
// Nested lists and structures appear as their compact JSON-like string.
// Booleans are /true and /false; the none-value is /none.
const Prelude = `Decl kind(Kind).
Decl scalar(Value).
Decl field(Key, Value).
Decl item(Index, Value).
`

// Rule is a compiled Mangle program with an accept predicate.
type Rule struct {
	source      string
	programInfo *analysis.ProgramInfo
	accept      ast.PredicateSym
	factLimit   int
}

// Compile parses and analyzes source together with the prelude. The program
// must define accept.
func Compile(source string) (*Rule, error) {
	unit, err := parse.Unit(strings.NewReader(Prelude + source))
	if err != nil {
		return nil, fmt.Errorf("failed to parse rule: %w", err)
	}
	programInfo, err := analysis.AnalyzeOneUnit(unit, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze rule: %w", err)
	}

	sym, ok := findAccept(programInfo)
	if !ok {
		return nil, fmt.Errorf("rule does not define %s", AcceptPredicate)
	}
	logging.PredicatesDebug("Compiled mangle rule: %d clauses, accept/%d", len(programInfo.Rules), sym.Arity)

	return &Rule{
		source:      source,
		programInfo: programInfo,
		accept:      sym,
		factLimit:   DefaultFactLimit,
	}, nil
}

func findAccept(programInfo *analysis.ProgramInfo) (ast.PredicateSym, bool) {
	for _, clause := range programInfo.Rules {
		if clause.Head.Predicate.Symbol == AcceptPredicate {
			return clause.Head.Predicate, true
		}
	}
	for sym := range programInfo.Decls {
		if sym.Symbol == AcceptPredicate {
			return sym, true
		}
	}
	return ast.PredicateSym{}, false
}

// Source returns the rule text without the prelude.
func (r *Rule) Source() string { return r.source }

// WithFactLimit returns a copy of the rule with a different created-fact cap.
func (r *Rule) WithFactLimit(n int) *Rule {
	cp := *r
	cp.factLimit = n
	return &cp
}

// Accepts evaluates the rule over c's facts in a fresh store.
func (r *Rule) Accepts(c types.Candidate) (bool, error) {
	derived, err := r.Derive(c)
	if err != nil {
		return false, err
	}
	return len(derived) > 0, nil
}

// Derive evaluates the rule over c's facts and returns the derived accept
// atoms rendered as strings.
func (r *Rule) Derive(c types.Candidate) ([]string, error) {
	atoms, err := CandidateFacts(c)
	if err != nil {
		return nil, err
	}

	store := factstore.NewSimpleInMemoryStore()
	for _, atom := range atoms {
		store.Add(atom)
	}
	if _, err := mengine.EvalProgramWithStats(r.programInfo, store,
		mengine.WithCreatedFactLimit(r.factLimit)); err != nil {
		return nil, fmt.Errorf("failed to evaluate rule: %w", err)
	}

	var derived []string
	err = store.GetFacts(ast.NewQuery(r.accept), func(a ast.Atom) error {
		derived = append(derived, a.String())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", AcceptPredicate, err)
	}
	sort.Strings(derived)
	return derived, nil
}

// CandidateFacts translates c into the prelude's EDB atoms.
func CandidateFacts(c types.Candidate) ([]ast.Atom, error) {
	kind, err := ast.Name("/" + c.Kind().String())
	if err != nil {
		return nil, fmt.Errorf("invalid kind name: %w", err)
	}
	atoms := []ast.Atom{ast.NewAtom("kind", kind)}

	switch c.Kind() {
	case types.KindBool, types.KindInt, types.KindFloat, types.KindString:
		v, err := valueTerm(c)
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, ast.NewAtom("scalar", v))
	case types.KindStruct:
		for _, k := range c.Keys() {
			fv, _ := c.Get(k)
			v, err := valueTerm(fv)
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", k, err)
			}
			atoms = append(atoms, ast.NewAtom("field", ast.String(k), v))
		}
	case types.KindList:
		for i, item := range c.Items() {
			v, err := valueTerm(item)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i, err)
			}
			atoms = append(atoms, ast.NewAtom("item", ast.Number(int64(i)), v))
		}
	}
	return atoms, nil
}

func valueTerm(c types.Candidate) (ast.BaseTerm, error) {
	switch c.Kind() {
	case types.KindNone:
		return ast.Name("/none")
	case types.KindBool:
		b, _ := c.AsBool()
		if b {
			return ast.TrueConstant, nil
		}
		return ast.FalseConstant, nil
	case types.KindInt:
		i, _ := c.AsInt()
		return ast.Number(i), nil
	case types.KindFloat:
		f, _ := c.AsFloat()
		return ast.Float64(f), nil
	case types.KindString:
		s, _ := c.AsString()
		return ast.String(s), nil
	default:
		return ast.String(c.String()), nil
	}
}
