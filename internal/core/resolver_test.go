package core

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chrysalis/internal/types"
)

func isStruct(c types.Candidate) bool { return c.IsStruct() }

func hasKey(key string) func(types.Candidate) bool {
	return func(c types.Candidate) bool { return c.IsStruct() && c.Has(key) }
}

func intAbove(n int64) func(types.Candidate) bool {
	return func(c types.Candidate) bool {
		i, ok := c.AsInt()
		return ok && i > n
	}
}

func pred(name string, f func(types.Candidate) bool) *Predicate {
	return NewPredicate(name, Check(f), LayerMental, "test", 0)
}

func TestResolve_ResultIsFirstSurvivorOrNone(t *testing.T) {
	domain := []types.Candidate{types.None(), types.Int(1), types.Int(5), types.Int(7), types.String("x")}
	tests := []struct {
		name      string
		preds     []*Predicate
		want      types.Candidate
		survivors int
	}{
		{"no predicates", nil, types.None(), 5},
		{"above 4", []*Predicate{pred("gt4", intAbove(4))}, types.Int(5), 2},
		{"above 6", []*Predicate{pred("gt4", intAbove(4)), pred("gt6", intAbove(6))}, types.Int(7), 1},
		{"none survive", []*Predicate{pred("gt100", intAbove(100))}, types.None(), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := Resolve(tt.preds, domain)
			assert.True(t, rec.Result.Equal(tt.want), "got %s", rec.Result)
			assert.Len(t, rec.Survivors, tt.survivors)
			if len(rec.Survivors) > 0 {
				assert.True(t, types.Contains(domain, rec.Result))
			} else {
				assert.True(t, rec.Result.IsNone())
			}
		})
	}
}

func TestResolve_ZeroPredicatesNeverNarrow(t *testing.T) {
	domain := []types.Candidate{types.String("first"), types.Int(2)}
	rec := Resolve(nil, domain)
	assert.True(t, rec.Result.Equal(types.String("first")))
	assert.Empty(t, rec.Narrowing)
	if diff := cmp.Diff(domain, rec.Survivors); diff != "" {
		t.Errorf("survivors mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_EmptyDomainIsVoid(t *testing.T) {
	rec := Resolve([]*Predicate{pred("any", func(types.Candidate) bool { return true })}, nil)
	assert.True(t, rec.Result.IsNone())
	assert.Empty(t, rec.Survivors)
	require.Len(t, rec.Narrowing, 1)
	assert.Equal(t, NarrowingStep{Predicate: "any", Before: 0, After: 0}, rec.Narrowing[0])
}

func TestResolve_FailingTestBehavesLikeFalse(t *testing.T) {
	domain := []types.Candidate{types.Int(1), types.Int(2)}
	alwaysFalse := NewPredicate("false", Check(func(types.Candidate) bool { return false }), LayerMental, "", 0)
	erroring := NewPredicate("err", func(types.Candidate) (bool, error) { return true, errors.New("boom") }, LayerMental, "", 0)
	panicking := NewPredicate("panic", func(types.Candidate) (bool, error) { panic("boom") }, LayerMental, "", 0)
	nilTest := NewPredicate("nil", nil, LayerMental, "", 0)

	want := Resolve([]*Predicate{alwaysFalse}, domain)
	for _, p := range []*Predicate{erroring, panicking, nilTest} {
		t.Run(p.Name(), func(t *testing.T) {
			var rec *ResolutionRecord
			require.NotPanics(t, func() { rec = Resolve([]*Predicate{p}, domain) })
			assert.Equal(t, want.Result, rec.Result)
			assert.Equal(t, want.Survivors, rec.Survivors)
			assert.Equal(t, 0, rec.Narrowing[0].After)
		})
	}
}

func TestResolve_KeepsOrderAndDuplicates(t *testing.T) {
	a := types.EmptyStruct().With("a", types.Int(1))
	domain := []types.Candidate{types.Int(0), a, types.None(), a}
	rec := Resolve([]*Predicate{pred("struct", isStruct)}, domain)
	require.Len(t, rec.Survivors, 2)
	assert.True(t, rec.Survivors[0].Equal(a))
	assert.True(t, rec.Survivors[1].Equal(a))
}

func TestResolve_NarrowingLog(t *testing.T) {
	domain := []types.Candidate{
		types.None(),
		types.Int(0),
		types.String("potential"),
		types.Int(42),
		types.MustFromAny(map[string]interface{}{"dead": true}),
		types.MustFromAny(map[string]interface{}{"alive": false}),
		types.MustFromAny(map[string]interface{}{"alive": true}),
		types.MustFromAny(map[string]interface{}{"alive": true, "aware": true}),
	}
	preds := []*Predicate{
		pred("existence", func(c types.Candidate) bool { return !c.IsNone() }),
		pred("has_structure", isStruct),
		pred("alive", func(c types.Candidate) bool {
			v, ok := c.Get("alive")
			b, isBool := v.AsBool()
			return ok && isBool && b
		}),
	}

	rec := Resolve(preds, domain)
	want := []NarrowingStep{
		{Predicate: "existence", Before: 8, After: 7},
		{Predicate: "has_structure", Before: 7, After: 4},
		{Predicate: "alive", Before: 4, After: 2},
	}
	if diff := cmp.Diff(want, rec.Narrowing); diff != "" {
		t.Errorf("narrowing mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, rec.Narrowing[1].Eliminated())
	assert.True(t, rec.Result.Equal(types.MustFromAny(map[string]interface{}{"alive": true})))
}

func TestResolve_DoesNotAliasInput(t *testing.T) {
	domain := []types.Candidate{types.Int(1), types.Int(2)}
	rec := Resolve(nil, domain)
	domain[0] = types.Int(99)
	assert.True(t, rec.Domain[0].Equal(types.Int(1)))
	assert.True(t, rec.Survivors[0].Equal(types.Int(1)))
}
