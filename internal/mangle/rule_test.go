package mangle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chrysalis/internal/types"
)

func TestCompile_RequiresAccept(t *testing.T) {
	_, err := Compile("Decl other(X).\nother(X) :- kind(X).\n")
	assert.ErrorContains(t, err, "does not define accept")

	_, err = Compile("accept(X) :- ")
	assert.Error(t, err, "syntax error must be reported")
}

func TestRule_FieldMatch(t *testing.T) {
	rule, err := Compile(`accept(V) :- field("x", V).`)
	require.NoError(t, err)

	tests := []struct {
		name string
		c    types.Candidate
		want bool
	}{
		{"has x", types.EmptyStruct().With("x", types.Int(1)), true},
		{"x is none", types.EmptyStruct().With("x", types.None()), true},
		{"other key", types.EmptyStruct().With("y", types.Int(1)), false},
		{"empty struct", types.EmptyStruct(), false},
		{"scalar", types.String("x"), false},
		{"none", types.None(), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := rule.Accepts(tt.c)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestRule_KindAndComparison(t *testing.T) {
	isStruct, err := Compile(`accept(/yes) :- kind(/struct).`)
	require.NoError(t, err)

	ok, err := isStruct.Accepts(types.EmptyStruct())
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = isStruct.Accepts(types.List())
	require.NoError(t, err)
	assert.False(t, ok)

	big, err := Compile(`accept(V) :- field("n", V), V > 10.`)
	require.NoError(t, err)
	ok, err = big.Accepts(types.EmptyStruct().With("n", types.Int(11)))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = big.Accepts(types.EmptyStruct().With("n", types.Int(3)))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRule_BooleanFields(t *testing.T) {
	alive, err := Compile(`accept(/alive) :- field("alive", /true).`)
	require.NoError(t, err)

	ok, err := alive.Accepts(types.EmptyStruct().With("alive", types.Bool(true)))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = alive.Accepts(types.EmptyStruct().With("alive", types.Bool(false)))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRule_Derive(t *testing.T) {
	rule, err := Compile(`accept(K) :- field(K, _).`)
	require.NoError(t, err)
	assert.Equal(t, `accept(K) :- field(K, _).`, rule.Source())

	derived, err := rule.Derive(types.EmptyStruct().With("b", types.Int(1)).With("a", types.Int(2)))
	require.NoError(t, err)
	assert.Len(t, derived, 2)
	assert.Contains(t, derived[0], `"a"`)
	assert.Contains(t, derived[1], `"b"`)
}

func TestCandidateFacts(t *testing.T) {
	atoms, err := CandidateFacts(types.None())
	require.NoError(t, err)
	require.Len(t, atoms, 1)
	assert.Equal(t, "kind", atoms[0].Predicate.Symbol)

	atoms, err = CandidateFacts(types.Int(7))
	require.NoError(t, err)
	require.Len(t, atoms, 2)
	assert.Equal(t, "scalar", atoms[1].Predicate.Symbol)

	atoms, err = CandidateFacts(types.List(types.Int(1), types.EmptyStruct().With("k", types.None())))
	require.NoError(t, err)
	require.Len(t, atoms, 3)
	assert.Equal(t, "item", atoms[1].Predicate.Symbol)
	assert.Equal(t, 2, atoms[2].Predicate.Arity)

	atoms, err = CandidateFacts(types.EmptyStruct().With("a", types.Float(1.5)).With("b", types.None()))
	require.NoError(t, err)
	require.Len(t, atoms, 3)
	assert.Equal(t, "field", atoms[1].Predicate.Symbol)
}

func TestRule_WithFactLimit(t *testing.T) {
	rule, err := Compile(`accept(V) :- field("x", V).`)
	require.NoError(t, err)
	limited := rule.WithFactLimit(5)
	assert.Equal(t, DefaultFactLimit, rule.factLimit)
	assert.Equal(t, 5, limited.factLimit)
}
