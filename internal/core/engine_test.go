package core

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chrysalis/internal/types"
)

// memStore round-trips snapshots through JSON so tests exercise the codec.
type memStore struct {
	data    []byte
	snap    *Snapshot
	saves   int
	rounds  []int
	loadErr error
	saveErr error
}

func (s *memStore) Load() (*Snapshot, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if len(s.data) == 0 {
		return nil, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(s.data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (s *memStore) Save(snap *Snapshot) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	s.data = data
	s.snap = snap.Clone()
	s.saves++
	return nil
}

func (s *memStore) RecordRound(round int, _ types.Candidate) error {
	s.rounds = append(s.rounds, round)
	return nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestEngine_Fresh(t *testing.T) {
	e := NewEngine()
	assert.NotEmpty(t, e.ID())
	assert.Equal(t, 0, e.RoundCount())
	assert.Empty(t, e.Predicates())
	assert.True(t, e.State().IsNone())
	assert.Empty(t, e.History())
	assert.Empty(t, e.VocabularyExpansions())
	assert.NoError(t, e.LastPersistError())
}

func TestEngine_DeclareDefaultsAndCensus(t *testing.T) {
	e := NewEngine()
	p := e.Declare("a", Check(isStruct), "", "")
	assert.Equal(t, LayerMental, p.Layer())
	assert.Equal(t, SourceExternal, p.Source())
	assert.Equal(t, 0, p.DeclaredAt())

	e.Declare("b", Check(isStruct), LayerMental, "test")
	e.Declare("c", Check(isStruct), LayerAstral, "test")

	census := e.LayerCensus()
	assert.Equal(t, 2, census[LayerMental])
	assert.Equal(t, 1, census[LayerAstral])
	assert.Equal(t, 0, census[LayerVoid])
	assert.Len(t, census, len(Layers))
}

func TestEngine_DuplicateNamesAllowed(t *testing.T) {
	e := NewEngine()
	e.Declare("same", Check(func(types.Candidate) bool { return true }), LayerMental, "")
	e.Declare("same", Check(func(c types.Candidate) bool { return c.IsStruct() }), LayerMental, "")
	require.Len(t, e.Predicates(), 2)

	got := e.Resolve([]types.Candidate{types.Int(1), types.EmptyStruct()})
	assert.True(t, got.Equal(types.EmptyStruct()))
}

func TestEngine_ResolveIsStateless(t *testing.T) {
	e := NewEngine()
	e.Declare("gt", Check(intAbove(2)), LayerMental, "")
	assert.True(t, e.Resolve([]types.Candidate{types.Int(1), types.Int(2), types.Int(3)}).Equal(types.Int(3)))
	assert.True(t, e.Resolve(nil).IsNone())
	assert.Equal(t, 0, e.RoundCount())
	assert.Empty(t, e.History())
	assert.True(t, e.State().IsNone())
}

func TestEngine_CycleHistoryAndBinding(t *testing.T) {
	e := NewEngine()
	e.Declare("positive", Check(intAbove(0)), LayerMental, "")
	e.Declare("even", Check(func(c types.Candidate) bool {
		i, ok := c.AsInt()
		return ok && i%2 == 0
	}), LayerAstral, "")

	obs := e.Cycle([]types.Candidate{types.Int(-2), types.Int(1), types.Int(2), types.Int(4)})
	assert.Equal(t, 1, obs.Cycle)
	assert.True(t, obs.Result.Equal(types.Int(2)))
	assert.True(t, e.State().Equal(types.Int(2)))

	obs = e.Cycle([]types.Candidate{types.Int(3)})
	assert.Equal(t, 2, obs.Cycle)
	assert.True(t, obs.Result.IsNone())
	assert.True(t, obs.State.Equal(types.Int(2)), "a void round leaves the bound state unchanged")
	assert.NotEmpty(t, obs.Notes)

	obs = e.Cycle(nil)
	assert.Equal(t, 3, obs.Cycle)
	assert.True(t, obs.Result.IsNone())

	history := e.History()
	require.Len(t, history, 3)
	for i, h := range history {
		assert.Equal(t, i+1, h.Cycle)
		require.NotNil(t, h.Trace)
	}
	assert.Equal(t, 3, e.RoundCount())
}

func TestEngine_SelfCycleUsesGeneratedDomain(t *testing.T) {
	e := NewEngine()
	e.Declare("is_dict", Check(isStruct), LayerMental, "")

	obs := e.SelfCycle()
	require.NotNil(t, obs.Trace)
	assert.Len(t, obs.Trace.Domain, 2)
	assert.True(t, obs.Result.Equal(types.EmptyStruct()))
}

func TestEngine_IntrospectAndDescribeSelf(t *testing.T) {
	e := NewEngine()
	e.Declare("exists", Check(func(c types.Candidate) bool { return !c.IsNone() }), LayerMental, "axiom")
	e.Declare("double", Check(intAbove(1)), LayerAstral, "intent")

	intro := e.Introspect()
	assert.Equal(t, 0, intro.Cycle)
	assert.Nil(t, intro.Trace)
	assert.Len(t, intro.Predicates, 2)

	e.Cycle([]types.Candidate{types.Int(1), types.Int(2)})

	desc := e.DescribeSelf()
	assert.Equal(t, e.ID(), desc.EngineID)
	assert.Equal(t, 1, desc.CycleCount)
	assert.Equal(t, 2, desc.ConstraintCount)
	assert.True(t, desc.State.Equal(types.Int(2)))
	assert.Equal(t, 1, desc.HistoryLength)
	assert.Equal(t, 1, desc.LayerCensus[LayerAstral])
	assert.Equal(t, "axiom", desc.Constraints[0].Source)

	data, err := json.Marshal(desc)
	require.NoError(t, err)
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"cycle_count", "birth", "constraint_count", "constraints", "state", "history_length", "layer_census", "engine_id", "vocabulary_expansions"} {
		assert.Contains(t, raw, key)
	}
}

func TestObservation_DescribeTrace(t *testing.T) {
	e := NewEngine()
	e.Declare("is_dict", Check(isStruct), LayerMental, "")
	obs := e.Cycle([]types.Candidate{types.None(), obj(map[string]interface{}{"alive": true})})

	desc := obs.Describe()
	assert.Equal(t, 1, desc["cycle"])
	assert.Equal(t, 1, desc["constraint_count"])
	assert.Equal(t, map[string]interface{}{"alive": true}, desc["result"])

	trace := desc["trace"].(map[string]interface{})
	assert.Equal(t, 2, trace["void"].(map[string]interface{})["potential_count"])
	astral := trace["astral"].(map[string]interface{})
	assert.Equal(t, 1, astral["survivor_count"])
	narrowing := astral["narrowing"].([]interface{})
	require.Len(t, narrowing, 1)
	assert.Equal(t, map[string]interface{}{"constraint": "is_dict", "before": 2, "after": 1}, narrowing[0])
	assert.Equal(t, map[string]interface{}{"alive": true}, trace["etheric"].(map[string]interface{})["bound"])

	assert.NotContains(t, e.Introspect().Describe(), "trace")
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func TestEngine_SnapshotRoundTrip(t *testing.T) {
	st := &memStore{}
	e := NewEngine(WithStore(st))
	e.Cycle([]types.Candidate{obj(map[string]interface{}{"x": 42})})
	require.NoError(t, e.LastPersistError())

	require.NotNil(t, st.snap)
	assert.Equal(t, 1, st.snap.RoundCount)
	assert.Empty(t, st.snap.VocabularyExpansions)

	restored := NewEngine(WithStore(st))
	assert.True(t, restored.State().Equal(obj(map[string]interface{}{"x": 42})))
	x, _ := restored.State().Get("x")
	_, isInt := x.AsInt()
	assert.True(t, isInt)
	assert.Equal(t, 1, restored.RoundCount())
	assert.Empty(t, restored.VocabularyExpansions())
	assert.Equal(t, e.ID(), restored.ID())
	assert.True(t, e.Birth().Equal(restored.Birth()))
	assert.Empty(t, restored.History(), "history is per session")
}

func TestEngine_SnapshotRoundTripKeepsFloatKind(t *testing.T) {
	st := &memStore{}
	e := NewEngine(WithStore(st))
	state := types.EmptyStruct().
		With("x", types.Float(2.0)).
		With("l", types.List(types.Float(3), types.Int(3)))
	e.Cycle([]types.Candidate{state})
	require.NoError(t, e.LastPersistError())

	restored := NewEngine(WithStore(st))
	x, _ := restored.State().Get("x")
	assert.Equal(t, types.KindFloat, x.Kind())
	l, _ := restored.State().Get("l")
	items := l.Items()
	require.Len(t, items, 2)
	assert.Equal(t, types.KindFloat, items[0].Kind())
	assert.Equal(t, types.KindInt, items[1].Kind())
}

func TestEngine_RestoresExpansionsAndReflectionPredicates(t *testing.T) {
	st := &memStore{}
	e := NewEngine(WithStore(st))
	e.Declare("is_dict", Check(isStruct), LayerMental, "test")
	e.Cycle([]types.Candidate{
		obj(map[string]interface{}{"a": true}),
		obj(map[string]interface{}{"a": true, "b": true}),
	})
	require.NotNil(t, e.Reflect())
	_, ok := e.Perturb()
	require.True(t, ok)

	restored := NewEngine(WithStore(st))
	preds := restored.Predicates()
	require.Len(t, preds, 1, "only reflection predicates are rebuilt")
	assert.Equal(t, "requires_b", preds[0].Name())
	assert.Equal(t, SourceReflection, preds[0].Source())
	assert.True(t, preds[0].Satisfied(obj(map[string]interface{}{"b": 1})))

	assert.Equal(t, e.VocabularyExpansions(), restored.VocabularyExpansions())
	assert.Len(t, st.snap.Predicates, 2)
}

func TestEngine_MissingSnapshotIsFresh(t *testing.T) {
	e := NewEngine(WithStore(&memStore{}))
	assert.Equal(t, 0, e.RoundCount())
	assert.NoError(t, e.LastPersistError())
}

func TestEngine_LoadFailureStartsFresh(t *testing.T) {
	e := NewEngine(WithStore(&memStore{loadErr: errors.New("corrupt")}))
	assert.Equal(t, 0, e.RoundCount())
	assert.ErrorContains(t, e.LastPersistError(), "corrupt")
}

func TestEngine_SaveFailureNeverAbortsRound(t *testing.T) {
	st := &memStore{saveErr: errors.New("read-only")}
	e := NewEngine(WithStore(st))
	obs := e.Cycle([]types.Candidate{types.Int(1)})
	assert.True(t, obs.Result.Equal(types.Int(1)))
	assert.ErrorContains(t, e.LastPersistError(), "read-only")

	st.saveErr = nil
	e.Cycle([]types.Candidate{types.Int(2)})
	assert.NoError(t, e.LastPersistError())
	assert.Equal(t, 2, st.snap.RoundCount)
}

func TestEngine_RecordsRounds(t *testing.T) {
	st := &memStore{}
	e := NewEngine(WithStore(st))
	e.Cycle(nil)
	e.Cycle([]types.Candidate{types.Int(1)})
	assert.Equal(t, []int{1, 2}, st.rounds)
}

func TestSnapshot_CloneIsIndependent(t *testing.T) {
	snap := &Snapshot{
		VocabularyExpansions: map[string]types.Candidate{"k": types.Bool(true)},
		Predicates:           []PredicateDescription{{Name: "p"}},
	}
	cp := snap.Clone()
	cp.VocabularyExpansions["other"] = types.Bool(true)
	cp.Predicates[0].Name = "q"
	assert.Len(t, snap.VocabularyExpansions, 1)
	assert.Equal(t, "p", snap.Predicates[0].Name)
	assert.Nil(t, (*Snapshot)(nil).Clone())
}

func TestRestorePredicate(t *testing.T) {
	_, ok := restorePredicate(PredicateDescription{Name: "requires_x", Source: SourceExternal})
	assert.False(t, ok)
	_, ok = restorePredicate(PredicateDescription{Name: "requires_", Source: SourceReflection})
	assert.False(t, ok)
	p, ok := restorePredicate(PredicateDescription{Name: "requires_x_y", Source: SourceReflection, Layer: LayerAstral, DeclaredAt: 3})
	require.True(t, ok)
	assert.Equal(t, PredicateDescription{Name: "requires_x_y", Source: SourceReflection, Layer: LayerAstral, DeclaredAt: 3}, p.Describe())
	assert.True(t, p.Satisfied(obj(map[string]interface{}{"x_y": 0})))
}

func TestParseLayer(t *testing.T) {
	l, err := ParseLayer("")
	require.NoError(t, err)
	assert.Equal(t, LayerMental, l)
	l, err = ParseLayer("etheric")
	require.NoError(t, err)
	assert.Equal(t, LayerEtheric, l)
	_, err = ParseLayer("spiritual")
	assert.Error(t, err)
}
