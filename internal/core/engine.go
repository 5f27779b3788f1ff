package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"chrysalis/internal/logging"
	"chrysalis/internal/metrics"
	"chrysalis/internal/types"
)

// =============================================================================
// ENGINE
// =============================================================================
// The engine owns the predicate list, the bound state, the round history and
// the vocabulary expansions. Every operation degrades to an empty or unchanged
// result rather than failing; store errors are logged and kept for inspection.

// Engine is one evolving instance. Methods are safe to call from multiple
// goroutines but rounds always run serially.
type Engine struct {
	mu sync.Mutex

	id         string
	birth      time.Time
	predicates []*Predicate
	state      types.Candidate
	history    []*Observation
	roundCount int
	expansions map[string]types.Candidate

	store          SnapshotStore
	metrics        *metrics.Metrics
	audit          *logging.AuditLogger
	lastPersistErr error
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore binds a snapshot store. The snapshot is loaded during NewEngine
// and rewritten after every mutating operation.
func WithStore(s SnapshotStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithMetrics attaches collectors. nil is allowed.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine creates an engine, restoring from the bound store if one is set.
// A missing or unreadable snapshot leaves the engine fresh.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		id:         uuid.NewString(),
		birth:      time.Now().UTC(),
		expansions: make(map[string]types.Candidate),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store != nil {
		e.load()
	}
	e.audit = logging.AuditFor(e.id)
	logging.Engine("Engine %s ready: round=%d predicates=%d state=%s", e.id, e.roundCount, len(e.predicates), e.state)
	return e
}

func (e *Engine) load() {
	snap, err := e.store.Load()
	if err != nil {
		e.lastPersistErr = fmt.Errorf("failed to load snapshot: %w", err)
		e.metrics.IncPersistFailure("load")
		logging.StoreError("Snapshot load failed, starting fresh: %v", err)
		return
	}
	if snap == nil {
		logging.Store("No snapshot found, starting fresh")
		return
	}
	e.restore(snap)
}

func (e *Engine) restore(snap *Snapshot) {
	if snap.EngineID != "" {
		e.id = snap.EngineID
	}
	if !snap.Birth.IsZero() {
		e.birth = snap.Birth
	}
	e.state = snap.State
	e.roundCount = snap.RoundCount
	for k, v := range snap.VocabularyExpansions {
		e.expansions[k] = v
	}
	restored := 0
	for _, d := range snap.Predicates {
		if p, ok := restorePredicate(d); ok {
			e.predicates = append(e.predicates, p)
			restored++
		}
	}
	logging.Store("Restored snapshot: round=%d expansions=%d reflection predicates=%d/%d",
		snap.RoundCount, len(snap.VocabularyExpansions), restored, len(snap.Predicates))
}

func (e *Engine) snapshot() *Snapshot {
	exp := make(map[string]types.Candidate, len(e.expansions))
	for k, v := range e.expansions {
		exp[k] = v
	}
	return &Snapshot{
		EngineID:             e.id,
		Birth:                e.birth,
		State:                e.state,
		RoundCount:           e.roundCount,
		VocabularyExpansions: exp,
		Predicates:           describeAll(e.predicates),
		SavedAt:              time.Now().UTC(),
	}
}

func (e *Engine) persist() {
	if e.store == nil {
		return
	}
	err := e.store.Save(e.snapshot())
	e.audit.SnapshotSaved(e.roundCount, err)
	if err != nil {
		e.lastPersistErr = fmt.Errorf("failed to save snapshot: %w", err)
		e.metrics.IncPersistFailure("save")
		logging.StoreError("Snapshot save failed at round %d: %v", e.roundCount, err)
		return
	}
	e.lastPersistErr = nil
	logging.StoreDebug("Snapshot saved at round %d", e.roundCount)
}

func (e *Engine) recordRound(result types.Candidate) {
	rr, ok := e.store.(RoundRecorder)
	if !ok {
		return
	}
	if err := rr.RecordRound(e.roundCount, result); err != nil {
		e.metrics.IncPersistFailure("record_round")
		logging.StoreError("Round log append failed at round %d: %v", e.roundCount, err)
	}
}

// =============================================================================
// ACCESSORS
// =============================================================================

func (e *Engine) ID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.id
}

func (e *Engine) Birth() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.birth
}

// RoundCount returns the number of rounds run across all sessions.
func (e *Engine) RoundCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.roundCount
}

// State returns the bound state.
func (e *Engine) State() types.Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// History returns this session's observations in order.
func (e *Engine) History() []*Observation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Observation(nil), e.history...)
}

// Predicates returns the active predicates in declaration order.
func (e *Engine) Predicates() []*Predicate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Predicate(nil), e.predicates...)
}

// VocabularyExpansions returns a copy of the synthesized keys.
func (e *Engine) VocabularyExpansions() map[string]types.Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot().VocabularyExpansions
}

// Snapshot returns what the engine would persist right now.
func (e *Engine) Snapshot() *Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot()
}

// LastPersistError returns the error from the most recent store operation,
// or nil if it succeeded.
func (e *Engine) LastPersistError() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPersistErr
}

// =============================================================================
// DECLARATION AND RESOLUTION
// =============================================================================

// Declare appends a predicate. Names are not required to be unique; a
// colliding name is logged and both predicates stay active.
func (e *Engine) Declare(name string, test TestFunc, layer Layer, source string) *Predicate {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, p := range e.predicates {
		if p.name == name {
			logging.EngineWarn("Predicate %q declared again; both remain active", name)
			break
		}
	}
	p := NewPredicate(name, test, layer, source, e.roundCount)
	e.predicates = append(e.predicates, p)
	e.audit.PredicateDeclared(e.roundCount, name)
	logging.EngineDebug("Declared %s", p)
	return p
}

// Resolve returns the first candidate in domain satisfying every predicate,
// or the none-value. It does not touch state or history.
func (e *Engine) Resolve(domain []types.Candidate) types.Candidate {
	e.mu.Lock()
	preds := append([]*Predicate(nil), e.predicates...)
	e.mu.Unlock()
	return Resolve(preds, domain).Result
}

// Cycle runs one stateful round against domain: resolve, bind a non-none
// result, record the observation and persist. A nil domain is valid.
func (e *Engine) Cycle(domain []types.Candidate) *Observation {
	e.mu.Lock()
	defer e.mu.Unlock()
	obs := e.cycle(domain)
	e.persist()
	return obs
}

// SelfCycle runs a round against the engine's own generated domain.
func (e *Engine) SelfCycle() *Observation {
	e.mu.Lock()
	defer e.mu.Unlock()
	obs := e.cycle(e.generateDomain())
	e.persist()
	return obs
}

func (e *Engine) cycle(domain []types.Candidate) *Observation {
	e.roundCount++
	rec := Resolve(e.predicates, domain)
	bound := !rec.Result.IsNone()
	if bound {
		e.state = rec.Result
	}

	obs := &Observation{
		Cycle:       e.roundCount,
		Timestamp:   time.Now().UTC(),
		Predicates:  describeAll(e.predicates),
		State:       e.state,
		Result:      rec.Result,
		LayerCensus: census(e.predicates),
		Trace:       rec,
	}
	if !bound {
		obs.Notes = "no survivor; state unchanged"
	}
	e.history = append(e.history, obs)

	e.metrics.ObserveRound(len(rec.Domain), len(rec.Survivors), bound)
	e.audit.RoundResolved(e.roundCount, len(rec.Survivors), bound)
	e.recordRound(rec.Result)
	logging.Engine("Round %d: %d candidates -> %d survivors, result=%s",
		e.roundCount, len(rec.Domain), len(rec.Survivors), rec.Result)
	return obs
}

// GenerateDomain returns the candidate domain the next self-cycle would use.
func (e *Engine) GenerateDomain() []types.Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.generateDomain()
}

func (e *Engine) generateDomain() []types.Candidate {
	timer := logging.StartTimer(logging.CategoryDomain, "generate domain")
	defer timer.Stop()
	return GenerateDomain(e.state, e.history, e.expansions)
}

// =============================================================================
// REFLECTION AND PERTURBATION
// =============================================================================

// Reflect inspects the most recent round for ambiguity. A synthesized
// predicate is appended to the active list and returned; nil means the last
// round was already sufficiently constrained.
func (e *Engine) Reflect() *Predicate {
	e.mu.Lock()
	defer e.mu.Unlock()
	p := e.reflect()
	if p != nil {
		e.persist()
	}
	return p
}

func (e *Engine) reflect() *Predicate {
	active := make(map[string]bool, len(e.predicates))
	for _, p := range e.predicates {
		active[p.name] = true
	}
	p := Reflect(e.history, active, e.roundCount)
	if p == nil {
		return nil
	}
	e.predicates = append(e.predicates, p)
	e.metrics.IncReflection()
	e.audit.PredicateReflected(e.roundCount, p.name)
	return p
}

// Perturb expands the vocabulary with a key composed from the bound state's
// keys. Returns false when nothing new could be synthesized.
func (e *Engine) Perturb() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	key, ok := e.perturb()
	if ok {
		e.persist()
	}
	return key, ok
}

func (e *Engine) perturb() (string, bool) {
	key, ok := Perturb(e.state, e.expansions)
	if !ok {
		return "", false
	}
	e.metrics.IncPerturbation()
	e.audit.VocabularyExpanded(e.roundCount, key)
	return key, true
}

// =============================================================================
// INTROSPECTION
// =============================================================================

// LayerCensus counts active predicates per layer.
func (e *Engine) LayerCensus() map[Layer]int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return census(e.predicates)
}

// Introspect observes the current moment without running a round.
func (e *Engine) Introspect() *Observation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &Observation{
		Cycle:       e.roundCount,
		Timestamp:   time.Now().UTC(),
		Predicates:  describeAll(e.predicates),
		State:       e.state,
		LayerCensus: census(e.predicates),
	}
}

// SelfDescription is the engine's machine-readable account of itself.
type SelfDescription struct {
	EngineID             string                     `json:"engine_id"`
	CycleCount           int                        `json:"cycle_count"`
	Birth                time.Time                  `json:"birth"`
	ConstraintCount      int                        `json:"constraint_count"`
	Constraints          []PredicateDescription     `json:"constraints"`
	State                types.Candidate            `json:"state"`
	HistoryLength        int                        `json:"history_length"`
	LayerCensus          map[Layer]int              `json:"layer_census"`
	VocabularyExpansions map[string]types.Candidate `json:"vocabulary_expansions"`
}

// DescribeSelf returns the engine's complete knowable state.
func (e *Engine) DescribeSelf() SelfDescription {
	e.mu.Lock()
	defer e.mu.Unlock()
	return SelfDescription{
		EngineID:             e.id,
		CycleCount:           e.roundCount,
		Birth:                e.birth,
		ConstraintCount:      len(e.predicates),
		Constraints:          describeAll(e.predicates),
		State:                e.state,
		HistoryLength:        len(e.history),
		LayerCensus:          census(e.predicates),
		VocabularyExpansions: e.snapshot().VocabularyExpansions,
	}
}
