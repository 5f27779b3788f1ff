package core

import (
	"time"

	"chrysalis/internal/types"
)

// Observation records one moment of the engine: a completed round, or an
// introspection when Trace is nil.
type Observation struct {
	Cycle       int                    `json:"cycle"`
	Timestamp   time.Time              `json:"timestamp"`
	Predicates  []PredicateDescription `json:"constraints"`
	State       types.Candidate        `json:"state"`
	Result      types.Candidate        `json:"result"`
	LayerCensus map[Layer]int          `json:"layer_census"`
	Notes       string                 `json:"notes,omitempty"`
	Trace       *ResolutionRecord      `json:"trace,omitempty"`
}

// Survivors returns the round's surviving candidates, nil for introspections.
func (o *Observation) Survivors() []types.Candidate {
	if o.Trace == nil {
		return nil
	}
	return o.Trace.Survivors
}

// Describe returns the observation as nested plain values, with the
// resolution trace broken out by layer when present.
func (o *Observation) Describe() map[string]interface{} {
	constraints := make([]interface{}, len(o.Predicates))
	for i, d := range o.Predicates {
		constraints[i] = map[string]interface{}{
			"name":        d.Name,
			"layer":       string(d.Layer),
			"source":      d.Source,
			"declared_at": d.DeclaredAt,
		}
	}
	layerCensus := make(map[string]interface{}, len(o.LayerCensus))
	for l, n := range o.LayerCensus {
		layerCensus[string(l)] = n
	}

	desc := map[string]interface{}{
		"cycle":            o.Cycle,
		"timestamp":        o.Timestamp.Format(time.RFC3339Nano),
		"constraint_count": len(o.Predicates),
		"constraints":      constraints,
		"state":            o.State.ToAny(),
		"result":           o.Result.ToAny(),
		"layer_census":     layerCensus,
		"notes":            o.Notes,
	}
	if o.Trace != nil {
		desc["trace"] = o.describeTrace()
	}
	return desc
}

func (o *Observation) describeTrace() map[string]interface{} {
	narrowing := make([]interface{}, len(o.Trace.Narrowing))
	for i, s := range o.Trace.Narrowing {
		narrowing[i] = map[string]interface{}{
			"constraint": s.Predicate,
			"before":     s.Before,
			"after":      s.After,
		}
	}
	return map[string]interface{}{
		"void":   map[string]interface{}{"potential_count": len(o.Trace.Domain)},
		"mental": map[string]interface{}{"constraint_count": len(o.Predicates)},
		"astral": map[string]interface{}{
			"narrowing":      narrowing,
			"survivor_count": len(o.Trace.Survivors),
		},
		"etheric":  map[string]interface{}{"bound": o.State.ToAny()},
		"physical": map[string]interface{}{"result": o.Trace.Result.ToAny()},
	}
}
