package core

import (
	"sort"

	"chrysalis/internal/logging"
	"chrysalis/internal/types"
)

// Reflect looks for ambiguity in the most recent round. When two or more
// structured candidates survived and some key is present in only part of
// them, it returns a predicate requiring the first such key in sorted order.
// Keys already required by a predicate in active are skipped. round is
// recorded as the predicate's declaration round.
//
// Only key presence is ever required; values are not inspected.
func Reflect(history []*Observation, active map[string]bool, round int) *Predicate {
	if len(history) == 0 {
		return nil
	}
	last := history[len(history)-1]
	if last.Result.IsNone() || last.Trace == nil {
		return nil
	}
	if len(last.Trace.Survivors) <= 1 {
		return nil
	}

	var structured []types.Candidate
	for _, s := range last.Trace.Survivors {
		if s.IsStruct() {
			structured = append(structured, s)
		}
	}
	if len(structured) < 2 {
		return nil
	}

	union := make(map[string]struct{})
	for _, s := range structured {
		for _, k := range s.Keys() {
			union[k] = struct{}{}
		}
	}
	keys := make([]string, 0, len(union))
	for k := range union {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		name := reflectionPrefix + key
		if active[name] {
			continue
		}
		for _, s := range structured {
			if !s.Has(key) {
				logging.Reflection("round %d: key %q splits %d survivors, synthesizing %s", round, key, len(structured), name)
				return NewPredicate(name, RequiresKey(key), LayerMental, SourceReflection, round)
			}
		}
	}
	logging.ReflectionDebug("round %d: no differentiating key among %v", round, keys)
	return nil
}
