package core

import (
	"sort"

	"chrysalis/internal/logging"
	"chrysalis/internal/types"
)

// Vocabulary maps each observed key to its distinct values in first-seen order.
type Vocabulary map[string][]types.Candidate

// Keys returns the vocabulary's keys sorted.
func (v Vocabulary) Keys() []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Size is the number of structures the combinatorial expansion yields:
// the product over keys of (1 + number of values).
func (v Vocabulary) Size() int {
	n := 1
	for _, vals := range v {
		n *= 1 + len(vals)
	}
	return n
}

func (v Vocabulary) add(key string, val types.Candidate) {
	if types.Contains(v[key], val) {
		return
	}
	v[key] = append(v[key], val)
}

// experience collects every structured candidate the engine has touched:
// the bound state, each round's result and each round's survivors.
func experience(state types.Candidate, history []*Observation) []types.Candidate {
	var seen []types.Candidate
	if state.IsStruct() {
		seen = append(seen, state)
	}
	for _, obs := range history {
		if obs.Result.IsStruct() {
			seen = append(seen, obs.Result)
		}
		for _, s := range obs.Survivors() {
			if s.IsStruct() {
				seen = append(seen, s)
			}
		}
	}
	return seen
}

// ExtractVocabulary builds the vocabulary from experienced structures plus
// the accumulated expansions. Expansions merge in sorted key order.
func ExtractVocabulary(experienced []types.Candidate, expansions map[string]types.Candidate) Vocabulary {
	vocab := make(Vocabulary)
	for _, c := range experienced {
		for _, k := range c.Keys() {
			val, _ := c.Get(k)
			vocab.add(k, val)
		}
	}
	for _, k := range sortedKeys(expansions) {
		vocab.add(k, expansions[k])
	}
	return vocab
}

// Expand generates every key-presence/value assignment over vocab. Keys are
// applied in sorted order; each candidate is followed by its copies with the
// key set to each known value.
func Expand(vocab Vocabulary) []types.Candidate {
	out := []types.Candidate{types.EmptyStruct()}
	for _, key := range vocab.Keys() {
		vals := vocab[key]
		next := make([]types.Candidate, 0, len(out)*(1+len(vals)))
		for _, c := range out {
			next = append(next, c)
			for _, v := range vals {
				next = append(next, c.With(key, v))
			}
		}
		out = next
	}
	return out
}

// GenerateDomain produces the next candidate domain from the engine's memory.
// With no structured experience it returns [none, {}]. Otherwise the none-value
// is followed by the deduplicated combinatorial expansion of the vocabulary.
func GenerateDomain(state types.Candidate, history []*Observation, expansions map[string]types.Candidate) []types.Candidate {
	experienced := experience(state, history)
	if len(experienced) == 0 {
		logging.DomainDebug("no structured experience, minimal domain")
		return []types.Candidate{types.None(), types.EmptyStruct()}
	}

	vocab := ExtractVocabulary(experienced, expansions)
	generated := types.Dedupe(Expand(vocab))

	domain := make([]types.Candidate, 0, len(generated)+1)
	domain = append(domain, types.None())
	domain = append(domain, generated...)
	logging.DomainDebug("vocabulary keys=%v experienced=%d domain=%d", vocab.Keys(), len(experienced), len(domain))
	return domain
}

func sortedKeys(m map[string]types.Candidate) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
