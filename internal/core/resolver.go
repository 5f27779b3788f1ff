package core

import (
	"chrysalis/internal/logging"
	"chrysalis/internal/types"
)

// NarrowingStep records one predicate's effect on the survivor count.
type NarrowingStep struct {
	Predicate string `json:"constraint"`
	Before    int    `json:"before"`
	After     int    `json:"after"`
}

// Eliminated returns how many candidates the step removed.
func (s NarrowingStep) Eliminated() int { return s.Before - s.After }

// ResolutionRecord is the output of one narrowing pass.
type ResolutionRecord struct {
	Domain    []types.Candidate `json:"domain"`
	Narrowing []NarrowingStep   `json:"narrowing"`
	Survivors []types.Candidate `json:"survivors"`
	Result    types.Candidate   `json:"result"`
}

// Resolve filters candidates through preds in order. Survivors keep input
// order and duplicates. The result is the first survivor, or the none-value
// when nothing survives.
func Resolve(preds []*Predicate, candidates []types.Candidate) *ResolutionRecord {
	rec := &ResolutionRecord{
		Domain:    append([]types.Candidate(nil), candidates...),
		Narrowing: make([]NarrowingStep, 0, len(preds)),
	}

	survivors := append([]types.Candidate(nil), candidates...)
	for _, p := range preds {
		before := len(survivors)
		kept := make([]types.Candidate, 0, len(survivors))
		for _, c := range survivors {
			if p.Satisfied(c) {
				kept = append(kept, c)
			}
		}
		survivors = kept
		rec.Narrowing = append(rec.Narrowing, NarrowingStep{Predicate: p.Name(), Before: before, After: len(survivors)})
		logging.ResolveDebug("%s: %d -> %d", p.Name(), before, len(survivors))
	}

	rec.Survivors = survivors
	if len(survivors) > 0 {
		rec.Result = survivors[0]
	}
	return rec
}
