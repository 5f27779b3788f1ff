package core

import (
	"chrysalis/internal/logging"
	"chrysalis/internal/types"
)

// Perturbation records a vocabulary key synthesized in a round.
type Perturbation struct {
	Round int    `json:"round"`
	Key   string `json:"key"`
}

// Trajectory records one Evolve run. Per-round slices are indexed by the
// round's position in the run, starting at 0.
type Trajectory struct {
	Observations  []*Observation    `json:"observations"`
	Reflections   []*Predicate      `json:"-"` // nil where reflection found nothing
	DomainSizes   []int             `json:"domain_sizes"`
	Results       []types.Candidate `json:"results"`
	FixedPoint    bool              `json:"fixed_point"`
	FixedAt       int               `json:"fixed_at"` // -1 when no stall occurred
	Perturbations []Perturbation    `json:"perturbations"`
}

// ReflectionNames returns the synthesized predicate name per round, "" where
// none was added.
func (t *Trajectory) ReflectionNames() []string {
	out := make([]string, len(t.Reflections))
	for i, p := range t.Reflections {
		if p != nil {
			out[i] = p.Name()
		}
	}
	return out
}

// Evolve runs steps rounds of generate, resolve, bind, reflect and, on a
// stall that reflection could not break, perturb. A stall is a round whose
// result equals the previous round's result in the same run. The snapshot is
// written once per round.
func (e *Engine) Evolve(steps int) *Trajectory {
	e.mu.Lock()
	defer e.mu.Unlock()

	traj := &Trajectory{FixedAt: -1}
	if steps <= 0 {
		return traj
	}
	timer := logging.StartTimer(logging.CategoryEvolution, "evolve")
	defer timer.StopWithInfo()

	for i := 0; i < steps; i++ {
		domain := e.generateDomain()
		traj.DomainSizes = append(traj.DomainSizes, len(domain))

		obs := e.cycle(domain)
		traj.Observations = append(traj.Observations, obs)
		traj.Results = append(traj.Results, obs.Result)

		stalled := i > 0 && obs.Result.Equal(traj.Results[i-1])
		if stalled {
			e.metrics.IncStall()
			e.audit.StallDetected(e.roundCount)
			if !traj.FixedPoint {
				traj.FixedPoint = true
				traj.FixedAt = i
			}
			logging.EvolutionDebug("step %d stalled on %s", i, obs.Result)
		}

		reflected := e.reflect()
		traj.Reflections = append(traj.Reflections, reflected)

		if stalled && reflected == nil {
			if key, ok := e.perturb(); ok {
				traj.Perturbations = append(traj.Perturbations, Perturbation{Round: i, Key: key})
			}
		}
		e.persist()
	}

	logging.Evolution("Evolved %d steps: domain sizes=%v fixed_point=%v fixed_at=%d perturbations=%d",
		steps, traj.DomainSizes, traj.FixedPoint, traj.FixedAt, len(traj.Perturbations))
	return traj
}
