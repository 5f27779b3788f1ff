package core

import (
	"fmt"

	"chrysalis/internal/logging"
	"chrysalis/internal/types"
)

// Perturb synthesizes a new vocabulary key from the bound state's key names
// and records it in expansions with the placeholder value true. It tries the
// pairwise composites "<a>_<b>" of the sorted keys first, then the depth
// marker "depth_<N>" where N counts state keys plus existing expansions.
// Values are never inspected. Returns false when state is not a non-empty
// structure or no new key is available. expansions must be non-nil.
func Perturb(state types.Candidate, expansions map[string]types.Candidate) (string, bool) {
	if !state.IsStruct() || state.Len() == 0 {
		return "", false
	}

	taken := func(k string) bool {
		if state.Has(k) {
			return true
		}
		_, ok := expansions[k]
		return ok
	}

	keys := state.Keys()
	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			composite := keys[i] + "_" + keys[j]
			if !taken(composite) {
				expansions[composite] = types.Bool(true)
				logging.Perturbation("composite key %s", composite)
				return composite, true
			}
		}
	}

	marker := fmt.Sprintf("depth_%d", len(keys)+len(expansions))
	if taken(marker) {
		logging.PerturbationDebug("depth marker %s already present, nothing to add", marker)
		return "", false
	}
	expansions[marker] = types.Bool(true)
	logging.Perturbation("depth marker %s", marker)
	return marker, true
}
