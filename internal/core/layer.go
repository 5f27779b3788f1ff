// Package core implements the chrysalis evolution engine: predicates, the
// resolver, the domain generator, reflection, perturbation and the iterated
// evolution loop that ties them together.
package core

import "fmt"

// Layer is an advisory grouping tag for predicates. It is used for census and
// reporting only and never affects resolution.
type Layer string

const (
	LayerVoid     Layer = "void"     // Unconstrained potential
	LayerMental   Layer = "mental"   // Constraint declarations
	LayerAstral   Layer = "astral"   // Resolution over the candidate space
	LayerEtheric  Layer = "etheric"  // Binding to state
	LayerPhysical Layer = "physical" // Observable output
)

// Layers lists every layer in stack order.
var Layers = []Layer{LayerVoid, LayerMental, LayerAstral, LayerEtheric, LayerPhysical}

// ParseLayer maps a layer name to a Layer. The empty string selects LayerMental.
func ParseLayer(s string) (Layer, error) {
	if s == "" {
		return LayerMental, nil
	}
	for _, l := range Layers {
		if string(l) == s {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown layer %q", s)
}

// census counts predicates per layer. Every layer is present, zero or not.
func census(preds []*Predicate) map[Layer]int {
	out := make(map[Layer]int, len(Layers))
	for _, l := range Layers {
		out[l] = 0
	}
	for _, p := range preds {
		out[p.layer]++
	}
	return out
}
