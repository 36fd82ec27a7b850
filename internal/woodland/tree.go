package woodland

import (
	"fmt"
	"math"
	"math/rand/v2"

	"srf-carbon/internal/growth"
)

// Tree is the simulation state of one coppiced tree: its species model,
// its ground footprint and the years since it was last harvested.
type Tree struct {
	model     *growth.Model
	footprint float64
	age       int

	// stream is only set when the woodland runs with several workers.
	stream *rand.Rand
}

// NewTree returns a newly planted tree of age 0.
func NewTree(model *growth.Model, footprintHa float64) *Tree {
	return &Tree{model: model, footprint: footprintHa}
}

// Age returns the number of years since planting or the last harvest.
func (t *Tree) Age() int { return t.age }

// Species returns the species of the tree's growth model.
func (t *Tree) Species() string { return t.model.Species() }

// AdvanceYear moves the tree through one year. An unharvested tree ages by a
// year and yields nothing; a harvested tree yields the mass grown since the
// last harvest and restarts at age 0. Call it exactly once per year.
func (t *Tree) AdvanceYear(harvested bool) float64 {
	if !harvested {
		t.age++
		return 0
	}

	mass, err := t.model.BiomassAccumulated(t.footprint, float64(t.age))
	if err != nil {
		panic(fmt.Sprintf("woodland: %v", err))
	}
	if math.IsNaN(mass) || math.IsInf(mass, 0) {
		panic(fmt.Sprintf("woodland: %s tree of age %d produced non-finite mass %v", t.model.Species(), t.age, mass))
	}
	t.age = 0
	return mass
}
