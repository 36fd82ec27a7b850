package woodland

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/floats"

	"srf-carbon/internal/growth"
)

const (
	// fractionSlack is the tolerance on the mix fraction sum.
	fractionSlack = 1e-9

	// MaxCapacity bounds the number of tree slots a single woodland may hold.
	MaxCapacity = 50_000_000
)

// MixEntry is one species share of the planted area.
type MixEntry struct {
	Species  string  `json:"species" toml:"species"`
	Fraction float64 `json:"fraction" toml:"fraction"`
}

// Config describes a woodland scenario.
type Config struct {
	AreaHa        float64    `json:"area_ha" toml:"area_ha"`
	FootprintHa   float64    `json:"footprint_ha" toml:"footprint_ha"`
	RotationYears float64    `json:"rotation_years" toml:"rotation_years"`
	HorizonYears  int        `json:"horizon_years" toml:"horizon_years"`
	Mix           []MixEntry `json:"mix" toml:"mix"`
}

// DefaultConfig returns the reference scenario: one hectare planted at
// 1.5 m spacing with an even four-species mix on a 20 year rotation,
// simulated for years 0 through 150.
func DefaultConfig() Config {
	return Config{
		AreaHa:        1.0,
		FootprintHa:   SquareMetresToHectares(1.5 * 1.5),
		RotationYears: 20,
		HorizonYears:  151,
		Mix: []MixEntry{
			{Species: "Quercus robur", Fraction: 0.25},
			{Species: "Acer pseudoplatanus", Fraction: 0.25},
			{Species: "Alnus glutinosa", Fraction: 0.25},
			{Species: "Populus tremula", Fraction: 0.25},
		},
	}
}

// SquareMetresToHectares converts an area in m² to hectares.
func SquareMetresToHectares(m2 float64) float64 {
	return m2 / 10_000
}

// Validate checks the numeric fields and mix fractions. Species names are
// resolved when the woodland is built.
func (c Config) Validate() error {
	switch {
	case math.IsNaN(c.AreaHa) || math.IsInf(c.AreaHa, 0) || c.AreaHa < 0:
		return configError("area_ha", c.AreaHa, "area must be a finite non-negative number of hectares")
	case math.IsNaN(c.FootprintHa) || math.IsInf(c.FootprintHa, 0) || c.FootprintHa <= 0:
		return configError("footprint_ha", c.FootprintHa, "tree footprint must be positive")
	case math.IsNaN(c.RotationYears) || math.IsInf(c.RotationYears, 0) || c.RotationYears <= 0:
		return configError("rotation_years", c.RotationYears, "rotation period must be positive")
	case c.HorizonYears < 0:
		return configError("horizon_years", c.HorizonYears, "horizon must not be negative")
	}

	if capacity := math.Floor(c.AreaHa / c.FootprintHa); capacity > MaxCapacity {
		return configError("area_ha", c.AreaHa, "woodland holds %.0f trees, limit is %d", capacity, MaxCapacity)
	}

	fractions := make([]float64, len(c.Mix))
	for i, entry := range c.Mix {
		field := fmt.Sprintf("mix[%d]", i)
		if entry.Species == "" {
			return configError(field+".species", entry.Species, "species name is required")
		}
		if math.IsNaN(entry.Fraction) || entry.Fraction < 0 || entry.Fraction > 1 {
			return configError(field+".fraction", entry.Fraction, "fraction must be within [0, 1]")
		}
		fractions[i] = entry.Fraction
	}
	if sum := floats.Sum(fractions); sum > 1+fractionSlack {
		return configError("mix", sum, "fractions sum to %g, more than the whole area", sum)
	}
	return nil
}

// ModelSource resolves species names to growth models.
type ModelSource interface {
	Model(name string) (*growth.Model, error)
}

// SpeciesCount is the number of trees planted for one mix entry.
type SpeciesCount struct {
	Species  string  `json:"species"`
	Fraction float64 `json:"fraction"`
	Trees    int     `json:"trees"`
}

// Planting reports how the capacity of the area was allocated. Unplanted
// slots come from truncating each species count.
type Planting struct {
	Capacity  int            `json:"capacity"`
	Planted   int            `json:"planted"`
	Unplanted int            `json:"unplanted"`
	Species   []SpeciesCount `json:"species"`
}

// YearResult is the woodland-wide outcome of one simulated year.
type YearResult struct {
	Year      int     `json:"year"`
	Biomass   float64 `json:"biomass"`
	Harvested int     `json:"harvested"`
}

// Observer receives progress from a woodland. Calls happen on the
// goroutine driving the simulation.
type Observer interface {
	Planted(p Planting)
	YearSimulated(r YearResult)
}

type options struct {
	workers  int
	observer Observer
}

// Option configures a Woodland.
type Option func(*options)

// WithWorkers splits each simulated year across n goroutines. Every tree
// then draws from its own stream, so results differ from a sequential run
// with the same seed but are reproducible for a given n.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithObserver registers an observer for planting and yearly results.
func WithObserver(obs Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// Woodland owns the trees of a scenario and simulates them year by year.
// It is not safe for concurrent use.
type Woodland struct {
	trees       []Tree
	probability float64
	rng         *rand.Rand
	workers     int
	observer    Observer
	planting    Planting
	year        int
}

// New plants a woodland for cfg. Trees are planted per mix entry, in order,
// as floor(capacity * fraction) with capacity floor(area / footprint).
func New(cfg Config, source ModelSource, rng *rand.Rand, opts ...Option) (*Woodland, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, configError("species", nil, "a species model source is required")
	}
	if rng == nil {
		return nil, configError("rng", nil, "a random stream is required")
	}

	o := options{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}
	if o.workers < 1 {
		return nil, configError("workers", o.workers, "worker count must be at least 1")
	}

	capacity := int(math.Floor(cfg.AreaHa / cfg.FootprintHa))
	planting := Planting{Capacity: capacity, Species: make([]SpeciesCount, 0, len(cfg.Mix))}

	models := make([]*growth.Model, len(cfg.Mix))
	seen := make(map[string]int, len(cfg.Mix))
	for i, entry := range cfg.Mix {
		model, err := source.Model(entry.Species)
		if err != nil {
			var gerr *growth.Error
			if errors.As(err, &gerr) {
				return nil, err
			}
			cerr := configError(fmt.Sprintf("mix[%d].species", i), entry.Species, "%v", err)
			cerr.Err = err
			return nil, cerr
		}
		if j, dup := seen[model.Species()]; dup {
			return nil, configError(fmt.Sprintf("mix[%d].species", i), entry.Species,
				"%s already listed at mix[%d]", model.Species(), j)
		}
		seen[model.Species()] = i
		models[i] = model

		n := int(math.Floor(float64(capacity) * entry.Fraction))
		planting.Species = append(planting.Species, SpeciesCount{
			Species:  model.Species(),
			Fraction: entry.Fraction,
			Trees:    n,
		})
		planting.Planted += n
	}
	planting.Unplanted = capacity - planting.Planted

	trees := make([]Tree, 0, planting.Planted)
	for i, count := range planting.Species {
		for range count.Trees {
			trees = append(trees, Tree{model: models[i], footprint: cfg.FootprintHa})
		}
	}
	if o.workers > 1 {
		for i := range trees {
			trees[i].stream = splitStream(rng)
		}
	}

	w := &Woodland{
		trees:       trees,
		probability: 1 / cfg.RotationYears,
		rng:         rng,
		workers:     o.workers,
		observer:    o.observer,
		planting:    planting,
	}
	if w.observer != nil {
		w.observer.Planted(planting)
	}
	return w, nil
}

// Trees returns the number of planted trees.
func (w *Woodland) Trees() int { return len(w.trees) }

// Planting returns the species allocation made at construction.
func (w *Woodland) Planting() Planting { return w.planting }

// HarvestProbability returns the per-tree, per-year harvest chance.
func (w *Woodland) HarvestProbability() float64 { return w.probability }

// Year returns the index of the next year to simulate.
func (w *Woodland) Year() int { return w.year }

// SimulateYear harvests each tree independently with probability
// 1/rotation and returns the summed harvested mass.
func (w *Woodland) SimulateYear() YearResult {
	var (
		total     float64
		harvested int
	)
	if w.workers > 1 {
		total, harvested = w.simulateChunks()
	} else {
		total, harvested = advance(w.trees, w.probability, w.rng)
	}
	if math.IsNaN(total) || math.IsInf(total, 0) {
		panic(fmt.Sprintf("woodland: year %d produced non-finite biomass %v", w.year, total))
	}

	result := YearResult{Year: w.year, Biomass: total, Harvested: harvested}
	w.year++
	if w.observer != nil {
		w.observer.YearSimulated(result)
	}
	return result
}

// SimulateHorizon runs n consecutive years.
func (w *Woodland) SimulateHorizon(n int) []YearResult {
	if n <= 0 {
		return []YearResult{}
	}
	results := make([]YearResult, 0, n)
	for range n {
		results = append(results, w.SimulateYear())
	}
	return results
}

// advance moves trees through one year. A nil rng means each tree draws
// from its own stream.
func advance(trees []Tree, p float64, rng *rand.Rand) (float64, int) {
	var (
		total     float64
		harvested int
	)
	for i := range trees {
		r := rng
		if r == nil {
			r = trees[i].stream
		}
		cut := r.Float64() < p
		if cut {
			harvested++
		}
		total += trees[i].AdvanceYear(cut)
	}
	return total, harvested
}

func (w *Woodland) simulateChunks() (float64, int) {
	if len(w.trees) == 0 {
		return 0, 0
	}
	workers := min(w.workers, len(w.trees))
	size := (len(w.trees) + workers - 1) / workers

	type partial struct {
		total     float64
		harvested int
	}
	partials := make([]partial, workers)

	var wg sync.WaitGroup
	for c := range workers {
		start := c * size
		end := min(start+size, len(w.trees))
		if start >= end {
			continue
		}
		wg.Add(1)
		go func(c int, chunk []Tree) {
			defer wg.Done()
			total, harvested := advance(chunk, w.probability, nil)
			partials[c] = partial{total: total, harvested: harvested}
		}(c, w.trees[start:end])
	}
	wg.Wait()

	var (
		total     float64
		harvested int
	)
	for _, p := range partials {
		total += p.total
		harvested += p.harvested
	}
	return total, harvested
}
