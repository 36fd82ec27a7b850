package woodland

import "math/rand/v2"

// Run plants the woodland described by cfg and simulates cfg.HorizonYears
// years, returning one result per year starting at year 0. All randomness
// comes from rng, so a seeded stream gives a reproducible run.
func Run(cfg Config, source ModelSource, rng *rand.Rand, opts ...Option) ([]YearResult, error) {
	w, err := New(cfg, source, rng, opts...)
	if err != nil {
		return nil, err
	}
	return w.SimulateHorizon(cfg.HorizonYears), nil
}
