package main

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"

	"srf-carbon/internal/models"
	"srf-carbon/internal/revenue"
	"srf-carbon/internal/woodland"
)

// scenarioFile is the TOML scenario format. Every key is optional and
// falls back to the reference scenario.
//
//	seed = 42
//	workers = 4
//
//	[woodland]
//	area_ha = 2.0
//	footprint_m2 = 2.25
//	rotation_years = 15
//	horizon_years = 100
//
//	[[woodland.mix]]
//	species = "alder"
//	fraction = 1.0
//
//	[processing]
//	credit_per_co2_tonne = 45.0
type scenarioFile struct {
	Seed       *int64            `toml:"seed"`
	Workers    *int              `toml:"workers"`
	Woodland   woodlandSection   `toml:"woodland"`
	Processing processingSection `toml:"processing"`
}

type woodlandSection struct {
	AreaHa        *float64            `toml:"area_ha"`
	FootprintHa   *float64            `toml:"footprint_ha"`
	FootprintM2   *float64            `toml:"footprint_m2"`
	RotationYears *float64            `toml:"rotation_years"`
	HorizonYears  *int                `toml:"horizon_years"`
	Mix           []woodland.MixEntry `toml:"mix"`
}

type processingSection struct {
	CreditPerCO2Tonne     *float64 `toml:"credit_per_co2_tonne"`
	PyrolysisCostPerTonne *float64 `toml:"pyrolysis_cost_per_tonne"`
	ResalePerTonne        *float64 `toml:"resale_per_tonne"`
	LandPerTonne          *float64 `toml:"land_per_tonne"`
	LandValuePerHa        *float64 `toml:"land_value_per_ha"`
}

func parseScenario(data []byte) (*scenarioFile, error) {
	var s scenarioFile
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode scenario: %w", err)
	}
	return &s, nil
}

func loadScenario(path string) (*scenarioFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario: %w", err)
	}
	return parseScenario(data)
}

// request converts the file into the request shape shared with the API
func (s *scenarioFile) request() *models.SimulationRequest {
	p := revenue.DefaultProcessing()
	set := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	set(&p.CreditPerCO2Tonne, s.Processing.CreditPerCO2Tonne)
	set(&p.PyrolysisCostPerTonne, s.Processing.PyrolysisCostPerTonne)
	set(&p.ResalePerTonne, s.Processing.ResalePerTonne)
	set(&p.LandPerTonne, s.Processing.LandPerTonne)
	set(&p.LandValuePerHa, s.Processing.LandValuePerHa)

	return &models.SimulationRequest{
		Seed:          s.Seed,
		AreaHa:        s.Woodland.AreaHa,
		FootprintHa:   s.Woodland.FootprintHa,
		FootprintM2:   s.Woodland.FootprintM2,
		RotationYears: s.Woodland.RotationYears,
		HorizonYears:  s.Woodland.HorizonYears,
		Mix:           s.Woodland.Mix,
		Processing:    &p,
	}
}
