// Package revenue converts harvested biochar into a net income series.
package revenue

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"

	"srf-carbon/internal/woodland"
)

// CarbonToCO2 converts biochar tonnes into credited CO₂ tonnes. Only the two
// oxygen atoms are counted against carbon.
const CarbonToCO2 = (16.0 + 16.0) / 12.0

// ErrInvalidProcessing marks a rejected price schedule.
var ErrInvalidProcessing = errors.New("invalid processing economics")

// Processing holds the prices applied to each tonne of biochar.
type Processing struct {
	CreditPerCO2Tonne     float64 `json:"credit_per_co2_tonne" toml:"credit_per_co2_tonne"`
	PyrolysisCostPerTonne float64 `json:"pyrolysis_cost_per_tonne" toml:"pyrolysis_cost_per_tonne"`
	ResalePerTonne        float64 `json:"resale_per_tonne" toml:"resale_per_tonne"`
	LandPerTonne          float64 `json:"land_per_tonne" toml:"land_per_tonne"`
	LandValuePerHa        float64 `json:"land_value_per_ha" toml:"land_value_per_ha"`
}

// DefaultProcessing returns the reference price schedule in GBP.
func DefaultProcessing() Processing {
	return Processing{
		CreditPerCO2Tonne:     30,
		PyrolysisCostPerTonne: 50,
		ResalePerTonne:        800,
	}
}

// Validate rejects negative or non-finite prices.
func (p Processing) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"credit_per_co2_tonne", p.CreditPerCO2Tonne},
		{"pyrolysis_cost_per_tonne", p.PyrolysisCostPerTonne},
		{"resale_per_tonne", p.ResalePerTonne},
		{"land_per_tonne", p.LandPerTonne},
		{"land_value_per_ha", p.LandValuePerHa},
	}
	for _, f := range fields {
		if math.IsNaN(f.value) || math.IsInf(f.value, 0) || f.value < 0 {
			return fmt.Errorf("%w: %s must be a finite non-negative number, got %v", ErrInvalidProcessing, f.name, f.value)
		}
	}
	return nil
}

// CarbonCredits is the credit value of the CO₂ locked in biochar tonnes.
func (p Processing) CarbonCredits(biochar float64) float64 {
	return biochar * CarbonToCO2 * p.CreditPerCO2Tonne
}

// Resale is the sale value of biochar tonnes.
func (p Processing) Resale(biochar float64) float64 {
	return biochar * p.ResalePerTonne
}

// LandUse is the value attributed to the land the biochar stands for.
func (p Processing) LandUse(biochar float64) float64 {
	return biochar * p.LandPerTonne * p.LandValuePerHa
}

// PyrolysisCost is the processing cost of biochar tonnes.
func (p Processing) PyrolysisCost(biochar float64) float64 {
	return biochar * p.PyrolysisCostPerTonne
}

// NetIncome is credits plus resale plus land use, minus pyrolysis.
func (p Processing) NetIncome(biochar float64) float64 {
	return p.CarbonCredits(biochar) + p.Resale(biochar) + p.LandUse(biochar) - p.PyrolysisCost(biochar)
}

// YearIncome is the income earned from one simulated year.
type YearIncome struct {
	Year    int     `json:"year"`
	Biochar float64 `json:"biochar"`
	Net     float64 `json:"net_income"`
}

// Convert prices every year of a simulation.
func (p Processing) Convert(results []woodland.YearResult) []YearIncome {
	incomes := make([]YearIncome, len(results))
	for i, r := range results {
		incomes[i] = YearIncome{Year: r.Year, Biochar: r.Biomass, Net: p.NetIncome(r.Biomass)}
	}
	return incomes
}

// Summary condenses an income series.
type Summary struct {
	Years        int     `json:"years"`
	TotalBiochar float64 `json:"total_biochar"`
	// Total is the area under the net income curve over the year span.
	Total   float64 `json:"total_net_income"`
	Average float64 `json:"average_net_income"`
}

// Summarize integrates the series with the trapezoidal rule and averages
// the yearly values. Fewer than two years integrate to zero.
func Summarize(incomes []YearIncome) Summary {
	s := Summary{Years: len(incomes)}
	if len(incomes) == 0 {
		return s
	}

	years := make([]float64, len(incomes))
	net := make([]float64, len(incomes))
	biochar := make([]float64, len(incomes))
	for i, in := range incomes {
		years[i] = float64(in.Year)
		net[i] = in.Net
		biochar[i] = in.Biochar
	}

	s.TotalBiochar = floats.Sum(biochar)
	s.Average = floats.Sum(net) / float64(len(net))
	if len(incomes) > 1 {
		s.Total = integrate.Trapezoidal(years, net)
	}
	return s
}
