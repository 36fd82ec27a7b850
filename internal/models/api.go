package models

import (
	"fmt"
	"math"

	"srf-carbon/internal/growth"
	"srf-carbon/internal/revenue"
	"srf-carbon/internal/species"
	"srf-carbon/internal/woodland"
)

// SpeciesResponse describes one species of the catalog
type SpeciesResponse struct {
	Name             string             `json:"name"`
	CommonName       string             `json:"common_name,omitempty"`
	Aliases          []string           `json:"aliases,omitempty"`
	ConversionFactor float64            `json:"conversion_factor"`
	Parameters       *growth.Parameters `json:"parameters,omitempty"`
	Points           []growth.Point     `json:"points,omitempty"`
	MAIAt0           *float64           `json:"mai_at_age_0,omitempty"`
}

// NewSpeciesResponse builds the response for def. model may be nil when
// the species has no usable curve yet.
func NewSpeciesResponse(def species.Definition, model *growth.Model) SpeciesResponse {
	resp := SpeciesResponse{
		Name:             def.Name,
		CommonName:       def.CommonName,
		Aliases:          def.Aliases,
		ConversionFactor: def.Conversion(),
		Parameters:       def.Parameters,
		Points:           def.Points,
	}
	if model != nil {
		p := model.Parameters()
		resp.Parameters = &p
		if v, err := model.MeanAnnualIncrement(0); err == nil {
			resp.MAIAt0 = &v
		}
	}
	return resp
}

// CurveResponse samples the MAI curve of a species
type CurveResponse struct {
	Species    string              `json:"species"`
	Parameters growth.Parameters   `json:"parameters"`
	Points     []growth.CurvePoint `json:"points"`
}

// FitRequest carries growth points to fit a curve to
type FitRequest struct {
	Points []growth.Point `json:"points"`
	Store  bool           `json:"store"`
}

// Validate checks the request shape; the fitter checks the data itself
func (r *FitRequest) Validate() error {
	if len(r.Points) == 0 {
		return &ValidationError{Field: "points", Value: "[]", Message: "at least two growth points are required"}
	}
	for i, p := range r.Points {
		if math.IsNaN(p.Age) || math.IsNaN(p.Rate) || math.IsInf(p.Age, 0) || math.IsInf(p.Rate, 0) {
			return &ValidationError{
				Field:   fmt.Sprintf("points[%d]", i),
				Value:   fmt.Sprintf("%v", p),
				Message: "growth points must be finite",
			}
		}
	}
	return nil
}

// FitResponse reports a fitted curve
type FitResponse struct {
	Species     string            `json:"species"`
	Parameters  growth.Parameters `json:"parameters"`
	Iterations  int               `json:"iterations"`
	Evaluations int               `json:"evaluations"`
	ResidualSS  float64           `json:"residual_sum_of_squares"`
	Cached      bool              `json:"cached"`
	Stored      bool              `json:"stored"`
}

// SimulationRequest overrides parts of the default scenario. Omitted
// fields keep their default values. A present but empty Mix plants no trees.
type SimulationRequest struct {
	Seed          *int64              `json:"seed,omitempty"`
	AreaHa        *float64            `json:"area_ha,omitempty"`
	FootprintHa   *float64            `json:"footprint_ha,omitempty"`
	FootprintM2   *float64            `json:"footprint_m2,omitempty"`
	RotationYears *float64            `json:"rotation_years,omitempty"`
	HorizonYears  *int                `json:"horizon_years,omitempty"`
	Mix           []woodland.MixEntry `json:"mix,omitempty"`
	Processing    *revenue.Processing `json:"processing,omitempty"`
}

// Apply merges the request onto base and checks request-level limits.
// Domain rules are left to woodland.Config.Validate.
func (r *SimulationRequest) Apply(base woodland.Config, maxHorizon int) (woodland.Config, error) {
	cfg := base
	cfg.Mix = append([]woodland.MixEntry(nil), base.Mix...)

	if r.FootprintHa != nil && r.FootprintM2 != nil {
		return cfg, &ValidationError{
			Field:   "footprint",
			Value:   fmt.Sprintf("%v ha, %v m2", *r.FootprintHa, *r.FootprintM2),
			Message: "give the tree footprint in hectares or square metres, not both",
		}
	}
	if r.AreaHa != nil {
		cfg.AreaHa = *r.AreaHa
	}
	if r.FootprintHa != nil {
		cfg.FootprintHa = *r.FootprintHa
	}
	if r.FootprintM2 != nil {
		cfg.FootprintHa = woodland.SquareMetresToHectares(*r.FootprintM2)
	}
	if r.RotationYears != nil {
		cfg.RotationYears = *r.RotationYears
	}
	if r.HorizonYears != nil {
		cfg.HorizonYears = *r.HorizonYears
	}
	if r.Mix != nil {
		cfg.Mix = append([]woodland.MixEntry{}, r.Mix...)
	}

	if maxHorizon > 0 && cfg.HorizonYears > maxHorizon {
		return cfg, &ValidationError{
			Field:   "horizon_years",
			Value:   fmt.Sprintf("%d", cfg.HorizonYears),
			Message: fmt.Sprintf("horizon may not exceed %d years", maxHorizon),
		}
	}
	return cfg, nil
}

// ProcessingOrDefault returns the requested price schedule or the default
func (r *SimulationRequest) ProcessingOrDefault() revenue.Processing {
	if r.Processing != nil {
		return *r.Processing
	}
	return revenue.DefaultProcessing()
}

// YearRow is one year of a simulation response
type YearRow struct {
	Year      int     `json:"year"`
	Biomass   float64 `json:"biomass"`
	Harvested int     `json:"harvested"`
	NetIncome float64 `json:"net_income"`
}

// SimulationResponse is the outcome of a simulation run
type SimulationResponse struct {
	RunID      string             `json:"run_id"`
	Seed       int64              `json:"seed"`
	Config     woodland.Config    `json:"config"`
	Processing revenue.Processing `json:"processing"`
	Planting   woodland.Planting  `json:"planting"`
	Years      []YearRow          `json:"years"`
	Summary    revenue.Summary    `json:"summary"`
}

// NewYearRows joins simulated years with their incomes
func NewYearRows(results []woodland.YearResult, incomes []revenue.YearIncome) []YearRow {
	rows := make([]YearRow, len(results))
	for i, r := range results {
		rows[i] = YearRow{Year: r.Year, Biomass: r.Biomass, Harvested: r.Harvested}
		if i < len(incomes) {
			rows[i].NetIncome = incomes[i].Net
		}
	}
	return rows
}

// ValidationError represents a request or catalog validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
