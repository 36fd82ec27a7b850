package models

import (
	"sort"
	"time"

	"github.com/lib/pq"

	"srf-carbon/internal/growth"
	"srf-carbon/internal/species"
)

// Parameter sources recorded with a stored species
const (
	SourcePredefined = "predefined"
	SourceFitted     = "fitted"
	SourcePoints     = "points"
)

// SpeciesRecord is a row of the species table. Curve parameters are NULL
// until the species has been given or fitted a curve.
type SpeciesRecord struct {
	ID               int64          `json:"id" db:"id"`
	Name             string         `json:"name" db:"name"`
	CommonName       string         `json:"common_name" db:"common_name"`
	Aliases          pq.StringArray `json:"aliases" db:"aliases"`
	ConversionFactor float64        `json:"conversion_factor" db:"conversion_factor"`
	Scale            *float64       `json:"scale,omitempty" db:"scale"`
	Rate             *float64       `json:"rate,omitempty" db:"rate"`
	Offset           *float64       `json:"offset,omitempty" db:"curve_offset"`
	Shift            *float64       `json:"shift,omitempty" db:"shift"`
	ParameterSource  string         `json:"parameter_source" db:"parameter_source"`
	CreatedAt        time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at" db:"updated_at"`
}

// GrowthPointRecord is one empirical MAI observation of a species
type GrowthPointRecord struct {
	SpeciesID int64   `json:"species_id" db:"species_id"`
	AgeYears  float64 `json:"age_years" db:"age_years"`
	RateM3    float64 `json:"rate_m3" db:"rate_m3"`
}

// Parameters returns the stored curve, or nil when any part is missing
func (r *SpeciesRecord) Parameters() *growth.Parameters {
	if r.Scale == nil || r.Rate == nil || r.Offset == nil || r.Shift == nil {
		return nil
	}
	return &growth.Parameters{Scale: *r.Scale, Rate: *r.Rate, Offset: *r.Offset, Shift: *r.Shift}
}

// SetParameters stores p on the record and marks where it came from
func (r *SpeciesRecord) SetParameters(p growth.Parameters, source string) {
	r.Scale, r.Rate, r.Offset, r.Shift = &p.Scale, &p.Rate, &p.Offset, &p.Shift
	r.ParameterSource = source
}

// NewSpeciesRecord converts a definition into its row and point rows
func NewSpeciesRecord(def species.Definition) (*SpeciesRecord, []GrowthPointRecord) {
	rec := &SpeciesRecord{
		Name:             def.Name,
		CommonName:       def.CommonName,
		Aliases:          pq.StringArray(append([]string(nil), def.Aliases...)),
		ConversionFactor: def.Conversion(),
		ParameterSource:  SourcePoints,
	}
	if def.Parameters != nil {
		rec.SetParameters(*def.Parameters, SourcePredefined)
	}

	points := make([]GrowthPointRecord, len(def.Points))
	for i, p := range def.Points {
		points[i] = GrowthPointRecord{AgeYears: p.Age, RateM3: p.Rate}
	}
	return rec, points
}

// Definition rebuilds the registry definition of a stored species. Points
// are ordered by age.
func (r *SpeciesRecord) Definition(points []GrowthPointRecord) species.Definition {
	sorted := append([]GrowthPointRecord(nil), points...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].AgeYears < sorted[j].AgeYears })

	def := species.Definition{
		Name:             r.Name,
		CommonName:       r.CommonName,
		Aliases:          append([]string(nil), r.Aliases...),
		ConversionFactor: r.ConversionFactor,
		Parameters:       r.Parameters(),
		Points:           make([]growth.Point, len(sorted)),
	}
	for i, p := range sorted {
		def.Points[i] = growth.Point{Age: p.AgeYears, Rate: p.RateM3}
	}
	return def
}
