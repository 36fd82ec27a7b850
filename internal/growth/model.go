package growth

import (
	"errors"
	"fmt"
	"math"
)

// BiocharFactor converts a growth volume in m³ into tonnes of biochar.
const BiocharFactor = 1.0 / 3.0

// Parameters define MAI(age) = Scale*ln(Rate*age + Offset) + Shift.
type Parameters struct {
	Scale  float64 `json:"scale" toml:"scale"`
	Rate   float64 `json:"rate" toml:"rate"`
	Offset float64 `json:"offset" toml:"offset"`
	Shift  float64 `json:"shift" toml:"shift"`
}

// Validate checks that the logarithm argument stays positive for every
// age >= 0, which holds exactly when Offset > 0 and Rate >= 0.
func (p Parameters) Validate() error {
	if !p.finite() {
		return newError(ErrInvalidParameters, "parameters %+v must be finite", p)
	}
	if p.Offset <= 0 {
		return newError(ErrInvalidParameters, "offset %v gives a non-positive logarithm argument at age 0", p.Offset)
	}
	if p.Rate < 0 {
		return newError(ErrInvalidParameters, "rate %v makes the logarithm argument non-positive beyond age %.4g", p.Rate, -p.Offset/p.Rate)
	}
	return nil
}

// Canonical returns the identifiable form of the curve. The four parameters
// are redundant: (Rate, Offset, Shift) and (k*Rate, k*Offset,
// Shift-Scale*ln k) describe the same curve for any k > 0, so curves are
// compared as Scale*ln(age + AgeOffset) + LogShift.
func (p Parameters) Canonical() (scale, ageOffset, logShift float64) {
	return p.Scale, p.Offset / p.Rate, p.Shift + p.Scale*math.Log(p.Rate)
}

func (p Parameters) eval(age float64) (float64, bool) {
	u := p.Rate*age + p.Offset
	if !(u > 0) {
		return 0, false
	}
	v := p.Scale*math.Log(u) + p.Shift
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func (p Parameters) finite() bool {
	for _, v := range [...]float64{p.Scale, p.Rate, p.Offset, p.Shift} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (p Parameters) norm() float64 {
	return math.Sqrt(p.Scale*p.Scale + p.Rate*p.Rate + p.Offset*p.Offset + p.Shift*p.Shift)
}

// Model is the growth curve of one species. It is immutable and safe to
// share between any number of trees.
type Model struct {
	species    string
	params     Parameters
	conversion float64
}

// NewModel validates params against the age domain and returns the model.
// conversion turns one unit of growth volume into stored mass.
func NewModel(species string, params Parameters, conversion float64) (*Model, error) {
	if err := params.Validate(); err != nil {
		return nil, withSpecies(err, species)
	}
	if math.IsNaN(conversion) || math.IsInf(conversion, 0) || conversion < 0 {
		return nil, &Error{
			Kind:    ErrInvalidParameters,
			Species: species,
			Message: fmt.Sprintf("conversion factor %v must be finite and non-negative", conversion),
		}
	}
	return &Model{species: species, params: params, conversion: conversion}, nil
}

// NewModelFromPoints fits points with f and builds the model from the result.
func NewModelFromPoints(species string, points []Point, conversion float64, f Fitter) (*Model, *FitResult, error) {
	res, err := f.Fit(points)
	if err != nil {
		return nil, nil, withSpecies(err, species)
	}
	m, err := NewModel(species, res.Parameters, conversion)
	if err != nil {
		return nil, nil, err
	}
	return m, res, nil
}

func withSpecies(err error, species string) error {
	var gerr *Error
	if errors.As(err, &gerr) {
		gerr.Species = species
	}
	return err
}

// Species returns the species name.
func (m *Model) Species() string { return m.species }

// Parameters returns the curve parameters.
func (m *Model) Parameters() Parameters { return m.params }

// ConversionFactor returns the volume to mass ratio.
func (m *Model) ConversionFactor() float64 { return m.conversion }

// MeanAnnualIncrement evaluates the curve at age (years).
func (m *Model) MeanAnnualIncrement(age float64) (float64, error) {
	v, ok := m.params.eval(age)
	if !ok {
		return 0, &Error{
			Kind:    ErrInvalidDomain,
			Species: m.species,
			Message: fmt.Sprintf("age %v gives logarithm argument %v", age, m.params.Rate*age+m.params.Offset),
		}
	}
	return v, nil
}

// BiomassAccumulated returns the stored mass grown on areaHa over ageYears.
// The current-age rate is applied to the whole elapsed period rather than
// integrated; downstream figures are calibrated against this.
func (m *Model) BiomassAccumulated(areaHa, ageYears float64) (float64, error) {
	mai, err := m.MeanAnnualIncrement(ageYears)
	if err != nil {
		return 0, err
	}
	return mai * m.conversion * ageYears * areaHa, nil
}

// CurvePoint is one sample of a MAI curve.
type CurvePoint struct {
	Age float64 `json:"age"`
	MAI float64 `json:"mai"`
}

// Curve samples the MAI curve from age 0 to maxAge inclusive in steps of step.
func (m *Model) Curve(maxAge, step float64) ([]CurvePoint, error) {
	if !(step > 0) || maxAge < 0 || math.IsInf(maxAge, 0) || math.IsNaN(maxAge) {
		return nil, &Error{
			Kind:    ErrInvalidDomain,
			Species: m.species,
			Message: fmt.Sprintf("cannot sample ages 0..%v by %v", maxAge, step),
		}
	}

	n := int(math.Floor(maxAge/step)) + 1
	points := make([]CurvePoint, 0, n)
	for i := 0; i < n; i++ {
		age := float64(i) * step
		mai, err := m.MeanAnnualIncrement(age)
		if err != nil {
			return nil, err
		}
		points = append(points, CurvePoint{Age: age, MAI: mai})
	}
	return points, nil
}
