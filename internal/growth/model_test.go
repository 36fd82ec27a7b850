package growth

import (
	"errors"
	"math"
	"testing"
)

var oakParams = Parameters{Scale: 1.78, Rate: 0.0376, Offset: 0.204, Shift: 2.66}

func TestNewModel_Validation(t *testing.T) {
	tests := []struct {
		name       string
		params     Parameters
		conversion float64
		wantErr    error
	}{
		{name: "reference oak", params: oakParams, conversion: BiocharFactor},
		{name: "flat rate", params: Parameters{Scale: 1, Rate: 0, Offset: 1, Shift: 0}, conversion: 1},
		{name: "zero offset", params: Parameters{Scale: 1, Rate: 0.1, Offset: 0, Shift: 0}, conversion: 1, wantErr: ErrInvalidParameters},
		{name: "negative offset", params: Parameters{Scale: 1, Rate: 0.1, Offset: -0.5, Shift: 0}, conversion: 1, wantErr: ErrInvalidParameters},
		{name: "negative rate", params: Parameters{Scale: 1, Rate: -0.1, Offset: 1, Shift: 0}, conversion: 1, wantErr: ErrInvalidParameters},
		{name: "NaN scale", params: Parameters{Scale: math.NaN(), Rate: 0.1, Offset: 1}, conversion: 1, wantErr: ErrInvalidParameters},
		{name: "negative conversion", params: oakParams, conversion: -1, wantErr: ErrInvalidParameters},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewModel("test", tt.params, tt.conversion)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("NewModel() error = %v", err)
				}
				if m.Species() != "test" {
					t.Errorf("Species() = %v, want %v", m.Species(), "test")
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewModel() error = %v, want %v", err, tt.wantErr)
			}
			if m != nil {
				t.Error("NewModel() returned a model alongside an error")
			}
		})
	}
}

func TestModel_MeanAnnualIncrement(t *testing.T) {
	m, err := NewModel("oak", oakParams, BiocharFactor)
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}

	got, err := m.MeanAnnualIncrement(0)
	if err != nil {
		t.Fatalf("MeanAnnualIncrement(0) error = %v", err)
	}
	want := 1.78*math.Log(0.204) + 2.66
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("MeanAnnualIncrement(0) = %v, want %v", got, want)
	}

	got, _ = m.MeanAnnualIncrement(40)
	want = 1.78*math.Log(0.0376*40+0.204) + 2.66
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("MeanAnnualIncrement(40) = %v, want %v", got, want)
	}

	// Negative ages are outside normal use but must not yield NaN.
	_, err = m.MeanAnnualIncrement(-10)
	if !errors.Is(err, ErrInvalidDomain) {
		t.Errorf("MeanAnnualIncrement(-10) error = %v, want %v", err, ErrInvalidDomain)
	}
}

func TestModel_BiomassAccumulated(t *testing.T) {
	m, err := NewModel("oak", oakParams, BiocharFactor)
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}

	tests := []struct {
		name string
		area float64
		age  float64
	}{
		{name: "newly planted", area: 0.000225, age: 0},
		{name: "one year", area: 0.000225, age: 1},
		{name: "rotation", area: 0.000225, age: 20},
		{name: "whole hectare", area: 1, age: 35},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := m.BiomassAccumulated(tt.area, tt.age)
			if err != nil {
				t.Fatalf("BiomassAccumulated() error = %v", err)
			}
			mai, _ := m.MeanAnnualIncrement(tt.age)
			want := mai * BiocharFactor * tt.age * tt.area
			if got != want {
				t.Errorf("BiomassAccumulated(%v, %v) = %v, want %v", tt.area, tt.age, got, want)
			}
		})
	}
}

func TestModel_Curve(t *testing.T) {
	m, err := NewModel("oak", oakParams, BiocharFactor)
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}

	curve, err := m.Curve(150, 1)
	if err != nil {
		t.Fatalf("Curve() error = %v", err)
	}
	if len(curve) != 151 {
		t.Fatalf("len(Curve()) = %d, want %d", len(curve), 151)
	}
	if curve[150].Age != 150 {
		t.Errorf("last age = %v, want %v", curve[150].Age, 150)
	}

	if _, err := m.Curve(10, 0); !errors.Is(err, ErrInvalidDomain) {
		t.Errorf("Curve(10, 0) error = %v, want %v", err, ErrInvalidDomain)
	}
}

func TestParameters_Canonical(t *testing.T) {
	p := Parameters{Scale: 2, Rate: 0.1, Offset: 1, Shift: 1}
	k := 3.0
	q := Parameters{Scale: 2, Rate: k * 0.1, Offset: k * 1, Shift: 1 - 2*math.Log(k)}

	ps, pa, pl := p.Canonical()
	qs, qa, ql := q.Canonical()
	if ps != qs || math.Abs(pa-qa) > 1e-12 || math.Abs(pl-ql) > 1e-12 {
		t.Errorf("Canonical() differs for equivalent curves: (%v %v %v) vs (%v %v %v)", ps, pa, pl, qs, qa, ql)
	}
}
