package species

import "srf-carbon/internal/growth"

// Builtin returns the reference growth tables shipped with the platform.
// Points are MAI observations in m³/ha/yr by age; the parameters are the
// validated curve fits for the same points.
func Builtin() []Definition {
	return []Definition{
		{
			Name:       "Quercus robur",
			CommonName: "Oak",
			Aliases:    []string{"oak", "english oak", "pedunculate oak"},
			Points: []growth.Point{
				{Age: 0, Rate: 0}, {Age: 10, Rate: 1.0}, {Age: 20, Rate: 2.5}, {Age: 40, Rate: 4.0},
				{Age: 60, Rate: 5.0}, {Age: 80, Rate: 5.2}, {Age: 100, Rate: 5.0}, {Age: 120, Rate: 4.5},
			},
			Parameters: &growth.Parameters{Scale: 1.78, Rate: 0.0376, Offset: 0.204, Shift: 2.66},
		},
		{
			Name:       "Alnus glutinosa",
			CommonName: "Alder",
			Aliases:    []string{"alder", "black alder", "common alder"},
			Points: []growth.Point{
				{Age: 0, Rate: 0}, {Age: 5, Rate: 3.0}, {Age: 10, Rate: 8.0}, {Age: 20, Rate: 11.0},
				{Age: 30, Rate: 12.0}, {Age: 40, Rate: 11.5}, {Age: 50, Rate: 10.0},
			},
			Parameters: &growth.Parameters{Scale: 3.39, Rate: 0.0802, Offset: 0.104, Shift: 7.43},
		},
		{
			Name:       "Populus tremula",
			CommonName: "Aspen",
			Aliases:    []string{"aspen", "european aspen"},
			Points: []growth.Point{
				{Age: 0, Rate: 0}, {Age: 5, Rate: 3.0}, {Age: 10, Rate: 8.0}, {Age: 15, Rate: 11.0},
				{Age: 20, Rate: 12.0}, {Age: 25, Rate: 12.5}, {Age: 30, Rate: 12.0},
			},
			Parameters: &growth.Parameters{Scale: 6.69, Rate: 0.118, Offset: 0.512, Shift: 4.09},
		},
		{
			Name:       "Acer pseudoplatanus",
			CommonName: "Sycamore",
			Aliases:    []string{"sycamore", "sycamore maple"},
			Points: []growth.Point{
				{Age: 0, Rate: 0}, {Age: 10, Rate: 3.0}, {Age: 20, Rate: 7.0}, {Age: 30, Rate: 10.0},
				{Age: 40, Rate: 12.0}, {Age: 50, Rate: 12.5}, {Age: 60, Rate: 12.0}, {Age: 70, Rate: 11.0},
				{Age: 80, Rate: 10.0},
			},
			Parameters: &growth.Parameters{Scale: 4.09, Rate: 0.0457, Offset: 0.165, Shift: 7.06},
		},
		{
			Name:       "Pinus sylvestris",
			CommonName: "Scots Pine",
			Aliases:    []string{"scots pine", "pine"},
			Points: []growth.Point{
				{Age: 0, Rate: 0}, {Age: 10, Rate: 2.0}, {Age: 20, Rate: 5.0}, {Age: 30, Rate: 8.0},
				{Age: 40, Rate: 10.0}, {Age: 50, Rate: 10.5}, {Age: 60, Rate: 10.2}, {Age: 70, Rate: 9.8},
			},
			Parameters: &growth.Parameters{Scale: 5.96, Rate: 0.0461, Offset: 0.528, Shift: 3.37},
		},
		{
			Name:       "Fraxinus excelsior",
			CommonName: "Ash",
			Aliases:    []string{"ash", "european ash"},
			Points: []growth.Point{
				{Age: 0, Rate: 0}, {Age: 10, Rate: 3.0}, {Age: 20, Rate: 7.0}, {Age: 30, Rate: 10.5},
				{Age: 40, Rate: 12.0}, {Age: 50, Rate: 11.8}, {Age: 60, Rate: 10.5}, {Age: 70, Rate: 9.8},
			},
			Parameters: &growth.Parameters{Scale: 4.22, Rate: 0.0677, Offset: 0.271, Shift: 5.21},
		},
		{
			Name:       "Betula pendula",
			CommonName: "Birch",
			Aliases:    []string{"birch", "silver birch"},
			Points: []growth.Point{
				{Age: 0, Rate: 0}, {Age: 5, Rate: 4.0}, {Age: 10, Rate: 8.0}, {Age: 30, Rate: 9.0},
				{Age: 40, Rate: 7.0}, {Age: 50, Rate: 5.0},
			},
			Parameters: &growth.Parameters{Scale: 0.622, Rate: 0.088, Offset: 4.31, Shift: 6.25},
		},
		{
			Name:       "Fagus sylvatica",
			CommonName: "Beech",
			Aliases:    []string{"beech", "european beech", "common beech"},
			Points: []growth.Point{
				{Age: 0, Rate: 0}, {Age: 10, Rate: 1.0}, {Age: 20, Rate: 3.0}, {Age: 40, Rate: 6.0},
				{Age: 60, Rate: 8.0}, {Age: 80, Rate: 9.0}, {Age: 100, Rate: 9.0}, {Age: 120, Rate: 8.5},
			},
			Parameters: &growth.Parameters{Scale: 4.57, Rate: 0.0318, Offset: 0.456, Shift: 3.11},
		},
	}
}
