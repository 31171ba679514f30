package optimizer

import (
	"math"

	"github.com/quantframe/quantframe/pkg/errors"
)

// ParameterRange describes one swept dimension of the grid: every value from
// Start to End inclusive, Step apart.
type ParameterRange struct {
	Name  string  `yaml:"name" json:"name" validate:"required"`
	Start float64 `yaml:"start" json:"start"`
	End   float64 `yaml:"end" json:"end"`
	Step  float64 `yaml:"step" json:"step" validate:"gt=0"`
}

// Values expands the range. End is included when it lands on a step within
// floating-point tolerance.
func (r ParameterRange) Values() ([]float64, error) {
	if r.Step <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidRange, "range %q has non-positive step %f", r.Name, r.Step)
	}

	if r.End < r.Start {
		return nil, errors.Newf(errors.ErrCodeInvalidRange, "range %q ends %f before it starts %f", r.Name, r.End, r.Start)
	}

	tolerance := r.Step * 1e-9

	var values []float64
	for i := 0; ; i++ {
		value := r.Start + float64(i)*r.Step
		if value > r.End+tolerance {
			break
		}

		// keep grid points on tidy decimals despite float accumulation
		values = append(values, math.Round(value*1e6)/1e6)
	}

	return values, nil
}

// Combination is one point of the grid, keyed by parameter name.
type Combination map[string]float64

// Combinations expands the Cartesian product of all ranges. Range names must
// be unique.
func Combinations(ranges []ParameterRange) ([]Combination, error) {
	if len(ranges) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidRange, "no parameter ranges given")
	}

	seen := make(map[string]struct{}, len(ranges))
	expanded := make([][]float64, len(ranges))

	for i, r := range ranges {
		if _, ok := seen[r.Name]; ok {
			return nil, errors.Newf(errors.ErrCodeInvalidRange, "duplicate parameter range %q", r.Name)
		}

		seen[r.Name] = struct{}{}

		values, err := r.Values()
		if err != nil {
			return nil, err
		}

		if len(values) == 0 {
			return nil, errors.Newf(errors.ErrCodeInvalidRange, "range %q expands to no values", r.Name)
		}

		expanded[i] = values
	}

	combinations := []Combination{{}}

	for i, values := range expanded {
		next := make([]Combination, 0, len(combinations)*len(values))

		for _, combination := range combinations {
			for _, value := range values {
				merged := make(Combination, len(combination)+1)
				for k, v := range combination {
					merged[k] = v
				}

				merged[ranges[i].Name] = value
				next = append(next, merged)
			}
		}

		combinations = next
	}

	return combinations, nil
}
