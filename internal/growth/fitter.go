package growth

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// DefaultMaxEvaluations bounds the number of curve evaluations a fit may
// spend before it is reported as divergent.
const DefaultMaxEvaluations = 10000

const (
	numParams = 4

	initialDamping    = 1e-3
	minDamping        = 1e-12
	maxDamping        = 1e16
	gradientTolerance = 1e-10
	costTolerance     = 1e-12
	stepTolerance     = 1e-10
)

// Point is one empirical (age, mean annual increment) observation of a species.
type Point struct {
	Age  float64 `json:"age" toml:"age"`
	Rate float64 `json:"rate" toml:"rate"`
}

// FitResult holds the fitted parameters and a few optimiser counters.
type FitResult struct {
	Parameters  Parameters `json:"parameters"`
	Iterations  int        `json:"iterations"`
	Evaluations int        `json:"evaluations"`
	ResidualSS  float64    `json:"residual_ss"`
}

// Fitter fits the logarithmic MAI curve to growth points with a
// Levenberg-Marquardt least-squares solver.
type Fitter struct {
	// MaxEvaluations is the evaluation budget; DefaultMaxEvaluations when <= 0.
	MaxEvaluations int
}

// Fit fits points with the default budget and returns only the parameters.
func Fit(points []Point) (Parameters, error) {
	res, err := Fitter{}.Fit(points)
	if err != nil {
		return Parameters{}, err
	}
	return res.Parameters, nil
}

// InitialGuess returns the starting point used by the solver:
// scale = rate spread, rate = 1/age spread, offset = 1, shift = min rate.
func InitialGuess(points []Point) Parameters {
	minAge, maxAge := math.Inf(1), math.Inf(-1)
	minRate, maxRate := math.Inf(1), math.Inf(-1)
	for _, pt := range points {
		minAge = math.Min(minAge, pt.Age)
		maxAge = math.Max(maxAge, pt.Age)
		minRate = math.Min(minRate, pt.Rate)
		maxRate = math.Max(maxRate, pt.Rate)
	}
	return Parameters{
		Scale:  maxRate - minRate,
		Rate:   1 / (maxAge - minAge),
		Offset: 1,
		Shift:  minRate,
	}
}

// Fit runs the solver. The input slice is not modified.
func (f Fitter) Fit(points []Point) (*FitResult, error) {
	if err := checkPoints(points); err != nil {
		return nil, err
	}

	budget := f.MaxEvaluations
	if budget <= 0 {
		budget = DefaultMaxEvaluations
	}

	n := len(points)
	ages := make([]float64, n)
	rates := make([]float64, n)
	for i, pt := range points {
		ages[i] = pt.Age
		rates[i] = pt.Rate
	}

	p := InitialGuess(points)
	r := make([]float64, n)
	if !residuals(p, ages, rates, r) {
		return nil, newError(ErrFitDivergence, "initial guess %+v is outside the curve domain", p)
	}
	cost := floats.Dot(r, r)
	evals := 1

	jac := mat.NewDense(n, numParams, nil)
	rv := mat.NewVecDense(n, r)
	trial := make([]float64, n)
	damped := mat.NewDense(numParams, numParams, nil)
	var jtj mat.Dense
	var grad, step mat.VecDense

	lambda := initialDamping
	for iter := 1; ; iter++ {
		done := func() (*FitResult, error) {
			if err := p.Validate(); err != nil {
				return nil, err
			}
			return &FitResult{Parameters: p, Iterations: iter, Evaluations: evals, ResidualSS: cost}, nil
		}
		if cost == 0 {
			return done()
		}

		jacobian(p, ages, jac)
		jtj.Mul(jac.T(), jac)
		grad.MulVec(jac.T(), rv)
		if mat.Norm(&grad, math.Inf(1)) <= gradientTolerance {
			return done()
		}

		for {
			if evals >= budget {
				return nil, newError(ErrFitDivergence, "no convergence after %d evaluations (residual %.6g)", evals, cost)
			}
			if lambda > maxDamping {
				// No descent direction left at machine precision.
				return done()
			}

			damped.Copy(&jtj)
			for i := 0; i < numParams; i++ {
				damped.Set(i, i, jtj.At(i, i)*(1+lambda))
			}
			if err := step.SolveVec(damped, &grad); err != nil {
				var cond mat.Condition
				if !errors.As(err, &cond) {
					lambda *= 10
					continue
				}
			}

			candidate := Parameters{
				Scale:  p.Scale + step.AtVec(0),
				Rate:   p.Rate + step.AtVec(1),
				Offset: p.Offset + step.AtVec(2),
				Shift:  p.Shift + step.AtVec(3),
			}
			// Steps leaving Offset > 0, Rate >= 0 would be invalid at some
			// age >= 0 even when every data age is still in the domain.
			if candidate.Validate() != nil {
				lambda *= 10
				continue
			}

			evals++
			if !residuals(candidate, ages, rates, trial) {
				lambda *= 10
				continue
			}
			trialCost := floats.Dot(trial, trial)
			if math.IsNaN(trialCost) || trialCost >= cost {
				lambda *= 10
				continue
			}

			improvement := (cost - trialCost) / cost
			stepNorm := mat.Norm(&step, 2)
			paramNorm := p.norm()

			p = candidate
			copy(r, trial)
			cost = trialCost
			lambda = math.Max(lambda/10, minDamping)

			if improvement < costTolerance || stepNorm < stepTolerance*(paramNorm+stepTolerance) {
				return done()
			}
			break
		}
	}
}

// checkPoints rejects data the optimiser cannot work with.
func checkPoints(points []Point) error {
	if len(points) < 2 {
		return newError(ErrInsufficientData, "need at least 2 points, got %d", len(points))
	}

	ages := make(map[float64]struct{}, len(points))
	sameRate := true
	for i, pt := range points {
		if math.IsNaN(pt.Age) || math.IsInf(pt.Age, 0) || pt.Age < 0 {
			return newError(ErrInsufficientData, "point %d: age %v must be finite and non-negative", i, pt.Age)
		}
		if math.IsNaN(pt.Rate) || math.IsInf(pt.Rate, 0) || pt.Rate < 0 {
			return newError(ErrInsufficientData, "point %d: rate %v must be finite and non-negative", i, pt.Rate)
		}
		ages[pt.Age] = struct{}{}
		if pt.Rate != points[0].Rate {
			sameRate = false
		}
	}

	if len(ages) < 2 {
		return newError(ErrInsufficientData, "need at least 2 distinct ages, got %d", len(ages))
	}
	if sameRate {
		return newError(ErrInsufficientData, "all %d points have the same rate %v", len(points), points[0].Rate)
	}
	return nil
}

// residuals fills dst with rate - MAI(age). It reports false when any age
// falls outside the curve domain.
func residuals(p Parameters, ages, rates, dst []float64) bool {
	for i, age := range ages {
		v, ok := p.eval(age)
		if !ok {
			return false
		}
		dst[i] = rates[i] - v
	}
	return true
}

// jacobian fills dst with the partial derivatives of the curve with respect
// to (scale, rate, offset, shift) at every age.
func jacobian(p Parameters, ages []float64, dst *mat.Dense) {
	for i, age := range ages {
		u := p.Rate*age + p.Offset
		dst.Set(i, 0, math.Log(u))
		dst.Set(i, 1, p.Scale*age/u)
		dst.Set(i, 2, p.Scale/u)
		dst.Set(i, 3, 1)
	}
}
