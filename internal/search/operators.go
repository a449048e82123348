package search

import (
	"math"
	"math/rand"

	"github.com/cwbudde/scenariosearch/internal/scenario"
)

const (
	lowerBound = 0.0
	upperBound = 1.0

	// sbxVariableProb is the chance a variable takes part in crossover.
	sbxVariableProb = 0.5
	sbxEpsilon      = 1e-14
)

// tournament picks two distinct members at random and returns the better
// one by rank, then crowding; ties are broken by a coin flip.
func tournament(rng *rand.Rand, pop []*individual) *individual {
	i := rng.Intn(len(pop))
	j := rng.Intn(len(pop) - 1)
	if j >= i {
		j++
	}
	a, b := pop[i], pop[j]
	switch {
	case better(a, b):
		return a
	case better(b, a):
		return b
	case rng.Float64() < 0.5:
		return a
	default:
		return b
	}
}

// sbx is bounded simulated binary crossover with distribution index eta.
func sbx(rng *rand.Rand, p1, p2 scenario.Vector, eta float64) (scenario.Vector, scenario.Vector) {
	c1, c2 := p1.Clone(), p2.Clone()
	for i := range p1 {
		if rng.Float64() > sbxVariableProb || math.Abs(p1[i]-p2[i]) <= sbxEpsilon {
			continue
		}
		y1, y2 := math.Min(p1[i], p2[i]), math.Max(p1[i], p2[i])
		delta := y2 - y1
		u := rng.Float64()

		beta := 1 + 2*(y1-lowerBound)/delta
		v1 := 0.5 * ((y1 + y2) - sbxSpread(u, beta, eta)*delta)

		beta = 1 + 2*(upperBound-y2)/delta
		v2 := 0.5 * ((y1 + y2) + sbxSpread(u, beta, eta)*delta)

		v1 = clampBox(v1)
		v2 = clampBox(v2)
		if rng.Float64() < 0.5 {
			v1, v2 = v2, v1
		}
		c1[i], c2[i] = v1, v2
	}
	return c1, c2
}

func sbxSpread(u, beta, eta float64) float64 {
	alpha := 2 - math.Pow(beta, -(eta+1))
	if u <= 1/alpha {
		return math.Pow(u*alpha, 1/(eta+1))
	}
	return math.Pow(1/(2-u*alpha), 1/(eta+1))
}

// polynomialMutation perturbs each variable with probability prob.
func polynomialMutation(rng *rand.Rand, x scenario.Vector, eta, prob float64) {
	span := upperBound - lowerBound
	power := 1 / (eta + 1)
	for i, y := range x {
		if rng.Float64() >= prob {
			continue
		}
		d1 := (y - lowerBound) / span
		d2 := (upperBound - y) / span
		u := rng.Float64()

		var dq float64
		if u < 0.5 {
			val := 2*u + (1-2*u)*math.Pow(1-d1, eta+1)
			dq = math.Pow(val, power) - 1
		} else {
			val := 2*(1-u) + 2*(u-0.5)*math.Pow(1-d2, eta+1)
			dq = 1 - math.Pow(val, power)
		}
		x[i] = clampBox(y + dq*span)
	}
}

func clampBox(v float64) float64 {
	return math.Max(lowerBound, math.Min(upperBound, v))
}
