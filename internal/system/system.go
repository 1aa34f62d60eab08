// Package system provides analytic trial wavefunctions and Hamiltonians.
// They stand in for a full electronic-structure evaluator and give the
// reptation core something with known answers to sample.
package system

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"reptation/internal/model"
	"reptation/internal/reptation"
)

// System is a wavefunction/Hamiltonian pair.
type System interface {
	reptation.Evaluator
	Name() string
	// Initial draws a starting configuration of n particles.
	Initial(rng *rand.Rand, n int) []model.Vec3
	// AuxNames labels the entries of Properties.Aux.
	AuxNames() []string
}

type factory func(params map[string]float64) (System, error)

var registry = map[string]factory{
	"harmonic":   newHarmonic,
	"hydrogenic": newHydrogenic,
}

func New(name string, params map[string]float64) (System, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown system %q (available: %v)", name, Names())
	}
	return f(params)
}

func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func param(params map[string]float64, key string, def float64) float64 {
	if v, ok := params[key]; ok {
		return v
	}
	return def
}

func gaussianCloud(rng *rand.Rand, n int, width float64) []model.Vec3 {
	out := make([]model.Vec3, n)
	for i := range out {
		out[i] = model.Vec3{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}.Scale(width)
	}
	return out
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
