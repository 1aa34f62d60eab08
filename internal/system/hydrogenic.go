package system

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"reptation/internal/model"
	"reptation/internal/reptation"
)

var ErrAtNucleus = errors.New("particle at the nucleus")

// Hydrogenic is non-interacting electrons around a point charge Z with the
// Slater trial function exp(-Zeta * sum r). The local energy diverges as
// (Zeta-Z)/r near the nucleus unless Zeta == Z, which exercises the
// branching cutoff.
type Hydrogenic struct {
	Z    float64
	Zeta float64
}

func newHydrogenic(params map[string]float64) (System, error) {
	h := Hydrogenic{Z: param(params, "z", 1)}
	h.Zeta = param(params, "zeta", h.Z)
	if !(h.Z > 0) || !(h.Zeta > 0) {
		return nil, fmt.Errorf("hydrogenic: z and zeta must be positive, got %v and %v", h.Z, h.Zeta)
	}
	return h, nil
}

func (h Hydrogenic) Name() string { return "hydrogenic" }

func (h Hydrogenic) AuxNames() []string { return []string{"r"} }

func (h Hydrogenic) Initial(rng *rand.Rand, n int) []model.Vec3 {
	return gaussianCloud(rng, n, 1/h.Zeta)
}

func (h Hydrogenic) Evaluate(positions []model.Vec3) (reptation.Evaluation, error) {
	drift := make([]model.Vec3, len(positions))
	var (
		sumR      float64
		kinetic   float64
		potential float64
	)
	for i, p := range positions {
		r := math.Sqrt(p.Norm2())
		if r == 0 {
			return reptation.Evaluation{}, ErrAtNucleus
		}
		sumR += r
		drift[i] = p.Scale(-h.Zeta / r)
		kinetic += -0.5*h.Zeta*h.Zeta + h.Zeta/r
		potential += -h.Z / r
	}
	if !finite(kinetic) || !finite(potential) {
		return reptation.Evaluation{}, fmt.Errorf("%w: local energy", reptation.ErrNonFinite)
	}
	return reptation.Evaluation{
		Properties: model.Properties{
			Count:     1,
			Weight:    1,
			Kinetic:   kinetic,
			Potential: potential,
			Aux:       []float64{sumR / float64(len(positions))},
		},
		LogGuide: -h.Zeta * sumR,
		Drift:    drift,
	}, nil
}
