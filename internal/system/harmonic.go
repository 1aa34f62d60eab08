package system

import (
	"fmt"
	"math"
	"math/rand"

	"reptation/internal/model"
	"reptation/internal/reptation"
)

// Harmonic is N independent particles in an isotropic trap of frequency
// Omega with the Gaussian trial function exp(-Alpha * sum r^2). Alpha =
// Omega/2 is exact, with local energy 1.5*N*Omega everywhere.
type Harmonic struct {
	Omega float64
	Alpha float64
}

func newHarmonic(params map[string]float64) (System, error) {
	h := Harmonic{Omega: param(params, "omega", 1)}
	h.Alpha = param(params, "alpha", h.Omega/2)
	if !(h.Omega > 0) || !(h.Alpha > 0) {
		return nil, fmt.Errorf("harmonic: omega and alpha must be positive, got %v and %v", h.Omega, h.Alpha)
	}
	return h, nil
}

func (h Harmonic) Name() string { return "harmonic" }

func (h Harmonic) AuxNames() []string { return []string{"r2"} }

func (h Harmonic) Initial(rng *rand.Rand, n int) []model.Vec3 {
	return gaussianCloud(rng, n, math.Sqrt(1/(4*h.Alpha)))
}

func (h Harmonic) Evaluate(positions []model.Vec3) (reptation.Evaluation, error) {
	n := float64(len(positions))
	drift := make([]model.Vec3, len(positions))
	var r2 float64
	for i, p := range positions {
		r2 += p.Norm2()
		drift[i] = p.Scale(-2 * h.Alpha)
	}
	props := model.Properties{
		Count:     1,
		Weight:    1,
		Kinetic:   3*h.Alpha*n - 2*h.Alpha*h.Alpha*r2,
		Potential: 0.5 * h.Omega * h.Omega * r2,
		Aux:       []float64{r2 / n},
	}
	return reptation.Evaluation{
		Properties: props,
		LogGuide:   -h.Alpha * r2,
		Drift:      drift,
	}, nil
}
