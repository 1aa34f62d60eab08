// Package dynamics provides proposal kernels for the slither move.
package dynamics

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"reptation/internal/model"
)

var ErrDriftShape = errors.New("drift does not match configuration")

// DriftDiffusion proposes R' = R + tau*v(R) + sqrt(tau)*chi with chi a
// standard normal vector per particle. MaxDrift, when positive, caps the
// length of each particle's drift displacement, which keeps moves near
// wavefunction nodes bounded.
type DriftDiffusion struct {
	MaxDrift float64
}

func (d DriftDiffusion) displacement(v model.Vec3, tau float64) model.Vec3 {
	step := v.Scale(tau)
	if d.MaxDrift > 0 {
		if n2 := step.Norm2(); n2 > d.MaxDrift*d.MaxDrift {
			step = step.Scale(d.MaxDrift / math.Sqrt(n2))
		}
	}
	return step
}

func (d DriftDiffusion) Propose(rng *rand.Rand, from, drift []model.Vec3, tau float64) ([]model.Vec3, error) {
	if len(from) != len(drift) {
		return nil, fmt.Errorf("%w: %d positions, %d drift vectors", ErrDriftShape, len(from), len(drift))
	}
	if !(tau > 0) {
		return nil, fmt.Errorf("invalid timestep %v", tau)
	}
	sigma := math.Sqrt(tau)
	out := make([]model.Vec3, len(from))
	for i := range from {
		noise := model.Vec3{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
		out[i] = from[i].Add(d.displacement(drift[i], tau)).Add(noise.Scale(sigma))
	}
	return out, nil
}

// LogTransition is ln G_d(to <- from), the Gaussian density of the kernel.
// Shape mismatches yield -Inf, a zero density.
func (d DriftDiffusion) LogTransition(to, from, drift []model.Vec3, tau float64) float64 {
	if len(to) != len(from) || len(from) != len(drift) || !(tau > 0) {
		return math.Inf(-1)
	}
	var sq float64
	for i := range from {
		mean := from[i].Add(d.displacement(drift[i], tau))
		sq += to[i].Sub(mean).Norm2()
	}
	dims := float64(3 * len(from))
	return -0.5*dims*math.Log(2*math.Pi*tau) - sq/(2*tau)
}
