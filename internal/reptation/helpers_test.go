package reptation

import (
	"errors"
	"math"
	"math/rand"

	"reptation/internal/model"
	"reptation/internal/reptile"
)

// stepSampler moves every particle by a fixed offset and reports a
// symmetric kernel unless logT is set.
type stepSampler struct {
	offset model.Vec3
	logT   func(to, from []model.Vec3) float64
	fail   bool
	extra  bool
}

func (s *stepSampler) Propose(_ *rand.Rand, from, _ []model.Vec3, _ float64) ([]model.Vec3, error) {
	if s.fail {
		return nil, errors.New("sampler failure")
	}
	out := make([]model.Vec3, len(from))
	for i := range from {
		out[i] = from[i].Add(s.offset)
	}
	if s.extra {
		out = append(out, model.Vec3{})
	}
	return out, nil
}

func (s *stepSampler) LogTransition(to, from, _ []model.Vec3, _ float64) float64 {
	if s.logT != nil {
		return s.logT(to, from)
	}
	return 0
}

// funcEvaluator derives the local energy from the first particle's x.
type funcEvaluator struct {
	energy func(x float64) float64
	guide  float64
	err    error
}

func (f *funcEvaluator) Evaluate(positions []model.Vec3) (Evaluation, error) {
	if f.err != nil {
		return Evaluation{}, f.err
	}
	e := 0.0
	if f.energy != nil {
		e = f.energy(positions[0][0])
	}
	return Evaluation{
		Properties: model.Properties{Count: 1, Weight: 1, Kinetic: e},
		LogGuide:   f.guide,
		Drift:      make([]model.Vec3, len(positions)),
	}, nil
}

func newPropagator(sampler Sampler, eval Evaluator) *Propagator {
	return &Propagator{
		Sampler:   sampler,
		Evaluator: eval,
		Rand:      rand.New(rand.NewSource(11)),
		Tau:       0.01,
		ERef:      0,
		Cutoff:    10,
	}
}

func evaluatedBead(x, energy, branching float64) model.Snapshot {
	return model.Snapshot{
		Positions:  []model.Vec3{{x, 0, 0}},
		Properties: model.Properties{Count: 1, Weight: 1, Kinetic: energy},
		Branching:  branching,
		Drift:      make([]model.Vec3, 1),
	}
}

func fullReptile(length int) *reptile.Reptile {
	r, _ := reptile.New(length)
	for i := 0; i < length; i++ {
		r.Grow(reptile.Forward, evaluatedBead(float64(i), 0, 1))
	}
	return r
}

func positionsOf(r *reptile.Reptile) [][]model.Vec3 {
	out := make([][]model.Vec3, r.Len())
	for i := range out {
		out[i] = append([]model.Vec3(nil), r.At(i).Positions...)
	}
	return out
}

func agesOf(r *reptile.Reptile) []float64 {
	out := make([]float64, r.Len())
	for i := range out {
		out[i] = r.At(i).Age
	}
	return out
}

func isFinitePositive(x float64) bool {
	return x > 0 && !math.IsInf(x, 0) && !math.IsNaN(x)
}
