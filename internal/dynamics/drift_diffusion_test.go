package dynamics

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"reptation/internal/model"
)

func TestProposeMeanFollowsDrift(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	d := DriftDiffusion{}
	from := []model.Vec3{{0, 0, 0}}
	drift := []model.Vec3{{1, -2, 0.5}}
	tau := 0.01

	const samples = 20000
	var mean model.Vec3
	for i := 0; i < samples; i++ {
		out, err := d.Propose(rng, from, drift, tau)
		if err != nil {
			t.Fatalf("propose: %v", err)
		}
		mean = mean.Add(out[0].Scale(1.0 / samples))
	}
	want := drift[0].Scale(tau)
	for k := 0; k < 3; k++ {
		if math.Abs(mean[k]-want[k]) > 0.005 {
			t.Fatalf("component %d: mean %v, want %v", k, mean[k], want[k])
		}
	}
}

func TestProposeRejectsShapeMismatch(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	_, err := DriftDiffusion{}.Propose(rng, make([]model.Vec3, 2), make([]model.Vec3, 1), 0.1)
	if !errors.Is(err, ErrDriftShape) {
		t.Fatalf("expected shape error, got %v", err)
	}
}

func TestLogTransitionIsGaussian(t *testing.T) {
	d := DriftDiffusion{}
	tau := 0.5
	from := []model.Vec3{{0, 0, 0}}
	drift := []model.Vec3{{0, 0, 0}}
	at := d.LogTransition([]model.Vec3{{0, 0, 0}}, from, drift, tau)
	want := -1.5 * math.Log(2*math.Pi*tau)
	if math.Abs(at-want) > 1e-12 {
		t.Fatalf("peak log density %v, want %v", at, want)
	}
	off := d.LogTransition([]model.Vec3{{1, 0, 0}}, from, drift, tau)
	if math.Abs((at-off)-1/(2*tau)) > 1e-12 {
		t.Fatalf("unexpected falloff: %v", at-off)
	}
}

func TestLogTransitionShapeMismatchIsZeroDensity(t *testing.T) {
	got := DriftDiffusion{}.LogTransition(make([]model.Vec3, 1), make([]model.Vec3, 2), make([]model.Vec3, 2), 0.1)
	if !math.IsInf(got, -1) {
		t.Fatalf("expected -Inf, got %v", got)
	}
}

func TestMaxDriftCapsDisplacement(t *testing.T) {
	d := DriftDiffusion{MaxDrift: 0.1}
	step := d.displacement(model.Vec3{100, 0, 0}, 1)
	if math.Abs(step.Norm2()-0.01) > 1e-12 {
		t.Fatalf("expected capped displacement of length 0.1, got %v", step)
	}
}
