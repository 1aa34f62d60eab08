package reptation

import (
	"errors"
	"math"
	"math/rand"
	"reflect"
	"testing"

	"reptation/internal/dynamics"
	"reptation/internal/model"
	"reptation/internal/reptile"
)

func TestAdvanceKeepsLengthWithWildEnergies(t *testing.T) {
	rng := rand.New(rand.NewSource(21))
	eval := &funcEvaluator{energy: func(float64) float64 {
		return (rng.Float64() - 0.5) * 1e8
	}}
	p := newPropagator(&dynamics.DriftDiffusion{}, eval)
	r, _ := reptile.New(4)
	if err := p.Seed(r, []model.Vec3{{0.1, 0.2, 0.3}}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	accepted := 0
	for i := 0; i < 2000; i++ {
		dir := reptile.Forward
		if i%7 == 0 {
			dir = reptile.Backward
		}
		step, err := p.Advance(r, dir)
		if err != nil {
			t.Fatalf("advance %d: %v", i, err)
		}
		if !step.Accepted {
			continue
		}
		accepted++
		if !isFinitePositive(step.Branching) {
			t.Fatalf("step %d: branch weight %v", i, step.Branching)
		}
		if lo, hi := math.Exp(-0.01*10), math.Exp(0.01*10); step.Branching < lo || step.Branching > hi {
			t.Fatalf("step %d: branch weight %v outside cutoff range", i, step.Branching)
		}
		if r.Len() > 4 {
			t.Fatalf("step %d: length %d exceeds target", i, r.Len())
		}
		if r.Full() && r.Len() != 4 {
			t.Fatalf("step %d: length %d", i, r.Len())
		}
	}
	if accepted < 100 {
		t.Fatalf("expected many accepted moves, got %d", accepted)
	}
	if r.Len() != 4 {
		t.Fatalf("expected length 4, got %d", r.Len())
	}
	for i := 0; i < r.Len(); i++ {
		if !isFinitePositive(r.At(i).Branching) {
			t.Fatalf("bead %d branch weight %v", i, r.At(i).Branching)
		}
	}
	if got := p.Counts.Total(); got != 2000 {
		t.Fatalf("expected 2000 counted moves, got %d", got)
	}
}

func TestAdvanceAcceptedMoveDropsOppositeEnd(t *testing.T) {
	p := newPropagator(&stepSampler{offset: model.Vec3{0.5, 0, 0}}, &funcEvaluator{})
	r := fullReptile(3)
	step, err := p.Advance(r, reptile.Forward)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !step.Accepted || !step.Dropped {
		t.Fatalf("expected accepted move with drop, got %+v", step)
	}
	if step.Removed.Positions[0][0] != 0 {
		t.Fatalf("expected front bead removed, got %v", step.Removed.Positions)
	}
	if got := r.End(reptile.Forward).Positions[0][0]; got != 2.5 {
		t.Fatalf("expected new end at 2.5, got %v", got)
	}
	if step.Diffusion != 0.25 {
		t.Fatalf("expected diffusion 0.25, got %v", step.Diffusion)
	}
	for i := 0; i < r.Len(); i++ {
		if r.At(i).Age != 0 {
			t.Fatalf("bead %d aged on accept: %v", i, r.At(i).Age)
		}
	}
}

func TestAdvanceRejectionAgesGrowthEndOnly(t *testing.T) {
	cases := []struct {
		name    string
		prop    *Propagator
		reason  RejectReason
		counted func(MoveCounts) int
	}{
		{
			name: "metropolis",
			prop: newPropagator(&stepSampler{logT: func(_, _ []model.Vec3) float64 { return math.Inf(-1) }}, &funcEvaluator{}),
			// An impossible reverse link gives zero acceptance.
			reason:  RejectMetropolis,
			counted: func(c MoveCounts) int { return c.Rejected },
		},
		{
			name:    "sampler",
			prop:    newPropagator(&stepSampler{fail: true}, &funcEvaluator{}),
			reason:  RejectSampler,
			counted: func(c MoveCounts) int { return c.Numerical },
		},
		{
			name:    "evaluator",
			prop:    newPropagator(&stepSampler{}, &funcEvaluator{err: errors.New("boom")}),
			reason:  RejectEvaluator,
			counted: func(c MoveCounts) int { return c.Numerical },
		},
		{
			name:    "non-finite energy",
			prop:    newPropagator(&stepSampler{}, &funcEvaluator{energy: func(float64) float64 { return math.NaN() }}),
			reason:  RejectEvaluator,
			counted: func(c MoveCounts) int { return c.Numerical },
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := fullReptile(4)
			r.At(1).Age = 2
			before := positionsOf(r)
			ages := agesOf(r)

			step, err := tc.prop.Advance(r, reptile.Forward)
			if err != nil {
				t.Fatalf("advance: %v", err)
			}
			if step.Accepted || step.Reason != tc.reason {
				t.Fatalf("expected %s rejection, got %+v", tc.reason, step)
			}
			if !reflect.DeepEqual(positionsOf(r), before) {
				t.Fatalf("positions changed on rejection")
			}
			ages[3]++
			if got := agesOf(r); !reflect.DeepEqual(got, ages) {
				t.Fatalf("ages %v, want %v", got, ages)
			}
			if tc.counted(tc.prop.Counts) != 1 || tc.prop.Counts.Total() != 1 {
				t.Fatalf("unexpected counts %+v", tc.prop.Counts)
			}
		})
	}
}

func TestAdvanceRejectsParticleMismatch(t *testing.T) {
	p := newPropagator(&stepSampler{extra: true}, &funcEvaluator{})
	r := fullReptile(3)
	if _, err := p.Advance(r, reptile.Forward); !errors.Is(err, ErrParticleMismatch) {
		t.Fatalf("expected ErrParticleMismatch, got %v", err)
	}
}

func TestAdvanceRequiresEvaluatedEnd(t *testing.T) {
	p := newPropagator(&stepSampler{}, &funcEvaluator{})
	r, _ := reptile.New(3)
	r.Grow(reptile.Forward, model.Snapshot{Positions: []model.Vec3{{1, 0, 0}}})
	if _, err := p.Advance(r, reptile.Forward); !errors.Is(err, ErrNotEvaluated) {
		t.Fatalf("expected ErrNotEvaluated, got %v", err)
	}
	empty, _ := reptile.New(3)
	if _, err := p.Advance(empty, reptile.Forward); !errors.Is(err, reptile.ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestRefreshRebuildsGuideCache(t *testing.T) {
	p := newPropagator(&stepSampler{}, &funcEvaluator{guide: -0.75})
	r := fullReptile(3)
	for i := 0; i < r.Len(); i++ {
		bead := r.At(i)
		bead.Drift = nil
		bead.LogGuide = 0
		bead.Age = float64(i)
	}
	if err := p.Refresh(r); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	for i := 0; i < r.Len(); i++ {
		bead := r.At(i)
		if !bead.Evaluated() || bead.LogGuide != -0.75 {
			t.Fatalf("bead %d not refreshed: %+v", i, bead)
		}
		if bead.Age != float64(i) || bead.Branching != 1 {
			t.Fatalf("bead %d lost stored data: %+v", i, bead)
		}
	}
}

func TestSeedRejectsOccupiedReptile(t *testing.T) {
	p := newPropagator(&stepSampler{}, &funcEvaluator{})
	r := fullReptile(2)
	if err := p.Seed(r, []model.Vec3{{}}); err == nil {
		t.Fatal("expected error seeding a non-empty reptile")
	}
	empty, _ := reptile.New(2)
	if err := p.Seed(empty, nil); !errors.Is(err, model.ErrEmptySnapshot) {
		t.Fatalf("expected ErrEmptySnapshot, got %v", err)
	}
}
