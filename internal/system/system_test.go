package system

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"reptation/internal/model"
)

func TestHarmonicExactTrialHasConstantLocalEnergy(t *testing.T) {
	sys, err := New("harmonic", map[string]float64{"omega": 2})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		pos := sys.Initial(rng, 3)
		ev, err := sys.Evaluate(pos)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if got := ev.Properties.Energy(); math.Abs(got-9) > 1e-9 {
			t.Fatalf("expected local energy 1.5*N*omega = 9, got %v", got)
		}
		if len(ev.Drift) != 3 {
			t.Fatalf("expected 3 drift vectors, got %d", len(ev.Drift))
		}
	}
}

func TestHarmonicDriftIsGradientOfLogGuide(t *testing.T) {
	h := Harmonic{Omega: 1, Alpha: 0.3}
	pos := []model.Vec3{{0.4, -0.2, 1.1}}
	ev, _ := h.Evaluate(pos)
	const eps = 1e-6
	for k := 0; k < 3; k++ {
		shifted := []model.Vec3{pos[0]}
		shifted[0][k] += eps
		up, _ := h.Evaluate(shifted)
		numeric := (up.LogGuide - ev.LogGuide) / eps
		if math.Abs(numeric-ev.Drift[0][k]) > 1e-4 {
			t.Fatalf("component %d: numeric %v, analytic %v", k, numeric, ev.Drift[0][k])
		}
	}
}

func TestHydrogenicGroundState(t *testing.T) {
	sys, err := New("hydrogenic", nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ev, err := sys.Evaluate([]model.Vec3{{0.3, 0.4, 0}, {1, 2, 2}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got := ev.Properties.Energy(); math.Abs(got+1) > 1e-12 {
		t.Fatalf("expected -Z^2/2 per electron = -1, got %v", got)
	}
	if got := ev.Properties.Aux[0]; math.Abs(got-1.75) > 1e-12 {
		t.Fatalf("expected mean radius 1.75, got %v", got)
	}
}

func TestHydrogenicRejectsNucleus(t *testing.T) {
	h := Hydrogenic{Z: 1, Zeta: 0.8}
	if _, err := h.Evaluate([]model.Vec3{{0, 0, 0}}); !errors.Is(err, ErrAtNucleus) {
		t.Fatalf("expected nucleus error, got %v", err)
	}
}

func TestNewValidatesInput(t *testing.T) {
	if _, err := New("helium", nil); err == nil {
		t.Fatal("expected unknown system error")
	}
	if _, err := New("harmonic", map[string]float64{"omega": -1}); err == nil {
		t.Fatal("expected invalid omega error")
	}
	if names := Names(); len(names) != 2 || names[0] != "harmonic" {
		t.Fatalf("unexpected names: %v", names)
	}
}
