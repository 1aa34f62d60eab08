package reptation

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestBranchWeightInsideCutoff(t *testing.T) {
	for _, e := range []float64{-9.5, -1, 0, 0.25, 3, 10} {
		got, err := BranchWeight(e, 0, 0.01, 10)
		if err != nil {
			t.Fatalf("energy %v: %v", e, err)
		}
		if want := math.Exp(-0.01 * e); got != want {
			t.Fatalf("energy %v: weight %v, want %v", e, got, want)
		}
	}
}

func TestBranchWeightClampsOutsideCutoff(t *testing.T) {
	tests := []struct {
		energy float64
		eref   float64
		want   float64
	}{
		{energy: 1e6, eref: 0, want: math.Exp(-0.01 * 10)},
		{energy: -1e6, eref: 0, want: math.Exp(0.01 * 10)},
		{energy: 8, eref: -3, want: math.Exp(-0.01 * 10)},
	}
	for _, tc := range tests {
		got, err := BranchWeight(tc.energy, tc.eref, 0.01, 10)
		if err != nil {
			t.Fatalf("energy %v: %v", tc.energy, err)
		}
		if math.Abs(got-tc.want) > 1e-15 {
			t.Fatalf("energy %v: weight %v, want %v", tc.energy, got, tc.want)
		}
	}
}

func TestClampEnergyPreservesSign(t *testing.T) {
	if got := ClampEnergy(-50, -2, 5); got != -7 {
		t.Fatalf("expected -7, got %v", got)
	}
	if got := ClampEnergy(50, -2, 5); got != 3 {
		t.Fatalf("expected 3, got %v", got)
	}
	if got := ClampEnergy(50, -2, math.Inf(1)); got != 50 {
		t.Fatalf("infinite cutoff should not clamp, got %v", got)
	}
	if got := ClampEnergy(50, -2, 0); got != 50 {
		t.Fatalf("zero cutoff should not clamp, got %v", got)
	}
}

func TestBranchWeightRejectsNonFiniteEnergy(t *testing.T) {
	for _, e := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := BranchWeight(e, 0, 0.01, 10); !errors.Is(err, ErrNonFinite) {
			t.Fatalf("energy %v: expected ErrNonFinite, got %v", e, err)
		}
	}
}

func TestBranchWeightAlwaysFiniteAndPositive(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 1000; i++ {
		e := (rng.Float64() - 0.5) * math.Pow(10, float64(rng.Intn(300)))
		w, err := BranchWeight(e, -0.5, 0.05, 20)
		if err != nil {
			t.Fatalf("energy %v: %v", e, err)
		}
		if !isFinitePositive(w) {
			t.Fatalf("energy %v gave weight %v", e, w)
		}
		if lo, hi := math.Exp(-0.05*20), math.Exp(0.05*20); w < lo || w > hi {
			t.Fatalf("weight %v outside clamp range [%v,%v]", w, lo, hi)
		}
	}
}
