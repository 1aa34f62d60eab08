package reptile

import (
	"errors"
	"testing"

	"reptation/internal/model"
)

func bead(x float64) model.Snapshot {
	return model.Snapshot{Positions: []model.Vec3{{x, 0, 0}}, Branching: 1}
}

func xs(r *Reptile) []float64 {
	out := make([]float64, 0, r.Len())
	for i := 0; i < r.Len(); i++ {
		out = append(out, r.At(i).Positions[0][0])
	}
	return out
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewRejectsTinyCapacity(t *testing.T) {
	if _, err := New(1); !errors.Is(err, ErrCapacity) {
		t.Fatalf("expected capacity error, got %v", err)
	}
}

func TestGrowForwardShedsFront(t *testing.T) {
	r, err := New(3)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for i := 1; i <= 3; i++ {
		if _, dropped := r.Grow(Forward, bead(float64(i))); dropped {
			t.Fatalf("unexpected drop while warming up at %d", i)
		}
		if r.Len() != i {
			t.Fatalf("expected len %d, got %d", i, r.Len())
		}
	}
	removed, dropped := r.Grow(Forward, bead(4))
	if !dropped || removed.Positions[0][0] != 1 {
		t.Fatalf("expected front bead 1 to be dropped, got %+v dropped=%v", removed, dropped)
	}
	if got := xs(r); !equalFloats(got, []float64{2, 3, 4}) {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestGrowBackwardShedsBack(t *testing.T) {
	r, _ := New(3)
	for i := 1; i <= 3; i++ {
		r.Grow(Forward, bead(float64(i)))
	}
	removed, dropped := r.Grow(Backward, bead(0))
	if !dropped || removed.Positions[0][0] != 3 {
		t.Fatalf("expected back bead 3 to be dropped, got %+v", removed)
	}
	if got := xs(r); !equalFloats(got, []float64{0, 1, 2}) {
		t.Fatalf("unexpected order: %v", got)
	}
	if r.End(Backward).Positions[0][0] != 0 || r.End(Forward).Positions[0][0] != 2 {
		t.Fatal("unexpected ends")
	}
	if r.Inner(Backward).Positions[0][0] != 1 || r.Inner(Forward).Positions[0][0] != 1 {
		t.Fatal("unexpected inner beads")
	}
	if r.Opposite(Backward).Positions[0][0] != 2 {
		t.Fatal("unexpected opposite end")
	}
}

func TestLengthInvariantAcrossAlternatingGrowth(t *testing.T) {
	r, _ := New(4)
	for i := 0; i < 4; i++ {
		r.Grow(Forward, bead(float64(i)))
	}
	dir := Forward
	for step := 0; step < 50; step++ {
		if step%7 == 0 {
			dir = dir.Flip()
		}
		r.Grow(dir, bead(float64(100+step)))
		if r.Len() != 4 {
			t.Fatalf("step %d: expected len 4, got %d", step, r.Len())
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	r, _ := New(2)
	r.Grow(Forward, bead(1))
	r.Grow(Forward, bead(2))
	c := r.Clone()
	c.At(0).Positions[0][0] = 99
	c.Grow(Forward, bead(3))
	if got := xs(r); !equalFloats(got, []float64{1, 2}) {
		t.Fatalf("original mutated: %v", got)
	}
}

func TestFromSnapshotsAndResize(t *testing.T) {
	r, err := FromSnapshots(4, Backward, []model.Snapshot{bead(1), bead(2), bead(3)})
	if err != nil {
		t.Fatalf("from snapshots: %v", err)
	}
	if r.Direction != Backward || r.Len() != 3 || r.Full() {
		t.Fatalf("unexpected reptile: dir=%v len=%d", r.Direction, r.Len())
	}
	if err := r.Resize(2); err != nil {
		t.Fatalf("resize: %v", err)
	}
	if got := xs(r); !equalFloats(got, []float64{2, 3}) {
		t.Fatalf("unexpected beads after shrink: %v", got)
	}
	if _, err := FromSnapshots(2, Forward, []model.Snapshot{bead(1), bead(2), bead(3)}); err == nil {
		t.Fatal("expected overflow error")
	}
}

func TestNumParticlesDetectsMismatch(t *testing.T) {
	r, _ := New(3)
	if _, err := r.NumParticles(); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected empty error, got %v", err)
	}
	r.Grow(Forward, bead(1))
	r.Grow(Forward, model.Snapshot{Positions: make([]model.Vec3, 2)})
	if _, err := r.NumParticles(); err == nil {
		t.Fatal("expected particle mismatch error")
	}
}

func TestParseDirection(t *testing.T) {
	for _, tc := range []struct {
		in   int
		want Direction
		ok   bool
	}{
		{0, Backward, true},
		{1, Forward, true},
		{2, Backward, false},
	} {
		got, err := ParseDirection(tc.in)
		if (err == nil) != tc.ok || (tc.ok && got != tc.want) {
			t.Fatalf("ParseDirection(%d) = %v, %v", tc.in, got, err)
		}
	}
}
