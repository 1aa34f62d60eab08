// Package reptile holds the discretized path sampled by reptation Monte
// Carlo: a fixed-capacity double-ended sequence of snapshots that grows at
// one end and sheds at the other.
package reptile

import (
	"errors"
	"fmt"

	"reptation/internal/model"
)

// Direction selects the end at which the reptile grows.
type Direction int

const (
	// Backward grows at the front (index 0).
	Backward Direction = 0
	// Forward grows at the back (index Len-1).
	Forward Direction = 1
)

func (d Direction) Flip() Direction {
	if d == Forward {
		return Backward
	}
	return Forward
}

func (d Direction) String() string {
	if d == Forward {
		return "forward"
	}
	return "backward"
}

func ParseDirection(v int) (Direction, error) {
	switch v {
	case 0:
		return Backward, nil
	case 1:
		return Forward, nil
	default:
		return Backward, fmt.Errorf("invalid direction %d", v)
	}
}

var (
	ErrEmpty    = errors.New("reptile is empty")
	ErrCapacity = errors.New("reptile capacity must be at least 2")
)

// Reptile is a ring buffer of snapshots. head indexes the front bead and
// size counts the occupied slots; growth never reallocates.
type Reptile struct {
	Direction Direction

	beads []model.Snapshot
	head  int
	size  int
}

func New(capacity int) (*Reptile, error) {
	if capacity < 2 {
		return nil, ErrCapacity
	}
	return &Reptile{
		Direction: Forward,
		beads:     make([]model.Snapshot, capacity),
	}, nil
}

// FromSnapshots builds a full or partial reptile from an ordered bead list.
func FromSnapshots(capacity int, dir Direction, beads []model.Snapshot) (*Reptile, error) {
	r, err := New(capacity)
	if err != nil {
		return nil, err
	}
	if len(beads) > capacity {
		return nil, fmt.Errorf("%d snapshots exceed reptile capacity %d", len(beads), capacity)
	}
	for _, b := range beads {
		r.Grow(Forward, b)
	}
	r.Direction = dir
	return r, nil
}

func (r *Reptile) Len() int   { return r.size }
func (r *Reptile) Cap() int   { return len(r.beads) }
func (r *Reptile) Full() bool { return r.size == len(r.beads) }

func (r *Reptile) slot(i int) int {
	return (r.head + i) % len(r.beads)
}

// At returns the i-th bead counted from the front. The pointer stays valid
// until the bead is removed.
func (r *Reptile) At(i int) *model.Snapshot {
	if i < 0 || i >= r.size {
		panic(fmt.Sprintf("reptile index %d out of range [0,%d)", i, r.size))
	}
	return &r.beads[r.slot(i)]
}

// End returns the growth end for dir.
func (r *Reptile) End(dir Direction) *model.Snapshot {
	if dir == Forward {
		return r.At(r.size - 1)
	}
	return r.At(0)
}

// Opposite returns the end that would be removed when growing toward dir.
func (r *Reptile) Opposite(dir Direction) *model.Snapshot {
	return r.End(dir.Flip())
}

// Inner returns the neighbour of the end toward dir.
func (r *Reptile) Inner(dir Direction) *model.Snapshot {
	if r.size < 2 {
		return r.End(dir)
	}
	if dir == Forward {
		return r.At(r.size - 2)
	}
	return r.At(1)
}

// Grow appends s at the dir end. When the reptile is full the bead at the
// opposite end is dropped and returned.
func (r *Reptile) Grow(dir Direction, s model.Snapshot) (model.Snapshot, bool) {
	var (
		removed model.Snapshot
		dropped bool
	)
	if r.Full() {
		removed, dropped = r.shed(dir.Flip()), true
	}
	if dir == Forward {
		r.beads[r.slot(r.size)] = s
	} else {
		r.head = (r.head - 1 + len(r.beads)) % len(r.beads)
		r.beads[r.head] = s
	}
	r.size++
	return removed, dropped
}

func (r *Reptile) shed(end Direction) model.Snapshot {
	var idx int
	if end == Forward {
		idx = r.slot(r.size - 1)
	} else {
		idx = r.head
		r.head = (r.head + 1) % len(r.beads)
	}
	out := r.beads[idx]
	r.beads[idx] = model.Snapshot{}
	r.size--
	return out
}

// Snapshots copies the beads front to back.
func (r *Reptile) Snapshots() []model.Snapshot {
	out := make([]model.Snapshot, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.At(i).Clone()
	}
	return out
}

// Clone returns an independent copy.
func (r *Reptile) Clone() *Reptile {
	out := &Reptile{
		Direction: r.Direction,
		beads:     make([]model.Snapshot, len(r.beads)),
		size:      r.size,
	}
	for i := 0; i < r.size; i++ {
		out.beads[i] = r.At(i).Clone()
	}
	return out
}

// NumParticles reports the particle count shared by every bead.
func (r *Reptile) NumParticles() (int, error) {
	if r.size == 0 {
		return 0, ErrEmpty
	}
	n := r.At(0).NumParticles()
	for i := 1; i < r.size; i++ {
		if got := r.At(i).NumParticles(); got != n {
			return 0, fmt.Errorf("bead %d has %d particles, bead 0 has %d", i, got, n)
		}
	}
	return n, nil
}

// Resize moves the beads into a buffer of a new capacity. Growing keeps every
// bead; shrinking drops beads from the front.
func (r *Reptile) Resize(capacity int) error {
	if capacity < 2 {
		return ErrCapacity
	}
	beads := r.Snapshots()
	if len(beads) > capacity {
		beads = beads[len(beads)-capacity:]
	}
	next, err := FromSnapshots(capacity, r.Direction, beads)
	if err != nil {
		return err
	}
	*r = *next
	return nil
}
