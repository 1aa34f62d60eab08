package reptation

import (
	"errors"
	"fmt"
	"math/rand"

	"reptation/internal/model"
	"reptation/internal/reptile"
)

// RejectReason explains why a slither move did not advance the reptile.
type RejectReason string

const (
	RejectNone       RejectReason = ""
	RejectMetropolis RejectReason = "metropolis"
	RejectSampler    RejectReason = "sampler"
	RejectEvaluator  RejectReason = "evaluator"
)

// Step is the outcome of one slither move.
type Step struct {
	Accepted    bool
	Probability float64
	// Diffusion is the squared distance the growth end moved, zero on
	// rejection.
	Diffusion float64
	Branching float64
	Removed   model.Snapshot
	Dropped   bool
	Reason    RejectReason
}

// Numerical reports whether the move was rejected for a collaborator failure
// rather than by the Metropolis test.
func (s Step) Numerical() bool {
	return !s.Accepted && s.Reason != RejectMetropolis
}

// MoveCounts tallies slither outcomes.
type MoveCounts struct {
	Accepted  int
	Rejected  int
	Numerical int
}

func (c MoveCounts) Total() int {
	return c.Accepted + c.Rejected + c.Numerical
}

// Propagator grows the reptile one bead at a time.
type Propagator struct {
	Sampler   Sampler
	Evaluator Evaluator
	Rand      *rand.Rand
	Tau       float64
	ERef      float64
	Cutoff    float64

	Counts MoveCounts
}

func (p *Propagator) acceptance() Acceptance {
	return Acceptance{Sampler: p.Sampler, Tau: p.Tau}
}

// Evaluate builds a snapshot at positions. Collaborator failures and
// non-finite output are returned as errors wrapping ErrNonFinite or the
// evaluator's own error.
func (p *Propagator) Evaluate(positions []model.Vec3) (model.Snapshot, error) {
	ev, err := p.Evaluator.Evaluate(positions)
	if err != nil {
		return model.Snapshot{}, err
	}
	if len(ev.Drift) != len(positions) {
		return model.Snapshot{}, fmt.Errorf("%w: evaluator returned %d drift vectors for %d particles", ErrParticleMismatch, len(ev.Drift), len(positions))
	}
	if !ev.Properties.IsFinite() || !usable(ev.LogGuide) {
		return model.Snapshot{}, fmt.Errorf("%w: evaluation at candidate configuration", ErrNonFinite)
	}
	for _, d := range ev.Drift {
		if !d.IsFinite() {
			return model.Snapshot{}, fmt.Errorf("%w: drift", ErrNonFinite)
		}
	}
	w, err := BranchWeight(ev.Properties.Energy(), p.ERef, p.Tau, p.Cutoff)
	if err != nil {
		return model.Snapshot{}, err
	}
	return model.Snapshot{
		Positions:  positions,
		Properties: ev.Properties,
		Branching:  w,
		LogGuide:   ev.LogGuide,
		Drift:      ev.Drift,
	}, nil
}

// Seed evaluates positions and places the first bead of an empty reptile.
func (p *Propagator) Seed(r *reptile.Reptile, positions []model.Vec3) error {
	if r.Len() != 0 {
		return fmt.Errorf("seed: reptile already holds %d beads", r.Len())
	}
	if len(positions) == 0 {
		return model.ErrEmptySnapshot
	}
	s, err := p.Evaluate(append([]model.Vec3(nil), positions...))
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	r.Grow(r.Direction, s)
	return nil
}

// Refresh re-evaluates the guiding-function cache of every bead, as needed
// after a checkpoint restore. Stored properties, ages and branching weights
// are kept as read.
func (p *Propagator) Refresh(r *reptile.Reptile) error {
	for i := 0; i < r.Len(); i++ {
		bead := r.At(i)
		ev, err := p.Evaluator.Evaluate(bead.Positions)
		if err != nil {
			return fmt.Errorf("refresh bead %d: %w", i, err)
		}
		if len(ev.Drift) != len(bead.Positions) {
			return fmt.Errorf("refresh bead %d: %w", i, ErrParticleMismatch)
		}
		if !usable(ev.LogGuide) {
			return fmt.Errorf("refresh bead %d: %w: guiding function", i, ErrNonFinite)
		}
		bead.LogGuide = ev.LogGuide
		bead.Drift = ev.Drift
	}
	return nil
}

// Advance attempts one slither move toward dir. Only structural problems
// are returned as errors; every numerical failure becomes a rejection so
// the walk keeps sampling the right distribution.
func (p *Propagator) Advance(r *reptile.Reptile, dir reptile.Direction) (Step, error) {
	if r.Len() == 0 {
		return Step{}, reptile.ErrEmpty
	}
	end := r.End(dir)
	if !end.Evaluated() {
		return Step{}, ErrNotEvaluated
	}

	candidate, err := p.Sampler.Propose(p.Rand, end.Positions, end.Drift, p.Tau)
	if err != nil {
		return p.reject(end, RejectSampler), nil
	}
	if len(candidate) != len(end.Positions) {
		return Step{}, fmt.Errorf("%w: sampler proposed %d particles, reptile holds %d", ErrParticleMismatch, len(candidate), len(end.Positions))
	}
	for _, c := range candidate {
		if !c.IsFinite() {
			return p.reject(end, RejectSampler), nil
		}
	}

	snap, err := p.Evaluate(candidate)
	if err != nil {
		if errors.Is(err, ErrParticleMismatch) {
			return Step{}, err
		}
		return p.reject(end, RejectEvaluator), nil
	}

	prob := p.acceptance().Probability(r, snap, dir)
	if prob <= 0 || prob < p.Rand.Float64() {
		step := p.reject(end, RejectMetropolis)
		step.Probability = prob
		return step, nil
	}

	var moved float64
	for i := range candidate {
		moved += candidate[i].Sub(end.Positions[i]).Norm2()
	}
	removed, dropped := r.Grow(dir, snap)
	p.Counts.Accepted++
	return Step{
		Accepted:    true,
		Probability: prob,
		Diffusion:   moved,
		Branching:   snap.Branching,
		Removed:     removed,
		Dropped:     dropped,
	}, nil
}

// reject bounces the move: the growth end ages in place.
func (p *Propagator) reject(end *model.Snapshot, reason RejectReason) Step {
	end.Age++
	if reason == RejectMetropolis {
		p.Counts.Rejected++
	} else {
		p.Counts.Numerical++
	}
	return Step{Reason: reason}
}
