package reptation

import (
	"math"

	"reptation/internal/model"
	"reptation/internal/reptile"
)

// Acceptance evaluates the Metropolis test for a slither move.
type Acceptance struct {
	Sampler Sampler
	Tau     float64
}

// Probability returns the probability of growing candidate at the dir end of
// r while the opposite end is dropped. While the reptile is still warming up
// nothing is dropped and every finite candidate is accepted.
//
// With E the growth end, R_r the dropped bead and R_n its inner neighbour,
// the path-weight ratio reduces to
//
//	ln A = ln T(R_r<-R_n) - ln T(R_n<-R_r)
//	     + 2 [ln Psi(R_n) - ln Psi(R_r)]
//	     + [ln b(E) + ln b(R')]/2 - [ln b(R_r) + ln b(R_n)]/2
//
// because the forward kernel T(R'<-E) cancels against the new link.
func (a Acceptance) Probability(r *reptile.Reptile, candidate model.Snapshot, dir reptile.Direction) float64 {
	if !usable(candidate.LogGuide) || !positive(candidate.Branching) {
		return 0
	}
	if r.Len() == 0 || !r.Full() {
		return 1
	}

	end := r.End(dir)
	removed := r.Opposite(dir)
	inner := r.Inner(dir.Flip())
	if !removed.Evaluated() || !inner.Evaluated() {
		return 0
	}
	for _, s := range []*model.Snapshot{end, removed, inner} {
		if !positive(s.Branching) || !usable(s.LogGuide) {
			return 0
		}
	}

	reverse := a.Sampler.LogTransition(removed.Positions, inner.Positions, inner.Drift, a.Tau)
	forward := a.Sampler.LogTransition(inner.Positions, removed.Positions, removed.Drift, a.Tau)
	if !usable(reverse) || !usable(forward) {
		return 0
	}

	logA := reverse - forward
	logA += 2 * (inner.LogGuide - removed.LogGuide)
	logA += 0.5 * (math.Log(end.Branching) + math.Log(candidate.Branching))
	logA -= 0.5 * (math.Log(removed.Branching) + math.Log(inner.Branching))

	switch {
	case math.IsNaN(logA):
		return 0
	case logA >= 0:
		return 1
	default:
		return math.Exp(logA)
	}
}

// usable rejects NaN and infinities; ln 0 = -Inf signals a zero density or
// a node of the guiding function.
func usable(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func positive(x float64) bool {
	return usable(x) && x > 0
}
