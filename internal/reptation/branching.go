package reptation

import (
	"fmt"
	"math"
)

// ClampEnergy limits e to within cutoff of eref, keeping the sign of the
// deviation. A non-positive or infinite cutoff leaves e untouched.
func ClampEnergy(e, eref, cutoff float64) float64 {
	if cutoff <= 0 || math.IsInf(cutoff, 1) {
		return e
	}
	switch d := e - eref; {
	case d > cutoff:
		return eref + cutoff
	case d < -cutoff:
		return eref - cutoff
	default:
		return e
	}
}

// BranchWeight is exp(-tau*(E-Eref)) with E clamped by the energy cutoff.
func BranchWeight(e, eref, tau, cutoff float64) (float64, error) {
	if math.IsNaN(e) || math.IsInf(e, 0) {
		return 0, fmt.Errorf("%w: local energy %v", ErrNonFinite, e)
	}
	w := math.Exp(-tau * (ClampEnergy(e, eref, cutoff) - eref))
	if w <= 0 || math.IsInf(w, 0) || math.IsNaN(w) {
		return 0, fmt.Errorf("%w: branch weight %v for energy %v", ErrNonFinite, w, e)
	}
	return w, nil
}
