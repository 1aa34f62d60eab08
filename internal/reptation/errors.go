package reptation

import "errors"

var (
	ErrNonFinite        = errors.New("non-finite value")
	ErrParticleMismatch = errors.New("particle count mismatch")
	ErrNotEvaluated     = errors.New("snapshot has no guiding-function data")
	ErrInvalidState     = errors.New("invalid run state")
	ErrWarmupStalled    = errors.New("reptile warm-up stalled")
	ErrInvalidOptions   = errors.New("invalid reptation options")
)
