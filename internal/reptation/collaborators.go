package reptation

import (
	"math/rand"

	"reptation/internal/model"
	"reptation/internal/reptile"
)

// Sampler is the proposal kernel: it draws a new configuration from the
// current one and reports the log transition density of any link.
type Sampler interface {
	Propose(rng *rand.Rand, from, drift []model.Vec3, tau float64) ([]model.Vec3, error)
	LogTransition(to, from, drift []model.Vec3, tau float64) float64
}

// Evaluation is everything the wavefunction and Hamiltonian report for one
// configuration.
type Evaluation struct {
	Properties model.Properties
	// LogGuide is ln|Psi_G|.
	LogGuide float64
	// Drift is the gradient of ln|Psi_G| per particle.
	Drift []model.Vec3
}

type Evaluator interface {
	Evaluate(positions []model.Vec3) (Evaluation, error)
}

// Accumulator receives the reptile after every accepted move.
type Accumulator interface {
	Name() string
	Accumulate(r *reptile.Reptile)
}

// BlockSink receives finished block results; the property manager
// implements it.
type BlockSink interface {
	ReportBlock(rec model.BlockRecord)
}
