package accumulate

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"sort"

	"reptation/internal/model"
	"reptation/internal/reptile"
)

// Observable measures one scalar on a bead.
type Observable func(s *model.Snapshot) float64

func perParticle(f func(model.Vec3) float64) Observable {
	return func(s *model.Snapshot) float64 {
		if len(s.Positions) == 0 {
			return 0
		}
		var sum float64
		for _, p := range s.Positions {
			sum += f(p)
		}
		return sum / float64(len(s.Positions))
	}
}

var observables = map[string]Observable{
	"r":         perParticle(func(p model.Vec3) float64 { return math.Sqrt(p.Norm2()) }),
	"r2":        perParticle(model.Vec3.Norm2),
	"x":         perParticle(func(p model.Vec3) float64 { return p[0] }),
	"y":         perParticle(func(p model.Vec3) float64 { return p[1] }),
	"z":         perParticle(func(p model.Vec3) float64 { return p[2] }),
	"energy":    func(s *model.Snapshot) float64 { return s.Properties.Energy() },
	"potential": func(s *model.Snapshot) float64 { return s.Properties.Potential },
	"kinetic":   func(s *model.Snapshot) float64 { return s.Properties.Kinetic },
}

// ObservableNames lists the observables an Average can declare.
func ObservableNames() []string {
	names := make([]string, 0, len(observables))
	for name := range observables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Average keeps a running mean and variance of one observable on the
// center of the path.
type Average struct {
	name string
	obs  Observable
	n    int
	mean float64
	m2   float64
}

func NewAverage(name string) (*Average, error) {
	obs, ok := observables[name]
	if !ok {
		return nil, fmt.Errorf("%w: unknown average %q (available: %v)", ErrInvalid, name, ObservableNames())
	}
	return &Average{name: name, obs: obs}, nil
}

func (a *Average) Name() string { return a.name }

func (a *Average) Accumulate(r *reptile.Reptile) {
	beads := centerBeads(r)
	if len(beads) == 0 {
		return
	}
	var x float64
	for _, b := range beads {
		x += a.obs(b)
	}
	x /= float64(len(beads))

	a.n++
	delta := x - a.mean
	a.mean += delta / float64(a.n)
	a.m2 += delta * (x - a.mean)
}

func (a *Average) Samples() int { return a.n }

func (a *Average) Mean() float64 { return a.mean }

// Error is the naive standard error; successive samples are correlated, so
// it underestimates the true error.
func (a *Average) Error() float64 {
	if a.n < 2 {
		return 0
	}
	return math.Sqrt(a.m2 / float64(a.n-1) / float64(a.n))
}

// Merge folds another replica's samples of the same observable into a.
func (a *Average) Merge(o *Average) error {
	if o.name != a.name {
		return fmt.Errorf("%w: merge average %s into %s", ErrInvalid, o.name, a.name)
	}
	if o.n == 0 {
		return nil
	}
	n := a.n + o.n
	delta := o.mean - a.mean
	a.m2 += o.m2 + delta*delta*float64(a.n)*float64(o.n)/float64(n)
	a.mean += delta * float64(o.n) / float64(n)
	a.n = n
	return nil
}

func (a *Average) Estimate() model.Estimate {
	return model.Estimate{Name: a.name, Mean: a.mean, Error: a.Error(), Samples: a.n}
}

func (a *Average) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s %g +/- %g (%d samples)\n", a.name, a.mean, a.Error(), a.n)
	return bw.Flush()
}
