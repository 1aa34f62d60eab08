package reptation

import (
	"reptation/internal/model"
	"reptation/internal/reptile"
)

// propertiesMean is a running mean over Properties. The update
// m += (x-m)/n leaves the mean exactly unchanged for repeated samples.
type propertiesMean struct {
	n     int
	mean  model.Properties
	auxN  []int
	count int
}

func (m *propertiesMean) add(p model.Properties) {
	m.n++
	m.count += p.Count
	k := float64(m.n)
	m.mean.Weight += (p.Weight - m.mean.Weight) / k
	m.mean.Kinetic += (p.Kinetic - m.mean.Kinetic) / k
	m.mean.Potential += (p.Potential - m.mean.Potential) / k
	m.mean.NonLocal += (p.NonLocal - m.mean.NonLocal) / k
	for i, x := range p.Aux {
		if i >= len(m.mean.Aux) {
			m.mean.Aux = append(m.mean.Aux, 0)
			m.auxN = append(m.auxN, 0)
		}
		m.auxN[i]++
		m.mean.Aux[i] += (x - m.mean.Aux[i]) / float64(m.auxN[i])
	}
}

func (m *propertiesMean) result() model.Properties {
	out := m.mean.Clone()
	out.Count = m.count
	return out
}

// PathAverage averages the properties of every bead.
func PathAverage(r *reptile.Reptile) model.Properties {
	var m propertiesMean
	for i := 0; i < r.Len(); i++ {
		m.add(r.At(i).Properties)
	}
	return m.result()
}

// CenterAverage averages the bead(s) at the middle of the path: one bead for
// odd lengths, the two central beads for even lengths.
func CenterAverage(r *reptile.Reptile) model.Properties {
	var m propertiesMean
	n := r.Len()
	if n == 0 {
		return m.result()
	}
	if n%2 == 1 {
		m.add(r.At(n / 2).Properties)
	} else {
		m.add(r.At(n/2 - 1).Properties)
		m.add(r.At(n / 2).Properties)
	}
	return m.result()
}

// Aggregator accumulates per-step estimators over a block.
type Aggregator struct {
	path      propertiesMean
	center    propertiesMean
	branching float64
	accepted  int
	numerical int
	diffusion float64
	steps     int
}

// Add records the reptile state after one slither step.
func (a *Aggregator) Add(r *reptile.Reptile, step Step) {
	a.steps++
	a.path.add(PathAverage(r))
	a.center.add(CenterAverage(r))
	if step.Accepted {
		a.accepted++
		a.branching += (step.Branching - a.branching) / float64(a.accepted)
		a.diffusion += step.Diffusion
	} else if step.Numerical() {
		a.numerical++
	}
}

func (a *Aggregator) Steps() int {
	return a.steps
}

// EndBlock returns the block statistics and resets the accumulators.
func (a *Aggregator) EndBlock() model.BlockRecord {
	rec := model.BlockRecord{
		Path:             a.path.result(),
		Center:           a.center.result(),
		BranchingMean:    a.branching,
		NumericalRejects: a.numerical,
		Diffusion:        a.diffusion,
		Steps:            a.steps,
	}
	if a.steps > 0 {
		rec.AcceptanceRatio = float64(a.accepted) / float64(a.steps)
	}
	*a = Aggregator{}
	return rec
}
