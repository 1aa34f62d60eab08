package stats

import (
	"math"
	"sort"
	"sync"

	"reptation/internal/model"
)

// Manager collects block results from every replica and turns them into
// final estimates. It is safe for concurrent use.
type Manager struct {
	auxNames []string

	mu     sync.Mutex
	blocks []model.BlockRecord
}

// NewManager labels Properties.Aux entries with auxNames in the estimates.
func NewManager(auxNames []string) *Manager {
	return &Manager{auxNames: append([]string(nil), auxNames...)}
}

func (m *Manager) ReportBlock(rec model.BlockRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, rec)
}

// Blocks returns the recorded blocks ordered by replica then block.
func (m *Manager) Blocks() []model.BlockRecord {
	m.mu.Lock()
	out := append([]model.BlockRecord(nil), m.blocks...)
	m.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Replica == out[j].Replica {
			return out[i].Block < out[j].Block
		}
		return out[i].Replica < out[j].Replica
	})
	return out
}

// Reset drops every recorded block.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.blocks = nil
	m.mu.Unlock()
}

type series struct {
	name string
	get  func(model.BlockRecord) (float64, bool)
}

func (m *Manager) series() []series {
	out := []series{
		{"energy", func(b model.BlockRecord) (float64, bool) { return b.Center.Energy(), true }},
		{"path_energy", func(b model.BlockRecord) (float64, bool) { return b.Path.Energy(), true }},
		{"kinetic", func(b model.BlockRecord) (float64, bool) { return b.Center.Kinetic, true }},
		{"potential", func(b model.BlockRecord) (float64, bool) { return b.Center.Potential, true }},
		{"nonlocal", func(b model.BlockRecord) (float64, bool) { return b.Center.NonLocal, true }},
		{"acceptance", func(b model.BlockRecord) (float64, bool) { return b.AcceptanceRatio, true }},
		{"branching", func(b model.BlockRecord) (float64, bool) { return b.BranchingMean, b.BranchingMean > 0 }},
	}
	for i, name := range m.auxNames {
		idx := i
		out = append(out, series{name, func(b model.BlockRecord) (float64, bool) {
			if idx >= len(b.Center.Aux) {
				return 0, false
			}
			return b.Center.Aux[idx], true
		}})
	}
	return out
}

// Estimates summarizes every tracked property over all blocks. Blocks from
// different replicas are independent; the autocorrelation time is measured
// per replica and averaged.
func (m *Manager) Estimates() []model.Estimate {
	return EstimatesFor(m.Blocks(), m.auxNames)
}

// EstimatesFor summarizes blocks ordered by replica then block.
func EstimatesFor(blocks []model.BlockRecord, auxNames []string) []model.Estimate {
	m := &Manager{auxNames: auxNames}
	var out []model.Estimate
	for _, s := range m.series() {
		var (
			all       []float64
			perRep    = map[int][]float64{}
			replicaID []int
		)
		for _, b := range blocks {
			v, ok := s.get(b)
			if !ok {
				continue
			}
			all = append(all, v)
			if _, seen := perRep[b.Replica]; !seen {
				replicaID = append(replicaID, b.Replica)
			}
			perRep[b.Replica] = append(perRep[b.Replica], v)
		}
		if len(all) == 0 {
			continue
		}
		var tau float64
		for _, id := range replicaID {
			tau += AutocorrelationTime(perRep[id])
		}
		tau /= float64(len(replicaID))

		mean, _ := Mean(all)
		sd, _ := Std(all)
		est := model.Estimate{Name: s.name, Mean: mean, Samples: len(all)}
		if len(all) > 1 {
			est.Error = sd * math.Sqrt(tau/float64(len(all)))
		}
		out = append(out, est)
	}
	return out
}

// Find returns the estimate called name.
func Find(estimates []model.Estimate, name string) (model.Estimate, bool) {
	for _, e := range estimates {
		if e.Name == name {
			return e, true
		}
	}
	return model.Estimate{}, false
}
