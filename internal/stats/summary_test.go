package stats

import (
	"errors"
	"math"
	"sync"
	"testing"

	"reptation/internal/model"
)

func TestSummarizeIndependentSeries(t *testing.T) {
	s, err := Summarize([]float64{1, -1, 1, -1, 1, -1})
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if s.Samples != 6 || math.Abs(s.Mean) > 1e-15 || s.Min != -1 || s.Max != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
	// lag-1 correlation is negative, so no inflation
	if s.AutoCorr != 1 {
		t.Fatalf("expected autocorrelation time 1, got %v", s.AutoCorr)
	}
	if want := math.Sqrt(6.0/5) / math.Sqrt(6); math.Abs(s.Error-want) > 1e-12 {
		t.Fatalf("error %v, want %v", s.Error, want)
	}
}

func TestAutocorrelationInflatesSmoothSeries(t *testing.T) {
	values := make([]float64, 40)
	for i := range values {
		values[i] = float64(i / 10)
	}
	if tau := AutocorrelationTime(values); tau <= 1 {
		t.Fatalf("expected tau > 1 for a correlated series, got %v", tau)
	}
	if tau := AutocorrelationTime([]float64{2, 2, 2, 2}); tau != 1 {
		t.Fatalf("constant series tau %v", tau)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	if _, err := Summarize(nil); !errors.Is(err, ErrNoSamples) {
		t.Fatalf("expected ErrNoSamples, got %v", err)
	}
	s, err := Summarize([]float64{3})
	if err != nil || s.Mean != 3 || s.Error != 0 {
		t.Fatalf("single sample: %+v %v", s, err)
	}
}

func TestManagerEstimates(t *testing.T) {
	m := NewManager([]string{"r2"})
	var wg sync.WaitGroup
	for replica := 0; replica < 2; replica++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for block := 0; block < 3; block++ {
				m.ReportBlock(model.BlockRecord{
					Replica:         replica,
					Block:           block,
					Center:          model.Properties{Count: 1, Weight: 1, Kinetic: 1.5, Aux: []float64{float64(replica)}},
					Path:            model.Properties{Count: 1, Weight: 1, Kinetic: 1.25},
					AcceptanceRatio: 0.5,
					BranchingMean:   1,
				})
			}
		}()
	}
	wg.Wait()

	blocks := m.Blocks()
	if len(blocks) != 6 || blocks[0].Replica != 0 || blocks[5].Replica != 1 || blocks[5].Block != 2 {
		t.Fatalf("unexpected block order %+v", blocks)
	}

	estimates := m.Estimates()
	energy, ok := Find(estimates, "energy")
	if !ok || energy.Mean != 1.5 || energy.Error != 0 || energy.Samples != 6 {
		t.Fatalf("unexpected energy estimate %+v", energy)
	}
	path, ok := Find(estimates, "path_energy")
	if !ok || path.Mean != 1.25 {
		t.Fatalf("unexpected path estimate %+v", path)
	}
	r2, ok := Find(estimates, "r2")
	if !ok || math.Abs(r2.Mean-0.5) > 1e-12 || r2.Error <= 0 {
		t.Fatalf("unexpected r2 estimate %+v", r2)
	}
	if _, ok := Find(estimates, "missing"); ok {
		t.Fatal("found estimate that does not exist")
	}

	m.Reset()
	if len(m.Blocks()) != 0 || len(m.Estimates()) != 0 {
		t.Fatal("reset did not clear blocks")
	}
}
