// Package accumulate holds auxiliary accumulators fed the reptile after
// every accepted move: a spatial density grid and generic averages, both
// measured on the center of the path.
package accumulate

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"reptation/internal/model"
	"reptation/internal/reptile"
)

var ErrInvalid = errors.New("invalid accumulator")

// centerBeads returns the bead(s) the center estimator uses.
func centerBeads(r *reptile.Reptile) []*model.Snapshot {
	n := r.Len()
	switch {
	case n == 0:
		return nil
	case n%2 == 1:
		return []*model.Snapshot{r.At(n / 2)}
	default:
		return []*model.Snapshot{r.At(n/2 - 1), r.At(n / 2)}
	}
}

// Density histograms particle positions of the center bead on a cubic grid
// spanning [-Extent, Extent] on every axis. Positions outside the box are
// counted but not binned.
type Density struct {
	name    string
	bins    int
	extent  float64
	counts  []float64
	samples int
	outside int
}

func NewDensity(name string, bins int, extent float64) (*Density, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: density needs a name", ErrInvalid)
	}
	if bins <= 0 || !(extent > 0) || math.IsInf(extent, 0) {
		return nil, fmt.Errorf("%w: density %s: bins %d extent %v", ErrInvalid, name, bins, extent)
	}
	return &Density{
		name:   name,
		bins:   bins,
		extent: extent,
		counts: make([]float64, bins*bins*bins),
	}, nil
}

func (d *Density) Name() string { return d.name }

func (d *Density) bin(x float64) (int, bool) {
	if x < -d.extent || x >= d.extent {
		return 0, false
	}
	i := int((x + d.extent) / (2 * d.extent) * float64(d.bins))
	return min(i, d.bins-1), true
}

func (d *Density) Accumulate(r *reptile.Reptile) {
	beads := centerBeads(r)
	if len(beads) == 0 {
		return
	}
	w := 1 / float64(len(beads))
	for _, b := range beads {
		for _, p := range b.Positions {
			ix, okx := d.bin(p[0])
			iy, oky := d.bin(p[1])
			iz, okz := d.bin(p[2])
			if !okx || !oky || !okz {
				d.outside++
				continue
			}
			d.counts[(ix*d.bins+iy)*d.bins+iz] += w
		}
	}
	d.samples++
}

func (d *Density) Samples() int { return d.samples }

// Outside is the number of particle positions that fell outside the grid.
func (d *Density) Outside() int { return d.outside }

// Merge adds the histogram of another grid with the same geometry.
func (d *Density) Merge(o *Density) error {
	if o.name != d.name || o.bins != d.bins || o.extent != d.extent {
		return fmt.Errorf("%w: merge density %s into %s with a different grid", ErrInvalid, o.name, d.name)
	}
	for i, c := range o.counts {
		d.counts[i] += c
	}
	d.samples += o.samples
	d.outside += o.outside
	return nil
}

func (d *Density) binVolume() float64 {
	h := 2 * d.extent / float64(d.bins)
	return h * h * h
}

// At returns the particle density (per unit volume, per sample) of a cell.
func (d *Density) At(ix, iy, iz int) float64 {
	if d.samples == 0 {
		return 0
	}
	return d.counts[(ix*d.bins+iy)*d.bins+iz] / (float64(d.samples) * d.binVolume())
}

// Write emits one "x y z density" line per non-empty cell, x y z being the
// cell center.
func (d *Density) Write(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# density %s bins %d extent %s samples %d\n", d.name, d.bins, strconv.FormatFloat(d.extent, 'g', -1, 64), d.samples)
	h := 2 * d.extent / float64(d.bins)
	for ix := 0; ix < d.bins; ix++ {
		for iy := 0; iy < d.bins; iy++ {
			for iz := 0; iz < d.bins; iz++ {
				rho := d.At(ix, iy, iz)
				if rho == 0 {
					continue
				}
				fmt.Fprintf(bw, "%g %g %g %g\n",
					-d.extent+(float64(ix)+0.5)*h,
					-d.extent+(float64(iy)+0.5)*h,
					-d.extent+(float64(iz)+0.5)*h,
					rho)
			}
		}
	}
	return bw.Flush()
}
