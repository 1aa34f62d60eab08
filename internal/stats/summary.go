package stats

import (
	"errors"
	"math"
)

var ErrNoSamples = errors.New("no samples")

// Summary describes a series of block averages.
type Summary struct {
	Samples int     `json:"samples"`
	Mean    float64 `json:"mean"`
	Stddev  float64 `json:"stddev"`
	// Error is the standard error of the mean inflated by the integrated
	// autocorrelation time of the series.
	Error    float64 `json:"error"`
	AutoCorr float64 `json:"autocorr_time"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
}

func Mean(values []float64) (float64, error) {
	if len(values) == 0 {
		return 0, ErrNoSamples
	}
	var m float64
	for i, v := range values {
		m += (v - m) / float64(i+1)
	}
	return m, nil
}

// Std is the sample standard deviation.
func Std(values []float64) (float64, error) {
	m, err := Mean(values)
	if err != nil {
		return 0, err
	}
	if len(values) < 2 {
		return 0, nil
	}
	var ss float64
	for _, v := range values {
		ss += (v - m) * (v - m)
	}
	return math.Sqrt(ss / float64(len(values)-1)), nil
}

// AutocorrelationTime estimates 1 + 2*sum rho(k), truncating the sum at the
// first non-positive autocorrelation. It is at least 1.
func AutocorrelationTime(values []float64) float64 {
	n := len(values)
	if n < 3 {
		return 1
	}
	m, _ := Mean(values)
	var c0 float64
	for _, v := range values {
		c0 += (v - m) * (v - m)
	}
	if c0 == 0 {
		return 1
	}
	tau := 1.0
	for k := 1; k < n/2; k++ {
		var ck float64
		for i := 0; i+k < n; i++ {
			ck += (values[i] - m) * (values[i+k] - m)
		}
		rho := ck / c0
		if rho <= 0 {
			break
		}
		tau += 2 * rho
	}
	return tau
}

func Summarize(values []float64) (Summary, error) {
	m, err := Mean(values)
	if err != nil {
		return Summary{}, err
	}
	sd, _ := Std(values)
	s := Summary{
		Samples:  len(values),
		Mean:     m,
		Stddev:   sd,
		AutoCorr: AutocorrelationTime(values),
		Min:      values[0],
		Max:      values[0],
	}
	for _, v := range values[1:] {
		s.Min = math.Min(s.Min, v)
		s.Max = math.Max(s.Max, v)
	}
	if s.Samples > 1 {
		s.Error = sd * math.Sqrt(s.AutoCorr/float64(s.Samples))
	}
	return s, nil
}
