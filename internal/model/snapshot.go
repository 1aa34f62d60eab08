package model

import (
	"errors"
	"fmt"
	"math"
)

// Vec3 is a position or displacement in three dimensions.
type Vec3 [3]float64

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{v[0] + o[0], v[1] + o[1], v[2] + o[2]} }
func (v Vec3) Sub(o Vec3) Vec3 { return Vec3{v[0] - o[0], v[1] - o[1], v[2] - o[2]} }
func (v Vec3) Scale(s float64) Vec3 {
	return Vec3{v[0] * s, v[1] * s, v[2] * s}
}
func (v Vec3) Dot(o Vec3) float64 { return v[0]*o[0] + v[1]*o[1] + v[2]*o[2] }
func (v Vec3) Norm2() float64     { return v.Dot(v) }

func (v Vec3) IsFinite() bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}

// Properties are the locally evaluated observables of one configuration.
type Properties struct {
	Count     int       `json:"count"`
	Weight    float64   `json:"weight"`
	Kinetic   float64   `json:"kinetic"`
	Potential float64   `json:"potential"`
	NonLocal  float64   `json:"nonlocal"`
	Aux       []float64 `json:"aux,omitempty"`
}

// Energy is the local energy, the sum of the kinetic and potential parts.
func (p Properties) Energy() float64 {
	return p.Kinetic + p.Potential + p.NonLocal
}

func (p Properties) Clone() Properties {
	out := p
	if p.Aux != nil {
		out.Aux = append([]float64(nil), p.Aux...)
	}
	return out
}

func (p Properties) IsFinite() bool {
	for _, x := range []float64{p.Weight, p.Kinetic, p.Potential, p.NonLocal} {
		if !finite(x) {
			return false
		}
	}
	for _, x := range p.Aux {
		if !finite(x) {
			return false
		}
	}
	return true
}

// Snapshot is one bead of the reptile: a full particle configuration plus
// what was evaluated there.
type Snapshot struct {
	Positions  []Vec3
	Properties Properties
	Age        float64
	Branching  float64

	// LogGuide and Drift are cached evaluator output and are not
	// serialized; they are recomputed from Positions after a restore.
	LogGuide float64
	Drift    []Vec3
}

var ErrEmptySnapshot = errors.New("snapshot has no particles")

func (s Snapshot) NumParticles() int {
	return len(s.Positions)
}

func (s Snapshot) Clone() Snapshot {
	out := s
	out.Positions = append([]Vec3(nil), s.Positions...)
	if s.Drift != nil {
		out.Drift = append([]Vec3(nil), s.Drift...)
	}
	out.Properties = s.Properties.Clone()
	return out
}

// Evaluated reports whether the guiding-function cache is populated.
func (s Snapshot) Evaluated() bool {
	return len(s.Drift) == len(s.Positions) && len(s.Positions) > 0
}

func (s Snapshot) Validate() error {
	if len(s.Positions) == 0 {
		return ErrEmptySnapshot
	}
	for i, p := range s.Positions {
		if !p.IsFinite() {
			return fmt.Errorf("particle %d has non-finite position %v", i, p)
		}
	}
	if !finite(s.Age) || s.Age < 0 {
		return fmt.Errorf("invalid age %v", s.Age)
	}
	if !finite(s.Branching) || s.Branching < 0 {
		return fmt.Errorf("invalid branching weight %v", s.Branching)
	}
	if !s.Properties.IsFinite() {
		return errors.New("properties contain non-finite values")
	}
	return nil
}

func finite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}
