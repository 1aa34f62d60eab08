// Package config loads run configuration.
//
// Sources are merged with increasing priority: built-in defaults, a YAML
// file, REPTATION_ environment variables, then command-line overrides.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrInvalid = errors.New("invalid configuration")

type SystemConfig struct {
	Name      string             `koanf:"name"`
	Particles int                `koanf:"particles"`
	Params    map[string]float64 `koanf:"params"`
}

// DensityConfig declares a cubic density grid centered on the origin.
type DensityConfig struct {
	Name   string  `koanf:"name"`
	Bins   int     `koanf:"bins"`
	Extent float64 `koanf:"extent"`
}

type StoreConfig struct {
	Kind string `koanf:"kind"`
	Path string `koanf:"path"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	// Label names the run log file written next to the artifacts.
	Label string `koanf:"label"`
}

type Config struct {
	RunID           string          `koanf:"run_id"`
	ReptileLength   int             `koanf:"reptile_length"`
	Timestep        float64         `koanf:"timestep"`
	Blocks          int             `koanf:"nblock"`
	Steps           int             `koanf:"nstep"`
	ERef            float64         `koanf:"eref"`
	EnergyCutoff    float64         `koanf:"energy_cutoff"`
	ReadCheckpoint  string          `koanf:"readconfig"`
	StoreCheckpoint string          `koanf:"storeconfig"`
	TraceWait       int             `koanf:"trace_wait"`
	CheckpointEvery int             `koanf:"checkpoint_every"`
	Replicas        int             `koanf:"replicas"`
	Seed            int64           `koanf:"seed"`
	CenterTrace     bool            `koanf:"center_trace"`
	WarmupAttempts  int             `koanf:"warmup_attempts"`
	System          SystemConfig    `koanf:"system"`
	Densities       []DensityConfig `koanf:"density"`
	Averages        []string        `koanf:"average"`
	Store           StoreConfig     `koanf:"store"`
	Log             LogConfig       `koanf:"log"`
	ArtifactsDir    string          `koanf:"artifacts_dir"`
}

// Defaults returns the configuration used for keys no source sets.
func Defaults() map[string]any {
	return map[string]any{
		"reptile_length":   64,
		"timestep":         0.01,
		"nblock":           10,
		"nstep":            100,
		"eref":             0.0,
		"energy_cutoff":    10.0,
		"trace_wait":       100,
		"checkpoint_every": 1,
		"replicas":         1,
		"seed":             1,
		"warmup_attempts":  1000,
		"system": map[string]any{
			"name":      "harmonic",
			"particles": 1,
		},
		"log": map[string]any{
			"level":  "info",
			"format": "text",
		},
		"artifacts_dir": "runs",
	}
}

// Validate reports every violated key at once.
func (c Config) Validate() error {
	var problems []string
	add := func(key, msg string) {
		problems = append(problems, key+": "+msg)
	}

	if c.ReptileLength < 2 {
		add("reptile_length", "must be at least 2")
	}
	if !(c.Timestep > 0) || math.IsInf(c.Timestep, 0) {
		add("timestep", "must be positive and finite")
	}
	if c.Blocks < 0 {
		add("nblock", "must not be negative")
	}
	if c.Steps <= 0 {
		add("nstep", "must be positive")
	}
	if math.IsNaN(c.ERef) || math.IsInf(c.ERef, 0) {
		add("eref", "must be finite")
	}
	if !(c.EnergyCutoff > 0) {
		add("energy_cutoff", "must be positive")
	}
	if c.TraceWait < 0 {
		add("trace_wait", "must not be negative")
	}
	if c.CheckpointEvery < 0 {
		add("checkpoint_every", "must not be negative")
	}
	if c.Replicas < 1 {
		add("replicas", "must be at least 1")
	}
	if c.WarmupAttempts < 0 {
		add("warmup_attempts", "must not be negative")
	}
	if c.System.Name == "" {
		add("system.name", "is required")
	}
	if c.System.Particles < 1 {
		add("system.particles", "must be at least 1")
	}
	seen := map[string]bool{}
	for i, d := range c.Densities {
		key := fmt.Sprintf("density[%d]", i)
		if d.Name == "" {
			add(key+".name", "is required")
		} else if seen[d.Name] {
			add(key+".name", "duplicates "+d.Name)
		}
		seen[d.Name] = true
		if d.Bins < 1 {
			add(key+".bins", "must be positive")
		}
		if !(d.Extent > 0) {
			add(key+".extent", "must be positive")
		}
	}
	for i, name := range c.Averages {
		if strings.TrimSpace(name) == "" {
			add(fmt.Sprintf("average[%d]", i), "is empty")
		}
	}
	switch c.Store.Kind {
	case "", "memory", "sqlite", "badger":
	default:
		add("store.kind", "unknown backend "+c.Store.Kind)
	}
	if c.Store.Kind == "sqlite" && c.Store.Path == "" {
		add("store.path", "is required for sqlite")
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		add("log.level", "unknown level "+c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		add("log.format", "unknown format "+c.Log.Format)
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
}
