package stats

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"reptation/internal/model"
)

func sampleBlocks() []model.BlockRecord {
	return []model.BlockRecord{
		{Replica: 0, Block: 0, Center: model.Properties{Count: 1, Weight: 1, Kinetic: 1, Potential: 0.5}, Path: model.Properties{Kinetic: 1.4}, AcceptanceRatio: 0.9, Steps: 10},
		{Replica: 0, Block: 1, Center: model.Properties{Count: 1, Weight: 1, Kinetic: 1, Potential: 0.4}, Path: model.Properties{Kinetic: 1.5}, AcceptanceRatio: 0.8, Steps: 10},
		{Replica: 1, Block: 0, Center: model.Properties{Count: 1, Weight: 1, Kinetic: 1, Potential: 0.6}, Path: model.Properties{Kinetic: 1.6}, AcceptanceRatio: 0.7, Steps: 10},
	}
}

func TestWriteAndExportRunArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	outDir := filepath.Join(t.TempDir(), "exports")

	runID := "run-123"
	artifacts := RunArtifacts{
		Config: RunConfig{
			RunID:         runID,
			System:        "harmonic",
			Particles:     1,
			Replicas:      2,
			ReptileLength: 8,
			Timestep:      0.05,
			Blocks:        2,
			Steps:         10,
			Seed:          1,
		},
		Blocks:    sampleBlocks(),
		Estimates: []model.Estimate{{Name: "energy", Mean: 1.5, Error: 0.05, Samples: 3}},
		Averages:  []model.Estimate{{Name: "r2", Mean: 1.5, Samples: 20}},
		Moves:     MoveSummary{Accepted: 50, Rejected: 9, Numerical: 1},
	}

	runDir, err := WriteRunArtifacts(baseDir, artifacts)
	if err != nil {
		t.Fatalf("write artifacts: %v", err)
	}

	for _, file := range []string{"config.json", "blocks.json", "estimates.json", "averages.json", "energy_series.csv"} {
		if _, err := os.Stat(filepath.Join(runDir, file)); err != nil {
			t.Fatalf("expected file %s: %v", file, err)
		}
	}
	if err := os.WriteFile(filepath.Join(runDir, "density_electrons.dat"), []byte("# density\n"), 0o644); err != nil {
		t.Fatalf("write density: %v", err)
	}

	exportedDir, err := ExportRunArtifacts(baseDir, runID, outDir)
	if err != nil {
		t.Fatalf("export artifacts: %v", err)
	}

	for _, file := range []string{"config.json", "blocks.json", "estimates.json", "averages.json", "energy_series.csv", "density_electrons.dat"} {
		if _, err := os.Stat(filepath.Join(exportedDir, file)); err != nil {
			t.Fatalf("expected exported file %s: %v", file, err)
		}
	}

	cfg, ok, err := ReadRunConfig(baseDir, runID)
	if err != nil || !ok {
		t.Fatalf("read config: ok=%t err=%v", ok, err)
	}
	if cfg.System != "harmonic" || cfg.ReptileLength != 8 {
		t.Fatalf("unexpected config %+v", cfg)
	}

	blocks, ok, err := ReadBlocks(baseDir, runID)
	if err != nil || !ok || len(blocks) != 3 {
		t.Fatalf("read blocks: %d ok=%t err=%v", len(blocks), ok, err)
	}
	estimates, ok, err := ReadEstimates(baseDir, runID)
	if err != nil || !ok || len(estimates) != 1 || estimates[0].Mean != 1.5 {
		t.Fatalf("read estimates: %+v ok=%t err=%v", estimates, ok, err)
	}

	series, ok, err := ReadEnergySeries(baseDir, runID)
	if err != nil || !ok {
		t.Fatalf("read series: ok=%t err=%v", ok, err)
	}
	if len(series[0]) != 2 || len(series[1]) != 1 || math.Abs(series[1][0]-1.6) > 1e-12 {
		t.Fatalf("unexpected series %v", series)
	}
}

func TestWriteRunArtifactsRequiresRunID(t *testing.T) {
	if _, err := WriteRunArtifacts(t.TempDir(), RunArtifacts{}); err == nil {
		t.Fatal("expected error for missing run id")
	}
}

func TestReadMissingArtifacts(t *testing.T) {
	baseDir := t.TempDir()
	if _, ok, err := ReadRunConfig(baseDir, "absent"); err != nil || ok {
		t.Fatalf("expected missing config; ok=%t err=%v", ok, err)
	}
	if _, ok, err := ReadEnergySeries(baseDir, "absent"); err != nil || ok {
		t.Fatalf("expected missing series; ok=%t err=%v", ok, err)
	}
	if _, err := ExportRunArtifacts(baseDir, "absent", t.TempDir()); err == nil {
		t.Fatal("expected export error for missing run")
	}
}

func TestWriteRunConfigRejectsMismatchedID(t *testing.T) {
	baseDir := t.TempDir()
	if err := WriteRunConfig(baseDir, "run-a", RunConfig{RunID: "run-b"}); err == nil {
		t.Fatal("expected run id mismatch error")
	}
	if err := WriteRunConfig(baseDir, "run-a", RunConfig{System: "harmonic"}); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, ok, err := ReadRunConfig(baseDir, "run-a")
	if err != nil || !ok || cfg.RunID != "run-a" {
		t.Fatalf("unexpected config %+v ok=%t err=%v", cfg, ok, err)
	}
}

func TestRunIndexAppendListAndUpsert(t *testing.T) {
	baseDir := t.TempDir()

	err := AppendRunIndex(baseDir, RunIndexEntry{
		RunID:        "run-1",
		System:       "harmonic",
		Particles:    1,
		Blocks:       3,
		Seed:         1,
		Energy:       1.51,
		CreatedAtUTC: "2026-02-10T10:00:00Z",
	})
	if err != nil {
		t.Fatalf("append run-1: %v", err)
	}

	err = AppendRunIndex(baseDir, RunIndexEntry{
		RunID:        "run-2",
		System:       "harmonic",
		Particles:    1,
		Blocks:       3,
		Seed:         2,
		Energy:       1.49,
		CreatedAtUTC: "2026-02-10T11:00:00Z",
	})
	if err != nil {
		t.Fatalf("append run-2: %v", err)
	}

	entries, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].RunID != "run-2" || entries[1].RunID != "run-1" {
		t.Fatalf("unexpected order: %+v", entries)
	}

	err = AppendRunIndex(baseDir, RunIndexEntry{
		RunID:        "run-1",
		System:       "harmonic",
		Particles:    1,
		Blocks:       3,
		Seed:         1,
		Energy:       1.5,
		CreatedAtUTC: "2026-02-10T12:00:00Z",
	})
	if err != nil {
		t.Fatalf("upsert run-1: %v", err)
	}

	entries, err = ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list after upsert: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries after upsert, got %d", len(entries))
	}
	if entries[0].RunID != "run-1" || entries[0].Energy != 1.5 {
		t.Fatalf("unexpected upsert result: %+v", entries[0])
	}
}

func TestRunIndexEqualTimestampPrefersLaterAppend(t *testing.T) {
	baseDir := t.TempDir()
	ts := "2026-02-10T12:00:00Z"

	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "run-a", CreatedAtUTC: ts}); err != nil {
		t.Fatalf("append run-a: %v", err)
	}
	if err := AppendRunIndex(baseDir, RunIndexEntry{RunID: "run-b", CreatedAtUTC: ts}); err != nil {
		t.Fatalf("append run-b: %v", err)
	}

	entries, err := ListRunIndex(baseDir)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].RunID != "run-b" {
		t.Fatalf("expected latest appended run-b first, got %+v", entries)
	}
}
