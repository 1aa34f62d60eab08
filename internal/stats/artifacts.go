package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"reptation/internal/model"
)

const (
	runIndexFile    = "run_index.json"
	energySeriesCSV = "energy_series.csv"
)

type RunConfig struct {
	RunID           string             `json:"run_id"`
	System          string             `json:"system"`
	SystemParams    map[string]float64 `json:"system_params,omitempty"`
	Particles       int                `json:"particles"`
	Replicas        int                `json:"replicas"`
	ReptileLength   int                `json:"reptile_length"`
	Timestep        float64            `json:"timestep"`
	Blocks          int                `json:"nblock"`
	Steps           int                `json:"nstep"`
	ERef            float64            `json:"eref"`
	EnergyCutoff    float64            `json:"energy_cutoff"`
	TraceWait       int                `json:"trace_wait"`
	CheckpointEvery int                `json:"checkpoint_every"`
	Seed            int64              `json:"seed"`
	ReadCheckpoint  string             `json:"readconfig,omitempty"`
	StoreCheckpoint string             `json:"storeconfig,omitempty"`
	Densities       []string           `json:"density,omitempty"`
	Averages        []string           `json:"average,omitempty"`
}

type MoveSummary struct {
	Accepted  int `json:"accepted"`
	Rejected  int `json:"rejected"`
	Numerical int `json:"numerical"`
}

type RunArtifacts struct {
	Config    RunConfig           `json:"config"`
	Blocks    []model.BlockRecord `json:"blocks"`
	Estimates []model.Estimate    `json:"estimates"`
	Averages  []model.Estimate    `json:"averages,omitempty"`
	Moves     MoveSummary         `json:"moves"`
}

type RunIndexEntry struct {
	RunID         string  `json:"run_id"`
	System        string  `json:"system"`
	Particles     int     `json:"particles"`
	Replicas      int     `json:"replicas"`
	ReptileLength int     `json:"reptile_length"`
	Timestep      float64 `json:"timestep"`
	Blocks        int     `json:"nblock"`
	Steps         int     `json:"nstep"`
	Seed          int64   `json:"seed"`
	Energy        float64 `json:"energy"`
	EnergyError   float64 `json:"energy_error"`
	CreatedAtUTC  string  `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "blocks.json"), artifacts.Blocks); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "estimates.json"), map[string]any{"estimates": artifacts.Estimates, "moves": artifacts.Moves}); err != nil {
		return "", err
	}
	if len(artifacts.Averages) > 0 {
		if err := writeJSON(filepath.Join(runDir, "averages.json"), artifacts.Averages); err != nil {
			return "", err
		}
	}
	if err := WriteEnergySeries(runDir, artifacts.Blocks); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

// ExportRunArtifacts copies a run directory's artifacts, including any
// density grids and traces, to outDir/runID.
func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := []string{"config.json", "blocks.json", "estimates.json", energySeriesCSV}
	for _, file := range files {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	for _, pattern := range []string{"averages.json", "density_*.dat", "center_trace*.dat", "*.log"} {
		matches, err := filepath.Glob(filepath.Join(src, pattern))
		if err != nil {
			return "", err
		}
		for _, path := range matches {
			if err := copyFile(path, filepath.Join(dst, filepath.Base(path))); err != nil {
				return "", err
			}
		}
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, "config.json"), &cfg)
	return cfg, ok, err
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, "config.json"), cfg)
}

func ReadBlocks(baseDir, runID string) ([]model.BlockRecord, bool, error) {
	var blocks []model.BlockRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, "blocks.json"), &blocks)
	return blocks, ok, err
}

func ReadEstimates(baseDir, runID string) ([]model.Estimate, bool, error) {
	var doc struct {
		Estimates []model.Estimate `json:"estimates"`
	}
	ok, err := readJSON(filepath.Join(baseDir, runID, "estimates.json"), &doc)
	return doc.Estimates, ok, err
}

// WriteEnergySeries writes the center and path energy of every block as CSV.
func WriteEnergySeries(runDir string, blocks []model.BlockRecord) error {
	path := filepath.Join(runDir, energySeriesCSV)
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"replica", "block", "center_energy", "path_energy", "acceptance"}); err != nil {
		return err
	}
	for _, b := range blocks {
		if err := writer.Write([]string{
			strconv.Itoa(b.Replica),
			strconv.Itoa(b.Block),
			strconv.FormatFloat(b.Center.Energy(), 'g', -1, 64),
			strconv.FormatFloat(b.Path.Energy(), 'g', -1, 64),
			strconv.FormatFloat(b.AcceptanceRatio, 'g', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadEnergySeries returns the center energies of a run grouped by replica.
func ReadEnergySeries(baseDir, runID string) (map[int][]float64, bool, error) {
	path := filepath.Join(baseDir, runID, energySeriesCSV)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return map[int][]float64{}, true, nil
		}
		return nil, false, err
	}
	if len(header) < 3 {
		return nil, false, fmt.Errorf("energy series header must have at least 3 columns")
	}

	series := map[int][]float64{}
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, false, err
		}
		replica, err := strconv.Atoi(record[0])
		if err != nil {
			return nil, false, err
		}
		value, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, false, err
		}
		series[replica] = append(series[replica], value)
	}
	return series, true, nil
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
