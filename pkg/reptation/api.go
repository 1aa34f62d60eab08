package reptation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"reptation/internal/checkpoint"
	"reptation/internal/model"
	core "reptation/internal/reptation"
	"reptation/internal/reptile"
	"reptation/internal/stats"
	"reptation/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultStorePath    = "reptation.db"
)

type Options struct {
	StoreKind    string
	StorePath    string
	ArtifactsDir string
	ExportsDir   string
	// Console receives run logs. Defaults to stderr.
	Console io.Writer
}

type Client struct {
	store       storage.Store
	initialized bool

	artifactsDir string
	exportsDir   string
	console      io.Writer
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID         string
	CreatedAtUTC  string
	System        string
	Particles     int
	Replicas      int
	ReptileLength int
	Timestep      float64
	Blocks        int
	Steps         int
	Seed          int64
	Energy        float64
	EnergyError   float64
}

type BlocksRequest struct {
	RunID  string
	Latest bool
	// Replicas restricts the result to these replicas; empty means all.
	Replicas []int
}

type InspectRequest struct {
	// Path names a checkpoint file. Without it the latest checkpoint stored
	// for RunID (or the latest run) is read.
	Path   string
	RunID  string
	Latest bool
}

type ReptileSummary struct {
	Replica       int
	Length        int
	Capacity      int
	Particles     int
	Direction     string
	PathEnergy    float64
	CenterEnergy  float64
	MeanAge       float64
	MaxAge        float64
	MeanBranching float64
}

type InspectSummary struct {
	Source string
	// Block is the number of finished blocks for stored checkpoints and -1
	// for files.
	Block    int
	Reptiles []ReptileSummary
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	storePath := opts.StorePath
	if storePath == "" && storeKind == "sqlite" {
		storePath = defaultStorePath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	store, err := storage.NewStore(storeKind, storePath, nil)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:        store,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
		console:      console,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	return c.ensureStore(ctx)
}

func (c *Client) ensureStore(ctx context.Context) error {
	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:         e.RunID,
			CreatedAtUTC:  e.CreatedAtUTC,
			System:        e.System,
			Particles:     e.Particles,
			Replicas:      e.Replicas,
			ReptileLength: e.ReptileLength,
			Timestep:      e.Timestep,
			Blocks:        e.Blocks,
			Steps:         e.Steps,
			Seed:          e.Seed,
			Energy:        e.Energy,
			EnergyError:   e.EnergyError,
		})
	}
	return out, nil
}

func (c *Client) resolveRunID(runID string, latest bool) (string, error) {
	if runID != "" && latest {
		return "", errors.New("use either run id or latest")
	}
	if !latest {
		if runID == "" {
			return "", errors.New("run id or latest is required")
		}
		return runID, nil
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

// Blocks returns a run's block results from the store, falling back to the
// run artifacts when the store does not hold the run.
func (c *Client) Blocks(ctx context.Context, req BlocksRequest) ([]model.BlockRecord, error) {
	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return nil, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return nil, err
	}

	blocks, ok, err := c.store.GetBlocks(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		blocks, ok, err = stats.ReadBlocks(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("blocks not found for run id: %s", runID)
		}
	}
	if len(req.Replicas) == 0 {
		return blocks, nil
	}

	keep := make(map[int]bool, len(req.Replicas))
	for _, r := range req.Replicas {
		keep[r] = true
	}
	out := make([]model.BlockRecord, 0, len(blocks))
	for _, b := range blocks {
		if keep[b.Replica] {
			out = append(out, b)
		}
	}
	return out, nil
}

// Inspect summarizes every reptile of a checkpoint.
func (c *Client) Inspect(ctx context.Context, req InspectRequest) (InspectSummary, error) {
	if req.Path != "" {
		if req.RunID != "" || req.Latest {
			return InspectSummary{}, errors.New("use either a checkpoint path or a run")
		}
		reptiles, err := checkpoint.ReadFile(req.Path)
		if err != nil {
			return InspectSummary{}, err
		}
		return InspectSummary{Source: req.Path, Block: -1, Reptiles: summarize(reptiles)}, nil
	}

	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return InspectSummary{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return InspectSummary{}, err
	}
	rec, ok, err := c.store.GetCheckpoint(ctx, runID)
	if err != nil {
		return InspectSummary{}, err
	}
	if !ok {
		return InspectSummary{}, fmt.Errorf("checkpoint not found for run id: %s", runID)
	}
	reptiles, err := checkpoint.Unmarshal(rec.Payload)
	if err != nil {
		return InspectSummary{}, fmt.Errorf("stored checkpoint of %s: %w", runID, err)
	}
	return InspectSummary{Source: "store:" + runID, Block: rec.Block, Reptiles: summarize(reptiles)}, nil
}

func summarize(reptiles []*reptile.Reptile) []ReptileSummary {
	out := make([]ReptileSummary, 0, len(reptiles))
	for i, r := range reptiles {
		s := ReptileSummary{
			Replica:      i,
			Length:       r.Len(),
			Capacity:     r.Cap(),
			Direction:    r.Direction.String(),
			PathEnergy:   core.PathAverage(r).Energy(),
			CenterEnergy: core.CenterAverage(r).Energy(),
		}
		if n, err := r.NumParticles(); err == nil {
			s.Particles = n
		}
		for j := 0; j < r.Len(); j++ {
			b := r.At(j)
			s.MeanAge += b.Age
			s.MeanBranching += b.Branching
			s.MaxAge = max(s.MaxAge, b.Age)
		}
		if r.Len() > 0 {
			s.MeanAge /= float64(r.Len())
			s.MeanBranching /= float64(r.Len())
		}
		out = append(out, s)
	}
	return out
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID, err := c.resolveRunID(req.RunID, req.Latest)
	if err != nil {
		return ExportSummary{}, err
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}
