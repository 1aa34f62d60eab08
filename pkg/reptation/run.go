package reptation

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"reptation/internal/accumulate"
	"reptation/internal/checkpoint"
	"reptation/internal/config"
	"reptation/internal/dynamics"
	"reptation/internal/logging"
	"reptation/internal/metrics"
	"reptation/internal/model"
	"reptation/internal/replica"
	core "reptation/internal/reptation"
	"reptation/internal/reptile"
	"reptation/internal/stats"
	"reptation/internal/storage"
	"reptation/internal/system"
)

const metricsFile = "metrics.prom"

var ErrReplicaCount = errors.New("checkpoint does not match the replica count")

type RunRequest struct {
	Config config.Config
}

type RunSummary struct {
	RunID        string
	ArtifactsDir string
	Energy       model.Estimate
	Estimates    []model.Estimate
	Averages     []model.Estimate
	Moves        stats.MoveSummary
	Checkpoints  int
}

// replicaResult is what one replica hands back once its goroutine ends.
type replicaResult struct {
	counts    core.MoveCounts
	densities []*accumulate.Density
	averages  []*accumulate.Average
}

// run holds the state shared by the replicas of one Run call.
type run struct {
	cfg     config.Config
	baseDir string
	runDir  string
	sys     system.System
	store   storage.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	manager *stats.Manager
	mesh    *replica.Mesh
	initial []*reptile.Reptile

	results     []replicaResult
	reduced     []model.BlockRecord
	checkpoints int
}

// Run samples cfg.Replicas independent reptiles concurrently, one goroutine
// each, and records the combined estimates.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	cfg := req.Config
	if err := cfg.Validate(); err != nil {
		return RunSummary{}, err
	}
	sys, err := system.New(cfg.System.Name, cfg.System.Params)
	if err != nil {
		return RunSummary{}, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	if _, _, err := newAccumulators(cfg); err != nil {
		return RunSummary{}, err
	}
	if err := c.ensureStore(ctx); err != nil {
		return RunSummary{}, err
	}

	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	runDir := filepath.Join(c.artifactsDir, cfg.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return RunSummary{}, err
	}

	logFile := ""
	if cfg.Log.Label != "" {
		logFile = filepath.Join(runDir, cfg.Log.Label+".log")
	}
	logger, closeLog, err := logging.New(logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		File:    logFile,
		Console: c.console,
	})
	if err != nil {
		return RunSummary{}, err
	}
	defer closeLog()
	logger = logger.With("run_id", cfg.RunID)

	var initial []*reptile.Reptile
	if cfg.ReadCheckpoint != "" {
		initial, err = checkpoint.ReadFile(cfg.ReadCheckpoint)
		if err != nil {
			return RunSummary{}, fmt.Errorf("read checkpoint %s: %w", cfg.ReadCheckpoint, err)
		}
		if len(initial) != cfg.Replicas {
			return RunSummary{}, fmt.Errorf("%w: %s holds %d reptiles for %d replicas", ErrReplicaCount, cfg.ReadCheckpoint, len(initial), cfg.Replicas)
		}
		logger.Info("restarting from checkpoint", "path", cfg.ReadCheckpoint, "replicas", len(initial))
	}

	record := model.RunRecord{
		VersionedRecord: storage.CurrentVersion(),
		ID:              cfg.RunID,
		CreatedAtUTC:    time.Now().UTC().Format(time.RFC3339),
		System:          sys.Name(),
		Particles:       cfg.System.Particles,
		Replicas:        cfg.Replicas,
		ReptileLength:   cfg.ReptileLength,
		Timestep:        cfg.Timestep,
		Blocks:          cfg.Blocks,
		Steps:           cfg.Steps,
		ERef:            cfg.ERef,
		EnergyCutoff:    cfg.EnergyCutoff,
		Seed:            cfg.Seed,
	}
	if err := c.store.SaveRun(ctx, record); err != nil {
		return RunSummary{}, fmt.Errorf("save run: %w", err)
	}

	mesh, err := replica.NewMesh(cfg.Replicas)
	if err != nil {
		return RunSummary{}, err
	}
	defer mesh.Close()

	registry := prometheus.NewRegistry()
	r := &run{
		cfg:     cfg,
		baseDir: c.artifactsDir,
		runDir:  runDir,
		sys:     sys,
		store:   c.store,
		logger:  logger,
		metrics: metrics.New(registry),
		manager: stats.NewManager(sys.AuxNames()),
		mesh:    mesh,
		initial: initial,
		results: make([]replicaResult, cfg.Replicas),
	}

	logger.Info("run started",
		"system", sys.Name(),
		"replicas", cfg.Replicas,
		"reptile_length", cfg.ReptileLength,
		"timestep", cfg.Timestep,
		"nblock", cfg.Blocks,
		"nstep", cfg.Steps)

	g, gctx := errgroup.WithContext(ctx)
	for rank := 0; rank < cfg.Replicas; rank++ {
		g.Go(func() error {
			if err := r.replica(gctx, rank); err != nil {
				return fmt.Errorf("replica %d: %w", rank, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logger.Error("run failed", "error", err)
		return RunSummary{}, err
	}

	summary, err := r.finish(ctx, record)
	if err != nil {
		return RunSummary{}, err
	}
	if err := prometheus.WriteToTextfile(filepath.Join(runDir, metricsFile), registry); err != nil {
		return RunSummary{}, fmt.Errorf("write metrics: %w", err)
	}
	logger.Info("run finished",
		"energy", summary.Energy.Mean,
		"energy_error", summary.Energy.Error,
		"accepted", summary.Moves.Accepted,
		"rejected", summary.Moves.Rejected,
		"numerical", summary.Moves.Numerical)
	return summary, nil
}

func newAccumulators(cfg config.Config) ([]*accumulate.Density, []*accumulate.Average, error) {
	densities := make([]*accumulate.Density, 0, len(cfg.Densities))
	for _, d := range cfg.Densities {
		grid, err := accumulate.NewDensity(d.Name, d.Bins, d.Extent)
		if err != nil {
			return nil, nil, err
		}
		densities = append(densities, grid)
	}
	averages := make([]*accumulate.Average, 0, len(cfg.Averages))
	for _, name := range cfg.Averages {
		avg, err := accumulate.NewAverage(name)
		if err != nil {
			return nil, nil, err
		}
		averages = append(averages, avg)
	}
	return densities, averages, nil
}

func (r *run) replica(ctx context.Context, rank int) error {
	t, err := r.mesh.Endpoint(rank)
	if err != nil {
		return err
	}
	dist := replica.NewDistributor(t, r.logger)
	rng := rand.New(rand.NewSource(r.cfg.Seed + int64(rank)))

	densities, averages, err := newAccumulators(r.cfg)
	if err != nil {
		return err
	}
	accumulators := make([]core.Accumulator, 0, len(densities)+len(averages))
	for _, d := range densities {
		accumulators = append(accumulators, d)
	}
	for _, a := range averages {
		accumulators = append(accumulators, a)
	}

	collab := core.Collaborators{
		Sampler:      dynamics.DriftDiffusion{},
		Evaluator:    r.sys,
		Rand:         rng,
		Accumulators: accumulators,
		Checkpoint:   r.checkpointHook(dist),
	}
	var trace *bufio.Writer
	if r.cfg.CenterTrace {
		f, err := os.Create(filepath.Join(r.runDir, fmt.Sprintf("center_trace_%d.dat", rank)))
		if err != nil {
			return err
		}
		defer f.Close()
		trace = bufio.NewWriter(f)
		collab.CenterTrace = trace
	}

	ctrl := core.NewController(r.logger, r.metrics)
	if err := ctrl.Configure(core.Options{
		Replica:         rank,
		Particles:       r.cfg.System.Particles,
		ReptileLength:   r.cfg.ReptileLength,
		Timestep:        r.cfg.Timestep,
		Blocks:          r.cfg.Blocks,
		Steps:           r.cfg.Steps,
		ERef:            r.cfg.ERef,
		EnergyCutoff:    r.cfg.EnergyCutoff,
		TraceWait:       r.cfg.TraceWait,
		CheckpointEvery: r.cfg.CheckpointEvery,
		WarmupAttempts:  r.cfg.WarmupAttempts,
	}); err != nil {
		return err
	}
	if err := ctrl.Attach(collab); err != nil {
		return err
	}

	if r.initial != nil {
		var set []*reptile.Reptile
		if rank == 0 {
			set = r.initial
		}
		own, err := dist.Scatter(ctx, set)
		if err != nil {
			return err
		}
		if err := ctrl.Restore(own); err != nil {
			return err
		}
	} else if err := ctrl.Initialize(r.sys.Initial(rng, r.cfg.System.Particles)); err != nil {
		return err
	}

	res, err := ctrl.Run(ctx)
	if err != nil {
		return err
	}
	if trace != nil {
		if err := trace.Flush(); err != nil {
			return fmt.Errorf("flush center trace: %w", err)
		}
	}

	// the last block was not checkpointed on schedule
	if !(r.cfg.CheckpointEvery > 0 && r.cfg.Blocks > 0 && r.cfg.Blocks%r.cfg.CheckpointEvery == 0) {
		if err := r.checkpointHook(dist)(ctx, r.cfg.Blocks-1, res.Reptile); err != nil {
			return fmt.Errorf("final checkpoint: %w", err)
		}
	}

	blocks, err := dist.ReduceBlocks(ctx, res.Blocks)
	if err != nil {
		return err
	}
	if rank == 0 {
		r.reduced = blocks
	}
	r.results[rank] = replicaResult{counts: res.Counts, densities: densities, averages: averages}
	return nil
}

// checkpointHook gathers every replica's reptile at rank 0, which writes
// the checkpoint file and stores a copy with the run.
func (r *run) checkpointHook(dist *replica.Distributor) core.CheckpointFunc {
	return func(ctx context.Context, block int, rep *reptile.Reptile) error {
		set, err := dist.Gather(ctx, rep)
		if err != nil || set == nil {
			return err
		}
		if r.cfg.StoreCheckpoint != "" {
			if err := checkpoint.WriteFile(r.cfg.StoreCheckpoint, set); err != nil {
				return err
			}
		}
		payload, err := checkpoint.Marshal(set)
		if err != nil {
			return err
		}
		if err := r.store.SaveCheckpoint(ctx, model.CheckpointRecord{
			VersionedRecord: storage.CurrentVersion(),
			RunID:           r.cfg.RunID,
			Block:           block + 1,
			Payload:         payload,
		}); err != nil {
			return fmt.Errorf("store checkpoint: %w", err)
		}
		r.metrics.CheckpointWritten()
		r.checkpoints++
		r.logger.Info("checkpoint written", "blocks", block+1, "path", r.cfg.StoreCheckpoint, "replicas", len(set))
		return nil
	}
}

// finish merges the replica results and writes the artifacts, run index
// and store records.
func (r *run) finish(ctx context.Context, record model.RunRecord) (RunSummary, error) {
	var moves stats.MoveSummary
	for _, res := range r.results {
		moves.Accepted += res.counts.Accepted
		moves.Rejected += res.counts.Rejected
		moves.Numerical += res.counts.Numerical
	}

	first := r.results[0]
	for _, res := range r.results[1:] {
		for i, d := range res.densities {
			if err := first.densities[i].Merge(d); err != nil {
				return RunSummary{}, err
			}
		}
		for i, a := range res.averages {
			if err := first.averages[i].Merge(a); err != nil {
				return RunSummary{}, err
			}
		}
	}
	for _, d := range first.densities {
		if err := writeDensity(filepath.Join(r.runDir, "density_"+d.Name()+".dat"), d); err != nil {
			return RunSummary{}, err
		}
		if d.Outside() > 0 {
			r.logger.Warn("positions outside density grid", "density", d.Name(), "count", d.Outside())
		}
	}
	averages := make([]model.Estimate, 0, len(first.averages))
	for _, a := range first.averages {
		averages = append(averages, a.Estimate())
	}

	// Final estimates see only the blocks gathered by the end-of-run reduction.
	for _, b := range r.reduced {
		r.manager.ReportBlock(b)
	}
	estimates := r.manager.Estimates()
	energy, _ := stats.Find(estimates, "energy")

	cfg := r.cfg
	densityNames := make([]string, 0, len(cfg.Densities))
	for _, d := range cfg.Densities {
		densityNames = append(densityNames, d.Name)
	}
	if _, err := stats.WriteRunArtifacts(r.baseDir, stats.RunArtifacts{
		Config: stats.RunConfig{
			RunID:           cfg.RunID,
			System:          record.System,
			SystemParams:    cfg.System.Params,
			Particles:       cfg.System.Particles,
			Replicas:        cfg.Replicas,
			ReptileLength:   cfg.ReptileLength,
			Timestep:        cfg.Timestep,
			Blocks:          cfg.Blocks,
			Steps:           cfg.Steps,
			ERef:            cfg.ERef,
			EnergyCutoff:    cfg.EnergyCutoff,
			TraceWait:       cfg.TraceWait,
			CheckpointEvery: cfg.CheckpointEvery,
			Seed:            cfg.Seed,
			ReadCheckpoint:  cfg.ReadCheckpoint,
			StoreCheckpoint: cfg.StoreCheckpoint,
			Densities:       densityNames,
			Averages:        cfg.Averages,
		},
		Blocks:    r.reduced,
		Estimates: estimates,
		Averages:  averages,
		Moves:     moves,
	}); err != nil {
		return RunSummary{}, fmt.Errorf("write artifacts: %w", err)
	}

	if err := stats.AppendRunIndex(r.baseDir, stats.RunIndexEntry{
		RunID:         cfg.RunID,
		System:        record.System,
		Particles:     cfg.System.Particles,
		Replicas:      cfg.Replicas,
		ReptileLength: cfg.ReptileLength,
		Timestep:      cfg.Timestep,
		Blocks:        cfg.Blocks,
		Steps:         cfg.Steps,
		Seed:          cfg.Seed,
		Energy:        energy.Mean,
		EnergyError:   energy.Error,
		CreatedAtUTC:  record.CreatedAtUTC,
	}); err != nil {
		return RunSummary{}, fmt.Errorf("append run index: %w", err)
	}

	if err := r.store.SaveBlocks(ctx, cfg.RunID, r.reduced); err != nil {
		return RunSummary{}, fmt.Errorf("save blocks: %w", err)
	}
	record.Finished = true
	record.Estimates = estimates
	if err := r.store.SaveRun(ctx, record); err != nil {
		return RunSummary{}, fmt.Errorf("save run: %w", err)
	}

	return RunSummary{
		RunID:        cfg.RunID,
		ArtifactsDir: r.runDir,
		Energy:       energy,
		Estimates:    estimates,
		Averages:     averages,
		Moves:        moves,
		Checkpoints:  r.checkpoints,
	}, nil
}

func writeDensity(path string, d *accumulate.Density) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := d.Write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
