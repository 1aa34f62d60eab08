package reptation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"reptation/internal/metrics"
	"reptation/internal/model"
	"reptation/internal/reptile"
)

// State is the lifecycle position of a Controller.
type State int

const (
	StateUnconfigured State = iota
	StateConfigured
	StateVariablesGenerated
	StateRunning
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConfigured:
		return "configured"
	case StateVariablesGenerated:
		return "variables_generated"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

const defaultWarmupAttempts = 1000

type Options struct {
	Replica         int
	Particles       int
	ReptileLength   int
	Timestep        float64
	Blocks          int
	Steps           int
	ERef            float64
	EnergyCutoff    float64
	TraceWait       int
	CheckpointEvery int
	// WarmupAttempts bounds the moves spent per bead while the reptile
	// grows to its target length.
	WarmupAttempts int
}

func (o Options) Validate() error {
	var problems []string
	if o.Particles <= 0 {
		problems = append(problems, "particles must be positive")
	}
	if o.ReptileLength < 2 {
		problems = append(problems, "reptile length must be at least 2")
	}
	if !(o.Timestep > 0) {
		problems = append(problems, "timestep must be positive")
	}
	if o.Blocks < 0 || o.Steps <= 0 {
		problems = append(problems, "blocks must be non-negative and steps positive")
	}
	if !(o.EnergyCutoff > 0) {
		problems = append(problems, "energy cutoff must be positive")
	}
	if o.TraceWait < 0 || o.CheckpointEvery < 0 || o.WarmupAttempts < 0 {
		problems = append(problems, "trace wait, checkpoint interval and warm-up attempts must be non-negative")
	}
	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrInvalidOptions, problems)
}

// CheckpointFunc persists the reptile after a block. It may block on a
// cross-replica barrier.
type CheckpointFunc func(ctx context.Context, block int, r *reptile.Reptile) error

// Collaborators are borrowed for the duration of a run; the controller
// never closes or frees them.
type Collaborators struct {
	Sampler      Sampler
	Evaluator    Evaluator
	Rand         *rand.Rand
	Sink         BlockSink
	Accumulators []Accumulator
	Checkpoint   CheckpointFunc
	// CenterTrace receives "step energy" lines for the center bead.
	CenterTrace io.Writer
}

type Result struct {
	Blocks  []model.BlockRecord
	Counts  MoveCounts
	Reptile *reptile.Reptile
}

// Controller drives the block/step loop for one replica.
type Controller struct {
	logger  *slog.Logger
	metrics *metrics.Metrics

	state   State
	opts    Options
	collab  Collaborators
	prop    *Propagator
	reptile *reptile.Reptile
}

func NewController(logger *slog.Logger, m *metrics.Metrics) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{logger: logger, metrics: m}
}

func (c *Controller) State() State {
	return c.state
}

func (c *Controller) expect(want State) error {
	if c.state != want {
		return fmt.Errorf("%w: %s, want %s", ErrInvalidState, c.state, want)
	}
	return nil
}

func (c *Controller) Configure(opts Options) error {
	if err := c.expect(StateUnconfigured); err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}
	if opts.WarmupAttempts == 0 {
		opts.WarmupAttempts = defaultWarmupAttempts
	}
	c.opts = opts
	c.logger = c.logger.With("replica", opts.Replica)
	c.state = StateConfigured
	return nil
}

// Attach binds the external collaborators and builds the propagator.
func (c *Controller) Attach(collab Collaborators) error {
	if err := c.expect(StateConfigured); err != nil {
		return err
	}
	if collab.Sampler == nil || collab.Evaluator == nil || collab.Rand == nil {
		return errors.New("sampler, evaluator and rand are required")
	}
	c.collab = collab
	c.prop = &Propagator{
		Sampler:   collab.Sampler,
		Evaluator: collab.Evaluator,
		Rand:      collab.Rand,
		Tau:       c.opts.Timestep,
		ERef:      c.opts.ERef,
		Cutoff:    c.opts.EnergyCutoff,
	}
	c.state = StateVariablesGenerated
	return nil
}

// Initialize starts a fresh reptile from one configuration.
func (c *Controller) Initialize(positions []model.Vec3) error {
	if err := c.expect(StateVariablesGenerated); err != nil {
		return err
	}
	if len(positions) != c.opts.Particles {
		return fmt.Errorf("%w: initial configuration has %d particles, run expects %d", ErrParticleMismatch, len(positions), c.opts.Particles)
	}
	r, err := reptile.New(c.opts.ReptileLength)
	if err != nil {
		return err
	}
	if err := c.prop.Seed(r, positions); err != nil {
		return err
	}
	c.reptile = r
	return nil
}

// Restore continues from a reptile read from a checkpoint or a peer.
func (c *Controller) Restore(r *reptile.Reptile) error {
	if err := c.expect(StateVariablesGenerated); err != nil {
		return err
	}
	n, err := r.NumParticles()
	if err != nil {
		return err
	}
	if n != c.opts.Particles {
		return fmt.Errorf("%w: checkpoint has %d particles, run expects %d", ErrParticleMismatch, n, c.opts.Particles)
	}
	for i := 0; i < r.Len(); i++ {
		if err := r.At(i).Validate(); err != nil {
			return fmt.Errorf("restored bead %d: %w", i, err)
		}
	}
	if r.Cap() != c.opts.ReptileLength {
		c.logger.Warn("resizing restored reptile", "from", r.Cap(), "to", c.opts.ReptileLength)
		if err := r.Resize(c.opts.ReptileLength); err != nil {
			return err
		}
	}
	if err := c.prop.Refresh(r); err != nil {
		return err
	}
	c.reptile = r
	return nil
}

func (c *Controller) Reptile() *reptile.Reptile {
	return c.reptile
}

func (c *Controller) Run(ctx context.Context) (Result, error) {
	if err := c.expect(StateVariablesGenerated); err != nil {
		return Result{}, err
	}
	if c.reptile == nil {
		return Result{}, fmt.Errorf("%w: no reptile initialized or restored", ErrInvalidState)
	}
	c.state = StateRunning
	defer func() { c.state = StateFinished }()

	if err := c.warmup(ctx); err != nil {
		return Result{}, err
	}

	progress := rate.Sometimes{First: 1, Interval: 5 * time.Second}
	var (
		agg    Aggregator
		blocks = make([]model.BlockRecord, 0, c.opts.Blocks)
		total  int
	)
	for block := 0; block < c.opts.Blocks; block++ {
		for step := 0; step < c.opts.Steps; step++ {
			if err := ctx.Err(); err != nil {
				return Result{}, err
			}
			if c.opts.TraceWait > 0 && total > 0 && total%c.opts.TraceWait == 0 {
				c.reptile.Direction = c.reptile.Direction.Flip()
			}
			s, err := c.prop.Advance(c.reptile, c.reptile.Direction)
			if err != nil {
				return Result{}, fmt.Errorf("block %d step %d: %w", block, step, err)
			}
			agg.Add(c.reptile, s)
			c.observe(s)
			if s.Accepted {
				for _, acc := range c.collab.Accumulators {
					acc.Accumulate(c.reptile)
				}
			}
			if c.collab.CenterTrace != nil {
				center := CenterAverage(c.reptile)
				if _, err := fmt.Fprintf(c.collab.CenterTrace, "%d %s\n", total, strconv.FormatFloat(center.Energy(), 'g', -1, 64)); err != nil {
					return Result{}, fmt.Errorf("write center trace: %w", err)
				}
			}
			total++
		}

		rec := agg.EndBlock()
		rec.Replica = c.opts.Replica
		rec.Block = block
		blocks = append(blocks, rec)
		if c.collab.Sink != nil {
			c.collab.Sink.ReportBlock(rec)
		}
		c.metrics.ObserveBlock(c.opts.Replica, rec.Center.Energy())
		progress.Do(func() {
			c.logger.Info("block finished",
				"block", block,
				"center_energy", rec.Center.Energy(),
				"path_energy", rec.Path.Energy(),
				"acceptance", rec.AcceptanceRatio,
				"numerical_rejects", rec.NumericalRejects)
		})

		if c.collab.Checkpoint != nil && c.opts.CheckpointEvery > 0 && (block+1)%c.opts.CheckpointEvery == 0 {
			if err := c.collab.Checkpoint(ctx, block, c.reptile); err != nil {
				return Result{}, fmt.Errorf("checkpoint after block %d: %w", block, err)
			}
		}
	}

	c.logger.Debug("run finished",
		"accepted", c.prop.Counts.Accepted,
		"rejected", c.prop.Counts.Rejected,
		"numerical", c.prop.Counts.Numerical)
	return Result{Blocks: blocks, Counts: c.prop.Counts, Reptile: c.reptile}, nil
}

// warmup grows the reptile to its target length. Growth is attempted at the
// current direction end only.
func (c *Controller) warmup(ctx context.Context) error {
	if c.reptile.Full() {
		return nil
	}
	start := c.reptile.Len()
	budget := c.opts.WarmupAttempts * (c.reptile.Cap() - start)
	for attempts := 0; !c.reptile.Full(); attempts++ {
		if attempts >= budget {
			return fmt.Errorf("%w: %d of %d beads after %d attempts", ErrWarmupStalled, c.reptile.Len(), c.reptile.Cap(), attempts)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		s, err := c.prop.Advance(c.reptile, c.reptile.Direction)
		if err != nil {
			return fmt.Errorf("warm-up: %w", err)
		}
		c.observe(s)
	}
	c.logger.Debug("reptile grown", "from", start, "to", c.reptile.Len())
	return nil
}

func (c *Controller) observe(s Step) {
	switch {
	case s.Accepted:
		c.metrics.ObserveMove(c.opts.Replica, metrics.ResultAccepted)
		c.metrics.ObserveBranchWeight(s.Branching)
	case s.Numerical():
		c.metrics.ObserveMove(c.opts.Replica, metrics.ResultNumerical)
	default:
		c.metrics.ObserveMove(c.opts.Replica, metrics.ResultRejected)
	}
}
