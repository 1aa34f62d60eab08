package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/urfave/cli/v2"

	"reptation/internal/config"
	api "reptation/pkg/reptation"
)

func newClient(c *cli.Context) (*api.Client, error) {
	return api.New(api.Options{
		StoreKind:    c.String("store"),
		StorePath:    c.String("store-path"),
		ArtifactsDir: c.String("artifacts-dir"),
		ExportsDir:   c.String("exports-dir"),
		Console:      c.App.ErrWriter,
	})
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var jsonFlag = &cli.BoolFlag{Name: "json", Usage: "emit JSON"}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "sample a system and record block estimates",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "YAML run configuration"},
			&cli.StringFlag{Name: "run-id", Usage: "run id (default: random uuid)"},
			&cli.StringFlag{Name: "system", Usage: "trial system: harmonic or hydrogenic"},
			&cli.IntFlag{Name: "particles", Usage: "particles per configuration"},
			&cli.IntFlag{Name: "reptile-length", Usage: "beads per reptile"},
			&cli.Float64Flag{Name: "timestep", Usage: "imaginary time step"},
			&cli.IntFlag{Name: "nblock", Usage: "number of blocks"},
			&cli.IntFlag{Name: "nstep", Usage: "slither moves per block"},
			&cli.Float64Flag{Name: "eref", Usage: "reference energy"},
			&cli.Float64Flag{Name: "energy-cutoff", Usage: "branching energy cutoff"},
			&cli.IntFlag{Name: "replicas", Usage: "independent reptiles run concurrently"},
			&cli.Int64Flag{Name: "seed", Usage: "random seed; replica i uses seed+i"},
			&cli.StringFlag{Name: "readconfig", Usage: "checkpoint to restart from"},
			&cli.StringFlag{Name: "storeconfig", Usage: "checkpoint file to write"},
			&cli.BoolFlag{Name: "center-trace", Usage: "write the center energy of every step"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			jsonFlag,
		},
		Action: runAction,
	}
}

// overrides maps the flags given on the command line to config keys.
func overrides(c *cli.Context) map[string]any {
	keys := map[string]string{
		"run-id":         "run_id",
		"system":         "system.name",
		"particles":      "system.particles",
		"reptile-length": "reptile_length",
		"timestep":       "timestep",
		"nblock":         "nblock",
		"nstep":          "nstep",
		"eref":           "eref",
		"energy-cutoff":  "energy_cutoff",
		"replicas":       "replicas",
		"seed":           "seed",
		"readconfig":     "readconfig",
		"storeconfig":    "storeconfig",
		"center-trace":   "center_trace",
		"log-level":      "log.level",
		"store":          "store.kind",
		"store-path":     "store.path",
		"artifacts-dir":  "artifacts_dir",
	}
	out := map[string]any{}
	for flag, key := range keys {
		if c.IsSet(flag) {
			out[key] = c.Value(flag)
		}
	}
	return out
}

func runAction(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"), overrides(c))
	if err != nil {
		return err
	}
	storeKind := cfg.Store.Kind
	if storeKind == "" {
		storeKind = c.String("store")
	}
	client, err := api.New(api.Options{
		StoreKind:    storeKind,
		StorePath:    cfg.Store.Path,
		ArtifactsDir: cfg.ArtifactsDir,
		ExportsDir:   c.String("exports-dir"),
		Console:      c.App.ErrWriter,
	})
	if err != nil {
		return err
	}
	defer client.Close()

	summary, err := client.Run(c.Context, api.RunRequest{Config: cfg})
	if err != nil {
		return err
	}
	if c.Bool("json") {
		return writeJSON(c.App.Writer, summary)
	}
	w := c.App.Writer
	fmt.Fprintf(w, "run_id=%s artifacts=%s\n", summary.RunID, summary.ArtifactsDir)
	fmt.Fprintf(w, "energy=%.8f +/- %.8f accepted=%d rejected=%d numerical=%d checkpoints=%d\n",
		summary.Energy.Mean, summary.Energy.Error,
		summary.Moves.Accepted, summary.Moves.Rejected, summary.Moves.Numerical,
		summary.Checkpoints)
	for _, e := range summary.Estimates {
		fmt.Fprintf(w, "  %-12s %.8f +/- %.8f\n", e.Name, e.Mean, e.Error)
	}
	for _, e := range summary.Averages {
		fmt.Fprintf(w, "  avg %-8s %.8f +/- %.8f (%d samples)\n", e.Name, e.Mean, e.Error, e.Samples)
	}
	return nil
}

func runsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "list recorded runs, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Usage: "max runs to list", Value: 20},
			jsonFlag,
		},
		Action: func(c *cli.Context) error {
			if c.Int("limit") <= 0 {
				return errors.New("limit must be > 0")
			}
			client, err := newClient(c)
			if err != nil {
				return err
			}
			defer client.Close()

			runs, err := client.Runs(c.Context, api.RunsRequest{Limit: c.Int("limit")})
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return writeJSON(c.App.Writer, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(c.App.Writer, "no runs found")
				return nil
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tCREATED\tSYSTEM\tREPLICAS\tBLOCKS\tENERGY\tERROR")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.8f\t%.8f\n", r.RunID, r.CreatedAtUTC, r.System, r.Replicas, r.Blocks, r.Energy, r.EnergyError)
			}
			return tw.Flush()
		},
	}
}

func blocksCommand() *cli.Command {
	return &cli.Command{
		Name:  "blocks",
		Usage: "show the block results of a run",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "run-id", Usage: "run id"},
			&cli.BoolFlag{Name: "latest", Usage: "use the most recent run"},
			&cli.IntSliceFlag{Name: "replica", Usage: "only these replicas"},
			jsonFlag,
		},
		Action: func(c *cli.Context) error {
			client, err := newClient(c)
			if err != nil {
				return err
			}
			defer client.Close()

			blocks, err := client.Blocks(c.Context, api.BlocksRequest{
				RunID:    c.String("run-id"),
				Latest:   c.Bool("latest"),
				Replicas: c.IntSlice("replica"),
			})
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return writeJSON(c.App.Writer, blocks)
			}
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REPLICA\tBLOCK\tCENTER\tPATH\tACCEPTANCE\tBRANCHING")
			for _, b := range blocks {
				fmt.Fprintf(tw, "%d\t%d\t%.8f\t%.8f\t%.4f\t%.6f\n", b.Replica, b.Block, b.Center.Energy(), b.Path.Energy(), b.AcceptanceRatio, b.BranchingMean)
			}
			return tw.Flush()
		},
	}
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "summarize the reptiles of a checkpoint file or of a run's stored checkpoint",
		ArgsUsage: "[checkpoint]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "run-id", Usage: "read the checkpoint stored with this run"},
			&cli.BoolFlag{Name: "latest", Usage: "read the checkpoint of the most recent run"},
			jsonFlag,
		},
		Action: func(c *cli.Context) error {
			client, err := newClient(c)
			if err != nil {
				return err
			}
			defer client.Close()

			summary, err := client.Inspect(c.Context, api.InspectRequest{
				Path:   c.Args().First(),
				RunID:  c.String("run-id"),
				Latest: c.Bool("latest"),
			})
			if err != nil {
				return err
			}
			if c.Bool("json") {
				return writeJSON(c.App.Writer, summary)
			}
			fmt.Fprintf(c.App.Writer, "source=%s reptiles=%d\n", summary.Source, len(summary.Reptiles))
			tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "REPLICA\tBEADS\tPARTICLES\tDIRECTION\tCENTER\tPATH\tMEAN AGE\tMAX AGE")
			for _, r := range summary.Reptiles {
				fmt.Fprintf(tw, "%d\t%d/%d\t%d\t%s\t%.8f\t%.8f\t%.2f\t%.0f\n", r.Replica, r.Length, r.Capacity, r.Particles, r.Direction, r.CenterEnergy, r.PathEnergy, r.MeanAge, r.MaxAge)
			}
			return tw.Flush()
		},
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "copy a run's artifacts",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "run-id", Usage: "run id"},
			&cli.BoolFlag{Name: "latest", Usage: "export the most recent run"},
			&cli.StringFlag{Name: "out", Usage: "export output directory"},
		},
		Action: func(c *cli.Context) error {
			if c.String("run-id") != "" && c.Bool("latest") {
				return errors.New("use either --run-id or --latest, not both")
			}
			if c.String("run-id") == "" && !c.Bool("latest") {
				return errors.New("export requires --run-id or --latest")
			}
			client, err := newClient(c)
			if err != nil {
				return err
			}
			defer client.Close()

			exported, err := client.Export(c.Context, api.ExportRequest{
				RunID:  c.String("run-id"),
				Latest: c.Bool("latest"),
				OutDir: c.String("out"),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "exported run_id=%s to=%s\n", exported.RunID, exported.Directory)
			return nil
		},
	}
}
