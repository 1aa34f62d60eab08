package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"

	"reptation/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	return newApp(stdout).RunContext(ctx, args)
}

func newApp(stdout io.Writer) *cli.App {
	return &cli.App{
		Name:   "reptationctl",
		Usage:  "run and inspect reptation quantum Monte Carlo simulations",
		Writer: stdout,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "store",
				Usage:   "store backend: memory, badger or sqlite",
				EnvVars: []string{"REPTATION_STORE__KIND"},
				Value:   storage.DefaultStoreKind,
			},
			&cli.StringFlag{
				Name:    "store-path",
				Usage:   "sqlite file or badger directory",
				EnvVars: []string{"REPTATION_STORE__PATH"},
			},
			&cli.StringFlag{
				Name:    "artifacts-dir",
				Usage:   "directory holding one sub-directory per run",
				EnvVars: []string{"REPTATION_ARTIFACTS_DIR"},
				Value:   "runs",
			},
			&cli.StringFlag{
				Name:  "exports-dir",
				Usage: "default destination of export",
				Value: "exports",
			},
		},
		Commands: []*cli.Command{
			runCommand(),
			runsCommand(),
			blocksCommand(),
			inspectCommand(),
			exportCommand(),
		},
	}
}
