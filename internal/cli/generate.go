package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/stratamed/journeysim/internal/cohort"
	"github.com/stratamed/journeysim/internal/config"
	"github.com/stratamed/journeysim/internal/sink"
)

var (
	genCount   int
	genSeed    int64
	genJourney string
	genAnchor  string
	genWorkers int
	genOutput  string
	genPath    string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a cohort of synthetic entities",
	Long: `Generate a cohort of entities from a configured journey spec.

Configuration cascade (priority order):
  1. Command-line flags
  2. ./journeysim.yaml (project directory)
  3. ~/.journeysim/journeysim.yaml (user directory)
  4. Built-in defaults

Examples:
  # Use project config
  journeysim generate

  # Override cohort size and seed
  journeysim generate --count 5000 --seed 42

  # Write to a different file
  journeysim generate --output jsonl --path cohort.jsonl`,
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().IntVar(&genCount, "count", 0, "number of root entities")
	generateCmd.Flags().Int64Var(&genSeed, "seed", 0, "root seed for deterministic output")
	generateCmd.Flags().StringVar(&genJourney, "journey", "", "root journey name")
	generateCmd.Flags().StringVar(&genAnchor, "anchor", "", "simulation start date (YYYY-MM-DD)")
	generateCmd.Flags().IntVar(&genWorkers, "workers", -1, "concurrent entity builds (0 = sequential)")
	generateCmd.Flags().StringVar(&genOutput, "output", "", "sink format: jsonl, postgres, nats")
	generateCmd.Flags().StringVar(&genPath, "path", "", "output path for the jsonl sink")

	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	applyGenerateOverrides(cmd)

	p, err := buildPipeline(cfg, log)
	if err != nil {
		return err
	}

	out, err := openSink(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer out.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, runErr := p.executor.Run(ctx, cohort.Config{
		Count:    cfg.Defaults.Count,
		RootSeed: cfg.Defaults.RootSeed,
		Anchor:   p.anchor,
		Journey:  cfg.Defaults.Journey,
		Workers:  cfg.Defaults.Workers,
	})
	if result == nil {
		return runErr
	}

	// A cancelled run still flushes the entities completed so far.
	if err := out.WriteResult(context.WithoutCancel(ctx), result); err != nil {
		return fmt.Errorf("write result: %w", err)
	}

	fmt.Printf("Run %s: %d/%d entities generated, %d failed, %d linked, %s elapsed\n",
		result.RunID,
		result.Stats.EntitiesGenerated,
		result.Stats.EntitiesRequested,
		result.Stats.EntitiesFailed,
		result.Stats.LinkedEntities,
		result.Stats.Elapsed.Round(time.Millisecond),
	)
	for _, f := range result.Failures {
		fmt.Printf("  entity %d (%s): %s\n", f.Index, f.EntityID, f.Reason)
	}

	return runErr
}

// applyGenerateOverrides copies changed flags over the loaded config.
func applyGenerateOverrides(cmd *cobra.Command) {
	if cmd.Flags().Changed("count") {
		cfg.Defaults.Count = genCount
	}
	if cmd.Flags().Changed("seed") {
		cfg.Defaults.RootSeed = genSeed
	}
	if cmd.Flags().Changed("journey") {
		cfg.Defaults.Journey = genJourney
	}
	if cmd.Flags().Changed("anchor") {
		cfg.Defaults.Anchor = genAnchor
	}
	if cmd.Flags().Changed("workers") {
		cfg.Defaults.Workers = genWorkers
	}
	if cmd.Flags().Changed("output") {
		cfg.Output.Format = genOutput
	}
	if cmd.Flags().Changed("path") {
		cfg.Output.Path = genPath
	}
}

func openSink(ctx context.Context, cfg *config.Config) (sink.Sink, error) {
	switch cfg.Output.Format {
	case "jsonl":
		return sink.NewJSONLSink(cfg.Output.Path), nil
	case "postgres":
		if err := sink.Migrate(cfg.Output.Postgres.DSN, cfg.Output.Postgres.MigrationsDir); err != nil {
			return nil, err
		}
		return sink.NewPostgresSink(ctx, cfg.Output.Postgres.DSN)
	case "nats":
		return sink.NewNATSSink(sink.NATSConfig{
			URL:           cfg.Output.NATS.URL,
			Name:          cfg.Output.NATS.Name,
			Timeout:       cfg.Output.NATS.Timeout,
			MaxReconnects: cfg.Output.NATS.MaxReconnects,
		})
	default:
		return nil, fmt.Errorf("unknown output format %q", cfg.Output.Format)
	}
}
