package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"friendmap/internal/config"
	"friendmap/internal/logging"
	"friendmap/internal/names"
	"friendmap/internal/sim"
	"friendmap/internal/telemetry"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the simulation until interrupted",
		Long: `Start the replicas and let them mutate and gossip until SIGINT or SIGTERM.

Settings come from defaults, then --config, then FRIENDMAP_* environment
variables, then the flags below.`,
		Args: cobra.NoArgs,
		RunE: runSimulationCmd,
	}
	addRunFlags(cmd)
	return cmd
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "YAML config file")
	cmd.Flags().Int("actors", 0, "Number of replicas")
	cmd.Flags().String("names", "", "Names file, one name per line")
	cmd.Flags().String("log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().Duration("tick-max", 0, "Upper bound of the random delay between mutations")
	cmd.Flags().String("actions", "", "Action weights, e.g. add_key=25,add_value=40,remove_key=10,remove_value=25")
}

// loadConfig layers the changed flags over the file and environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("actors") {
		cfg.Actors, _ = flags.GetInt("actors")
	}
	if flags.Changed("names") {
		cfg.NamesPath, _ = flags.GetString("names")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("tick-max") {
		cfg.TickMax, _ = flags.GetDuration("tick-max")
	}
	if flags.Changed("actions") {
		cfg.Actions, _ = flags.GetString("actions")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runSimulationCmd(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return runSimulation(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
}

func runSimulation(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) error {
	logger := logging.NewLogger(cfg.LogLevel, stderr)

	shutdownTelemetry, err := telemetry.Setup(ctx, telemetry.ServiceName)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()

	pool, err := names.Load(cfg.NamesPath)
	if err != nil {
		return err
	}
	if pool.Len() == 0 {
		return fmt.Errorf("names file %s: %w", cfg.NamesPath, names.ErrEmptyPool)
	}

	supervisor, err := sim.New(cfg, pool, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			logger.Info("signal received, starting graceful shutdown")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("waiting for shutdown signal", "names", pool.Len())
	report, runErr := supervisor.Run(ctx)

	for _, s := range report.Summaries {
		fmt.Fprintf(stdout, "actor %03d: ticks=%d received=%d matched=%d (%.1f%%) lagged=%d keys=%d\n",
			s.ID, s.Ticks, s.Received, s.Matched, s.MatchRate(), s.Lagged, s.Keys)
	}
	if len(report.Summaries) > 0 {
		fmt.Fprintf(stdout, "converged: %t %s\n", report.Convergence.Converged(), report.Convergence.String())
	}

	if runErr != nil {
		return runErr
	}
	logger.Info("program terminates normally")
	return nil
}
