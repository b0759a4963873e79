package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"

	"github.com/fatih/color"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/meridianlabs/customer360-pipeline/internal/cli/runner"
)

var (
	// factories is set by the main package during initialization
	factories runner.Factories

	// dryRun flag for validation only
	dryRun bool

	// schedule holds an optional cron expression for repeated runs
	schedule string

	runCmd = &cobra.Command{
		Use:   "run [config file]",
		Short: "Run a pipeline from configuration",
		Long:  "Execute a customer intelligence pipeline using the specified configuration file",
		Args:  cobra.ExactArgs(1),
		Example: `  c360ctl run pipeline.yaml
  c360ctl run config/production.yaml
  c360ctl run --dry-run pipeline.yaml
  c360ctl run --schedule "0 0 2 * * *" pipeline.yaml`,
		RunE: runPipeline,
	}
)

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Validate configuration without running the pipeline")
	runCmd.Flags().StringVar(&schedule, "schedule", "", "Cron expression (with seconds) for repeated runs")
	rootCmd.AddCommand(runCmd)
}

// SetFactories sets the factory functions for creating pipeline components
func SetFactories(f runner.Factories) {
	factories = f
}

func runPipeline(cmd *cobra.Command, args []string) error {
	configFile := args[0]

	// Check if file exists
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return fmt.Errorf("configuration file not found: %s", configFile)
	}

	// Create runner for validation or execution
	r := runner.New(runner.Options{
		ConfigFile: configFile,
		Verbose:    verbose,
	}, factories)

	// If dry-run, only validate the configuration
	if dryRun {
		fmt.Println(color.YellowString("🔍 Validating pipeline configuration from %s", configFile))

		if err := r.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Println(color.GreenString("✅ Configuration is valid"))
		return nil
	}

	// Create context with signal handling
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if schedule != "" {
		return runOnSchedule(ctx, r, configFile)
	}

	// Pretty print startup
	fmt.Println(color.GreenString("🚀 Starting pipeline from %s", configFile))

	// Run the pipeline
	if err := r.Run(ctx); err != nil {
		return fmt.Errorf("pipeline failed: %w", err)
	}

	fmt.Println(color.GreenString("✅ Pipeline completed successfully"))
	return nil
}

// runOnSchedule re-runs the pipeline on a cron schedule until interrupted.
// Overlapping runs are skipped: every store swaps the same staging tables,
// so two runs must never write at once.
func runOnSchedule(ctx context.Context, r *runner.Runner, configFile string) error {
	c := cron.New(cron.WithSeconds())

	var runLock sync.Mutex
	_, err := c.AddFunc(schedule, func() {
		if !runLock.TryLock() {
			log.Printf("Skipping scheduled run: previous run still in progress")
			return
		}
		defer runLock.Unlock()

		log.Printf("Scheduled run starting for %s", configFile)
		if err := r.Run(ctx); err != nil {
			log.Printf("Scheduled run failed: %v", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	fmt.Println(color.GreenString("⏰ Scheduling pipeline from %s (%s)", configFile, schedule))
	c.Start()
	<-ctx.Done()

	// Let an in-flight run finish before exiting.
	<-c.Stop().Done()
	return nil
}
