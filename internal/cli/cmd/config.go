package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/meridianlabs/customer360-pipeline/internal/cli/utils"
	"github.com/meridianlabs/customer360-pipeline/internal/config"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
	Long:  `Commands for validating and inspecting pipeline configurations.`,
}

// validateCmd validates a configuration file
var validateCmd = &cobra.Command{
	Use:   "validate [config file]",
	Short: "Validate a configuration file",
	Long:  `Validate a pipeline configuration file and report any errors or warnings.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile := args[0]

		if !utils.FileExists(configFile) {
			return fmt.Errorf("config file does not exist: %s", configFile)
		}

		cfg, err := config.Load(configFile)
		if err != nil {
			return utils.FormatError("reading config file", err)
		}

		result := config.Validate(cfg)

		if result.HasErrors() {
			color.Red("❌ Configuration has errors:\n")
			for _, err := range result.Errors {
				fmt.Printf("  • %v\n", err)
			}
			return fmt.Errorf("configuration validation failed")
		}

		if len(result.Warnings) > 0 {
			color.Yellow("⚠️  Configuration has warnings:\n")
			for _, warning := range result.Warnings {
				fmt.Printf("  • %s\n", warning)
			}
		}

		color.Green("✅ Configuration is valid!")
		return nil
	},
}

// explainCmd explains what a configuration does
var explainCmd = &cobra.Command{
	Use:   "explain [config file]",
	Short: "Explain what a configuration does",
	Long:  `Provide detailed information about a pipeline configuration, including components and their purposes.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configFile := args[0]

		if !utils.FileExists(configFile) {
			return fmt.Errorf("config file does not exist: %s", configFile)
		}

		cfg, err := config.Load(configFile)
		if err != nil {
			return utils.FormatError("reading config file", err)
		}

		for name, pipeline := range cfg.Pipelines {
			color.Cyan("Pipeline: %s\n", name)
			fmt.Println(strings.Repeat("─", 40))

			// Source
			if pipeline.Source.Type != "" {
				fmt.Printf("\n📥 Source: %s\n", pipeline.Source.Type)
				describeComponent(pipeline.Source.Type)
			}

			// Processors
			if len(pipeline.Processors) > 0 {
				fmt.Printf("\n⚙️  Processors (%d):\n", len(pipeline.Processors))
				for i, proc := range pipeline.Processors {
					fmt.Printf("   %d. %s - %s\n", i+1, proc.Type, componentDescription(proc.Type))
				}
			}

			// Consumers
			if len(pipeline.Consumers) > 0 {
				fmt.Printf("\n💾 Consumers (%d):\n", len(pipeline.Consumers))
				for i, cons := range pipeline.Consumers {
					fmt.Printf("   %d. %s - %s\n", i+1, cons.Type, componentDescription(cons.Type))
				}
			}

			fmt.Println()
		}

		return nil
	},
}

// exampleCmd shows an example configuration
var exampleCmd = &cobra.Command{
	Use:   "example",
	Short: "Show an example configuration",
	Long:  `Display a complete example configuration for a local CSV-to-SQLite run.`,
	Run: func(cmd *cobra.Command, args []string) {
		color.Cyan("Example configuration:")
		fmt.Println(strings.Repeat("─", 60))
		fmt.Println(config.Example())
	},
}

func init() {
	rootCmd.AddCommand(configCmd)

	// Add subcommands
	configCmd.AddCommand(validateCmd)
	configCmd.AddCommand(explainCmd)
	configCmd.AddCommand(exampleCmd)
}

// Helper functions

func componentDescription(componentType string) string {
	if info, ok := config.Describe(componentType); ok {
		return info.Description
	}
	return "No description available"
}

func describeComponent(componentType string) {
	info, ok := config.Describe(componentType)
	if !ok {
		fmt.Println("   Description: No description available")
		return
	}
	fmt.Printf("   Description: %s\n", info.Description)
	if len(info.RequiredKeys) > 0 {
		fmt.Printf("   Required config: %s\n", strings.Join(info.RequiredKeys, ", "))
	}
}
