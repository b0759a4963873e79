package runner

import (
	"context"
	"fmt"
	"log"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/meridianlabs/customer360-pipeline/consumer"
	"github.com/meridianlabs/customer360-pipeline/internal/config"
	"github.com/meridianlabs/customer360-pipeline/pkg/pipeline"
	"github.com/meridianlabs/customer360-pipeline/processor"
)

type Options struct {
	ConfigFile string
	Verbose    bool
}

// Factory functions for creating pipeline components
type Factories struct {
	CreateSourceAdapter func(SourceConfig) (SourceAdapter, error)
	CreateProcessor     func(processor.ProcessorConfig) (processor.Processor, error)
	CreateConsumer      func(consumer.ConsumerConfig) (processor.Processor, error)
}

type Runner struct {
	opts      Options
	factories Factories
}

// Config structures - mirroring from main.go
type Config struct {
	Pipelines map[string]PipelineConfig `yaml:"pipelines"`
}

type PipelineConfig struct {
	Name       string                      `yaml:"name"`
	Source     SourceConfig                `yaml:"source"`
	Processors []processor.ProcessorConfig `yaml:"processors"`
	Consumers  []consumer.ConsumerConfig   `yaml:"consumers"`
}

type SourceConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

type SourceAdapter interface {
	Run(context.Context) error
	Subscribe(processor.Processor)
}

func New(opts Options, factories Factories) *Runner {
	return &Runner{
		opts:      opts,
		factories: factories,
	}
}

// Validate loads the configuration and checks it against the component
// registry without creating any components, so nothing connects to a
// database or bucket.
func (r *Runner) Validate() error {
	cfg, err := config.Load(r.opts.ConfigFile)
	if err != nil {
		return err
	}

	result := config.Validate(cfg)
	for _, warning := range result.Warnings {
		log.Printf("Warning: %s", warning)
	}
	if result.HasErrors() {
		return result.Errors[0]
	}
	return nil
}

func (r *Runner) Run(ctx context.Context) error {
	// Read configuration from specified file
	configBytes, err := os.ReadFile(r.opts.ConfigFile)
	if err != nil {
		return fmt.Errorf("error reading config file %s: %w", r.opts.ConfigFile, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(configBytes, &cfg); err != nil {
		return fmt.Errorf("error parsing config: %w", err)
	}

	// Run each pipeline. A failed pipeline does not stop the others, but
	// the first failure becomes the run's result so schedulers see it.
	var firstErr error
	for name, pipelineConfig := range cfg.Pipelines {
		log.Printf("Starting pipeline: %s", name)
		err := r.setupPipeline(ctx, pipelineConfig)
		if r.opts.Verbose {
			log.Printf("DEBUG: setupPipeline returned error: %v", err)
		}
		if err != nil {
			log.Printf("Pipeline error: error in pipeline %s: %v", name, err)
			if firstErr == nil {
				firstErr = fmt.Errorf("error in pipeline %s: %w", name, err)
			}
		}
	}

	log.Printf("All pipelines finished.")
	return firstErr
}

func (r *Runner) setupPipeline(ctx context.Context, pipelineConfig PipelineConfig) error {
	// Create source
	source, err := r.factories.CreateSourceAdapter(pipelineConfig.Source)
	if err != nil {
		return fmt.Errorf("error creating source: %w", err)
	}

	// Create processors
	processors := make([]processor.Processor, len(pipelineConfig.Processors))
	for i, procConfig := range pipelineConfig.Processors {
		proc, err := r.factories.CreateProcessor(procConfig)
		if err != nil {
			return fmt.Errorf("error creating processor %s: %w", procConfig.Type, err)
		}
		processors[i] = proc
	}

	// Create consumers
	consumers := make([]processor.Processor, len(pipelineConfig.Consumers))
	for i, consConfig := range pipelineConfig.Consumers {
		cons, err := r.factories.CreateConsumer(consConfig)
		if err != nil {
			return fmt.Errorf("error creating consumer %s: %w", consConfig.Type, err)
		}
		consumers[i] = cons
	}

	// Build the chain
	pipeline.BuildProcessorChain(processors, consumers)

	// Connect source to the first processor
	if len(processors) > 0 {
		source.Subscribe(processors[0])
	} else if len(consumers) > 0 {
		// If no processors, subscribe source directly to consumers
		source.Subscribe(consumers[0])
	}

	// Run the source with context
	err = source.Run(ctx)

	// Flush any remaining data in consumers
	log.Printf("Pipeline source completed, flushing consumers...")
	for _, cons := range consumers {
		if closer, ok := cons.(interface{ Close() error }); ok {
			if closeErr := closer.Close(); closeErr != nil {
				log.Printf("Error closing consumer %T: %v", cons, closeErr)
			}
		}
	}

	return err
}
