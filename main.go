package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"gopkg.in/yaml.v2"

	"github.com/meridianlabs/customer360-pipeline/consumer"
	"github.com/meridianlabs/customer360-pipeline/pkg/pipeline"
	"github.com/meridianlabs/customer360-pipeline/pkg/source"
	"github.com/meridianlabs/customer360-pipeline/processor"
)

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

func main() {
	// Define command line flags
	configFile := flag.String("config", "pipeline_config.yaml", "Path to pipeline configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	defer stop()

	// Read configuration from specified file
	configBytes, err := os.ReadFile(*configFile)
	if err != nil {
		log.Fatalf("Error reading config file %s: %v", *configFile, err)
	}

	var config Config
	if err := yaml.Unmarshal(configBytes, &config); err != nil {
		log.Fatalf("Error parsing config: %v", err)
	}

	// Run each pipeline
	for name, pipelineConfig := range config.Pipelines {
		log.Printf("Starting pipeline: %s", name)
		if err := setupPipeline(ctx, pipelineConfig); err != nil {
			log.Printf("Pipeline error: error in pipeline %s: %v", name, err)
		}
	}

	log.Printf("All pipelines finished.")
}

func createSourceAdapter(sourceConfig SourceConfig) (source.SourceAdapter, error) {
	switch sourceConfig.Type {
	case "CSVSnapshotSourceAdapter":
		return source.NewCSVSnapshotSourceAdapter(sourceConfig.Config)
	case "SQLiteSnapshotSourceAdapter":
		return source.NewSQLiteSnapshotSourceAdapter(sourceConfig.Config)
	case "S3SnapshotSourceAdapter":
		return source.NewS3SnapshotSourceAdapter(sourceConfig.Config)
	case "GCSSnapshotSourceAdapter":
		return source.NewGCSSnapshotSourceAdapter(sourceConfig.Config)
	default:
		return nil, fmt.Errorf("unsupported source type: %s", sourceConfig.Type)
	}
}

func createProcessor(processorConfig processor.ProcessorConfig) (processor.Processor, error) {
	switch processorConfig.Type {
	case "CampaignMetrics":
		return processor.NewCampaignMetricsProcessor(processorConfig.Config)
	case "CustomerJoin":
		return processor.NewCustomerJoinProcessor(processorConfig.Config)
	case "BehavioralFeatures":
		return processor.NewBehavioralFeaturesProcessor(processorConfig.Config)
	case "TextIntelligence":
		return processor.NewTextIntelligenceProcessor(processorConfig.Config)
	case "PredictiveScoring":
		return processor.NewPredictiveScoringProcessor(processorConfig.Config)
	case "Segmentation":
		return processor.NewSegmentationProcessor(processorConfig.Config)
	case "StdoutSink":
		return processor.NewStdoutSink(), nil
	default:
		return nil, fmt.Errorf("unsupported processor type: %s", processorConfig.Type)
	}
}

func createConsumer(consumerConfig consumer.ConsumerConfig) (processor.Processor, error) {
	switch consumerConfig.Type {
	case "SaveToSQLite":
		return consumer.NewSaveToSQLite(consumerConfig.Config)
	case "SaveToPostgreSQL":
		return consumer.NewSaveToPostgreSQL(consumerConfig.Config)
	case "SaveToDuckDB":
		return consumer.NewSaveToDuckDB(consumerConfig.Config)
	case "SaveToClickHouse":
		return consumer.NewSaveToClickHouse(consumerConfig.Config)
	case "SaveToMongoDB":
		return consumer.NewSaveToMongoDB(consumerConfig.Config)
	case "SaveToRedis":
		return consumer.NewSaveToRedis(consumerConfig.Config)
	case "SaveToExcel":
		return consumer.NewSaveToExcel(consumerConfig.Config)
	case "SaveToParquet":
		return consumer.NewSaveToParquet(consumerConfig.Config)
	case "NotificationDispatcher":
		return consumer.NewNotificationDispatcher(consumerConfig.Config)
	case "SaveRunManifest":
		return consumer.NewSaveRunManifest(consumerConfig.Config)
	case "StdoutConsumer":
		return consumer.NewStdoutConsumer(), nil
	default:
		return nil, fmt.Errorf("unsupported consumer type: %s", consumerConfig.Type)
	}
}

func setupPipeline(ctx context.Context, pipelineConfig PipelineConfig) error {
	// Create source
	sourceAdapter, err := createSourceAdapter(pipelineConfig.Source)
	if err != nil {
		return fmt.Errorf("error creating source: %w", err)
	}

	// Create processors
	processors := make([]processor.Processor, len(pipelineConfig.Processors))
	for i, procConfig := range pipelineConfig.Processors {
		proc, err := createProcessor(procConfig)
		if err != nil {
			return fmt.Errorf("error creating processor %s: %w", procConfig.Type, err)
		}
		processors[i] = proc
	}

	// Create consumers
	consumers := make([]processor.Processor, len(pipelineConfig.Consumers))
	for i, consConfig := range pipelineConfig.Consumers {
		cons, err := createConsumer(consConfig)
		if err != nil {
			return fmt.Errorf("error creating consumer %s: %w", consConfig.Type, err)
		}
		consumers[i] = cons
	}

	// Build the chain
	pipeline.BuildProcessorChain(processors, consumers)

	// Connect source to the first processor
	if len(processors) > 0 {
		sourceAdapter.Subscribe(processors[0])
	} else if len(consumers) > 0 {
		// If no processors, subscribe source directly to consumers
		sourceAdapter.Subscribe(consumers[0])
	}

	// Run the source with context
	err = sourceAdapter.Run(ctx)

	// Flush any remaining consumer state before reporting the outcome
	for _, cons := range consumers {
		if closer, ok := cons.(interface{ Close() error }); ok {
			if closeErr := closer.Close(); closeErr != nil {
				log.Printf("Error closing consumer %T: %v", cons, closeErr)
			}
		}
	}

	return err
}
