package main

import (
	"fmt"
	"os"

	"github.com/meridianlabs/customer360-pipeline/consumer"
	"github.com/meridianlabs/customer360-pipeline/internal/cli/cmd"
	"github.com/meridianlabs/customer360-pipeline/internal/cli/runner"
	"github.com/meridianlabs/customer360-pipeline/pkg/source"
	"github.com/meridianlabs/customer360-pipeline/processor"
)

// Version information set at build time via -ldflags
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, gitCommit, buildDate)
	cmd.SetFactories(runner.Factories{
		CreateSourceAdapter: createSourceAdapter,
		CreateProcessor:     createProcessor,
		CreateConsumer:      createConsumer,
	})

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createSourceAdapter(sourceConfig runner.SourceConfig) (runner.SourceAdapter, error) {
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
