package consumer

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"
	"github.com/guregu/null"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

// SaveToParquetConfig defines configuration for the Parquet archival consumer
type SaveToParquetConfig struct {
	StorageType string `json:"storage_type"` // "FS", "GCS", "S3"
	BucketName  string `json:"bucket_name"`
	PathPrefix  string `json:"path_prefix"`
	LocalPath   string `json:"local_path"`  // For FS storage
	Compression string `json:"compression"` // "snappy", "gzip", "zstd", "none"
	Region      string `json:"region"`      // For S3
	Debug       bool   `json:"debug"`
	DryRun      bool   `json:"dry_run"` // Log actions without writing files
}

// StorageClient interface for different storage backends
type StorageClient interface {
	Write(ctx context.Context, key string, data []byte) error
	Close() error
}

// SaveToParquet archives each run as one Parquet file per output table under
// a run_date partition directory.
type SaveToParquet struct {
	config        SaveToParquetConfig
	storageClient StorageClient
	processors    []processor.Processor
	allocator     memory.Allocator

	// Metrics
	filesWritten   int64
	recordsWritten int64
	bytesWritten   int64
}

func NewSaveToParquet(config map[string]interface{}) (*SaveToParquet, error) {
	var cfg SaveToParquetConfig

	if storageType, ok := config["storage_type"].(string); ok {
		cfg.StorageType = storageType
	} else {
		return nil, fmt.Errorf("storage_type is required")
	}

	if bucketName, ok := config["bucket_name"].(string); ok {
		cfg.BucketName = bucketName
	}
	if pathPrefix, ok := config["path_prefix"].(string); ok {
		cfg.PathPrefix = pathPrefix
	}
	if localPath, ok := config["local_path"].(string); ok {
		cfg.LocalPath = localPath
	}
	if compression, ok := config["compression"].(string); ok {
		cfg.Compression = compression
	} else {
		cfg.Compression = "snappy"
	}
	if region, ok := config["region"].(string); ok {
		cfg.Region = region
	}
	if debug, ok := config["debug"].(bool); ok {
		cfg.Debug = debug
	}
	if dryRun, ok := config["dry_run"].(bool); ok {
		cfg.DryRun = dryRun
	}

	// Validate required fields based on storage type
	switch cfg.StorageType {
	case "FS":
		if cfg.LocalPath == "" {
			return nil, fmt.Errorf("local_path is required for FS storage type")
		}
	case "GCS":
		if cfg.BucketName == "" {
			return nil, fmt.Errorf("bucket_name is required for GCS storage type")
		}
	case "S3":
		if cfg.BucketName == "" {
			return nil, fmt.Errorf("bucket_name is required for S3 storage type")
		}
		if cfg.Region == "" {
			cfg.Region = "us-east-1"
		}
	default:
		return nil, fmt.Errorf("unsupported storage_type: %s", cfg.StorageType)
	}

	storageClient, err := createStorageClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	storageClient = NewRetryableStorageClient(storageClient, 3)

	return &SaveToParquet{
		config:        cfg,
		storageClient: storageClient,
		allocator:     memory.NewGoAllocator(),
	}, nil
}

func (s *SaveToParquet) Subscribe(p processor.Processor) {
	s.processors = append(s.processors, p)
}

func (s *SaveToParquet) Process(ctx context.Context, msg processor.Message) error {
	dataset, err := processor.DatasetFromMessage(msg)
	if err != nil {
		return err
	}
	report := dataset.Report

	tables := []struct {
		name   string
		record arrow.Record
	}{
		{TableEnriched, s.buildEnrichedRecord(dataset)},
		{TablePredicted, s.buildPredictedRecord(dataset)},
		{TableSegmented, s.buildSegmentedRecord(dataset)},
		{TableCampaigns, s.buildCampaignsRecord(dataset)},
		{TableRuns, s.buildRunReportRecord(report)},
	}

	for _, table := range tables {
		key := s.generateKey(table.name, report.RunID, report.StartedAt)

		if s.config.DryRun {
			log.Printf("[DRY RUN] Would write %d rows to %s", table.record.NumRows(), key)
			table.record.Release()
			continue
		}

		data, err := s.writeParquet(table.record)
		rows := table.record.NumRows()
		table.record.Release()
		if err != nil {
			return fmt.Errorf("failed to write Parquet for %s: %w", table.name, err)
		}

		if err := s.storageClient.Write(ctx, key, data); err != nil {
			return fmt.Errorf("failed to write to storage: %w", err)
		}

		s.filesWritten++
		s.recordsWritten += rows
		s.bytesWritten += int64(len(data))

		if s.config.Debug {
			log.Printf("Written Parquet file: %s (%d rows, %d bytes)", key, rows, len(data))
		}
	}

	log.Printf("SaveToParquet: archived %d customers, %d campaigns (run %s)",
		len(dataset.Customers), len(dataset.Campaigns), report.RunID)
	return nil
}

// generateKey builds the object key: <prefix>/run_date=YYYY-MM-DD/<table>-<run>.parquet
func (s *SaveToParquet) generateKey(table, runID string, startedAt time.Time) string {
	day := startedAt.UTC()
	partPath := fmt.Sprintf("run_date=%04d-%02d-%02d", day.Year(), day.Month(), day.Day())
	filename := fmt.Sprintf("%s-%s.parquet", table, runID)

	var pathComponents []string
	if s.config.PathPrefix != "" {
		pathComponents = append(pathComponents, s.config.PathPrefix)
	}
	pathComponents = append(pathComponents, partPath, filename)

	fullPath := strings.Join(pathComponents, "/")
	for strings.Contains(fullPath, "//") {
		fullPath = strings.ReplaceAll(fullPath, "//", "/")
	}
	return strings.TrimPrefix(fullPath, "/")
}

var parquetEnrichedSchema = arrow.NewSchema([]arrow.Field{
	{Name: "customer_id", Type: arrow.BinaryTypes.String},
	{Name: "city", Type: arrow.BinaryTypes.String},
	{Name: "gender", Type: arrow.BinaryTypes.String},
	{Name: "age_band", Type: arrow.BinaryTypes.String},
	{Name: "signup_date", Type: arrow.FixedWidthTypes.Timestamp_us, Nullable: true},
	{Name: "preferred_category", Type: arrow.BinaryTypes.String},
	{Name: "recency_days", Type: arrow.PrimitiveTypes.Int64},
	{Name: "frequency_count", Type: arrow.PrimitiveTypes.Int64},
	{Name: "monetary_total", Type: arrow.PrimitiveTypes.Float64},
	{Name: "has_transaction", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "engagement_index", Type: arrow.PrimitiveTypes.Float64},
	{Name: "satisfaction_index", Type: arrow.PrimitiveTypes.Float64},
	{Name: "total_tickets", Type: arrow.PrimitiveTypes.Int64},
	{Name: "avg_resolution_hours", Type: arrow.PrimitiveTypes.Float64},
	{Name: "avg_rating", Type: arrow.PrimitiveTypes.Float64},
	{Name: "sentiment_score", Type: arrow.PrimitiveTypes.Float64},
	{Name: "sentiment_label", Type: arrow.BinaryTypes.String},
	{Name: "dominant_topic", Type: arrow.BinaryTypes.String},
	{Name: "churn_flag", Type: arrow.PrimitiveTypes.Int64},
}, nil)

var parquetPredictedSchema = arrow.NewSchema([]arrow.Field{
	{Name: "customer_id", Type: arrow.BinaryTypes.String},
	{Name: "churn_probability", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "churn_flag", Type: arrow.PrimitiveTypes.Int64},
	{Name: "predicted_satisfaction", Type: arrow.PrimitiveTypes.Float64},
	{Name: "churn_attribution", Type: arrow.BinaryTypes.String},
	{Name: "satisfaction_attribution", Type: arrow.BinaryTypes.String},
}, nil)

var parquetSegmentedSchema = arrow.NewSchema([]arrow.Field{
	{Name: "customer_id", Type: arrow.BinaryTypes.String},
	{Name: "cluster_id", Type: arrow.PrimitiveTypes.Int64, Nullable: true},
	{Name: "segment_label", Type: arrow.BinaryTypes.String},
	{Name: "projection_x", Type: arrow.PrimitiveTypes.Float64},
	{Name: "projection_y", Type: arrow.PrimitiveTypes.Float64},
}, nil)

var parquetCampaignsSchema = arrow.NewSchema([]arrow.Field{
	{Name: "campaign_id", Type: arrow.BinaryTypes.String},
	{Name: "campaign_name", Type: arrow.BinaryTypes.String},
	{Name: "campaign_type", Type: arrow.BinaryTypes.String},
	{Name: "impressions", Type: arrow.PrimitiveTypes.Int64},
	{Name: "clicks", Type: arrow.PrimitiveTypes.Int64},
	{Name: "conversions", Type: arrow.PrimitiveTypes.Int64},
	{Name: "spend", Type: arrow.PrimitiveTypes.Float64},
	{Name: "revenue", Type: arrow.PrimitiveTypes.Float64},
	{Name: "click_through_rate", Type: arrow.PrimitiveTypes.Float64},
	{Name: "cost_per_click", Type: arrow.PrimitiveTypes.Float64},
	{Name: "conversion_rate", Type: arrow.PrimitiveTypes.Float64},
	{Name: "return_on_investment", Type: arrow.PrimitiveTypes.Float64},
}, nil)

var parquetRunsSchema = arrow.NewSchema([]arrow.Field{
	{Name: "run_id", Type: arrow.BinaryTypes.String},
	{Name: "started_at", Type: arrow.FixedWidthTypes.Timestamp_us},
	{Name: "finished_at", Type: arrow.FixedWidthTypes.Timestamp_us},
	{Name: "source_type", Type: arrow.BinaryTypes.String},
	{Name: "row_counts", Type: arrow.BinaryTypes.String},
	{Name: "quality_warnings", Type: arrow.BinaryTypes.String},
	{Name: "churn_metrics", Type: arrow.BinaryTypes.String},
	{Name: "satisfaction_metrics", Type: arrow.BinaryTypes.String},
	{Name: "churn_importance", Type: arrow.BinaryTypes.String},
	{Name: "satisfaction_importance", Type: arrow.BinaryTypes.String},
	{Name: "elbow_curve", Type: arrow.BinaryTypes.String},
	{Name: "chosen_clusters", Type: arrow.PrimitiveTypes.Int64},
	{Name: "cluster_profiles", Type: arrow.BinaryTypes.String},
	{Name: "churn_degraded", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "satisfaction_degraded", Type: arrow.FixedWidthTypes.Boolean},
	{Name: "segmentation_degraded", Type: arrow.FixedWidthTypes.Boolean},
}, nil)

func appendNullableTimestamp(b *array.TimestampBuilder, t null.Time) {
	if t.Valid {
		b.Append(arrow.Timestamp(t.Time.UTC().UnixMicro()))
	} else {
		b.AppendNull()
	}
}

func appendNullableFloat(b *array.Float64Builder, f null.Float) {
	if f.Valid {
		b.Append(f.Float64)
	} else {
		b.AppendNull()
	}
}

func appendNullableInt(b *array.Int64Builder, i null.Int) {
	if i.Valid {
		b.Append(i.Int64)
	} else {
		b.AppendNull()
	}
}

func (s *SaveToParquet) buildEnrichedRecord(dataset *processor.Dataset) arrow.Record {
	b := array.NewRecordBuilder(s.allocator, parquetEnrichedSchema)
	defer b.Release()

	for _, record := range dataset.Customers {
		b.Field(0).(*array.StringBuilder).Append(record.CustomerID)
		b.Field(1).(*array.StringBuilder).Append(record.City)
		b.Field(2).(*array.StringBuilder).Append(record.Gender)
		b.Field(3).(*array.StringBuilder).Append(record.AgeBand)
		appendNullableTimestamp(b.Field(4).(*array.TimestampBuilder), record.SignupDate)
		b.Field(5).(*array.StringBuilder).Append(record.PreferredCategory)
		b.Field(6).(*array.Int64Builder).Append(record.RecencyDays)
		b.Field(7).(*array.Int64Builder).Append(record.FrequencyCount)
		b.Field(8).(*array.Float64Builder).Append(record.MonetaryTotal)
		b.Field(9).(*array.BooleanBuilder).Append(record.HasTransaction)
		b.Field(10).(*array.Float64Builder).Append(record.EngagementIndex)
		b.Field(11).(*array.Float64Builder).Append(record.SatisfactionIndex)
		b.Field(12).(*array.Int64Builder).Append(record.TotalTickets)
		b.Field(13).(*array.Float64Builder).Append(record.AvgResolutionHours)
		b.Field(14).(*array.Float64Builder).Append(record.AvgRating)
		b.Field(15).(*array.Float64Builder).Append(record.SentimentScore)
		b.Field(16).(*array.StringBuilder).Append(record.SentimentLabel)
		b.Field(17).(*array.StringBuilder).Append(record.DominantTopic)
		b.Field(18).(*array.Int64Builder).Append(record.ChurnFlag)
	}

	return b.NewRecord()
}

func (s *SaveToParquet) buildPredictedRecord(dataset *processor.Dataset) arrow.Record {
	b := array.NewRecordBuilder(s.allocator, parquetPredictedSchema)
	defer b.Release()

	for _, prediction := range dataset.Predictions {
		b.Field(0).(*array.StringBuilder).Append(prediction.CustomerID)
		appendNullableFloat(b.Field(1).(*array.Float64Builder), prediction.ChurnProbability)
		b.Field(2).(*array.Int64Builder).Append(prediction.ChurnFlag)
		b.Field(3).(*array.Float64Builder).Append(prediction.PredictedSatisfaction)
		b.Field(4).(*array.StringBuilder).Append(toJSON(prediction.ChurnAttribution))
		b.Field(5).(*array.StringBuilder).Append(toJSON(prediction.SatisfactionAttribution))
	}

	return b.NewRecord()
}

func (s *SaveToParquet) buildSegmentedRecord(dataset *processor.Dataset) arrow.Record {
	b := array.NewRecordBuilder(s.allocator, parquetSegmentedSchema)
	defer b.Release()

	for _, segment := range dataset.Segments {
		b.Field(0).(*array.StringBuilder).Append(segment.CustomerID)
		appendNullableInt(b.Field(1).(*array.Int64Builder), segment.ClusterID)
		b.Field(2).(*array.StringBuilder).Append(segment.SegmentLabel)
		b.Field(3).(*array.Float64Builder).Append(segment.ProjectionX)
		b.Field(4).(*array.Float64Builder).Append(segment.ProjectionY)
	}

	return b.NewRecord()
}

func (s *SaveToParquet) buildCampaignsRecord(dataset *processor.Dataset) arrow.Record {
	b := array.NewRecordBuilder(s.allocator, parquetCampaignsSchema)
	defer b.Release()

	for _, campaign := range dataset.Campaigns {
		b.Field(0).(*array.StringBuilder).Append(campaign.CampaignID)
		b.Field(1).(*array.StringBuilder).Append(campaign.CampaignName)
		b.Field(2).(*array.StringBuilder).Append(campaign.CampaignType)
		b.Field(3).(*array.Int64Builder).Append(campaign.Impressions)
		b.Field(4).(*array.Int64Builder).Append(campaign.Clicks)
		b.Field(5).(*array.Int64Builder).Append(campaign.Conversions)
		b.Field(6).(*array.Float64Builder).Append(campaign.Spend)
		b.Field(7).(*array.Float64Builder).Append(campaign.Revenue)
		b.Field(8).(*array.Float64Builder).Append(campaign.ClickThroughRate)
		b.Field(9).(*array.Float64Builder).Append(campaign.CostPerClick)
		b.Field(10).(*array.Float64Builder).Append(campaign.ConversionRate)
		b.Field(11).(*array.Float64Builder).Append(campaign.ReturnOnInvestment)
	}

	return b.NewRecord()
}

func (s *SaveToParquet) buildRunReportRecord(report *processor.RunReport) arrow.Record {
	b := array.NewRecordBuilder(s.allocator, parquetRunsSchema)
	defer b.Release()

	b.Field(0).(*array.StringBuilder).Append(report.RunID)
	b.Field(1).(*array.TimestampBuilder).Append(arrow.Timestamp(report.StartedAt.UTC().UnixMicro()))
	b.Field(2).(*array.TimestampBuilder).Append(arrow.Timestamp(finishedAt(report).UTC().UnixMicro()))
	b.Field(3).(*array.StringBuilder).Append(report.SourceType)
	b.Field(4).(*array.StringBuilder).Append(toJSON(report.RowCounts))
	b.Field(5).(*array.StringBuilder).Append(toJSON(report.QualityWarnings))
	b.Field(6).(*array.StringBuilder).Append(toJSON(report.ChurnMetrics))
	b.Field(7).(*array.StringBuilder).Append(toJSON(report.SatisfactionMetrics))
	b.Field(8).(*array.StringBuilder).Append(toJSON(report.ChurnImportance))
	b.Field(9).(*array.StringBuilder).Append(toJSON(report.SatisfactionImportance))
	b.Field(10).(*array.StringBuilder).Append(toJSON(report.ElbowCurve))
	b.Field(11).(*array.Int64Builder).Append(int64(report.ChosenClusters))
	b.Field(12).(*array.StringBuilder).Append(toJSON(report.ClusterProfiles))
	b.Field(13).(*array.BooleanBuilder).Append(report.ChurnDegraded)
	b.Field(14).(*array.BooleanBuilder).Append(report.SatisfactionDegraded)
	b.Field(15).(*array.BooleanBuilder).Append(report.SegmentationDegraded)

	return b.NewRecord()
}

// writeParquet serializes an Arrow record to Parquet bytes
func (s *SaveToParquet) writeParquet(record arrow.Record) ([]byte, error) {
	var buf bytes.Buffer

	props := parquet.NewWriterProperties(
		parquet.WithCompression(s.getCompressionType()),
		parquet.WithDataPageSize(1024*1024), // 1MB data pages
	)

	writer, err := pqarrow.NewFileWriter(record.Schema(), &buf, props, pqarrow.NewArrowWriterProperties())
	if err != nil {
		return nil, fmt.Errorf("failed to create Parquet writer: %w", err)
	}

	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write record: %w", err)
	}

	// Close writer to finalize the footer
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close writer: %w", err)
	}

	return buf.Bytes(), nil
}

func (s *SaveToParquet) getCompressionType() compress.Compression {
	switch s.config.Compression {
	case "snappy":
		return compress.Codecs.Snappy
	case "gzip":
		return compress.Codecs.Gzip
	case "zstd":
		return compress.Codecs.Zstd
	case "lz4":
		return compress.Codecs.Lz4
	case "brotli":
		return compress.Codecs.Brotli
	case "none":
		return compress.Codecs.Uncompressed
	default:
		return compress.Codecs.Snappy
	}
}

// GetMetrics returns consumer metrics
func (s *SaveToParquet) GetMetrics() map[string]interface{} {
	return map[string]interface{}{
		"files_written":   s.filesWritten,
		"records_written": s.recordsWritten,
		"bytes_written":   s.bytesWritten,
	}
}

func (s *SaveToParquet) Close() error {
	if err := s.storageClient.Close(); err != nil {
		return fmt.Errorf("error closing storage client: %w", err)
	}

	log.Printf("Parquet archival consumer closed. Files written: %d, Records: %d, Bytes: %d",
		s.filesWritten, s.recordsWritten, s.bytesWritten)
	return nil
}
