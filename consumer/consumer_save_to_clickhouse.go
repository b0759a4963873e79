package consumer

import (
	"context"
	"fmt"
	"log"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

type SaveToClickHouse struct {
	conn       driver.Conn
	processors []processor.Processor
}

type ClickHouseConfig struct {
	Address      string
	Database     string
	Username     string
	Password     string
	MaxOpenConns int
	MaxIdleConns int
}

// Shared column definitions: each output table is created twice per run,
// once as the staging twin and once (IF NOT EXISTS) as the exchange target.
const (
	clickhouseEnrichedSchema = ` (
        customer_id          String,
        city                 String,
        gender               String,
        age_band             String,
        signup_date          Nullable(DateTime),
        preferred_category   String,
        recency_days         Int64,
        frequency_count      Int64,
        monetary_total       Float64,
        has_transaction      Bool,
        engagement_index     Float64,
        satisfaction_index   Float64,
        total_tickets        Int64,
        avg_resolution_hours Float64,
        avg_rating           Float64,
        sentiment_score      Float64,
        sentiment_label      LowCardinality(String),
        dominant_topic       LowCardinality(String),
        churn_flag           Int64
    ) ENGINE = MergeTree()
    ORDER BY customer_id`

	clickhousePredictedSchema = ` (
        customer_id              String,
        churn_probability        Nullable(Float64),
        churn_flag               Int64,
        predicted_satisfaction   Float64,
        churn_attribution        String,
        satisfaction_attribution String
    ) ENGINE = MergeTree()
    ORDER BY customer_id`

	clickhouseSegmentedSchema = ` (
        customer_id   String,
        cluster_id    Nullable(Int64),
        segment_label LowCardinality(String),
        projection_x  Float64,
        projection_y  Float64
    ) ENGINE = MergeTree()
    ORDER BY customer_id`

	clickhouseCampaignsSchema = ` (
        campaign_id          String,
        campaign_name        String,
        campaign_type        LowCardinality(String),
        impressions          Int64,
        clicks               Int64,
        conversions          Int64,
        spend                Float64,
        revenue              Float64,
        click_through_rate   Float64,
        cost_per_click       Float64,
        conversion_rate      Float64,
        return_on_investment Float64
    ) ENGINE = MergeTree()
    ORDER BY campaign_id`
)

func NewSaveToClickHouse(config map[string]interface{}) (*SaveToClickHouse, error) {
	chConfig, err := parseClickHouseConfig(config)
	if err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	clickhouseconn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{chConfig.Address},
		Auth: clickhouse.Auth{
			Database: chConfig.Database,
			Username: chConfig.Username,
			Password: chConfig.Password,
		},
		MaxOpenConns: chConfig.MaxOpenConns,
		MaxIdleConns: chConfig.MaxIdleConns,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to ClickHouse: %w", err)
	}

	if err := initializeClickHouseTables(clickhouseconn); err != nil {
		return nil, fmt.Errorf("error initializing tables: %w", err)
	}

	return &SaveToClickHouse{
		conn: clickhouseconn,
	}, nil
}

func parseClickHouseConfig(config map[string]interface{}) (ClickHouseConfig, error) {
	var chConfig ClickHouseConfig

	addr, ok := config["address"].(string)
	if !ok {
		return chConfig, fmt.Errorf("missing address in config")
	}
	chConfig.Address = addr

	dbname, ok := config["database"].(string)
	if !ok {
		return chConfig, fmt.Errorf("missing database in config")
	}
	chConfig.Database = dbname

	username, ok := config["username"].(string)
	if !ok {
		return chConfig, fmt.Errorf("missing username in config")
	}
	chConfig.Username = username

	password, ok := config["password"].(string)
	if !ok {
		return chConfig, fmt.Errorf("missing password in config")
	}
	chConfig.Password = password

	// Set defaults for connection pools
	chConfig.MaxOpenConns = 10
	chConfig.MaxIdleConns = 5

	if maxOpen, ok := config["max_open_conns"].(int); ok {
		chConfig.MaxOpenConns = maxOpen
	}
	if maxIdle, ok := config["max_idle_conns"].(int); ok {
		chConfig.MaxIdleConns = maxIdle
	}

	return chConfig, nil
}

func initializeClickHouseTables(conn driver.Conn) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS pipeline_runs (
            run_id                  String,
            started_at              DateTime,
            finished_at             DateTime,
            source_type             LowCardinality(String),
            row_counts              String,
            quality_warnings        String,
            churn_metrics           String,
            satisfaction_metrics    String,
            churn_importance        String,
            satisfaction_importance String,
            elbow_curve             String,
            chosen_clusters         Int32,
            cluster_profiles        String,
            churn_degraded          Bool,
            satisfaction_degraded   Bool,
            segmentation_degraded   Bool
        ) ENGINE = MergeTree()
        ORDER BY started_at`,

		"CREATE TABLE IF NOT EXISTS " + TableEnriched + clickhouseEnrichedSchema,
		"CREATE TABLE IF NOT EXISTS " + TablePredicted + clickhousePredictedSchema,
		"CREATE TABLE IF NOT EXISTS " + TableSegmented + clickhouseSegmentedSchema,
		"CREATE TABLE IF NOT EXISTS " + TableCampaigns + clickhouseCampaignsSchema,
	}

	for _, query := range queries {
		err := conn.Exec(context.Background(), query)
		if err != nil {
			return fmt.Errorf("error executing query: %s: %w", query, err)
		}
	}

	return nil
}

func (ch *SaveToClickHouse) Subscribe(receiver processor.Processor) {
	ch.processors = append(ch.processors, receiver)
}

// Process rebuilds the four output tables in staging twins and swaps each
// in with EXCHANGE TABLES, which is atomic under the Atomic database engine.
func (ch *SaveToClickHouse) Process(ctx context.Context, msg processor.Message) error {
	dataset, err := processor.DatasetFromMessage(msg)
	if err != nil {
		return err
	}

	if err := ch.stageEnriched(ctx, dataset); err != nil {
		return err
	}
	if err := ch.stagePredicted(ctx, dataset); err != nil {
		return err
	}
	if err := ch.stageSegmented(ctx, dataset); err != nil {
		return err
	}
	if err := ch.stageCampaigns(ctx, dataset); err != nil {
		return err
	}

	for _, table := range []string{TableEnriched, TablePredicted, TableSegmented, TableCampaigns} {
		staging := stagingName(table)
		if err := ch.conn.Exec(ctx, "EXCHANGE TABLES "+staging+" AND "+table); err != nil {
			return fmt.Errorf("error exchanging %s: %w", table, err)
		}
		// The staging name now holds the previous run's rows.
		if err := ch.conn.Exec(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
			return fmt.Errorf("error dropping %s: %w", staging, err)
		}
	}

	if err := ch.insertRunReport(ctx, dataset.Report); err != nil {
		return err
	}

	log.Printf("SaveToClickHouse: materialized %d customers, %d campaigns (run %s)",
		len(dataset.Customers), len(dataset.Campaigns), dataset.Report.RunID)
	return nil
}

func (ch *SaveToClickHouse) recreateStaging(ctx context.Context, table, schema string) error {
	staging := stagingName(table)
	if err := ch.conn.Exec(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("error dropping %s: %w", staging, err)
	}
	if err := ch.conn.Exec(ctx, "CREATE TABLE "+staging+schema); err != nil {
		return fmt.Errorf("error creating %s: %w", staging, err)
	}
	return nil
}

func (ch *SaveToClickHouse) stageEnriched(ctx context.Context, dataset *processor.Dataset) error {
	if err := ch.recreateStaging(ctx, TableEnriched, clickhouseEnrichedSchema); err != nil {
		return err
	}

	batch, err := ch.conn.PrepareBatch(ctx, "INSERT INTO "+stagingName(TableEnriched))
	if err != nil {
		return fmt.Errorf("error preparing enriched batch: %w", err)
	}

	for _, record := range dataset.Customers {
		err := batch.Append(
			record.CustomerID, record.City, record.Gender, record.AgeBand,
			nullTimeArg(record.SignupDate), record.PreferredCategory,
			record.RecencyDays, record.FrequencyCount, record.MonetaryTotal,
			record.HasTransaction, record.EngagementIndex, record.SatisfactionIndex,
			record.TotalTickets, record.AvgResolutionHours, record.AvgRating,
			record.SentimentScore, record.SentimentLabel, record.DominantTopic,
			record.ChurnFlag,
		)
		if err != nil {
			return fmt.Errorf("error appending enriched row %s: %w", record.CustomerID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("error sending enriched batch: %w", err)
	}
	return nil
}

func (ch *SaveToClickHouse) stagePredicted(ctx context.Context, dataset *processor.Dataset) error {
	if err := ch.recreateStaging(ctx, TablePredicted, clickhousePredictedSchema); err != nil {
		return err
	}

	batch, err := ch.conn.PrepareBatch(ctx, "INSERT INTO "+stagingName(TablePredicted))
	if err != nil {
		return fmt.Errorf("error preparing predicted batch: %w", err)
	}

	for _, prediction := range dataset.Predictions {
		err := batch.Append(
			prediction.CustomerID, nullFloatArg(prediction.ChurnProbability),
			prediction.ChurnFlag, prediction.PredictedSatisfaction,
			toJSON(prediction.ChurnAttribution), toJSON(prediction.SatisfactionAttribution),
		)
		if err != nil {
			return fmt.Errorf("error appending predicted row %s: %w", prediction.CustomerID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("error sending predicted batch: %w", err)
	}
	return nil
}

func (ch *SaveToClickHouse) stageSegmented(ctx context.Context, dataset *processor.Dataset) error {
	if err := ch.recreateStaging(ctx, TableSegmented, clickhouseSegmentedSchema); err != nil {
		return err
	}

	batch, err := ch.conn.PrepareBatch(ctx, "INSERT INTO "+stagingName(TableSegmented))
	if err != nil {
		return fmt.Errorf("error preparing segmented batch: %w", err)
	}

	for _, segment := range dataset.Segments {
		err := batch.Append(
			segment.CustomerID, nullIntArg(segment.ClusterID), segment.SegmentLabel,
			segment.ProjectionX, segment.ProjectionY,
		)
		if err != nil {
			return fmt.Errorf("error appending segmented row %s: %w", segment.CustomerID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("error sending segmented batch: %w", err)
	}
	return nil
}

func (ch *SaveToClickHouse) stageCampaigns(ctx context.Context, dataset *processor.Dataset) error {
	if err := ch.recreateStaging(ctx, TableCampaigns, clickhouseCampaignsSchema); err != nil {
		return err
	}

	batch, err := ch.conn.PrepareBatch(ctx, "INSERT INTO "+stagingName(TableCampaigns))
	if err != nil {
		return fmt.Errorf("error preparing campaigns batch: %w", err)
	}

	for _, campaign := range dataset.Campaigns {
		err := batch.Append(
			campaign.CampaignID, campaign.CampaignName, campaign.CampaignType,
			campaign.Impressions, campaign.Clicks, campaign.Conversions,
			campaign.Spend, campaign.Revenue, campaign.ClickThroughRate,
			campaign.CostPerClick, campaign.ConversionRate, campaign.ReturnOnInvestment,
		)
		if err != nil {
			return fmt.Errorf("error appending campaign row %s: %w", campaign.CampaignID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("error sending campaigns batch: %w", err)
	}
	return nil
}

func (ch *SaveToClickHouse) insertRunReport(ctx context.Context, report *processor.RunReport) error {
	query := `
        INSERT INTO pipeline_runs (
            run_id, started_at, finished_at, source_type, row_counts,
            quality_warnings, churn_metrics, satisfaction_metrics,
            churn_importance, satisfaction_importance, elbow_curve,
            chosen_clusters, cluster_profiles, churn_degraded,
            satisfaction_degraded, segmentation_degraded
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	err := ch.conn.Exec(ctx, query,
		report.RunID, report.StartedAt, finishedAt(report), report.SourceType,
		toJSON(report.RowCounts), toJSON(report.QualityWarnings),
		toJSON(report.ChurnMetrics), toJSON(report.SatisfactionMetrics),
		toJSON(report.ChurnImportance), toJSON(report.SatisfactionImportance),
		toJSON(report.ElbowCurve), int32(report.ChosenClusters), toJSON(report.ClusterProfiles),
		report.ChurnDegraded, report.SatisfactionDegraded, report.SegmentationDegraded,
	)
	if err != nil {
		return fmt.Errorf("error inserting run report %s: %w", report.RunID, err)
	}
	return nil
}

func (ch *SaveToClickHouse) Close() error {
	return ch.conn.Close()
}
