package consumer

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

type SaveToPostgreSQL struct {
	db         *sql.DB
	processors []processor.Processor
}

type PostgresConfig struct {
	Host         string
	Port         int
	Database     string
	Username     string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// Only pipeline_runs persists across runs; the four output tables are
// rebuilt from staging twins inside each run's transaction.
const initPostgresSchema = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
    run_id                   TEXT PRIMARY KEY,
    started_at               TIMESTAMPTZ,
    finished_at              TIMESTAMPTZ,
    source_type              TEXT,
    row_counts               JSONB,
    quality_warnings         JSONB,
    churn_metrics            JSONB,
    satisfaction_metrics     JSONB,
    churn_importance         JSONB,
    satisfaction_importance  JSONB,
    elbow_curve              JSONB,
    chosen_clusters          INTEGER,
    cluster_profiles         JSONB,
    churn_degraded           BOOLEAN,
    satisfaction_degraded    BOOLEAN,
    segmentation_degraded    BOOLEAN
);

CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started ON pipeline_runs(started_at);
`

func NewSaveToPostgreSQL(config map[string]interface{}) (*SaveToPostgreSQL, error) {
	pgConfig, err := parsePostgresConfig(config)
	if err != nil {
		return nil, err
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pgConfig.Host, pgConfig.Port, pgConfig.Username, pgConfig.Password,
		pgConfig.Database, pgConfig.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error connecting to PostgreSQL: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(pgConfig.MaxOpenConns)
	db.SetMaxIdleConns(pgConfig.MaxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error pinging PostgreSQL: %w", err)
	}

	if err := initializePostgresSchema(db); err != nil {
		return nil, fmt.Errorf("error initializing schema: %w", err)
	}

	return &SaveToPostgreSQL{
		db: db,
	}, nil
}

func parsePostgresConfig(config map[string]interface{}) (PostgresConfig, error) {
	var pgConfig PostgresConfig

	host, ok := config["host"].(string)
	if !ok {
		return pgConfig, fmt.Errorf("missing host in config")
	}
	pgConfig.Host = host

	pgConfig.Port = 5432 // Default PostgreSQL port
	if port, ok := config["port"].(int); ok {
		pgConfig.Port = port
	} else if port, ok := config["port"].(float64); ok {
		pgConfig.Port = int(port)
	}

	database, ok := config["database"].(string)
	if !ok {
		return pgConfig, fmt.Errorf("missing database in config")
	}
	pgConfig.Database = database

	username, ok := config["username"].(string)
	if !ok {
		return pgConfig, fmt.Errorf("missing username in config")
	}
	pgConfig.Username = username

	password, ok := config["password"].(string)
	if !ok {
		return pgConfig, fmt.Errorf("missing password in config")
	}
	pgConfig.Password = password

	sslMode, ok := config["ssl_mode"].(string)
	if !ok {
		pgConfig.SSLMode = "disable" // Default to disable
	} else {
		pgConfig.SSLMode = sslMode
	}

	// Set connection pool defaults
	pgConfig.MaxOpenConns = 25
	pgConfig.MaxIdleConns = 5

	if maxOpen, ok := config["max_open_conns"].(int); ok {
		pgConfig.MaxOpenConns = maxOpen
	} else if maxOpen, ok := config["max_open_conns"].(float64); ok {
		pgConfig.MaxOpenConns = int(maxOpen)
	}
	if maxIdle, ok := config["max_idle_conns"].(int); ok {
		pgConfig.MaxIdleConns = maxIdle
	} else if maxIdle, ok := config["max_idle_conns"].(float64); ok {
		pgConfig.MaxIdleConns = int(maxIdle)
	}

	return pgConfig, nil
}

func initializePostgresSchema(db *sql.DB) error {
	_, err := db.Exec(initPostgresSchema)
	return err
}

func (p *SaveToPostgreSQL) Subscribe(receiver processor.Processor) {
	p.processors = append(p.processors, receiver)
}

func (p *SaveToPostgreSQL) Process(ctx context.Context, msg processor.Message) error {
	dataset, err := processor.DatasetFromMessage(msg)
	if err != nil {
		return err
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback() // Will be ignored if transaction is committed

	if err := p.stageEnriched(ctx, tx, dataset); err != nil {
		return err
	}
	if err := p.stagePredicted(ctx, tx, dataset); err != nil {
		return err
	}
	if err := p.stageSegmented(ctx, tx, dataset); err != nil {
		return err
	}
	if err := p.stageCampaigns(ctx, tx, dataset); err != nil {
		return err
	}

	// Swap staging tables in; readers see the previous run until commit.
	for _, table := range []string{TableEnriched, TablePredicted, TableSegmented, TableCampaigns} {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("error dropping %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, "ALTER TABLE "+stagingName(table)+" RENAME TO "+table); err != nil {
			return fmt.Errorf("error swapping %s: %w", table, err)
		}
	}

	if err := p.insertRunReport(ctx, tx, dataset.Report); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	log.Printf("SaveToPostgreSQL: materialized %d customers, %d campaigns (run %s)",
		len(dataset.Customers), len(dataset.Campaigns), dataset.Report.RunID)
	return nil
}

func (p *SaveToPostgreSQL) stageEnriched(ctx context.Context, tx *sql.Tx, dataset *processor.Dataset) error {
	staging := stagingName(TableEnriched)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("error dropping %s: %w", staging, err)
	}
	_, err := tx.ExecContext(ctx, `
        CREATE TABLE `+staging+` (
            customer_id          TEXT PRIMARY KEY,
            city                 TEXT,
            gender               TEXT,
            age_band             TEXT,
            signup_date          TIMESTAMPTZ,
            preferred_category   TEXT,
            recency_days         INTEGER,
            frequency_count      INTEGER,
            monetary_total       DOUBLE PRECISION,
            has_transaction      BOOLEAN,
            engagement_index     DOUBLE PRECISION,
            satisfaction_index   DOUBLE PRECISION,
            total_tickets        INTEGER,
            avg_resolution_hours DOUBLE PRECISION,
            avg_rating           DOUBLE PRECISION,
            sentiment_score      DOUBLE PRECISION,
            sentiment_label      TEXT,
            dominant_topic       TEXT,
            churn_flag           INTEGER
        )
    `)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", staging, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO `+staging+` (
            customer_id, city, gender, age_band, signup_date, preferred_category,
            recency_days, frequency_count, monetary_total, has_transaction,
            engagement_index, satisfaction_index, total_tickets,
            avg_resolution_hours, avg_rating, sentiment_score, sentiment_label,
            dominant_topic, churn_flag
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
    `)
	if err != nil {
		return fmt.Errorf("error preparing enriched insert: %w", err)
	}
	defer stmt.Close()

	for _, record := range dataset.Customers {
		_, err := stmt.ExecContext(ctx,
			record.CustomerID, record.City, record.Gender, record.AgeBand,
			nullTimeArg(record.SignupDate), record.PreferredCategory,
			record.RecencyDays, record.FrequencyCount, record.MonetaryTotal,
			record.HasTransaction, record.EngagementIndex, record.SatisfactionIndex,
			record.TotalTickets, record.AvgResolutionHours, record.AvgRating,
			record.SentimentScore, record.SentimentLabel, record.DominantTopic,
			record.ChurnFlag,
		)
		if err != nil {
			return fmt.Errorf("error inserting enriched row %s: %w", record.CustomerID, err)
		}
	}
	return nil
}

func (p *SaveToPostgreSQL) stagePredicted(ctx context.Context, tx *sql.Tx, dataset *processor.Dataset) error {
	staging := stagingName(TablePredicted)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("error dropping %s: %w", staging, err)
	}
	_, err := tx.ExecContext(ctx, `
        CREATE TABLE `+staging+` (
            customer_id              TEXT PRIMARY KEY,
            churn_probability        DOUBLE PRECISION,
            churn_flag               INTEGER,
            predicted_satisfaction   DOUBLE PRECISION,
            churn_attribution        JSONB,
            satisfaction_attribution JSONB
        )
    `)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", staging, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO `+staging+` (
            customer_id, churn_probability, churn_flag, predicted_satisfaction,
            churn_attribution, satisfaction_attribution
        ) VALUES ($1, $2, $3, $4, $5, $6)
    `)
	if err != nil {
		return fmt.Errorf("error preparing predicted insert: %w", err)
	}
	defer stmt.Close()

	for _, prediction := range dataset.Predictions {
		_, err := stmt.ExecContext(ctx,
			prediction.CustomerID, nullFloatArg(prediction.ChurnProbability),
			prediction.ChurnFlag, prediction.PredictedSatisfaction,
			toJSON(prediction.ChurnAttribution), toJSON(prediction.SatisfactionAttribution),
		)
		if err != nil {
			return fmt.Errorf("error inserting predicted row %s: %w", prediction.CustomerID, err)
		}
	}
	return nil
}

func (p *SaveToPostgreSQL) stageSegmented(ctx context.Context, tx *sql.Tx, dataset *processor.Dataset) error {
	staging := stagingName(TableSegmented)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("error dropping %s: %w", staging, err)
	}
	_, err := tx.ExecContext(ctx, `
        CREATE TABLE `+staging+` (
            customer_id   TEXT PRIMARY KEY,
            cluster_id    INTEGER,
            segment_label TEXT,
            projection_x  DOUBLE PRECISION,
            projection_y  DOUBLE PRECISION
        )
    `)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", staging, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO `+staging+` (
            customer_id, cluster_id, segment_label, projection_x, projection_y
        ) VALUES ($1, $2, $3, $4, $5)
    `)
	if err != nil {
		return fmt.Errorf("error preparing segmented insert: %w", err)
	}
	defer stmt.Close()

	for _, segment := range dataset.Segments {
		_, err := stmt.ExecContext(ctx,
			segment.CustomerID, nullIntArg(segment.ClusterID), segment.SegmentLabel,
			segment.ProjectionX, segment.ProjectionY,
		)
		if err != nil {
			return fmt.Errorf("error inserting segmented row %s: %w", segment.CustomerID, err)
		}
	}
	return nil
}

func (p *SaveToPostgreSQL) stageCampaigns(ctx context.Context, tx *sql.Tx, dataset *processor.Dataset) error {
	staging := stagingName(TableCampaigns)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("error dropping %s: %w", staging, err)
	}
	_, err := tx.ExecContext(ctx, `
        CREATE TABLE `+staging+` (
            campaign_id          TEXT PRIMARY KEY,
            campaign_name        TEXT,
            campaign_type        TEXT,
            impressions          BIGINT,
            clicks               BIGINT,
            conversions          BIGINT,
            spend                DOUBLE PRECISION,
            revenue              DOUBLE PRECISION,
            click_through_rate   DOUBLE PRECISION,
            cost_per_click       DOUBLE PRECISION,
            conversion_rate      DOUBLE PRECISION,
            return_on_investment DOUBLE PRECISION
        )
    `)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", staging, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO `+staging+` (
            campaign_id, campaign_name, campaign_type, impressions, clicks,
            conversions, spend, revenue, click_through_rate, cost_per_click,
            conversion_rate, return_on_investment
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
    `)
	if err != nil {
		return fmt.Errorf("error preparing campaigns insert: %w", err)
	}
	defer stmt.Close()

	for _, campaign := range dataset.Campaigns {
		_, err := stmt.ExecContext(ctx,
			campaign.CampaignID, campaign.CampaignName, campaign.CampaignType,
			campaign.Impressions, campaign.Clicks, campaign.Conversions,
			campaign.Spend, campaign.Revenue, campaign.ClickThroughRate,
			campaign.CostPerClick, campaign.ConversionRate, campaign.ReturnOnInvestment,
		)
		if err != nil {
			return fmt.Errorf("error inserting campaign row %s: %w", campaign.CampaignID, err)
		}
	}
	return nil
}

func (p *SaveToPostgreSQL) insertRunReport(ctx context.Context, tx *sql.Tx, report *processor.RunReport) error {
	_, err := tx.ExecContext(ctx, `
        INSERT INTO pipeline_runs (
            run_id, started_at, finished_at, source_type, row_counts,
            quality_warnings, churn_metrics, satisfaction_metrics,
            churn_importance, satisfaction_importance, elbow_curve,
            chosen_clusters, cluster_profiles, churn_degraded,
            satisfaction_degraded, segmentation_degraded
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
    `,
		report.RunID, report.StartedAt, finishedAt(report), report.SourceType,
		toJSON(report.RowCounts), toJSON(report.QualityWarnings),
		toJSON(report.ChurnMetrics), toJSON(report.SatisfactionMetrics),
		toJSON(report.ChurnImportance), toJSON(report.SatisfactionImportance),
		toJSON(report.ElbowCurve), report.ChosenClusters, toJSON(report.ClusterProfiles),
		report.ChurnDegraded, report.SatisfactionDegraded, report.SegmentationDegraded,
	)
	if err != nil {
		return fmt.Errorf("error inserting run report %s: %w", report.RunID, err)
	}
	return nil
}

func (p *SaveToPostgreSQL) Close() error {
	return p.db.Close()
}
