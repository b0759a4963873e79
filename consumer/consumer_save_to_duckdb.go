package consumer

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

type SaveToDuckDB struct {
	db         *sql.DB
	processors []processor.Processor
}

func NewSaveToDuckDB(config map[string]interface{}) (*SaveToDuckDB, error) {
	dbPath, ok := config["db_path"].(string)
	if !ok {
		dbPath = "customer360.duckdb"
	}

	// Open DuckDB connection
	db, err := sql.Open("duckdb", dbPath+"?access_mode=READ_WRITE")
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	// Verify connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DuckDB: %w", err)
	}

	if err := initializeDuckDBTables(db); err != nil {
		return nil, err
	}

	return &SaveToDuckDB{
		db: db,
	}, nil
}

func initializeDuckDBTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS pipeline_runs (
            run_id                  VARCHAR PRIMARY KEY,
            started_at              TIMESTAMP,
            finished_at             TIMESTAMP,
            source_type             VARCHAR,
            row_counts              VARCHAR,
            quality_warnings        VARCHAR,
            churn_metrics           VARCHAR,
            satisfaction_metrics    VARCHAR,
            churn_importance        VARCHAR,
            satisfaction_importance VARCHAR,
            elbow_curve             VARCHAR,
            chosen_clusters         INTEGER,
            cluster_profiles        VARCHAR,
            churn_degraded          BOOLEAN,
            satisfaction_degraded   BOOLEAN,
            segmentation_degraded   BOOLEAN
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create pipeline_runs table: %w", err)
	}
	return nil
}

func (d *SaveToDuckDB) Subscribe(receiver processor.Processor) {
	d.processors = append(d.processors, receiver)
}

func (d *SaveToDuckDB) Process(ctx context.Context, msg processor.Message) error {
	dataset, err := processor.DatasetFromMessage(msg)
	if err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback() // Will be ignored if transaction is committed

	if err := d.stageEnriched(ctx, tx, dataset); err != nil {
		return err
	}
	if err := d.stagePredicted(ctx, tx, dataset); err != nil {
		return err
	}
	if err := d.stageSegmented(ctx, tx, dataset); err != nil {
		return err
	}
	if err := d.stageCampaigns(ctx, tx, dataset); err != nil {
		return err
	}

	for _, table := range []string{TableEnriched, TablePredicted, TableSegmented, TableCampaigns} {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("error dropping %s: %w", table, err)
		}
		if _, err := tx.ExecContext(ctx, "ALTER TABLE "+stagingName(table)+" RENAME TO "+table); err != nil {
			return fmt.Errorf("error swapping %s: %w", table, err)
		}
	}

	if err := d.insertRunReport(ctx, tx, dataset.Report); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	log.Printf("SaveToDuckDB: materialized %d customers, %d campaigns (run %s)",
		len(dataset.Customers), len(dataset.Campaigns), dataset.Report.RunID)
	return nil
}

func (d *SaveToDuckDB) stageEnriched(ctx context.Context, tx *sql.Tx, dataset *processor.Dataset) error {
	staging := stagingName(TableEnriched)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("error dropping %s: %w", staging, err)
	}
	_, err := tx.ExecContext(ctx, `
        CREATE TABLE `+staging+` (
            customer_id          VARCHAR PRIMARY KEY,
            city                 VARCHAR,
            gender               VARCHAR,
            age_band             VARCHAR,
            signup_date          TIMESTAMP,
            preferred_category   VARCHAR,
            recency_days         INTEGER,
            frequency_count      INTEGER,
            monetary_total       DOUBLE,
            has_transaction      BOOLEAN,
            engagement_index     DOUBLE,
            satisfaction_index   DOUBLE,
            total_tickets        INTEGER,
            avg_resolution_hours DOUBLE,
            avg_rating           DOUBLE,
            sentiment_score      DOUBLE,
            sentiment_label      VARCHAR,
            dominant_topic       VARCHAR,
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
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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

func (d *SaveToDuckDB) stagePredicted(ctx context.Context, tx *sql.Tx, dataset *processor.Dataset) error {
	staging := stagingName(TablePredicted)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("error dropping %s: %w", staging, err)
	}
	_, err := tx.ExecContext(ctx, `
        CREATE TABLE `+staging+` (
            customer_id              VARCHAR PRIMARY KEY,
            churn_probability        DOUBLE,
            churn_flag               INTEGER,
            predicted_satisfaction   DOUBLE,
            churn_attribution        VARCHAR,
            satisfaction_attribution VARCHAR
        )
    `)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", staging, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO `+staging+` (
            customer_id, churn_probability, churn_flag, predicted_satisfaction,
            churn_attribution, satisfaction_attribution
        ) VALUES (?, ?, ?, ?, ?, ?)
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

func (d *SaveToDuckDB) stageSegmented(ctx context.Context, tx *sql.Tx, dataset *processor.Dataset) error {
	staging := stagingName(TableSegmented)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("error dropping %s: %w", staging, err)
	}
	_, err := tx.ExecContext(ctx, `
        CREATE TABLE `+staging+` (
            customer_id   VARCHAR PRIMARY KEY,
            cluster_id    INTEGER,
            segment_label VARCHAR,
            projection_x  DOUBLE,
            projection_y  DOUBLE
        )
    `)
	if err != nil {
		return fmt.Errorf("error creating %s: %w", staging, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO `+staging+` (
            customer_id, cluster_id, segment_label, projection_x, projection_y
        ) VALUES (?, ?, ?, ?, ?)
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

func (d *SaveToDuckDB) stageCampaigns(ctx context.Context, tx *sql.Tx, dataset *processor.Dataset) error {
	staging := stagingName(TableCampaigns)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("error dropping %s: %w", staging, err)
	}
	_, err := tx.ExecContext(ctx, `
        CREATE TABLE `+staging+` (
            campaign_id          VARCHAR PRIMARY KEY,
            campaign_name        VARCHAR,
            campaign_type        VARCHAR,
            impressions          BIGINT,
            clicks               BIGINT,
            conversions          BIGINT,
            spend                DOUBLE,
            revenue              DOUBLE,
            click_through_rate   DOUBLE,
            cost_per_click       DOUBLE,
            conversion_rate      DOUBLE,
            return_on_investment DOUBLE
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
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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

func (d *SaveToDuckDB) insertRunReport(ctx context.Context, tx *sql.Tx, report *processor.RunReport) error {
	_, err := tx.ExecContext(ctx, `
        INSERT INTO pipeline_runs (
            run_id, started_at, finished_at, source_type, row_counts,
            quality_warnings, churn_metrics, satisfaction_metrics,
            churn_importance, satisfaction_importance, elbow_curve,
            chosen_clusters, cluster_profiles, churn_degraded,
            satisfaction_degraded, segmentation_degraded
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
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

func (d *SaveToDuckDB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
