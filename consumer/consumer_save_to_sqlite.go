package consumer

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

type SaveToSQLite struct {
	db         *sql.DB
	processors []processor.Processor
}

func NewSaveToSQLite(config map[string]interface{}) (*SaveToSQLite, error) {
	dbPath, ok := config["db_path"].(string)
	if !ok || dbPath == "" {
		return nil, fmt.Errorf("missing db_path in config")
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite: %w", err)
	}

	if err := initializeSQLiteTables(db); err != nil {
		return nil, err
	}

	return &SaveToSQLite{db: db}, nil
}

// Only pipeline_runs is created up front: it accumulates one row per run.
// The output tables are rebuilt from staging twins on every run.
func initializeSQLiteTables(db *sql.DB) error {
	_, err := db.Exec(`
        CREATE TABLE IF NOT EXISTS pipeline_runs (
            run_id                   TEXT PRIMARY KEY,
            started_at               TIMESTAMP,
            finished_at              TIMESTAMP,
            source_type              TEXT,
            row_counts               TEXT,
            quality_warnings         TEXT,
            churn_metrics            TEXT,
            satisfaction_metrics     TEXT,
            churn_importance         TEXT,
            satisfaction_importance  TEXT,
            elbow_curve              TEXT,
            chosen_clusters          INTEGER,
            cluster_profiles         TEXT,
            churn_degraded           INTEGER,
            satisfaction_degraded    INTEGER,
            segmentation_degraded    INTEGER
        )
    `)
	if err != nil {
		return fmt.Errorf("failed to create pipeline_runs table: %w", err)
	}
	return nil
}

func (s *SaveToSQLite) Subscribe(receiver processor.Processor) {
	s.processors = append(s.processors, receiver)
}

func (s *SaveToSQLite) Process(ctx context.Context, msg processor.Message) error {
	dataset, err := processor.DatasetFromMessage(msg)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error starting transaction: %w", err)
	}
	defer tx.Rollback() // Will be ignored if transaction is committed

	if err := s.stageEnriched(ctx, tx, dataset); err != nil {
		return err
	}
	if err := s.stagePredicted(ctx, tx, dataset); err != nil {
		return err
	}
	if err := s.stageSegmented(ctx, tx, dataset); err != nil {
		return err
	}
	if err := s.stageCampaigns(ctx, tx, dataset); err != nil {
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

	if err := s.insertRunReport(ctx, tx, dataset.Report); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	log.Printf("SaveToSQLite: materialized %d customers, %d campaigns (run %s)",
		len(dataset.Customers), len(dataset.Campaigns), dataset.Report.RunID)
	return nil
}

func (s *SaveToSQLite) stageEnriched(ctx context.Context, tx *sql.Tx, dataset *processor.Dataset) error {
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
            signup_date          TIMESTAMP,
            preferred_category   TEXT,
            recency_days         INTEGER,
            frequency_count      INTEGER,
            monetary_total       REAL,
            has_transaction      INTEGER,
            engagement_index     REAL,
            satisfaction_index   REAL,
            total_tickets        INTEGER,
            avg_resolution_hours REAL,
            avg_rating           REAL,
            sentiment_score      REAL,
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

func (s *SaveToSQLite) stagePredicted(ctx context.Context, tx *sql.Tx, dataset *processor.Dataset) error {
	staging := stagingName(TablePredicted)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("error dropping %s: %w", staging, err)
	}
	_, err := tx.ExecContext(ctx, `
        CREATE TABLE `+staging+` (
            customer_id              TEXT PRIMARY KEY,
            churn_probability        REAL,
            churn_flag               INTEGER,
            predicted_satisfaction   REAL,
            churn_attribution        TEXT,
            satisfaction_attribution TEXT
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

func (s *SaveToSQLite) stageSegmented(ctx context.Context, tx *sql.Tx, dataset *processor.Dataset) error {
	staging := stagingName(TableSegmented)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("error dropping %s: %w", staging, err)
	}
	_, err := tx.ExecContext(ctx, `
        CREATE TABLE `+staging+` (
            customer_id   TEXT PRIMARY KEY,
            cluster_id    INTEGER,
            segment_label TEXT,
            projection_x  REAL,
            projection_y  REAL
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

func (s *SaveToSQLite) stageCampaigns(ctx context.Context, tx *sql.Tx, dataset *processor.Dataset) error {
	staging := stagingName(TableCampaigns)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+staging); err != nil {
		return fmt.Errorf("error dropping %s: %w", staging, err)
	}
	_, err := tx.ExecContext(ctx, `
        CREATE TABLE `+staging+` (
            campaign_id          TEXT PRIMARY KEY,
            campaign_name        TEXT,
            campaign_type        TEXT,
            impressions          INTEGER,
            clicks               INTEGER,
            conversions          INTEGER,
            spend                REAL,
            revenue              REAL,
            click_through_rate   REAL,
            cost_per_click       REAL,
            conversion_rate      REAL,
            return_on_investment REAL
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

func (s *SaveToSQLite) insertRunReport(ctx context.Context, tx *sql.Tx, report *processor.RunReport) error {
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

func (s *SaveToSQLite) Close() error {
	return s.db.Close()
}
