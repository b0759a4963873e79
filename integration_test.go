//go:build integration
// +build integration

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridianlabs/customer360-pipeline/consumer"
	"github.com/meridianlabs/customer360-pipeline/pkg/source"
	"github.com/meridianlabs/customer360-pipeline/processor"

	_ "github.com/mattn/go-sqlite3"
)

const referenceDate = "2025-06-01"

// writeSnapshotCSVs lays down a six-relation snapshot with enough customers
// for model training: 30 customers, half of them stale past the churn
// threshold, plus one scripted customer (C-SCN) with 3 transactions
// totaling 450 whose most recent purchase is 200 days before the reference
// date.
func writeSnapshotCSVs(t *testing.T, dir string) {
	t.Helper()

	var customers strings.Builder
	customers.WriteString("customer_id,city,gender,age_band,signup_date,preferences\n")
	var transactions strings.Builder
	transactions.WriteString("transaction_id,customer_id,occurred_at,amount,category\n")
	var tickets strings.Builder
	tickets.WriteString("ticket_id,customer_id,opened_at,resolved_at,satisfaction_rating,notes\n")
	var reviews strings.Builder
	reviews.WriteString("review_id,customer_id,category,rating,body\n")
	var interactions strings.Builder
	interactions.WriteString("customer_id,event_type,occurred_at\n")

	for i := 0; i < 30; i++ {
		id := fmt.Sprintf("C-%02d", i)
		fmt.Fprintf(&customers, "%s,Lisbon,female,25-34,2023-01-15,\"{\"\"categories\"\":[\"\"books\"\"]}\"\n", id)

		// Even customers purchased recently, odd ones are stale.
		when := "2025-05-20"
		if i%2 == 1 {
			when = "2024-09-01"
		}
		fmt.Fprintf(&transactions, "T-%02d,%s,%s,%d.50,books\n", i, id, when, 20+i)

		if i%3 == 0 {
			fmt.Fprintf(&tickets, "K-%02d,%s,2025-04-01,2025-04-02,%d,slow delivery but helpful support\n", i, id, 1+i%5)
			fmt.Fprintf(&reviews, "R-%02d,%s,books,%d,great quality and fast shipping\n", i, id, 1+i%5)
		}
		if i%2 == 0 {
			fmt.Fprintf(&interactions, "%s,page_view,2025-05-%02d\n", id, 1+i%28)
		}
	}

	// Scripted RFM scenario customer.
	customers.WriteString("C-SCN,Porto,male,35-44,2022-06-01,\n")
	transactions.WriteString("T-SCN-1,C-SCN,2024-11-13,100,books\n")  // 200 days before reference
	transactions.WriteString("T-SCN-2,C-SCN,2024-10-01,150,books\n")
	transactions.WriteString("T-SCN-3,C-SCN,2024-08-01,200,books\n")

	campaigns := "campaign_id,campaign_name,campaign_type,impressions,clicks,conversions,spend,revenue\n" +
		"CAMP-1,Spring,email,1000,50,10,100,500\n"

	files := map[string]string{
		"customers.csv":       customers.String(),
		"transactions.csv":    transactions.String(),
		"support_tickets.csv": tickets.String(),
		"campaigns.csv":       campaigns,
		"reviews.csv":         reviews.String(),
		"interactions.csv":    interactions.String(),
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
}

// runPipeline executes the full chain from CSV snapshot to SQLite output
// and returns the output database path.
func runPipeline(t *testing.T, snapshotDir, dbDir string) string {
	t.Helper()

	dbPath := filepath.Join(dbDir, "customer360.db")
	stageConfig := map[string]interface{}{
		"reference_date": referenceDate,
		"random_seed":    42,
		"cluster_count":  3,
		"topic_count":    3,
	}

	src, err := source.NewCSVSnapshotSourceAdapter(map[string]interface{}{"base_path": snapshotDir})
	require.NoError(t, err)

	var processors []processor.Processor
	for _, typ := range []string{"CampaignMetrics", "CustomerJoin", "BehavioralFeatures", "TextIntelligence", "PredictiveScoring", "Segmentation"} {
		proc, err := createProcessor(processor.ProcessorConfig{Type: typ, Config: stageConfig})
		require.NoError(t, err)
		processors = append(processors, proc)
	}

	sink, err := consumer.NewSaveToSQLite(map[string]interface{}{"db_path": dbPath})
	require.NoError(t, err)

	for i := 0; i < len(processors)-1; i++ {
		processors[i].Subscribe(processors[i+1])
	}
	processors[len(processors)-1].Subscribe(sink)
	src.Subscribe(processors[0])

	require.NoError(t, src.Run(context.Background()))
	require.NoError(t, sink.Close())
	return dbPath
}

func TestIntegration_SnapshotToSQLite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	snapshotDir := t.TempDir()
	writeSnapshotCSVs(t, snapshotDir)
	dbPath := runPipeline(t, snapshotDir, t.TempDir())

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	// Join completeness: one enriched row per distinct raw customer.
	var enrichedCount int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM customer_360_enriched").Scan(&enrichedCount))
	assert.Equal(t, 31, enrichedCount)

	// recency_days >= 0 and churn_flag tracks the threshold everywhere.
	var violations int
	require.NoError(t, db.QueryRow(`
		SELECT COUNT(*) FROM customer_360_enriched
		WHERE recency_days < 0
		   OR (churn_flag = 1) != (recency_days > 180)`).Scan(&violations))
	assert.Zero(t, violations)

	// Sentiment stays in [-1, 1]; customers without text are neutral with
	// topic "none".
	require.NoError(t, db.QueryRow(`
		SELECT COUNT(*) FROM customer_360_enriched
		WHERE sentiment_score < -1 OR sentiment_score > 1`).Scan(&violations))
	assert.Zero(t, violations)
	require.NoError(t, db.QueryRow(`
		SELECT COUNT(*) FROM customer_360_enriched
		WHERE dominant_topic = 'none' AND sentiment_score != 0`).Scan(&violations))
	assert.Zero(t, violations)

	// Scripted RFM scenario.
	var frequency, recency, churn int
	var monetary float64
	require.NoError(t, db.QueryRow(`
		SELECT frequency_count, recency_days, churn_flag, monetary_total
		FROM customer_360_enriched WHERE customer_id = 'C-SCN'`).
		Scan(&frequency, &recency, &churn, &monetary))
	assert.Equal(t, 3, frequency)
	assert.Equal(t, 200, recency)
	assert.Equal(t, 1, churn)
	assert.Equal(t, 450.0, monetary)

	// Every customer is predicted and segmented exactly once, with cluster
	// ids inside [0, k).
	var predictedCount, segmentedCount int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM customer_360_predicted").Scan(&predictedCount))
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM customer_360_segmented").Scan(&segmentedCount))
	assert.Equal(t, enrichedCount, predictedCount)
	assert.Equal(t, enrichedCount, segmentedCount)
	require.NoError(t, db.QueryRow(`
		SELECT COUNT(*) FROM customer_360_segmented
		WHERE cluster_id IS NULL OR cluster_id < 0 OR cluster_id >= 3`).Scan(&violations))
	assert.Zero(t, violations)

	// Churn probabilities are calibrated scores.
	require.NoError(t, db.QueryRow(`
		SELECT COUNT(*) FROM customer_360_predicted
		WHERE churn_probability < 0 OR churn_probability > 1`).Scan(&violations))
	assert.Zero(t, violations)

	// Campaign math from the snapshot row.
	var ctr, cpc, roi float64
	require.NoError(t, db.QueryRow(`
		SELECT click_through_rate, cost_per_click, return_on_investment
		FROM campaigns WHERE campaign_id = 'CAMP-1'`).Scan(&ctr, &cpc, &roi))
	assert.Equal(t, 0.05, ctr)
	assert.Equal(t, 2.0, cpc)
	assert.Equal(t, 5.0, roi)

	// The run is recorded.
	var runs int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM pipeline_runs").Scan(&runs))
	assert.Equal(t, 1, runs)
}

func TestIntegration_RerunIsReproducible(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	snapshotDir := t.TempDir()
	writeSnapshotCSVs(t, snapshotDir)

	firstPath := runPipeline(t, snapshotDir, t.TempDir())
	secondPath := runPipeline(t, snapshotDir, t.TempDir())

	first, err := sql.Open("sqlite3", firstPath)
	require.NoError(t, err)
	defer first.Close()
	second, err := sql.Open("sqlite3", secondPath)
	require.NoError(t, err)
	defer second.Close()

	dump := func(db *sql.DB, query string) []string {
		rows, err := db.Query(query)
		require.NoError(t, err)
		defer rows.Close()

		var out []string
		for rows.Next() {
			var line string
			require.NoError(t, rows.Scan(&line))
			out = append(out, line)
		}
		require.NoError(t, rows.Err())
		return out
	}

	enrichedQuery := `
		SELECT customer_id || '|' || recency_days || '|' || frequency_count || '|' ||
		       monetary_total || '|' || engagement_index || '|' || satisfaction_index || '|' ||
		       sentiment_score || '|' || dominant_topic || '|' || churn_flag
		FROM customer_360_enriched ORDER BY customer_id`
	assert.Equal(t, dump(first, enrichedQuery), dump(second, enrichedQuery),
		"enriched relation must be byte-identical across reruns")

	segmentedQuery := `
		SELECT customer_id || '|' || cluster_id || '|' || segment_label || '|' ||
		       projection_x || '|' || projection_y
		FROM customer_360_segmented ORDER BY customer_id`
	assert.Equal(t, dump(first, segmentedQuery), dump(second, segmentedQuery),
		"segmented relation must be byte-identical across reruns")
}
