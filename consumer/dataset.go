package consumer

import (
	"encoding/json"
	"time"

	"github.com/guregu/null"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

// Names of the materialized output tables. Every store-backed consumer
// produces the same five tables so downstream readers can switch stores
// without schema changes.
const (
	TableEnriched  = "customer_360_enriched"
	TablePredicted = "customer_360_predicted"
	TableSegmented = "customer_360_segmented"
	TableCampaigns = "campaigns"
	TableRuns      = "pipeline_runs"
)

// stagingName returns the staging twin a consumer writes into before the
// atomic swap.
func stagingName(table string) string {
	return table + "__staging"
}

// toJSON renders report fragments and attribution maps for storage in text
// columns. encoding/json sorts map keys, so rendered output is stable
// across runs.
func toJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}

// finishedAt pins the run completion timestamp at materialization time.
func finishedAt(report *processor.RunReport) time.Time {
	if report != nil && !report.FinishedAt.IsZero() {
		return report.FinishedAt
	}
	return time.Now().UTC()
}

// The null* helpers convert optional values into driver-friendly arguments:
// invalid values become SQL NULLs instead of zero values.

func nullFloatArg(v null.Float) interface{} {
	if !v.Valid {
		return nil
	}
	return v.Float64
}

func nullIntArg(v null.Int) interface{} {
	if !v.Valid {
		return nil
	}
	return v.Int64
}

func nullTimeArg(v null.Time) interface{} {
	if !v.Valid {
		return nil
	}
	return v.Time
}
