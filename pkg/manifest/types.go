package manifest

import "time"

// Manifest records the outcome of one completed pipeline run. The latest
// manifest is the pointer schedulers and operators consult to find the last
// good run without querying the output store.
type Manifest struct {
	// Version of the manifest format (for future compatibility)
	Version string `json:"version"`

	// Pipeline identification
	PipelineName string `json:"pipeline_name"`

	// Configuration hash to detect config changes between runs
	ConfigHash string `json:"config_hash"`

	// Run identification and timing
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Where the snapshot came from and how big it was
	SourceType string         `json:"source_type"`
	RowCounts  map[string]int `json:"row_counts"`

	// Output shape
	CustomersScored int `json:"customers_scored"`
	CampaignsScored int `json:"campaigns_scored"`

	// Degradations and data-quality findings surfaced during the run
	ChurnDegraded        bool `json:"churn_degraded"`
	SatisfactionDegraded bool `json:"satisfaction_degraded"`
	SegmentationDegraded bool `json:"segmentation_degraded"`
	QualityWarnings      int  `json:"quality_warnings"`

	// Metadata
	WrittenAt time.Time `json:"written_at"`
}

// ManifestVersion is the current manifest format version
const ManifestVersion = "1.0"
