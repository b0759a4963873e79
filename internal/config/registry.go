package config

import "sort"

// ComponentKind distinguishes sources, processors and consumers.
type ComponentKind string

const (
	KindSource    ComponentKind = "source"
	KindProcessor ComponentKind = "processor"
	KindConsumer  ComponentKind = "consumer"
)

// ComponentInfo describes one registered pipeline component.
type ComponentInfo struct {
	Kind        ComponentKind
	Description string
	// RequiredKeys are config keys the constructor rejects when absent.
	RequiredKeys []string
	// Upstream lists processor types that must run earlier in the chain
	// for this one to see the fields it reads.
	Upstream []string
}

// registry mirrors the factory switches in the entry points. A type added
// there without a row here fails `config validate` for no reason, so keep
// the two in sync.
var registry = map[string]ComponentInfo{
	// Sources
	"CSVSnapshotSourceAdapter": {
		Kind:         KindSource,
		Description:  "Loads the six raw relations from <relation>.csv files in a directory",
		RequiredKeys: []string{"base_path"},
	},
	"SQLiteSnapshotSourceAdapter": {
		Kind:         KindSource,
		Description:  "Loads the six raw relations from tables in a SQLite database",
		RequiredKeys: []string{"db_path"},
	},
	"S3SnapshotSourceAdapter": {
		Kind:         KindSource,
		Description:  "Loads the six raw relations from CSV objects in an S3 bucket",
		RequiredKeys: []string{"bucket_name"},
	},
	"GCSSnapshotSourceAdapter": {
		Kind:         KindSource,
		Description:  "Loads the six raw relations from CSV objects in a GCS bucket",
		RequiredKeys: []string{"bucket_name"},
	},

	// Processors
	"CampaignMetrics": {
		Kind:        KindProcessor,
		Description: "Derives click-through rate, cost per click, conversion rate and ROI per campaign",
	},
	"CustomerJoin": {
		Kind:        KindProcessor,
		Description: "Resolves customer identities and joins the six relations into one record per customer",
	},
	"BehavioralFeatures": {
		Kind:        KindProcessor,
		Description: "Computes RFM, engagement, satisfaction and churn-flag features per customer",
		Upstream:    []string{"CustomerJoin"},
	},
	"TextIntelligence": {
		Kind:        KindProcessor,
		Description: "Scores review sentiment and assigns each customer a dominant topic",
		Upstream:    []string{"CustomerJoin"},
	},
	"PredictiveScoring": {
		Kind:        KindProcessor,
		Description: "Trains churn and satisfaction models, scores every customer with attributions",
		Upstream:    []string{"BehavioralFeatures", "TextIntelligence"},
	},
	"Segmentation": {
		Kind:        KindProcessor,
		Description: "Clusters customers, projects them to two dimensions and labels the segments",
		Upstream:    []string{"BehavioralFeatures", "TextIntelligence"},
	},
	"StdoutSink": {
		Kind:        KindProcessor,
		Description: "Prints a dataset summary between stages for debugging",
	},

	// Consumers
	"SaveToSQLite": {
		Kind:         KindConsumer,
		Description:  "Materializes the output tables in a SQLite database",
		RequiredKeys: []string{"db_path"},
	},
	"SaveToPostgreSQL": {
		Kind:         KindConsumer,
		Description:  "Materializes the output tables in a PostgreSQL database",
		RequiredKeys: []string{"host", "database", "username", "password"},
	},
	"SaveToDuckDB": {
		Kind:        KindConsumer,
		Description: "Materializes the output tables in a DuckDB database",
	},
	"SaveToClickHouse": {
		Kind:         KindConsumer,
		Description:  "Materializes the output tables in ClickHouse via staging-table exchange",
		RequiredKeys: []string{"address", "database", "username", "password"},
	},
	"SaveToMongoDB": {
		Kind:         KindConsumer,
		Description:  "Materializes the output collections in MongoDB via staging renames",
		RequiredKeys: []string{"uri", "database"},
	},
	"SaveToRedis": {
		Kind:         KindConsumer,
		Description:  "Writes run-scoped customer hashes to Redis and flips the current_run pointer",
		RequiredKeys: []string{"address"},
	},
	"SaveToExcel": {
		Kind:         KindConsumer,
		Description:  "Writes the output tables as sheets of one Excel workbook",
		RequiredKeys: []string{"file_path"},
	},
	"SaveToParquet": {
		Kind:         KindConsumer,
		Description:  "Writes per-run Parquet files to local disk, GCS or S3",
		RequiredKeys: []string{"storage_type"},
	},
	"NotificationDispatcher": {
		Kind:         KindConsumer,
		Description:  "Alerts Slack, email or webhooks when a run metric crosses a threshold",
		RequiredKeys: []string{"rules"},
	},
	"SaveRunManifest": {
		Kind:         KindConsumer,
		Description:  "Records the completed run in an atomically-replaced manifest file",
		RequiredKeys: []string{"directory"},
	},
	"StdoutConsumer": {
		Kind:        KindConsumer,
		Description: "Prints the run report as indented JSON",
	},
}

// Describe returns the registry entry for a component type.
func Describe(componentType string) (ComponentInfo, bool) {
	info, ok := registry[componentType]
	return info, ok
}

// Names returns the registered type names of one kind, sorted.
func Names(kind ComponentKind) []string {
	var names []string
	for name, info := range registry {
		if info.Kind == kind {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
