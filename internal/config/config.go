// Package config loads and validates pipeline configuration files.
//
// The runner tolerates unknown keys so old configs keep working; this
// package is the strict counterpart used by `c360ctl config validate`
// and --dry-run, where a typo should surface before anything connects
// to a database.
package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level pipeline configuration file.
type Config struct {
	Pipelines map[string]Pipeline `yaml:"pipelines"`
}

// Pipeline describes one source-to-consumers chain.
type Pipeline struct {
	Name       string      `yaml:"name"`
	Source     Component   `yaml:"source"`
	Processors []Component `yaml:"processors"`
	Consumers  []Component `yaml:"consumers"`
}

// Component is a typed pipeline stage with its raw configuration block.
type Component struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

// Load reads and strictly decodes a pipeline configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes raw YAML into a Config. Unknown keys are rejected so a
// misspelled field fails here instead of silently defaulting at run time.
func Parse(data []byte) (*Config, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var cfg Config
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}
	if len(cfg.Pipelines) == 0 {
		return nil, fmt.Errorf("configuration has no pipelines: expected a top-level 'pipelines' map")
	}
	return &cfg, nil
}

// Example returns a complete configuration for a local CSV-to-SQLite run.
func Example() string {
	return `pipelines:
  Customer360:
    source:
      type: CSVSnapshotSourceAdapter
      config:
        base_path: "./data"
    processors:
      - type: CampaignMetrics
      - type: CustomerJoin
      - type: BehavioralFeatures
        config:
          churn_threshold_days: 180
      - type: TextIntelligence
      - type: PredictiveScoring
      - type: Segmentation
    consumers:
      - type: SaveToSQLite
        config:
          db_path: "./customer360.db"
      - type: SaveToParquet
        config:
          storage_type: "FS"
          local_path: "./exports"`
}
