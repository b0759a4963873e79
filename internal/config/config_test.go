package config

import (
	"strings"
	"testing"
)

func TestParseExampleConfig(t *testing.T) {
	cfg, err := Parse([]byte(Example()))
	if err != nil {
		t.Fatalf("Failed to parse example config: %v", err)
	}

	pipeline, ok := cfg.Pipelines["Customer360"]
	if !ok {
		t.Fatalf("Expected pipeline 'Customer360', got %v", cfg.Pipelines)
	}

	if pipeline.Source.Type != "CSVSnapshotSourceAdapter" {
		t.Errorf("Expected source type 'CSVSnapshotSourceAdapter', got '%s'", pipeline.Source.Type)
	}
	if pipeline.Source.Config["base_path"] != "./data" {
		t.Errorf("Expected base_path './data', got %v", pipeline.Source.Config["base_path"])
	}

	if len(pipeline.Processors) != 6 {
		t.Errorf("Expected 6 processors, got %d", len(pipeline.Processors))
	}
	if pipeline.Processors[0].Type != "CampaignMetrics" {
		t.Errorf("Expected first processor 'CampaignMetrics', got '%s'", pipeline.Processors[0].Type)
	}

	if len(pipeline.Consumers) != 2 {
		t.Errorf("Expected 2 consumers, got %d", len(pipeline.Consumers))
	}
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	raw := `pipelines:
  Bad:
    source:
      type: CSVSnapshotSourceAdapter
      config:
        base_path: "./data"
    procesors:
      - type: CustomerJoin
`
	_, err := Parse([]byte(raw))
	if err == nil {
		t.Fatal("Expected error for misspelled 'procesors' key, got nil")
	}
	if !strings.Contains(err.Error(), "procesors") {
		t.Errorf("Expected error to name the unknown key, got: %v", err)
	}
}

func TestParseRequiresPipelines(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{name: "empty pipelines map", raw: "pipelines: {}\n"},
		{name: "wrong top-level key", raw: "source:\n  type: CSVSnapshotSourceAdapter\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.raw))
			if err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}
