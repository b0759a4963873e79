package processor

import (
	"context"
	"fmt"
	"time"
)

// Processor defines the interface for processing messages.
type Processor interface {
	Process(context.Context, Message) error
	Subscribe(Processor)
}

type ProcessorConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}

// Message encapsulates the payload to be processed with optional metadata.
type Message struct {
	Payload  interface{}            `json:"payload"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SnapshotSourceMetadata describes where the raw snapshot was loaded from.
type SnapshotSourceMetadata struct {
	SourceType string         `json:"source_type"` // "FS", "SQLITE", "S3", "GCS"
	BucketName string         `json:"bucket_name,omitempty"`
	Path       string         `json:"path"`
	RowCounts  map[string]int `json:"row_counts"`
	LoadedAt   time.Time      `json:"loaded_at"`
}

// GetSnapshotMetadata extracts snapshot source metadata from the message.
func (m *Message) GetSnapshotMetadata() (*SnapshotSourceMetadata, bool) {
	if m.Metadata == nil {
		return nil, false
	}

	data, exists := m.Metadata["snapshot_source"]
	if !exists {
		return nil, false
	}

	if meta, ok := data.(*SnapshotSourceMetadata); ok {
		return meta, true
	}

	return nil, false
}

// DatasetFromMessage extracts the *Dataset payload carried through the chain.
func DatasetFromMessage(msg Message) (*Dataset, error) {
	dataset, ok := msg.Payload.(*Dataset)
	if !ok {
		return nil, fmt.Errorf("expected *Dataset payload, got %T", msg.Payload)
	}
	if dataset.Snapshot == nil {
		return nil, fmt.Errorf("dataset payload carries no snapshot")
	}
	return dataset, nil
}

// ForwardToProcessors forwards the payload to all downstream processors.
func ForwardToProcessors(ctx context.Context, payload interface{}, processors []Processor) error {
	for _, processor := range processors {
		if err := processor.Process(ctx, Message{Payload: payload}); err != nil {
			return fmt.Errorf("error in processor chain: %w", err)
		}
	}

	return nil
}
