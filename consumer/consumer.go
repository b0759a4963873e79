// Package consumer contains the sinks that materialize a finished dataset
// into external stores. Every consumer receives the enriched dataset message
// emitted by the processor chain and replaces the previous run's output
// atomically: the five output tables (customer_360_enriched,
// customer_360_predicted, customer_360_segmented, campaigns, pipeline_runs)
// are staged and swapped so readers never observe a half-written run.
package consumer

import (
	"context"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

// Consumer defines the interface for materializing messages.
type Consumer interface {
	Process(context.Context, processor.Message) error
	Subscribe(processor.Processor)
}

type ConsumerConfig struct {
	Type   string                 `yaml:"type"`
	Config map[string]interface{} `yaml:"config"`
}
