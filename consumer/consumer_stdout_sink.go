package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

// StdoutConsumer writes the finished run's report to stdout as JSON. Useful
// for dry runs and for piping a run summary into other tooling.
type StdoutConsumer struct{}

// NewStdoutConsumer creates a new StdoutConsumer instance.
func NewStdoutConsumer() *StdoutConsumer {
	return &StdoutConsumer{}
}

// Process implements the processor.Processor interface.
func (s *StdoutConsumer) Process(ctx context.Context, msg processor.Message) error {
	dataset, err := processor.DatasetFromMessage(msg)
	if err != nil {
		return err
	}

	output, err := json.MarshalIndent(dataset.Report, "", "  ")
	if err != nil {
		return fmt.Errorf("StdoutConsumer: error marshaling run report: %w", err)
	}

	_, err = os.Stdout.Write(append(output, '\n'))
	return err
}

// Subscribe implements the Processor interface.
// Since StdoutConsumer is a sink, this is a no-op.
func (s *StdoutConsumer) Subscribe(proc processor.Processor) {
	// no-op: StdoutConsumer doesn't subscribe to any downstream processor.
}
