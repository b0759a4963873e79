package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// StdoutSink is a processor that writes a run summary to stdout. Useful as a
// chain tail while debugging pipeline configurations.
type StdoutSink struct{}

// NewStdoutSink creates a new StdoutSink instance.
func NewStdoutSink() *StdoutSink {
	return &StdoutSink{}
}

// Process prints the run report when the payload is a dataset, otherwise the
// payload itself.
func (s *StdoutSink) Process(ctx context.Context, msg Message) error {
	var output []byte
	var err error

	switch payload := msg.Payload.(type) {
	case *Dataset:
		output, err = json.Marshal(payload.Report)
	case []byte:
		output = payload
	default:
		output, err = json.Marshal(payload)
	}
	if err != nil {
		return fmt.Errorf("StdoutSink: error marshaling payload: %w", err)
	}

	_, err = os.Stdout.Write(append(output, '\n'))
	return err
}

// Subscribe implements the Processor interface.
// Since StdoutSink is a sink, this is a no-op.
func (s *StdoutSink) Subscribe(proc Processor) {
	// no-op: StdoutSink is the final stage so it doesn't subscribe to any downstream processor.
}
