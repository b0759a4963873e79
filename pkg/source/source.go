// Package source provides the snapshot source adapters that load the six
// raw relations (customers, transactions, support_tickets, campaigns,
// reviews, interactions) from a storage backend, validate their schemas,
// and emit a single dataset message into the processor chain.
package source

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

// SourceAdapter is implemented by every snapshot source.
type SourceAdapter interface {
	Run(context.Context) error
	Subscribe(processor.Processor)
}

// relationWarnings keeps per-relation parse warnings so the merged report
// ordering stays independent of goroutine scheduling.
type relationWarnings struct {
	customers    []string
	transactions []string
	tickets      []string
	campaigns    []string
	reviews      []string
	interactions []string
}

func (w *relationWarnings) merged() []string {
	var out []string
	out = append(out, w.customers...)
	out = append(out, w.transactions...)
	out = append(out, w.tickets...)
	out = append(out, w.campaigns...)
	out = append(out, w.reviews...)
	out = append(out, w.interactions...)
	return out
}

// emitSnapshot wraps the snapshot into a fresh dataset and forwards it with
// source metadata attached. Shared by every snapshot source adapter.
func emitSnapshot(ctx context.Context, snapshot *processor.Snapshot, warnings *relationWarnings, processors []processor.Processor, meta *processor.SnapshotSourceMetadata) error {
	dataset := processor.NewDataset(snapshot, meta.SourceType, time.Now().UTC(), uuid.New().String())
	for _, warning := range warnings.merged() {
		log.Printf("snapshot source: %s", warning)
		dataset.Report.AddQualityWarning(warning)
	}

	counts := snapshot.RowCounts()
	log.Printf("snapshot source %s: loaded %d customers, %d transactions, %d tickets, %d campaigns, %d reviews, %d interactions (run %s)",
		meta.SourceType,
		counts[processor.RelationCustomers],
		counts[processor.RelationTransactions],
		counts[processor.RelationSupportTickets],
		counts[processor.RelationCampaigns],
		counts[processor.RelationReviews],
		counts[processor.RelationInteractions],
		dataset.Report.RunID)

	msg := processor.Message{
		Payload:  dataset,
		Metadata: map[string]interface{}{"snapshot_source": meta},
	}
	for _, proc := range processors {
		if err := proc.Process(ctx, msg); err != nil {
			return errors.Wrap(err, "error in processor chain")
		}
	}
	return nil
}
