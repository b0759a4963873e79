package consumer

import (
	"context"
	"fmt"
	"log"

	"github.com/meridianlabs/customer360-pipeline/pkg/manifest"
	"github.com/meridianlabs/customer360-pipeline/processor"
)

// SaveRunManifest records each completed run in a manifest directory so
// schedulers and operators can find the last good run without querying the
// output store. The latest-run pointer is replaced atomically.
type SaveRunManifest struct {
	manager    *manifest.Manager
	processors []processor.Processor
}

func NewSaveRunManifest(config map[string]interface{}) (*SaveRunManifest, error) {
	directory, ok := config["directory"].(string)
	if !ok || directory == "" {
		return nil, fmt.Errorf("missing manifest directory")
	}

	pipelineName, ok := config["pipeline_name"].(string)
	if !ok || pipelineName == "" {
		pipelineName = "customer360"
	}

	manager, err := manifest.NewManager(directory, pipelineName, config)
	if err != nil {
		return nil, err
	}

	return &SaveRunManifest{manager: manager}, nil
}

func (s *SaveRunManifest) Subscribe(p processor.Processor) {
	s.processors = append(s.processors, p)
}

func (s *SaveRunManifest) Process(ctx context.Context, msg processor.Message) error {
	dataset, err := processor.DatasetFromMessage(msg)
	if err != nil {
		return err
	}

	report := dataset.Report
	if report == nil {
		return fmt.Errorf("dataset carries no run report")
	}

	entry := manifest.Manifest{
		RunID:                report.RunID,
		StartedAt:            report.StartedAt,
		FinishedAt:           finishedAt(report),
		SourceType:           report.SourceType,
		RowCounts:            report.RowCounts,
		CustomersScored:      len(dataset.Customers),
		CampaignsScored:      len(dataset.Campaigns),
		ChurnDegraded:        report.ChurnDegraded,
		SatisfactionDegraded: report.SatisfactionDegraded,
		SegmentationDegraded: report.SegmentationDegraded,
		QualityWarnings:      len(report.QualityWarnings),
	}

	if err := s.manager.Record(entry); err != nil {
		return fmt.Errorf("failed to record run manifest: %w", err)
	}
	log.Printf("SaveRunManifest: recorded run %s (%d customers)", report.RunID, len(dataset.Customers))

	return processor.ForwardToProcessors(ctx, dataset, s.processors)
}
