package processor

import (
	"context"
	"log"
	"time"

	"github.com/meridianlabs/customer360-pipeline/utils"
)

// BehavioralFeaturesProcessor computes the behavioral feature set per unified
// customer: RFM (recency_days, frequency_count, monetary_total), the weighted
// engagement index over a lookback window, the satisfaction index with
// global-mean imputation for zero-ticket customers, support and review
// aggregates, and the churn flag. The stage is deterministic: identical
// inputs and reference date reproduce the output bit for bit.
type BehavioralFeaturesProcessor struct {
	processors []Processor
	opts       RunOptions
}

func NewBehavioralFeaturesProcessor(config map[string]interface{}) (*BehavioralFeaturesProcessor, error) {
	opts, err := ParseRunOptions(config)
	if err != nil {
		return nil, err
	}
	return &BehavioralFeaturesProcessor{opts: opts}, nil
}

func (p *BehavioralFeaturesProcessor) Subscribe(processor Processor) {
	p.processors = append(p.processors, processor)
}

func (p *BehavioralFeaturesProcessor) Process(ctx context.Context, msg Message) error {
	dataset, err := DatasetFromMessage(msg)
	if err != nil {
		return err
	}
	stats := dataset.Stats
	stats.ReferenceDate = p.opts.ReferenceDate

	// First pass: recency for customers with transactions, tracking the
	// maximum observed value for the no-transaction sentinel.
	maxRecency := int64(0)
	futureRows := 0
	for i := range dataset.Customers {
		record := &dataset.Customers[i]
		if len(record.Transactions) == 0 {
			continue
		}

		latest := record.Transactions[0].OccurredAt
		for _, tx := range record.Transactions[1:] {
			if tx.OccurredAt.After(latest) {
				latest = tx.OccurredAt
			}
		}

		days := utils.WholeDaysBetween(latest, p.opts.ReferenceDate)
		if days < 0 {
			futureRows++
			days = 0
		}
		record.RecencyDays = days
		record.HasTransaction = true
		if days > maxRecency {
			maxRecency = days
		}
	}
	if futureRows > 0 {
		warning := "transactions dated after reference_date, recency clamped to 0"
		log.Printf("BehavioralFeaturesProcessor: %d customers with %s", futureRows, warning)
		dataset.Report.AddQualityWarning(warning)
	}
	stats.MaxObservedRecency = maxRecency

	// Customers with no transactions are maximally stale, never null.
	sentinel := maxRecency + 1
	windowStart := p.opts.ReferenceDate.AddDate(0, 0, -p.opts.EngagementLookbackDays)

	for i := range dataset.Customers {
		record := &dataset.Customers[i]

		if !record.HasTransaction {
			record.RecencyDays = sentinel
		}
		record.FrequencyCount = int64(len(record.Transactions))
		for _, tx := range record.Transactions {
			record.MonetaryTotal += tx.Amount.Float64
		}

		record.EngagementIndex = p.engagementIndex(record.Interactions, windowStart)
		record.SatisfactionIndex = p.satisfactionIndex(record.Tickets, stats)
		record.TotalTickets = int64(len(record.Tickets))
		record.AvgResolutionHours = p.avgResolutionHours(record.Tickets, stats)
		record.AvgRating = p.avgRating(record.Reviews, stats)

		if record.RecencyDays > int64(p.opts.ChurnThresholdDays) {
			record.ChurnFlag = 1
		}
	}

	log.Printf("BehavioralFeaturesProcessor: scored %d customers (reference %s, churn threshold %d days, max recency %d)",
		len(dataset.Customers), p.opts.ReferenceDate.Format("2006-01-02"), p.opts.ChurnThresholdDays, maxRecency)

	return ForwardToProcessors(ctx, dataset, p.processors)
}

// engagementIndex is the weighted count of interaction events inside the
// lookback window ending at the reference date (inclusive of that whole day).
func (p *BehavioralFeaturesProcessor) engagementIndex(interactions []RawInteraction, windowStart time.Time) float64 {
	windowEnd := p.opts.ReferenceDate.AddDate(0, 0, 1)
	index := 0.0
	for _, event := range interactions {
		if event.OccurredAt.Before(windowStart) || !event.OccurredAt.Before(windowEnd) {
			continue
		}
		index += p.opts.EngagementWeight(event.EventType)
	}
	return index
}

// satisfactionIndex averages rated support tickets; customers with none fall
// back to the dataset-wide mean so downstream models see no artificial zeros.
func (p *BehavioralFeaturesProcessor) satisfactionIndex(tickets []RawSupportTicket, stats *DatasetStats) float64 {
	sum := 0.0
	rated := 0
	for _, ticket := range tickets {
		if ticket.SatisfactionRating.Valid {
			sum += float64(ticket.SatisfactionRating.Int64)
			rated++
		}
	}
	if rated == 0 {
		return stats.GlobalMeanSatisfaction
	}
	return sum / float64(rated)
}

func (p *BehavioralFeaturesProcessor) avgResolutionHours(tickets []RawSupportTicket, stats *DatasetStats) float64 {
	sum := 0.0
	resolved := 0
	for _, ticket := range tickets {
		if ticket.ResolvedAt.Valid {
			sum += resolutionHours(ticket.OpenedAt, ticket.ResolvedAt.Time)
			resolved++
		}
	}
	if resolved == 0 {
		return stats.MedianResolutionHours
	}
	return sum / float64(resolved)
}

func (p *BehavioralFeaturesProcessor) avgRating(reviews []RawReview, stats *DatasetStats) float64 {
	if len(reviews) == 0 {
		return stats.MedianReviewRating
	}
	sum := 0.0
	for _, review := range reviews {
		sum += float64(review.Rating.Int64)
	}
	return sum / float64(len(reviews))
}
