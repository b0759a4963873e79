package processor

import (
	"context"
	"testing"
	"time"

	"github.com/guregu/null"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// behavioralDataset builds unified customers the way the join stage leaves
// them: children grouped, stats computed, features still zero.
func behavioralDataset() *Dataset {
	dataset := testDataset(&Snapshot{})
	dataset.Stats = &DatasetStats{
		MedianAmount:           100,
		MedianReviewRating:     3,
		MedianResolutionHours:  6,
		GlobalMeanSatisfaction: 3.4,
	}
	dataset.Customers = []CustomerRecord{
		{
			CustomerID: "C-1",
			Transactions: []RawTransaction{
				{TransactionID: "T-1", CustomerID: "C-1", OccurredAt: day(2023, 9, 1), Amount: null.FloatFrom(100)},
				{TransactionID: "T-2", CustomerID: "C-1", OccurredAt: day(2023, 10, 1), Amount: null.FloatFrom(150)},
				{TransactionID: "T-3", CustomerID: "C-1", OccurredAt: day(2023, 11, 14), Amount: null.FloatFrom(200)},
			},
			Tickets: []RawSupportTicket{
				{TicketID: "S-1", CustomerID: "C-1", OpenedAt: day(2024, 1, 1),
					ResolvedAt:         null.TimeFrom(day(2024, 1, 1).Add(4 * time.Hour)),
					SatisfactionRating: null.IntFrom(5)},
				{TicketID: "S-2", CustomerID: "C-1", OpenedAt: day(2024, 2, 1),
					SatisfactionRating: null.IntFrom(3)},
			},
		},
		{
			CustomerID: "C-2",
			Transactions: []RawTransaction{
				{TransactionID: "T-4", CustomerID: "C-2", OccurredAt: day(2024, 5, 22), Amount: null.FloatFrom(50)},
			},
			Reviews: []RawReview{
				{ReviewID: "R-1", CustomerID: "C-2", Rating: null.IntFrom(4)},
				{ReviewID: "R-2", CustomerID: "C-2", Rating: null.IntFrom(5)},
			},
			Interactions: []RawInteraction{
				{CustomerID: "C-2", EventType: "page_view", OccurredAt: day(2024, 1, 15)},
				{CustomerID: "C-2", EventType: "purchase", OccurredAt: day(2024, 3, 1)},
				{CustomerID: "C-2", EventType: "page_view", OccurredAt: day(2024, 6, 1).Add(12 * time.Hour)},
				{CustomerID: "C-2", EventType: "page_view", OccurredAt: day(2023, 1, 1)}, // outside lookback
			},
		},
		{CustomerID: "C-3"},
	}
	return dataset
}

// TestBehavioralFeaturesProcessor_Process tests RFM, engagement, satisfaction
// and churn flagging against hand-computed values
func TestBehavioralFeaturesProcessor_Process(t *testing.T) {
	newProcessor := func(t *testing.T) *BehavioralFeaturesProcessor {
		t.Helper()
		p, err := NewBehavioralFeaturesProcessor(map[string]interface{}{
			"reference_date":     "2024-06-01",
			"engagement_weights": map[string]interface{}{"purchase": 3},
		})
		require.NoError(t, err)
		return p
	}

	t.Run("computes rfm and churn flags", func(t *testing.T) {
		processor := newProcessor(t)
		mock := NewMockProcessor()
		processor.Subscribe(mock)

		dataset := behavioralDataset()
		err := processor.Process(context.Background(), Message{Payload: dataset})
		require.NoError(t, err)

		// 2023-11-14 is 200 whole days before the reference date.
		active := dataset.Customers[0]
		assert.Equal(t, int64(200), active.RecencyDays)
		assert.Equal(t, int64(3), active.FrequencyCount)
		assert.InDelta(t, 450.0, active.MonetaryTotal, 1e-12)
		assert.True(t, active.HasTransaction)
		assert.Equal(t, int64(1), active.ChurnFlag, "200 days exceeds the 180 day threshold")

		recent := dataset.Customers[1]
		assert.Equal(t, int64(10), recent.RecencyDays)
		assert.Equal(t, int64(0), recent.ChurnFlag)

		assert.Equal(t, 1, mock.GetCallCount())
	})

	t.Run("no-transaction customers get the sentinel recency", func(t *testing.T) {
		processor := newProcessor(t)

		dataset := behavioralDataset()
		err := processor.Process(context.Background(), Message{Payload: dataset})
		require.NoError(t, err)

		assert.Equal(t, int64(200), dataset.Stats.MaxObservedRecency)

		idle := dataset.Customers[2]
		assert.False(t, idle.HasTransaction)
		assert.Equal(t, int64(201), idle.RecencyDays, "max observed recency plus one")
		assert.Equal(t, int64(0), idle.FrequencyCount)
		assert.Zero(t, idle.MonetaryTotal)
		assert.Equal(t, int64(1), idle.ChurnFlag)
	})

	t.Run("weights engagement inside the lookback window", func(t *testing.T) {
		processor := newProcessor(t)

		dataset := behavioralDataset()
		err := processor.Process(context.Background(), Message{Payload: dataset})
		require.NoError(t, err)

		// Two page views at weight 1, one purchase at weight 3; the 2023-01-01
		// event falls outside the 365 day window. Events on the reference date
		// itself still count.
		assert.InDelta(t, 5.0, dataset.Customers[1].EngagementIndex, 1e-12)
		assert.Zero(t, dataset.Customers[2].EngagementIndex)
	})

	t.Run("aggregates satisfaction support and reviews", func(t *testing.T) {
		processor := newProcessor(t)

		dataset := behavioralDataset()
		err := processor.Process(context.Background(), Message{Payload: dataset})
		require.NoError(t, err)

		active := dataset.Customers[0]
		assert.InDelta(t, 4.0, active.SatisfactionIndex, 1e-12)
		assert.Equal(t, int64(2), active.TotalTickets)
		assert.InDelta(t, 4.0, active.AvgResolutionHours, 1e-12, "only the resolved ticket counts")

		recent := dataset.Customers[1]
		assert.InDelta(t, 4.5, recent.AvgRating, 1e-12)

		// Zero-ticket and zero-review customers fall back to dataset-wide values.
		idle := dataset.Customers[2]
		assert.InDelta(t, 3.4, idle.SatisfactionIndex, 1e-12)
		assert.InDelta(t, 3.0, idle.AvgRating, 1e-12)
		assert.InDelta(t, 6.0, idle.AvgResolutionHours, 1e-12)
	})

	t.Run("clamps future transactions to recency zero", func(t *testing.T) {
		processor := newProcessor(t)

		dataset := behavioralDataset()
		dataset.Customers = append(dataset.Customers, CustomerRecord{
			CustomerID: "C-4",
			Transactions: []RawTransaction{
				{TransactionID: "T-9", CustomerID: "C-4", OccurredAt: day(2024, 7, 1), Amount: null.FloatFrom(10)},
			},
		})

		err := processor.Process(context.Background(), Message{Payload: dataset})
		require.NoError(t, err)

		future := dataset.Customers[3]
		assert.Equal(t, int64(0), future.RecencyDays)
		assert.Equal(t, int64(0), future.ChurnFlag)
		require.Len(t, dataset.Report.QualityWarnings, 1)
		assert.Contains(t, dataset.Report.QualityWarnings[0], "recency clamped")
	})

	t.Run("sentinel is one when nobody transacted", func(t *testing.T) {
		processor := newProcessor(t)

		dataset := testDataset(&Snapshot{})
		dataset.Stats = &DatasetStats{}
		dataset.Customers = []CustomerRecord{{CustomerID: "C-1"}, {CustomerID: "C-2"}}

		err := processor.Process(context.Background(), Message{Payload: dataset})
		require.NoError(t, err)

		assert.Equal(t, int64(1), dataset.Customers[0].RecencyDays)
		assert.Equal(t, int64(1), dataset.Customers[1].RecencyDays)
		assert.Equal(t, int64(0), dataset.Customers[0].ChurnFlag)
	})

	t.Run("stamps the reference date into stats", func(t *testing.T) {
		processor := newProcessor(t)

		dataset := behavioralDataset()
		err := processor.Process(context.Background(), Message{Payload: dataset})
		require.NoError(t, err)

		assert.Equal(t, day(2024, 6, 1), dataset.Stats.ReferenceDate)
	})
}
