package processor

import (
	"time"

	"github.com/guregu/null"
)

// Relation names shared by source adapters, schema checks, and consumers.
const (
	RelationCustomers      = "customers"
	RelationTransactions   = "transactions"
	RelationSupportTickets = "support_tickets"
	RelationCampaigns      = "campaigns"
	RelationReviews        = "reviews"
	RelationInteractions   = "interactions"
)

// RequiredColumns lists the columns each raw relation must provide. A
// snapshot missing any of these fails the run with a SchemaError before
// any derived output is written.
var RequiredColumns = map[string][]string{
	RelationCustomers:      {"customer_id", "city", "gender", "age_band", "signup_date", "preferences"},
	RelationTransactions:   {"transaction_id", "customer_id", "occurred_at", "amount", "category"},
	RelationSupportTickets: {"ticket_id", "customer_id", "opened_at", "resolved_at", "satisfaction_rating", "notes"},
	RelationCampaigns:      {"campaign_id", "campaign_name", "campaign_type", "impressions", "clicks", "conversions", "spend", "revenue"},
	RelationReviews:        {"review_id", "customer_id", "category", "rating", "body"},
	RelationInteractions:   {"customer_id", "event_type", "occurred_at"},
}

// RawCustomer is an immutable customer profile row.
type RawCustomer struct {
	CustomerID  string    `json:"customer_id"`
	City        string    `json:"city"`
	Gender      string    `json:"gender"`
	AgeBand     string    `json:"age_band"`
	SignupDate  null.Time `json:"signup_date"`
	Preferences string    `json:"preferences"` // JSON document, e.g. {"categories":["electronics"]}
}

// RawTransaction is an immutable purchase row, many-to-one with RawCustomer.
type RawTransaction struct {
	TransactionID string     `json:"transaction_id"`
	CustomerID    string     `json:"customer_id"`
	OccurredAt    time.Time  `json:"occurred_at"`
	Amount        null.Float `json:"amount"`
	Category      string     `json:"category"`
}

// RawSupportTicket is an immutable support case row.
type RawSupportTicket struct {
	TicketID           string    `json:"ticket_id"`
	CustomerID         string    `json:"customer_id"`
	OpenedAt           time.Time `json:"opened_at"`
	ResolvedAt         null.Time `json:"resolved_at"`
	SatisfactionRating null.Int  `json:"satisfaction_rating"`
	Notes              string    `json:"notes"`
}

// RawCampaign is an aggregate-level marketing campaign row, not customer-keyed.
type RawCampaign struct {
	CampaignID   string  `json:"campaign_id"`
	CampaignName string  `json:"campaign_name"`
	CampaignType string  `json:"campaign_type"`
	Impressions  int64   `json:"impressions"`
	Clicks       int64   `json:"clicks"`
	Conversions  int64   `json:"conversions"`
	Spend        float64 `json:"spend"`
	Revenue      float64 `json:"revenue"`
}

// RawReview is an immutable product review row.
type RawReview struct {
	ReviewID   string   `json:"review_id"`
	CustomerID string   `json:"customer_id"`
	Category   string   `json:"category"`
	Rating     null.Int `json:"rating"`
	Body       string   `json:"body"`
}

// RawInteraction is a single web/app engagement event.
type RawInteraction struct {
	CustomerID string    `json:"customer_id"`
	EventType  string    `json:"event_type"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Snapshot holds the six raw relations loaded once per run. It is treated
// as read-only by every stage after the source adapter emits it.
type Snapshot struct {
	Customers      []RawCustomer
	Transactions   []RawTransaction
	SupportTickets []RawSupportTicket
	Campaigns      []RawCampaign
	Reviews        []RawReview
	Interactions   []RawInteraction
}

// RowCounts reports rows per relation, keyed by relation name.
func (s *Snapshot) RowCounts() map[string]int {
	return map[string]int{
		RelationCustomers:      len(s.Customers),
		RelationTransactions:   len(s.Transactions),
		RelationSupportTickets: len(s.SupportTickets),
		RelationCampaigns:      len(s.Campaigns),
		RelationReviews:        len(s.Reviews),
		RelationInteractions:   len(s.Interactions),
	}
}

// CustomerRecord is the unified, denormalized customer row: demographic
// fields joined with this customer's child rows and the derived behavioral
// and text features. Exactly one record exists per distinct RawCustomer id.
type CustomerRecord struct {
	CustomerID        string    `json:"customer_id"`
	City              string    `json:"city"`
	Gender            string    `json:"gender"`
	AgeBand           string    `json:"age_band"`
	SignupDate        null.Time `json:"signup_date"`
	PreferredCategory string    `json:"preferred_category"`

	// Child rows grouped onto this customer by the join engine. Kept for
	// downstream aggregation; not materialized.
	Transactions []RawTransaction   `json:"-"`
	Tickets      []RawSupportTicket `json:"-"`
	Reviews      []RawReview        `json:"-"`
	Interactions []RawInteraction   `json:"-"`

	RecencyDays        int64   `json:"recency_days"`
	FrequencyCount     int64   `json:"frequency_count"`
	MonetaryTotal      float64 `json:"monetary_total"`
	HasTransaction     bool    `json:"has_transaction"`
	EngagementIndex    float64 `json:"engagement_index"`
	SatisfactionIndex  float64 `json:"satisfaction_index"`
	TotalTickets       int64   `json:"total_tickets"`
	AvgResolutionHours float64 `json:"avg_resolution_hours"`
	AvgRating          float64 `json:"avg_rating"`
	SentimentScore     float64 `json:"sentiment_score"`
	SentimentLabel     string  `json:"sentiment_label"`
	DominantTopic      string  `json:"dominant_topic"`
	ChurnFlag          int64   `json:"churn_flag"`
}

// Texts returns the customer's free-text units (review bodies then ticket
// notes), skipping empties. Order is stable: reviews before tickets, each
// in input order.
func (r *CustomerRecord) Texts() []string {
	texts := make([]string, 0, len(r.Reviews)+len(r.Tickets))
	for _, review := range r.Reviews {
		if review.Body != "" {
			texts = append(texts, review.Body)
		}
	}
	for _, ticket := range r.Tickets {
		if ticket.Notes != "" {
			texts = append(texts, ticket.Notes)
		}
	}
	return texts
}

// CustomerPrediction carries model scores for one customer. ChurnProbability
// is null when the churn model degraded (insufficient or single-class data).
type CustomerPrediction struct {
	CustomerID              string             `json:"customer_id"`
	ChurnProbability        null.Float         `json:"churn_probability"`
	ChurnFlag               int64              `json:"churn_flag"`
	PredictedSatisfaction   float64            `json:"predicted_satisfaction"`
	ChurnAttribution        map[string]float64 `json:"churn_attribution"`
	SatisfactionAttribution map[string]float64 `json:"satisfaction_attribution"`
}

// CustomerSegment carries the cluster assignment and 2D projection for one
// customer. ClusterID is null and SegmentLabel is "Unsegmented" when
// segmentation degraded.
type CustomerSegment struct {
	CustomerID   string   `json:"customer_id"`
	ClusterID    null.Int `json:"cluster_id"`
	SegmentLabel string   `json:"segment_label"`
	ProjectionX  float64  `json:"projection_x"`
	ProjectionY  float64  `json:"projection_y"`
}

// CampaignMetrics is the derived per-campaign row.
type CampaignMetrics struct {
	CampaignID         string  `json:"campaign_id"`
	CampaignName       string  `json:"campaign_name"`
	CampaignType       string  `json:"campaign_type"`
	Impressions        int64   `json:"impressions"`
	Clicks             int64   `json:"clicks"`
	Conversions        int64   `json:"conversions"`
	Spend              float64 `json:"spend"`
	Revenue            float64 `json:"revenue"`
	ClickThroughRate   float64 `json:"click_through_rate"`
	CostPerClick       float64 `json:"cost_per_click"`
	ConversionRate     float64 `json:"conversion_rate"`
	ReturnOnInvestment float64 `json:"return_on_investment"`
}

// FeatureNames fixes the order of the clustering/churn feature vector.
// Standardization parameters in DatasetStats use the same order.
var FeatureNames = []string{
	"recency_days",
	"frequency_count",
	"monetary_total",
	"engagement_index",
	"satisfaction_index",
	"sentiment_score",
}

// FeatureVector builds the feature vector for one customer in FeatureNames
// order.
func FeatureVector(r *CustomerRecord) []float64 {
	return []float64{
		float64(r.RecencyDays),
		float64(r.FrequencyCount),
		r.MonetaryTotal,
		r.EngagementIndex,
		r.SatisfactionIndex,
		r.SentimentScore,
	}
}

// SatisfactionFeatureNames fixes the feature order for the satisfaction
// estimator. The target (satisfaction_index) is excluded; support and review
// aggregates take its place.
var SatisfactionFeatureNames = []string{
	"recency_days",
	"frequency_count",
	"monetary_total",
	"engagement_index",
	"sentiment_score",
	"avg_resolution_hours",
	"total_tickets",
	"avg_rating",
}

// SatisfactionFeatureVector builds the satisfaction-model feature vector in
// SatisfactionFeatureNames order.
func SatisfactionFeatureVector(r *CustomerRecord) []float64 {
	return []float64{
		float64(r.RecencyDays),
		float64(r.FrequencyCount),
		r.MonetaryTotal,
		r.EngagementIndex,
		r.SentimentScore,
		r.AvgResolutionHours,
		float64(r.TotalTickets),
		r.AvgRating,
	}
}

// DatasetStats holds the dataset-wide statistics computed once per run and
// threaded into downstream stages. Each field is written exactly once, by
// the stage that computes it, and is read-only afterward.
type DatasetStats struct {
	ReferenceDate          time.Time `json:"reference_date"`
	MedianAmount           float64   `json:"median_amount"`
	MedianReviewRating     float64   `json:"median_review_rating"`
	MedianResolutionHours  float64   `json:"median_resolution_hours"`
	GlobalMeanSatisfaction float64   `json:"global_mean_satisfaction"`
	MaxObservedRecency     int64     `json:"max_observed_recency"`

	// Standardization parameters in FeatureNames order, set once all
	// behavioral and text features exist.
	FeatureMeans []float64 `json:"feature_means"`
	FeatureStds  []float64 `json:"feature_stds"`
}

// ElbowPoint is one (k, within-cluster sum of squares) diagnostic sample.
type ElbowPoint struct {
	K   int     `json:"k"`
	WSS float64 `json:"wss"`
}

// ClusterProfile summarizes one cluster for reporting.
type ClusterProfile struct {
	ClusterID int                `json:"cluster_id"`
	Label     string             `json:"label"`
	Size      int                `json:"size"`
	Centroid  map[string]float64 `json:"centroid"` // feature name -> standardized centroid value
}

// ChurnModelMetrics are held-out evaluation metrics for the churn classifier.
type ChurnModelMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	AUC       float64 `json:"auc"`
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
}

// SatisfactionModelMetrics are held-out evaluation metrics for the
// satisfaction estimator.
type SatisfactionModelMetrics struct {
	RMSE      float64 `json:"rmse"`
	MAE       float64 `json:"mae"`
	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
}

// RunReport accumulates run metadata, data-quality notes, model metrics, and
// segmentation diagnostics. Materialized to the pipeline_runs relation.
type RunReport struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	SourceType string         `json:"source_type"`
	RowCounts  map[string]int `json:"row_counts"`

	QualityWarnings []string `json:"quality_warnings"`

	ChurnMetrics           *ChurnModelMetrics        `json:"churn_metrics,omitempty"`
	SatisfactionMetrics    *SatisfactionModelMetrics `json:"satisfaction_metrics,omitempty"`
	ChurnImportance        map[string]float64        `json:"churn_importance,omitempty"`
	SatisfactionImportance map[string]float64        `json:"satisfaction_importance,omitempty"`

	ElbowCurve      []ElbowPoint     `json:"elbow_curve,omitempty"`
	ChosenClusters  int              `json:"chosen_clusters"`
	ClusterProfiles []ClusterProfile `json:"cluster_profiles,omitempty"`

	ChurnDegraded        bool `json:"churn_degraded"`
	SatisfactionDegraded bool `json:"satisfaction_degraded"`
	SegmentationDegraded bool `json:"segmentation_degraded"`
}

// AddQualityWarning records a data-quality note surfaced during the run.
func (r *RunReport) AddQualityWarning(msg string) {
	r.QualityWarnings = append(r.QualityWarnings, msg)
}

// Dataset is the envelope each pipeline stage enriches. The source adapter
// creates it around the snapshot; each processor fills in the fields it owns
// and forwards the same pointer.
type Dataset struct {
	Snapshot    *Snapshot
	Campaigns   []CampaignMetrics
	Customers   []CustomerRecord
	Predictions []CustomerPrediction
	Segments    []CustomerSegment
	Stats       *DatasetStats
	Report      *RunReport
}

// NewDataset wraps a snapshot with a fresh report.
func NewDataset(snapshot *Snapshot, sourceType string, startedAt time.Time, runID string) *Dataset {
	return &Dataset{
		Snapshot: snapshot,
		Report: &RunReport{
			RunID:      runID,
			StartedAt:  startedAt,
			SourceType: sourceType,
			RowCounts:  snapshot.RowCounts(),
		},
	}
}
