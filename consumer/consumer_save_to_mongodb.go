package consumer

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

type SaveToMongoDB struct {
	client     *mongo.Client
	db         *mongo.Database
	processors []processor.Processor
}

type MongoDBConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

func NewSaveToMongoDB(config map[string]interface{}) (*SaveToMongoDB, error) {
	dbConfig, err := parseMongoDBConfig(config)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), dbConfig.ConnectTimeout)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(dbConfig.URI)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to create MongoDB client: %w", err)
	}

	// Verify connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	log.Printf("Successfully connected to MongoDB database %s", dbConfig.Database)

	return &SaveToMongoDB{
		client: client,
		db:     client.Database(dbConfig.Database),
	}, nil
}

func parseMongoDBConfig(config map[string]interface{}) (MongoDBConfig, error) {
	var dbConfig MongoDBConfig

	uri, ok := config["uri"].(string)
	if !ok {
		return dbConfig, fmt.Errorf("missing 'uri' in MongoDB configuration")
	}
	dbConfig.URI = uri

	database, ok := config["database"].(string)
	if !ok {
		return dbConfig, fmt.Errorf("missing 'database' in MongoDB configuration")
	}
	dbConfig.Database = database

	// Set default timeout if not provided
	timeout, ok := config["connect_timeout"].(int)
	if !ok {
		timeout = 10 // Default 10 seconds
	}
	dbConfig.ConnectTimeout = time.Duration(timeout) * time.Second

	return dbConfig, nil
}

func (m *SaveToMongoDB) Subscribe(receiver processor.Processor) {
	m.processors = append(m.processors, receiver)
}

// Process rebuilds each output collection in a staging twin and renames it
// over the target with dropTarget, so each collection flips in one step.
func (m *SaveToMongoDB) Process(ctx context.Context, msg processor.Message) error {
	dataset, err := processor.DatasetFromMessage(msg)
	if err != nil {
		return err
	}

	collections := []struct {
		name string
		docs []interface{}
	}{
		{TableEnriched, enrichedDocs(dataset)},
		{TablePredicted, predictedDocs(dataset)},
		{TableSegmented, segmentedDocs(dataset)},
		{TableCampaigns, campaignDocs(dataset)},
	}

	for _, coll := range collections {
		if err := m.stageCollection(ctx, coll.name, coll.docs); err != nil {
			return err
		}
	}
	for _, coll := range collections {
		if err := m.swapCollection(ctx, coll.name); err != nil {
			return err
		}
	}

	if err := m.insertRunReport(ctx, dataset.Report); err != nil {
		return err
	}

	log.Printf("SaveToMongoDB: materialized %d customers, %d campaigns (run %s)",
		len(dataset.Customers), len(dataset.Campaigns), dataset.Report.RunID)
	return nil
}

func (m *SaveToMongoDB) stageCollection(ctx context.Context, name string, docs []interface{}) error {
	staging := stagingName(name)

	if err := m.db.Collection(staging).Drop(ctx); err != nil {
		return fmt.Errorf("failed to drop %s: %w", staging, err)
	}
	// Created explicitly so the rename works even when there are no rows.
	if err := m.db.CreateCollection(ctx, staging); err != nil {
		return fmt.Errorf("failed to create %s: %w", staging, err)
	}

	if len(docs) > 0 {
		if _, err := m.db.Collection(staging).InsertMany(ctx, docs); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", staging, err)
		}
	}
	return nil
}

func (m *SaveToMongoDB) swapCollection(ctx context.Context, name string) error {
	cmd := bson.D{
		{Key: "renameCollection", Value: m.db.Name() + "." + stagingName(name)},
		{Key: "to", Value: m.db.Name() + "." + name},
		{Key: "dropTarget", Value: true},
	}
	if err := m.client.Database("admin").RunCommand(ctx, cmd).Err(); err != nil {
		return fmt.Errorf("failed to swap %s: %w", name, err)
	}
	return nil
}

func enrichedDocs(dataset *processor.Dataset) []interface{} {
	docs := make([]interface{}, 0, len(dataset.Customers))
	for _, record := range dataset.Customers {
		docs = append(docs, bson.D{
			{Key: "customer_id", Value: record.CustomerID},
			{Key: "city", Value: record.City},
			{Key: "gender", Value: record.Gender},
			{Key: "age_band", Value: record.AgeBand},
			{Key: "signup_date", Value: nullTimeArg(record.SignupDate)},
			{Key: "preferred_category", Value: record.PreferredCategory},
			{Key: "recency_days", Value: record.RecencyDays},
			{Key: "frequency_count", Value: record.FrequencyCount},
			{Key: "monetary_total", Value: record.MonetaryTotal},
			{Key: "has_transaction", Value: record.HasTransaction},
			{Key: "engagement_index", Value: record.EngagementIndex},
			{Key: "satisfaction_index", Value: record.SatisfactionIndex},
			{Key: "total_tickets", Value: record.TotalTickets},
			{Key: "avg_resolution_hours", Value: record.AvgResolutionHours},
			{Key: "avg_rating", Value: record.AvgRating},
			{Key: "sentiment_score", Value: record.SentimentScore},
			{Key: "sentiment_label", Value: record.SentimentLabel},
			{Key: "dominant_topic", Value: record.DominantTopic},
			{Key: "churn_flag", Value: record.ChurnFlag},
		})
	}
	return docs
}

func predictedDocs(dataset *processor.Dataset) []interface{} {
	docs := make([]interface{}, 0, len(dataset.Predictions))
	for _, prediction := range dataset.Predictions {
		docs = append(docs, bson.D{
			{Key: "customer_id", Value: prediction.CustomerID},
			{Key: "churn_probability", Value: nullFloatArg(prediction.ChurnProbability)},
			{Key: "churn_flag", Value: prediction.ChurnFlag},
			{Key: "predicted_satisfaction", Value: prediction.PredictedSatisfaction},
			{Key: "churn_attribution", Value: prediction.ChurnAttribution},
			{Key: "satisfaction_attribution", Value: prediction.SatisfactionAttribution},
		})
	}
	return docs
}

func segmentedDocs(dataset *processor.Dataset) []interface{} {
	docs := make([]interface{}, 0, len(dataset.Segments))
	for _, segment := range dataset.Segments {
		docs = append(docs, bson.D{
			{Key: "customer_id", Value: segment.CustomerID},
			{Key: "cluster_id", Value: nullIntArg(segment.ClusterID)},
			{Key: "segment_label", Value: segment.SegmentLabel},
			{Key: "projection_x", Value: segment.ProjectionX},
			{Key: "projection_y", Value: segment.ProjectionY},
		})
	}
	return docs
}

func campaignDocs(dataset *processor.Dataset) []interface{} {
	docs := make([]interface{}, 0, len(dataset.Campaigns))
	for _, campaign := range dataset.Campaigns {
		docs = append(docs, bson.D{
			{Key: "campaign_id", Value: campaign.CampaignID},
			{Key: "campaign_name", Value: campaign.CampaignName},
			{Key: "campaign_type", Value: campaign.CampaignType},
			{Key: "impressions", Value: campaign.Impressions},
			{Key: "clicks", Value: campaign.Clicks},
			{Key: "conversions", Value: campaign.Conversions},
			{Key: "spend", Value: campaign.Spend},
			{Key: "revenue", Value: campaign.Revenue},
			{Key: "click_through_rate", Value: campaign.ClickThroughRate},
			{Key: "cost_per_click", Value: campaign.CostPerClick},
			{Key: "conversion_rate", Value: campaign.ConversionRate},
			{Key: "return_on_investment", Value: campaign.ReturnOnInvestment},
		})
	}
	return docs
}

func (m *SaveToMongoDB) insertRunReport(ctx context.Context, report *processor.RunReport) error {
	doc := bson.D{
		{Key: "run_id", Value: report.RunID},
		{Key: "started_at", Value: report.StartedAt},
		{Key: "finished_at", Value: finishedAt(report)},
		{Key: "source_type", Value: report.SourceType},
		{Key: "row_counts", Value: report.RowCounts},
		{Key: "quality_warnings", Value: report.QualityWarnings},
		{Key: "churn_metrics", Value: report.ChurnMetrics},
		{Key: "satisfaction_metrics", Value: report.SatisfactionMetrics},
		{Key: "churn_importance", Value: report.ChurnImportance},
		{Key: "satisfaction_importance", Value: report.SatisfactionImportance},
		{Key: "elbow_curve", Value: report.ElbowCurve},
		{Key: "chosen_clusters", Value: report.ChosenClusters},
		{Key: "cluster_profiles", Value: report.ClusterProfiles},
		{Key: "churn_degraded", Value: report.ChurnDegraded},
		{Key: "satisfaction_degraded", Value: report.SatisfactionDegraded},
		{Key: "segmentation_degraded", Value: report.SegmentationDegraded},
	}

	insertCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := m.db.Collection(TableRuns).InsertOne(insertCtx, doc); err != nil {
		return fmt.Errorf("failed to insert run report %s: %w", report.RunID, err)
	}
	return nil
}

func (m *SaveToMongoDB) Close() error {
	if m.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return m.client.Disconnect(ctx)
	}
	return nil
}
