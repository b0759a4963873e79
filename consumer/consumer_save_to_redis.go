package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/meridianlabs/customer360-pipeline/processor"
)

// SaveToRedis publishes the finished run as a serving cache. All keys are
// scoped by run ID; the current_run pointer is flipped only after every key
// is written, so lookups through the pointer never mix two runs.
type SaveToRedis struct {
	client     *redis.Client
	processors []processor.Processor
	keyPrefix  string
	ttl        time.Duration
}

type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	TTLHours  int
}

func NewSaveToRedis(config map[string]interface{}) (*SaveToRedis, error) {
	redisConfig, err := parseRedisConfig(config)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     redisConfig.Address,
		Password: redisConfig.Password,
		DB:       redisConfig.DB,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	ttl := time.Duration(redisConfig.TTLHours) * time.Hour

	return &SaveToRedis{
		client:    client,
		keyPrefix: redisConfig.KeyPrefix,
		ttl:       ttl,
	}, nil
}

func parseRedisConfig(config map[string]interface{}) (RedisConfig, error) {
	var redisConfig RedisConfig

	addr, ok := config["address"].(string)
	if !ok {
		return redisConfig, fmt.Errorf("missing Redis address")
	}
	redisConfig.Address = addr

	if password, ok := config["password"].(string); ok {
		redisConfig.Password = password
	}

	if db, ok := config["db"].(int); ok {
		redisConfig.DB = db
	} else if db, ok := config["db"].(float64); ok {
		redisConfig.DB = int(db)
	}

	if prefix, ok := config["key_prefix"].(string); ok {
		redisConfig.KeyPrefix = prefix
	} else {
		redisConfig.KeyPrefix = "customer360:"
	}

	if ttl, ok := config["ttl_hours"].(int); ok {
		redisConfig.TTLHours = ttl
	} else if ttl, ok := config["ttl_hours"].(float64); ok {
		redisConfig.TTLHours = int(ttl)
	} else {
		redisConfig.TTLHours = 72 // Default 72 hours, spans a weekend of runs
	}

	return redisConfig, nil
}

func (r *SaveToRedis) Subscribe(receiver processor.Processor) {
	r.processors = append(r.processors, receiver)
}

func (r *SaveToRedis) Process(ctx context.Context, msg processor.Message) error {
	dataset, err := processor.DatasetFromMessage(msg)
	if err != nil {
		return err
	}
	runID := dataset.Report.RunID

	if err := r.storeCustomers(ctx, runID, dataset); err != nil {
		return err
	}
	if err := r.storeCampaigns(ctx, runID, dataset); err != nil {
		return err
	}

	reportKey := fmt.Sprintf("%srun:%s:report", r.keyPrefix, runID)
	if err := r.storeJSON(ctx, reportKey, dataset.Report); err != nil {
		return err
	}

	// Flip the pointer last; it has no TTL.
	pointerKey := r.keyPrefix + "current_run"
	if err := r.client.Set(ctx, pointerKey, runID, 0).Err(); err != nil {
		return fmt.Errorf("error setting current_run pointer: %w", err)
	}

	log.Printf("SaveToRedis: cached %d customers, %d campaigns (run %s)",
		len(dataset.Customers), len(dataset.Campaigns), runID)
	return nil
}

func (r *SaveToRedis) storeCustomers(ctx context.Context, runID string, dataset *processor.Dataset) error {
	predictions := make(map[string]processor.CustomerPrediction, len(dataset.Predictions))
	for _, prediction := range dataset.Predictions {
		predictions[prediction.CustomerID] = prediction
	}
	segments := make(map[string]processor.CustomerSegment, len(dataset.Segments))
	for _, segment := range dataset.Segments {
		segments[segment.CustomerID] = segment
	}

	indexKey := fmt.Sprintf("%srun:%s:customers", r.keyPrefix, runID)

	pipe := r.client.Pipeline()
	for _, record := range dataset.Customers {
		key := fmt.Sprintf("%srun:%s:customer:%s", r.keyPrefix, runID, record.CustomerID)

		redisData := map[string]interface{}{
			"customer_id":          record.CustomerID,
			"city":                 record.City,
			"gender":               record.Gender,
			"age_band":             record.AgeBand,
			"preferred_category":   record.PreferredCategory,
			"recency_days":         record.RecencyDays,
			"frequency_count":      record.FrequencyCount,
			"monetary_total":       record.MonetaryTotal,
			"has_transaction":      record.HasTransaction,
			"engagement_index":     record.EngagementIndex,
			"satisfaction_index":   record.SatisfactionIndex,
			"total_tickets":        record.TotalTickets,
			"avg_resolution_hours": record.AvgResolutionHours,
			"avg_rating":           record.AvgRating,
			"sentiment_score":      record.SentimentScore,
			"sentiment_label":      record.SentimentLabel,
			"dominant_topic":       record.DominantTopic,
			"churn_flag":           record.ChurnFlag,
		}
		// Null fields are omitted rather than written as sentinels.
		if record.SignupDate.Valid {
			redisData["signup_date"] = record.SignupDate.Time.Format(time.RFC3339)
		}

		if prediction, ok := predictions[record.CustomerID]; ok {
			if prediction.ChurnProbability.Valid {
				redisData["churn_probability"] = prediction.ChurnProbability.Float64
			}
			redisData["predicted_satisfaction"] = prediction.PredictedSatisfaction
			redisData["churn_attribution"] = toJSON(prediction.ChurnAttribution)
			redisData["satisfaction_attribution"] = toJSON(prediction.SatisfactionAttribution)
		}
		if segment, ok := segments[record.CustomerID]; ok {
			if segment.ClusterID.Valid {
				redisData["cluster_id"] = segment.ClusterID.Int64
			}
			redisData["segment_label"] = segment.SegmentLabel
			redisData["projection_x"] = segment.ProjectionX
			redisData["projection_y"] = segment.ProjectionY
		}

		pipe.HSet(ctx, key, redisData)
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		pipe.SAdd(ctx, indexKey, record.CustomerID)
	}
	if r.ttl > 0 {
		pipe.Expire(ctx, indexKey, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("error executing Redis pipeline: %w", err)
	}
	return nil
}

func (r *SaveToRedis) storeCampaigns(ctx context.Context, runID string, dataset *processor.Dataset) error {
	indexKey := fmt.Sprintf("%srun:%s:campaigns", r.keyPrefix, runID)

	pipe := r.client.Pipeline()
	for _, campaign := range dataset.Campaigns {
		key := fmt.Sprintf("%srun:%s:campaign:%s", r.keyPrefix, runID, campaign.CampaignID)

		pipe.HSet(ctx, key, map[string]interface{}{
			"campaign_id":          campaign.CampaignID,
			"campaign_name":        campaign.CampaignName,
			"campaign_type":        campaign.CampaignType,
			"impressions":          campaign.Impressions,
			"clicks":               campaign.Clicks,
			"conversions":          campaign.Conversions,
			"spend":                campaign.Spend,
			"revenue":              campaign.Revenue,
			"click_through_rate":   campaign.ClickThroughRate,
			"cost_per_click":       campaign.CostPerClick,
			"conversion_rate":      campaign.ConversionRate,
			"return_on_investment": campaign.ReturnOnInvestment,
		})
		if r.ttl > 0 {
			pipe.Expire(ctx, key, r.ttl)
		}
		pipe.SAdd(ctx, indexKey, campaign.CampaignID)
	}
	if r.ttl > 0 {
		pipe.Expire(ctx, indexKey, r.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("error executing Redis pipeline: %w", err)
	}
	return nil
}

func (r *SaveToRedis) storeJSON(ctx context.Context, key string, data interface{}) error {
	jsonBytes, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("error marshaling data: %w", err)
	}

	if err := r.client.Set(ctx, key, jsonBytes, r.ttl).Err(); err != nil {
		return fmt.Errorf("error storing data in Redis: %w", err)
	}

	return nil
}

func (r *SaveToRedis) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Utility methods for retrieving data

// CurrentRunID returns the run the pointer currently serves.
func (r *SaveToRedis) CurrentRunID(ctx context.Context) (string, error) {
	return r.client.Get(ctx, r.keyPrefix+"current_run").Result()
}

func (r *SaveToRedis) GetCustomer(ctx context.Context, customerID string) (map[string]string, error) {
	runID, err := r.CurrentRunID(ctx)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%srun:%s:customer:%s", r.keyPrefix, runID, customerID)
	return r.client.HGetAll(ctx, key).Result()
}

func (r *SaveToRedis) GetCampaign(ctx context.Context, campaignID string) (map[string]string, error) {
	runID, err := r.CurrentRunID(ctx)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%srun:%s:campaign:%s", r.keyPrefix, runID, campaignID)
	return r.client.HGetAll(ctx, key).Result()
}

func (r *SaveToRedis) GetRunReport(ctx context.Context) (*processor.RunReport, error) {
	runID, err := r.CurrentRunID(ctx)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%srun:%s:report", r.keyPrefix, runID)
	raw, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var report processor.RunReport
	if err := json.Unmarshal(raw, &report); err != nil {
		return nil, fmt.Errorf("error unmarshaling run report: %w", err)
	}
	return &report, nil
}
