package processor

import (
	"fmt"
	"time"

	"github.com/spf13/cast"

	"github.com/meridianlabs/customer360-pipeline/utils"
)

// Defaults for the recognized run options. Thresholds and counts are
// configuration with stated defaults, never inline constants at use sites.
const (
	DefaultChurnThresholdDays     = 180
	DefaultEngagementLookbackDays = 365
	DefaultClusterCount           = 4
	DefaultClusterRangeMin        = 2
	DefaultClusterRangeMax        = 10
	DefaultTopicCount             = 5
	DefaultRandomSeed             = 42
	DefaultSplitFraction          = 0.2
	DefaultMinTrainingRows        = 20
)

// RunOptions are the per-run knobs shared by the pipeline stages. Every
// stochastic component derives its randomness from RandomSeed; nothing reads
// global entropy.
type RunOptions struct {
	ReferenceDate          time.Time
	ChurnThresholdDays     int
	EngagementWeights      map[string]float64
	EngagementLookbackDays int
	ClusterCount           int
	AutoClusterCount       bool
	ClusterRangeMin        int
	ClusterRangeMax        int
	TopicCount             int
	RandomSeed             int64
	SplitFraction          float64
	MinTrainingRows        int
}

// DefaultRunOptions returns the documented defaults. ReferenceDate defaults
// to the current UTC date; set it explicitly for reproducible runs.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		ReferenceDate:          time.Now().UTC().Truncate(24 * time.Hour),
		ChurnThresholdDays:     DefaultChurnThresholdDays,
		EngagementLookbackDays: DefaultEngagementLookbackDays,
		ClusterCount:           DefaultClusterCount,
		ClusterRangeMin:        DefaultClusterRangeMin,
		ClusterRangeMax:        DefaultClusterRangeMax,
		TopicCount:             DefaultTopicCount,
		RandomSeed:             DefaultRandomSeed,
		SplitFraction:          DefaultSplitFraction,
		MinTrainingRows:        DefaultMinTrainingRows,
	}
}

// ParseRunOptions reads the recognized option keys out of a component config
// map, applying defaults for anything unset.
func ParseRunOptions(config map[string]interface{}) (RunOptions, error) {
	opts := DefaultRunOptions()

	if raw, ok := config["reference_date"]; ok {
		date, err := utils.ParseDate(cast.ToString(raw))
		if err != nil {
			return opts, fmt.Errorf("invalid reference_date: %w", err)
		}
		opts.ReferenceDate = date
	}

	if raw, ok := config["churn_threshold_days"]; ok {
		v, err := cast.ToIntE(raw)
		if err != nil || v < 0 {
			return opts, fmt.Errorf("invalid churn_threshold_days: %v", raw)
		}
		opts.ChurnThresholdDays = v
	}

	if raw, ok := config["engagement_lookback_days"]; ok {
		v, err := cast.ToIntE(raw)
		if err != nil || v < 1 {
			return opts, fmt.Errorf("invalid engagement_lookback_days: %v", raw)
		}
		opts.EngagementLookbackDays = v
	}

	if raw, ok := config["engagement_weights"]; ok {
		weights, err := cast.ToStringMapE(raw)
		if err != nil {
			return opts, fmt.Errorf("invalid engagement_weights: %v", raw)
		}
		opts.EngagementWeights = make(map[string]float64, len(weights))
		for event, value := range weights {
			w, err := cast.ToFloat64E(value)
			if err != nil || w < 0 {
				return opts, fmt.Errorf("invalid engagement weight for %q: %v", event, value)
			}
			opts.EngagementWeights[event] = w
		}
	}

	if raw, ok := config["cluster_count"]; ok {
		if s, isString := raw.(string); isString && s == "auto" {
			opts.AutoClusterCount = true
		} else {
			v, err := cast.ToIntE(raw)
			if err != nil || v < 1 {
				return opts, fmt.Errorf("invalid cluster_count: %v (want a positive integer or \"auto\")", raw)
			}
			opts.ClusterCount = v
		}
	}

	if raw, ok := config["cluster_range_min"]; ok {
		v, err := cast.ToIntE(raw)
		if err != nil || v < 2 {
			return opts, fmt.Errorf("invalid cluster_range_min: %v", raw)
		}
		opts.ClusterRangeMin = v
	}

	if raw, ok := config["cluster_range_max"]; ok {
		v, err := cast.ToIntE(raw)
		if err != nil || v < 2 {
			return opts, fmt.Errorf("invalid cluster_range_max: %v", raw)
		}
		opts.ClusterRangeMax = v
	}

	if opts.ClusterRangeMax < opts.ClusterRangeMin {
		return opts, fmt.Errorf("cluster_range_max (%d) below cluster_range_min (%d)",
			opts.ClusterRangeMax, opts.ClusterRangeMin)
	}

	if raw, ok := config["topic_count"]; ok {
		v, err := cast.ToIntE(raw)
		if err != nil || v < 1 {
			return opts, fmt.Errorf("invalid topic_count: %v", raw)
		}
		opts.TopicCount = v
	}

	if raw, ok := config["random_seed"]; ok {
		v, err := cast.ToInt64E(raw)
		if err != nil {
			return opts, fmt.Errorf("invalid random_seed: %v", raw)
		}
		opts.RandomSeed = v
	}

	if raw, ok := config["train_test_split_fraction"]; ok {
		v, err := cast.ToFloat64E(raw)
		if err != nil || v <= 0 || v >= 1 {
			return opts, fmt.Errorf("invalid train_test_split_fraction: %v (want a fraction in (0,1))", raw)
		}
		opts.SplitFraction = v
	}

	if raw, ok := config["min_training_rows"]; ok {
		v, err := cast.ToIntE(raw)
		if err != nil || v < 2 {
			return opts, fmt.Errorf("invalid min_training_rows: %v", raw)
		}
		opts.MinTrainingRows = v
	}

	return opts, nil
}

// EngagementWeight returns the weight for an interaction event type. Event
// types without a configured weight count with weight 1.
func (o RunOptions) EngagementWeight(eventType string) float64 {
	if o.EngagementWeights == nil {
		return 1
	}
	if w, ok := o.EngagementWeights[eventType]; ok {
		return w
	}
	return 1
}
