package processor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestLabelForCentroid tests the rule table against hand-built centroids
func TestLabelForCentroid(t *testing.T) {
	centroid := func(overrides map[string]float64) map[string]float64 {
		base := map[string]float64{}
		for _, name := range FeatureNames {
			base[name] = 0
		}
		for name, value := range overrides {
			base[name] = value
		}
		return base
	}

	tests := []struct {
		name     string
		centroid map[string]float64
		want     string
	}{
		{
			name:     "champions spend high and buy recently",
			centroid: centroid(map[string]float64{"monetary_total": 1.0, "recency_days": -0.5}),
			want:     "Champions",
		},
		{
			name:     "champions boundary values",
			centroid: centroid(map[string]float64{"monetary_total": 0.5, "recency_days": -0.25}),
			want:     "Champions",
		},
		{
			name:     "at-risk are stale and infrequent",
			centroid: centroid(map[string]float64{"recency_days": 1.2, "frequency_count": -0.3}),
			want:     "At-Risk",
		},
		{
			name:     "disengaged have low engagement",
			centroid: centroid(map[string]float64{"engagement_index": -0.8}),
			want:     "Disengaged",
		},
		{
			name:     "detractors have low satisfaction",
			centroid: centroid(map[string]float64{"satisfaction_index": -0.9}),
			want:     "Detractors",
		},
		{
			name:     "big spenders without fresh purchases",
			centroid: centroid(map[string]float64{"monetary_total": 0.8}),
			want:     "Big Spenders",
		},
		{
			name:     "engaged regulars",
			centroid: centroid(map[string]float64{"engagement_index": 0.5}),
			want:     "Engaged Regulars",
		},
		{
			name:     "average centroid falls through to the fallback",
			centroid: centroid(nil),
			want:     "Steady Shoppers",
		},
		{
			name:     "missing features never match a conditioned rule",
			centroid: map[string]float64{},
			want:     "Steady Shoppers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LabelForCentroid(tt.centroid, DefaultLabelRules))
		})
	}
}

// TestDisambiguateLabels verifies repeated labels get the cluster id suffix
func TestDisambiguateLabels(t *testing.T) {
	labels := DisambiguateLabels([]string{"Champions", "At-Risk", "Champions", "Champions"})
	assert.Equal(t, []string{"Champions", "At-Risk", "Champions 2", "Champions 3"}, labels)
}
