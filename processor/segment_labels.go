package processor

import "fmt"

// Centroid feature conditions are expressed in standardized units, so an
// offset of +0.5 means half a standard deviation above the global mean.
const (
	conditionAbove = "above"
	conditionBelow = "below"
)

// FeatureCondition is one clause of a labeling rule, evaluated against a
// cluster centroid in standardized feature space.
type FeatureCondition struct {
	Feature string
	Op      string
	Offset  float64
}

// LabelRule maps a centroid pattern to a segment label. All conditions must
// hold for the rule to match.
type LabelRule struct {
	Label      string
	Conditions []FeatureCondition
}

// DefaultLabelRules is the declarative rule table for naming clusters.
// Rules are evaluated in order and the first match wins; relabeling means
// editing this table, never retraining. The final fallback has no
// conditions, so every centroid receives a label.
var DefaultLabelRules = []LabelRule{
	{
		Label: "Champions",
		Conditions: []FeatureCondition{
			{Feature: "monetary_total", Op: conditionAbove, Offset: 0.5},
			{Feature: "recency_days", Op: conditionBelow, Offset: -0.25},
		},
	},
	{
		Label: "At-Risk",
		Conditions: []FeatureCondition{
			{Feature: "recency_days", Op: conditionAbove, Offset: 0.5},
			{Feature: "frequency_count", Op: conditionBelow, Offset: 0},
		},
	},
	{
		Label: "Disengaged",
		Conditions: []FeatureCondition{
			{Feature: "engagement_index", Op: conditionBelow, Offset: -0.5},
		},
	},
	{
		Label: "Detractors",
		Conditions: []FeatureCondition{
			{Feature: "satisfaction_index", Op: conditionBelow, Offset: -0.5},
		},
	},
	{
		Label: "Big Spenders",
		Conditions: []FeatureCondition{
			{Feature: "monetary_total", Op: conditionAbove, Offset: 0.5},
		},
	},
	{
		Label: "Engaged Regulars",
		Conditions: []FeatureCondition{
			{Feature: "engagement_index", Op: conditionAbove, Offset: 0.25},
		},
	},
	{
		Label: "Steady Shoppers",
	},
}

// LabelForCentroid evaluates the rule table against one standardized
// centroid, keyed by feature name.
func LabelForCentroid(centroid map[string]float64, rules []LabelRule) string {
	for _, rule := range rules {
		if matchesRule(centroid, rule) {
			return rule.Label
		}
	}
	return "Steady Shoppers"
}

func matchesRule(centroid map[string]float64, rule LabelRule) bool {
	for _, cond := range rule.Conditions {
		value, ok := centroid[cond.Feature]
		if !ok {
			return false
		}
		switch cond.Op {
		case conditionAbove:
			if value < cond.Offset {
				return false
			}
		case conditionBelow:
			if value > cond.Offset {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// DisambiguateLabels suffixes repeated labels with the cluster id so two
// clusters matching the same rule stay distinguishable in reports. Input is
// indexed by cluster id.
func DisambiguateLabels(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	out := make([]string, len(labels))
	for clusterID, label := range labels {
		if seen[label] {
			out[clusterID] = fmt.Sprintf("%s %d", label, clusterID)
			continue
		}
		seen[label] = true
		out[clusterID] = label
	}
	return out
}
