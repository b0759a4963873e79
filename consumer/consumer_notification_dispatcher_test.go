package consumer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dispatcherConfig(rules ...map[string]interface{}) map[string]interface{} {
	raw := make([]interface{}, len(rules))
	for i, r := range rules {
		raw[i] = r
	}
	return map[string]interface{}{"rules": raw}
}

func TestNewNotificationDispatcherRequiresRules(t *testing.T) {
	_, err := NewNotificationDispatcher(map[string]interface{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules")
}

func TestNewNotificationDispatcherParsesRules(t *testing.T) {
	dispatcher, err := NewNotificationDispatcher(dispatcherConfig(
		map[string]interface{}{
			"metric":    "churn_rate",
			"condition": "gt",
			"value":     0.3,
			"channels":  []interface{}{"webhook"},
		},
	))
	require.NoError(t, err)
	require.Len(t, dispatcher.rules, 1)
	assert.Equal(t, "churn_rate", dispatcher.rules[0].Metric)
	assert.Equal(t, []string{"webhook"}, dispatcher.rules[0].Channels)
}

func TestNewNotificationDispatcherRejectsIncompleteRule(t *testing.T) {
	_, err := NewNotificationDispatcher(dispatcherConfig(
		map[string]interface{}{"condition": "gt", "value": 1.0},
	))
	assert.Error(t, err)
}

func TestRunMetrics(t *testing.T) {
	metrics := runMetrics(materializedDataset())

	assert.Equal(t, 2.0, metrics["customers"])
	assert.Equal(t, 1.0, metrics["campaigns"])
	assert.Equal(t, 0.5, metrics["churn_rate"], "one of two customers churned")
	assert.InDelta(t, 0.11, metrics["mean_sentiment"], 1e-9)
	assert.Equal(t, 1.0, metrics["quality_warnings"])
	assert.Equal(t, 0.0, metrics["degraded_stages"])
}

func TestConditionHolds(t *testing.T) {
	assert.True(t, conditionHolds("gt", 0.5, 0.3))
	assert.False(t, conditionHolds("gt", 0.3, 0.3))
	assert.True(t, conditionHolds("lt", 0.1, 0.3))
	assert.True(t, conditionHolds("eq", 2, 2))
	assert.False(t, conditionHolds("between", 1, 2), "unknown condition never fires")
}

func TestProcessPostsWebhookWhenThresholdCrossed(t *testing.T) {
	var received map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	dispatcher, err := NewNotificationDispatcher(map[string]interface{}{
		"webhook_urls": []interface{}{server.URL},
		"rules": []interface{}{map[string]interface{}{
			"metric":    "churn_rate",
			"condition": "gt",
			"value":     0.3,
			"channels":  []interface{}{"webhook"},
		}},
	})
	require.NoError(t, err)

	require.NoError(t, dispatcher.Process(context.Background(), datasetMessage()))

	require.NotNil(t, received, "webhook should have been called")
	assert.Equal(t, "run-42", received["run_id"])
	assert.Equal(t, "churn_rate", received["metric"])
	assert.Equal(t, 0.5, received["value"])
}

func TestProcessSkipsWhenThresholdNotCrossed(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	dispatcher, err := NewNotificationDispatcher(map[string]interface{}{
		"webhook_urls": []interface{}{server.URL},
		"rules": []interface{}{map[string]interface{}{
			"metric":    "churn_rate",
			"condition": "gt",
			"value":     0.9,
			"channels":  []interface{}{"webhook"},
		}},
	})
	require.NoError(t, err)

	require.NoError(t, dispatcher.Process(context.Background(), datasetMessage()))
	assert.False(t, called)
}

func TestShouldNotifyCoolsDown(t *testing.T) {
	dispatcher := &NotificationDispatcher{
		lastNotified: make(map[string]time.Time),
		cooldown:     time.Hour,
	}
	rule := NotificationRule{Metric: "churn_rate", Condition: "gt"}

	assert.True(t, dispatcher.shouldNotify(rule))
	assert.False(t, dispatcher.shouldNotify(rule), "second alert inside the cooldown is suppressed")

	dispatcher.lastNotified["churn_rate-gt"] = time.Now().Add(-2 * time.Hour)
	assert.True(t, dispatcher.shouldNotify(rule))
}
