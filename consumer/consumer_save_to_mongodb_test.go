package consumer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestParseMongoDBConfig(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]interface{}
		want   MongoDBConfig
		errMsg string
	}{
		{
			name: "valid config with default timeout",
			config: map[string]interface{}{
				"uri":      "mongodb://localhost:27017",
				"database": "customer360",
			},
			want: MongoDBConfig{
				URI:            "mongodb://localhost:27017",
				Database:       "customer360",
				ConnectTimeout: 10 * time.Second,
			},
		},
		{
			name: "explicit timeout",
			config: map[string]interface{}{
				"uri":             "mongodb://db.internal:27017",
				"database":        "customer360",
				"connect_timeout": 3,
			},
			want: MongoDBConfig{
				URI:            "mongodb://db.internal:27017",
				Database:       "customer360",
				ConnectTimeout: 3 * time.Second,
			},
		},
		{
			name:   "missing uri",
			config: map[string]interface{}{"database": "customer360"},
			errMsg: "missing 'uri' in MongoDB configuration",
		},
		{
			name:   "missing database",
			config: map[string]interface{}{"uri": "mongodb://localhost:27017"},
			errMsg: "missing 'database' in MongoDB configuration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseMongoDBConfig(tt.config)
			if tt.errMsg != "" {
				require.Error(t, err)
				assert.Equal(t, tt.errMsg, err.Error())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func docValue(t *testing.T, doc interface{}, key string) interface{} {
	t.Helper()
	d, ok := doc.(bson.D)
	require.True(t, ok, "document is a bson.D")
	for _, elem := range d {
		if elem.Key == key {
			return elem.Value
		}
	}
	t.Fatalf("key %q not found in document", key)
	return nil
}

func TestEnrichedDocs(t *testing.T) {
	docs := enrichedDocs(materializedDataset())
	require.Len(t, docs, 2)

	assert.Equal(t, "C-1", docValue(t, docs[0], "customer_id"))
	assert.Equal(t, "Lisbon", docValue(t, docs[0], "city"))
	assert.Equal(t, time.Date(2023, 1, 15, 0, 0, 0, 0, time.UTC), docValue(t, docs[0], "signup_date"))
	assert.Equal(t, 430.5, docValue(t, docs[0], "monetary_total"))

	assert.Equal(t, "C-2", docValue(t, docs[1], "customer_id"))
	assert.Nil(t, docValue(t, docs[1], "signup_date"), "missing signup date stays null")
	assert.Equal(t, int64(1), docValue(t, docs[1], "churn_flag"))
}

func TestPredictedDocs(t *testing.T) {
	docs := predictedDocs(materializedDataset())
	require.Len(t, docs, 2)

	assert.Equal(t, 0.08, docValue(t, docs[0], "churn_probability"))
	assert.Equal(t, map[string]float64{"recency_days": -0.8}, docValue(t, docs[0], "churn_attribution"))
	assert.Equal(t, 2.1, docValue(t, docs[1], "predicted_satisfaction"))
}

func TestSegmentedDocs(t *testing.T) {
	docs := segmentedDocs(materializedDataset())
	require.Len(t, docs, 2)

	assert.Equal(t, int64(0), docValue(t, docs[0], "cluster_id"))
	assert.Equal(t, "Champions", docValue(t, docs[0], "segment_label"))
	assert.Equal(t, "At-Risk", docValue(t, docs[1], "segment_label"))
}

func TestCampaignDocs(t *testing.T) {
	docs := campaignDocs(materializedDataset())
	require.Len(t, docs, 1)

	assert.Equal(t, "CAMP-1", docValue(t, docs[0], "campaign_id"))
	assert.Equal(t, int64(1000), docValue(t, docs[0], "impressions"))
	assert.Equal(t, 3.0, docValue(t, docs[0], "return_on_investment"))
}
