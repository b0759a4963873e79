package consumer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClickHouseConfig(t *testing.T) {
	tests := []struct {
		name   string
		config map[string]interface{}
		want   ClickHouseConfig
		errMsg string
	}{
		{
			name: "valid config with pool defaults",
			config: map[string]interface{}{
				"address":  "localhost:9000",
				"database": "customer360",
				"username": "pipeline",
				"password": "secret",
			},
			want: ClickHouseConfig{
				Address: "localhost:9000", Database: "customer360",
				Username: "pipeline", Password: "secret",
				MaxOpenConns: 10, MaxIdleConns: 5,
			},
		},
		{
			name: "pool overrides",
			config: map[string]interface{}{
				"address":        "ch.internal:9000",
				"database":       "customer360",
				"username":       "pipeline",
				"password":       "secret",
				"max_open_conns": 20,
				"max_idle_conns": 8,
			},
			want: ClickHouseConfig{
				Address: "ch.internal:9000", Database: "customer360",
				Username: "pipeline", Password: "secret",
				MaxOpenConns: 20, MaxIdleConns: 8,
			},
		},
		{
			name:   "missing address",
			config: map[string]interface{}{"database": "d", "username": "u", "password": "p"},
			errMsg: "missing address in config",
		},
		{
			name:   "missing database",
			config: map[string]interface{}{"address": "a", "username": "u", "password": "p"},
			errMsg: "missing database in config",
		},
		{
			name:   "missing username",
			config: map[string]interface{}{"address": "a", "database": "d", "password": "p"},
			errMsg: "missing username in config",
		},
		{
			name:   "missing password",
			config: map[string]interface{}{"address": "a", "database": "d", "username": "u"},
			errMsg: "missing password in config",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseClickHouseConfig(tt.config)
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
