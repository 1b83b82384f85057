package config

import (
	"errors"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg, err := fromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5, cfg.Posture.IntervalMinutes)
	assert.Equal(t, time.UTC, cfg.Posture.Location)
	assert.Equal(t, 200, cfg.Posture.LatestLimit)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 60*time.Second, cfg.TextGen.Timeout)
	assert.Equal(t, 24*time.Hour, cfg.Feedback.CacheTTL)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:9002"}, cfg.CORS.AllowedOrigins)
	assert.Empty(t, cfg.Archive.Bucket)
	assert.Empty(t, cfg.MQTT.BrokerURL)
	assert.Equal(t, "posture", cfg.MQTT.TopicPrefix)
}

func TestFromViperRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{name: "interval", key: "posture.intervalMinutes", val: 0},
		{name: "timezone", key: "posture.timezone", val: "Mars/Olympus"},
		{name: "duration", key: "server.readTimeout", val: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := viper.New()
			setDefaults(v)
			v.Set(tt.key, tt.val)

			_, err := fromViper(v)
			require.Error(t, err)

			var fieldErr *FieldError
			require.True(t, errors.As(err, &fieldErr))
			assert.Equal(t, tt.key, fieldErr.Key)
		})
	}
}

func TestFromViperStoreDriverIsLowercased(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("store.driver", "InfluxDB")

	cfg, err := fromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "influxdb", cfg.Store.Driver)
}

func TestParseCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseCSV(" a, ,b ,"))
	assert.Empty(t, parseCSV(""))
}
