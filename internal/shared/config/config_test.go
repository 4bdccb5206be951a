package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_PortsByService(t *testing.T) {
	cases := map[string][2]string{
		"market-service":         {"8083", "9099"},
		"wallet-service":         {"8082", "9098"},
		"market-indexer-worker":  {"", "9097"},
		"market-feed-service":    {"8080", "9095"},
		"yield-source-simulator": {"8085", "9094"},
		"api-gateway":            {"8000", "9093"},
	}
	for svc, ports := range cases {
		t.Run(svc, func(t *testing.T) {
			t.Setenv("SERVICE_NAME", svc)
			cfg := Load()
			assert.Equal(t, ports[0], cfg.HTTPPort)
			assert.Equal(t, ports[1], cfg.MetricsPort)
		})
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SERVICE_NAME", "market-service")
	t.Setenv("HTTP_PORT_MARKET", "18083")
	t.Setenv("MARKET_LOCK_TTL", "750ms")
	t.Setenv("MARKET_LOCK_WAIT", "3")
	t.Setenv("KAFKA_TOPIC_MARKET_EVENTS", "custom_events")

	cfg := Load()
	assert.Equal(t, "18083", cfg.HTTPPort)
	assert.Equal(t, 750*time.Millisecond, cfg.LockTTL)
	assert.Equal(t, 3*time.Second, cfg.LockWait)
	assert.Equal(t, "custom_events", cfg.TopicMarketEvents)
	assert.Equal(t, "local", cfg.Env)
}

func TestGetDuration_Fallback(t *testing.T) {
	t.Setenv("SOME_WAIT", "soon")
	assert.Equal(t, time.Minute, getDuration("SOME_WAIT", time.Minute))
	t.Setenv("SOME_WAIT", "")
	assert.Equal(t, time.Minute, getDuration("SOME_WAIT", time.Minute))
}
