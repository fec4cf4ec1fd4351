package fileloader

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/netscout/internal/config"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadOverridesDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
broker:
  mode: kafka
  brokers: ["kafka-1:9092", "kafka-2:9092"]
  group_id: netscout-workers
redis:
  addr: redis-0:6379
  result_ttl: 6h
worker:
  services: ["PING", "GEO_IP"]
  probe_timeout: 3s
`)

	cfg, err := NewFileLoader(path).Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Broker.Brokers)
	assert.Equal(t, "netscout-workers", cfg.Broker.GroupID)
	assert.Equal(t, "redis-0:6379", cfg.Redis.Addr)
	assert.Equal(t, 6*time.Hour, cfg.Redis.ResultTTL)
	assert.Equal(t, 3*time.Second, cfg.Worker.ProbeTimeout)

	// Fields absent from the file keep their defaults.
	assert.Equal(t, config.Default().Broker.JobLifecycleTopic, cfg.Broker.JobLifecycleTopic)
	assert.Equal(t, config.Default().Redis.JobTTL, cfg.Redis.JobTTL)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		contents string
	}{
		{name: "unknown broker mode", contents: "broker:\n  mode: rabbitmq\n"},
		{name: "kafka without brokers", contents: "broker:\n  mode: kafka\n  brokers: []\n"},
		{name: "unsupported worker service", contents: "worker:\n  services: [\"TRACEROUTE\"]\n"},
		{name: "finalized ttl exceeds state ttl", contents: "redis:\n  state_ttl: 1h\n  finalized_state_ttl: 2h\n"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, tt.contents)
			_, err := NewFileLoader(path).Load(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewFileLoader(filepath.Join(t.TempDir(), "missing.yaml")).Load(context.Background())
	assert.Error(t, err)
}
