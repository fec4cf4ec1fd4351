// Package config defines the service configuration shared by the
// orchestrator and worker binaries.
package config

import (
	"fmt"
	"time"

	"github.com/ahrav/netscout/internal/domain/lookup"
)

// BrokerMode selects the event transport.
type BrokerMode string

const (
	// BrokerModeKafka runs against a Kafka cluster.
	BrokerModeKafka BrokerMode = "kafka"

	// BrokerModeMemory runs every component on an in-process bus. Intended
	// for development and single-binary demos only.
	BrokerModeMemory BrokerMode = "memory"
)

// BrokerConfig configures the event bus.
type BrokerConfig struct {
	Mode    BrokerMode `yaml:"mode"`
	Brokers []string   `yaml:"brokers"`

	JobLifecycleTopic  string `yaml:"job_lifecycle_topic"`
	CheckCommandTopic  string `yaml:"check_command_topic"`
	TaskCompletedTopic string `yaml:"task_completed_topic"`

	GroupID  string `yaml:"group_id"`
	ClientID string `yaml:"client_id"`
}

// RedisConfig configures the storage backend and the TTLs of each record
// class. The finalized-state TTL reaps completed orchestration instances
// early; the reconciler's fallback path covers reads after that.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	JobTTL            time.Duration `yaml:"job_ttl"`
	StateTTL          time.Duration `yaml:"state_ttl"`
	FinalizedStateTTL time.Duration `yaml:"finalized_state_ttl"`
	ResultTTL         time.Duration `yaml:"result_ttl"`
}

// WorkerConfig configures one worker binary.
type WorkerConfig struct {
	// Services enables a subset of probes in this process. Empty means all
	// supported services.
	Services []string `yaml:"services"`

	// ProbeTimeout bounds each probe invocation.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// Config is the top-level service configuration.
type Config struct {
	Broker BrokerConfig `yaml:"broker"`
	Redis  RedisConfig  `yaml:"redis"`
	Worker WorkerConfig `yaml:"worker"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Mode:               BrokerModeKafka,
			Brokers:            []string{"localhost:9092"},
			JobLifecycleTopic:  "lookup-job-lifecycle",
			CheckCommandTopic:  "lookup-check-commands",
			TaskCompletedTopic: "lookup-task-completed",
			GroupID:            "netscout",
		},
		Redis: RedisConfig{
			Addr:              "localhost:6379",
			JobTTL:            24 * time.Hour,
			StateTTL:          24 * time.Hour,
			FinalizedStateTTL: time.Hour,
			ResultTTL:         12 * time.Hour,
		},
		Worker: WorkerConfig{ProbeTimeout: 10 * time.Second},
	}
}

// Validate checks cross-field consistency.
func (c *Config) Validate() error {
	switch c.Broker.Mode {
	case BrokerModeKafka:
		if len(c.Broker.Brokers) == 0 {
			return fmt.Errorf("broker mode kafka requires at least one broker address")
		}
	case BrokerModeMemory:
	default:
		return fmt.Errorf("unknown broker mode %q", c.Broker.Mode)
	}

	for _, name := range c.Worker.Services {
		if _, err := lookup.ParseServiceType(name); err != nil {
			return fmt.Errorf("worker services: %w", err)
		}
	}

	if c.Redis.FinalizedStateTTL > c.Redis.StateTTL {
		return fmt.Errorf("finalized state TTL must not exceed the state TTL")
	}
	return nil
}

// EnabledServices resolves the worker's service set, defaulting to every
// supported service.
func (c *Config) EnabledServices() ([]lookup.ServiceType, error) {
	if len(c.Worker.Services) == 0 {
		return lookup.KnownServiceTypes(), nil
	}
	services := make([]lookup.ServiceType, 0, len(c.Worker.Services))
	for _, name := range c.Worker.Services {
		svc, err := lookup.ParseServiceType(name)
		if err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return lookup.DedupeServices(services), nil
}
