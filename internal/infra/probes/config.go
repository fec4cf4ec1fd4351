// Package probes contains the service-specific lookup implementations the
// worker fleet runs: geolocation, reachability, registration data, and
// reverse DNS. Each probe satisfies the worker execution template's Probe
// contract and performs exactly one external lookup per invocation.
package probes

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

//go:embed defaults.yaml
var defaultConfigYAML []byte

// Config carries the tunables for every probe. Values unset by the caller
// fall back to the embedded defaults.
type Config struct {
	GeoIP GeoIPConfig `mapstructure:"geoip"`
	Ping  PingConfig  `mapstructure:"ping"`
	RDAP  RDAPConfig  `mapstructure:"rdap"`
	RDNS  RDNSConfig  `mapstructure:"rdns"`
}

// GeoIPConfig configures the geolocation probe.
type GeoIPConfig struct {
	// Endpoint is the lookup URL with %s substituted by the target.
	Endpoint string `mapstructure:"endpoint"`

	// RequestsPerSecond and Burst bound outbound calls to the provider.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// PingConfig configures the reachability probe.
type PingConfig struct {
	// Ports are tried in order until one connects.
	Ports []string `mapstructure:"ports"`

	// DialTimeout bounds each connection attempt.
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// RDAPConfig configures the registration-data probe.
type RDAPConfig struct {
	// BootstrapDNSURL and BootstrapIPv4URL are the IANA registry files
	// mapping TLDs and IPv4 ranges to RDAP service base URLs.
	BootstrapDNSURL  string `mapstructure:"bootstrap_dns_url"`
	BootstrapIPv4URL string `mapstructure:"bootstrap_ipv4_url"`

	// BootstrapTTL is how long a fetched registry is served before a
	// refresh.
	BootstrapTTL time.Duration `mapstructure:"bootstrap_ttl"`

	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// RDNSConfig configures the reverse-DNS probe.
type RDNSConfig struct {
	// Timeout bounds the PTR resolution.
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig parses the embedded probe defaults.
func DefaultConfig() (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(defaultConfigYAML)); err != nil {
		return Config{}, fmt.Errorf("reading embedded probe defaults: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing embedded probe defaults: %w", err)
	}
	return cfg, nil
}
