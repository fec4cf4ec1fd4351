package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/netscout/internal/domain/lookup"
)

func TestDefaultValidates(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Default().Validate())
}

func TestEnabledServices(t *testing.T) {
	t.Parallel()

	cfg := Default()
	all, err := cfg.EnabledServices()
	require.NoError(t, err)
	assert.Equal(t, lookup.KnownServiceTypes(), all, "empty service list enables everything")

	cfg.Worker.Services = []string{"PING", "PING", "RDAP"}
	subset, err := cfg.EnabledServices()
	require.NoError(t, err)
	assert.Equal(t, []lookup.ServiceType{lookup.ServiceTypePing, lookup.ServiceTypeRDAP}, subset)

	cfg.Worker.Services = []string{"BOGUS"}
	_, err = cfg.EnabledServices()
	assert.Error(t, err)
}
