package lookup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServiceType(t *testing.T) {
	for _, svc := range KnownServiceTypes() {
		parsed, err := ParseServiceType(svc.String())
		require.NoError(t, err)
		assert.Equal(t, svc, parsed)
	}

	_, err := ParseServiceType("WHOIS")
	assert.Error(t, err)
	_, err = ParseServiceType("geo_ip")
	assert.Error(t, err, "service types are case sensitive on the wire")
}

func TestDedupeServices(t *testing.T) {
	tests := []struct {
		name string
		in   []ServiceType
		want []ServiceType
	}{
		{
			name: "duplicates removed preserving first-seen order",
			in:   []ServiceType{ServiceTypePing, ServiceTypeGeoIP, ServiceTypePing, ServiceTypeGeoIP},
			want: []ServiceType{ServiceTypePing, ServiceTypeGeoIP},
		},
		{
			name: "already unique set unchanged",
			in:   []ServiceType{ServiceTypeRDAP, ServiceTypeReverseDNS},
			want: []ServiceType{ServiceTypeRDAP, ServiceTypeReverseDNS},
		},
		{
			name: "empty input",
			in:   nil,
			want: []ServiceType{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DedupeServices(tt.in))
		})
	}
}

func TestCheckEventTypeMappingIsExhaustive(t *testing.T) {
	seen := make(map[string]struct{})
	for _, svc := range KnownServiceTypes() {
		et, err := CheckEventType(svc)
		require.NoError(t, err)
		seen[string(et)] = struct{}{}
	}
	assert.Len(t, seen, len(KnownServiceTypes()), "each service maps to a distinct command type")
	assert.Len(t, AllCheckEventTypes(), len(KnownServiceTypes()))

	_, err := CheckEventType(ServiceType("WHOIS"))
	assert.Error(t, err)
}
