package lookup

import "fmt"

// ServiceType identifies one kind of network information lookup a job can
// request. The set of supported services is closed: dispatching requires an
// exhaustive mapping from service type to command, so an unknown type is a
// configuration error rather than a runtime skip.
type ServiceType string

const (
	// ServiceTypeGeoIP resolves the target to a geographic location.
	ServiceTypeGeoIP ServiceType = "GEO_IP"

	// ServiceTypePing measures reachability and round-trip time.
	ServiceTypePing ServiceType = "PING"

	// ServiceTypeRDAP fetches registration data for the target.
	ServiceTypeRDAP ServiceType = "RDAP"

	// ServiceTypeReverseDNS resolves the reverse name for an IP target.
	ServiceTypeReverseDNS ServiceType = "REVERSE_DNS"
)

func (s ServiceType) String() string { return string(s) }

// KnownServiceTypes returns all supported service types in a stable order.
func KnownServiceTypes() []ServiceType {
	return []ServiceType{
		ServiceTypeGeoIP,
		ServiceTypePing,
		ServiceTypeRDAP,
		ServiceTypeReverseDNS,
	}
}

// ParseServiceType converts a string to a ServiceType. It returns an error
// for anything outside the supported set.
func ParseServiceType(s string) (ServiceType, error) {
	switch ServiceType(s) {
	case ServiceTypeGeoIP, ServiceTypePing, ServiceTypeRDAP, ServiceTypeReverseDNS:
		return ServiceType(s), nil
	default:
		return "", fmt.Errorf("unsupported service type: %q", s)
	}
}

// DedupeServices returns the provided services with duplicates removed,
// preserving first-seen order. A job's requested service set is deduplicated
// at submission and immutable afterwards.
func DedupeServices(services []ServiceType) []ServiceType {
	seen := make(map[ServiceType]struct{}, len(services))
	out := make([]ServiceType, 0, len(services))
	for _, svc := range services {
		if _, ok := seen[svc]; ok {
			continue
		}
		seen[svc] = struct{}{}
		out = append(out, svc)
	}
	return out
}
