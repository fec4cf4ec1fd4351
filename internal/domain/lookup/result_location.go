package lookup

import (
	"fmt"
	"time"
)

// StorageType tags which backend a ResultLocation refers to. A location is
// meaningful only in combination with the store type it names; callers must
// resolve the type to a concrete store before fetching.
type StorageType string

const (
	// StorageTypeRedis identifies the key-value result store.
	StorageTypeRedis StorageType = "REDIS"

	// StorageTypeMemory identifies the in-process store used in tests and
	// dev mode.
	StorageTypeMemory StorageType = "MEMORY"
)

func (s StorageType) String() string { return string(s) }

// ParseStorageType converts a string to a StorageType.
func ParseStorageType(s string) (StorageType, error) {
	switch StorageType(s) {
	case StorageTypeRedis, StorageTypeMemory:
		return StorageType(s), nil
	default:
		return "", fmt.Errorf("unknown storage type: %q", s)
	}
}

// ResultLocation is an opaque, typed pointer to where a task's payload is
// stored, distinct from the payload itself. Completion notifications carry a
// location rather than the payload so the orchestrator never handles result
// data. Adding a new backend means adding a StorageType variant and a
// resolver registration, not touching existing variants.
type ResultLocation struct {
	// StorageType selects the backend holding the payload.
	StorageType StorageType `json:"storageType"`

	// Key is the backend-specific key under which the payload lives.
	Key string `json:"key"`

	// ExpiresAt, when set, records the point after which the backend may
	// have reaped the payload.
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

// NewResultLocation constructs a location for the given backend and key.
func NewResultLocation(storageType StorageType, key string, expiresAt *time.Time) ResultLocation {
	return ResultLocation{StorageType: storageType, Key: key, ExpiresAt: expiresAt}
}

// Validate checks the location names a known backend and a non-empty key.
func (l ResultLocation) Validate() error {
	if _, err := ParseStorageType(l.StorageType.String()); err != nil {
		return err
	}
	if l.Key == "" {
		return fmt.Errorf("result location key cannot be empty")
	}
	return nil
}

// ResultKey derives the deterministic composite key for one
// (job id, service type) pair. Repeated writes for the same pair overwrite
// rather than accumulate.
func ResultKey(jobID string, svc ServiceType) string {
	return fmt.Sprintf("%s:%s", jobID, svc)
}
