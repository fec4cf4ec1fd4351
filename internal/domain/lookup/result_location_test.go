package lookup

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultLocationValidate(t *testing.T) {
	expires := time.Now().UTC().Add(time.Hour)

	tests := []struct {
		name     string
		location ResultLocation
		wantErr  bool
	}{
		{
			name:     "redis location with expiry",
			location: NewResultLocation(StorageTypeRedis, "job:GEO_IP", &expires),
		},
		{
			name:     "memory location without expiry",
			location: NewResultLocation(StorageTypeMemory, "job:PING", nil),
		},
		{
			name:     "unknown storage type",
			location: NewResultLocation(StorageType("S3"), "job:PING", nil),
			wantErr:  true,
		},
		{
			name:     "empty key",
			location: NewResultLocation(StorageTypeRedis, "", nil),
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.location.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestResultKeyIsDeterministic(t *testing.T) {
	jobID := uuid.NewString()

	key := ResultKey(jobID, ServiceTypeRDAP)
	assert.Equal(t, jobID+":RDAP", key)
	assert.Equal(t, key, ResultKey(jobID, ServiceTypeRDAP))
	assert.NotEqual(t, key, ResultKey(jobID, ServiceTypePing))
}

func TestParseStorageType(t *testing.T) {
	st, err := ParseStorageType("REDIS")
	require.NoError(t, err)
	assert.Equal(t, StorageTypeRedis, st)

	st, err = ParseStorageType("MEMORY")
	require.NoError(t, err)
	assert.Equal(t, StorageTypeMemory, st)

	_, err = ParseStorageType("postgres")
	assert.Error(t, err)
}
