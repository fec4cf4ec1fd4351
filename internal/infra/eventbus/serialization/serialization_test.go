package serialization

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/netscout/internal/domain/events"
	"github.com/ahrav/netscout/internal/domain/lookup"
)

func TestJobSubmittedEnvelopeRoundTrip(t *testing.T) {
	t.Parallel()

	target, err := lookup.NewTarget("example.com")
	require.NoError(t, err)
	original := lookup.NewJobSubmittedEvent(uuid.New(), target,
		[]lookup.ServiceType{lookup.ServiceTypeGeoIP, lookup.ServiceTypeRDAP})

	data, err := SerializeEventEnvelope(lookup.EventTypeJobSubmitted, original)
	require.NoError(t, err)

	eventType, payloadBytes, err := UnmarshalUniversalEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, lookup.EventTypeJobSubmitted, eventType)

	decoded, err := DeserializePayload(eventType, payloadBytes)
	require.NoError(t, err)
	evt, ok := decoded.(lookup.JobSubmittedEvent)
	require.True(t, ok)

	assert.Equal(t, original.JobID, evt.JobID)
	assert.Equal(t, original.Target, evt.Target)
	assert.Equal(t, original.TargetKind, evt.TargetKind)
	assert.Equal(t, original.Services, evt.Services)
}

func TestTaskCompletedEnvelopeCarriesLocationNotPayload(t *testing.T) {
	t.Parallel()

	expires := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	location := lookup.NewResultLocation(lookup.StorageTypeRedis, "result-key", &expires)
	original := lookup.NewTaskCompletedEvent(uuid.New(), lookup.ServiceTypePing,
		true, 230*time.Millisecond, "", &location)

	data, err := SerializeEventEnvelope(lookup.EventTypeTaskCompleted, original)
	require.NoError(t, err)

	eventType, payloadBytes, err := UnmarshalUniversalEnvelope(data)
	require.NoError(t, err)

	decoded, err := DeserializePayload(eventType, payloadBytes)
	require.NoError(t, err)
	evt, ok := decoded.(lookup.TaskCompletedEvent)
	require.True(t, ok)

	assert.Equal(t, original.JobID, evt.JobID)
	assert.True(t, evt.Success)
	assert.Equal(t, 230*time.Millisecond, evt.Duration)
	require.NotNil(t, evt.Location)
	assert.Equal(t, location.StorageType, evt.Location.StorageType)
	assert.Equal(t, location.Key, evt.Location.Key)
	require.NotNil(t, evt.Location.ExpiresAt)
	assert.True(t, expires.Equal(*evt.Location.ExpiresAt))
}

func TestCheckCommandRoundTripForEveryVariant(t *testing.T) {
	t.Parallel()

	target, err := lookup.NewTarget("8.8.8.8")
	require.NoError(t, err)

	for _, svc := range lookup.KnownServiceTypes() {
		eventType, err := lookup.CheckEventType(svc)
		require.NoError(t, err)

		original := lookup.NewCheckCommand(uuid.New(), svc, target)
		data, err := SerializeEventEnvelope(eventType, original)
		require.NoError(t, err)

		gotType, payloadBytes, err := UnmarshalUniversalEnvelope(data)
		require.NoError(t, err)
		assert.Equal(t, eventType, gotType)

		decoded, err := DeserializePayload(gotType, payloadBytes)
		require.NoError(t, err)
		cmd, ok := decoded.(lookup.CheckCommand)
		require.True(t, ok)
		assert.Equal(t, svc, cmd.ServiceType)
		assert.Equal(t, original.JobID, cmd.JobID)
		assert.Equal(t, "8.8.8.8", cmd.Target)
	}
}

func TestUnknownEventTypeRejected(t *testing.T) {
	t.Parallel()

	_, err := SerializePayload(events.EventType("Bogus"), struct{}{})
	assert.Error(t, err)

	_, err = DeserializePayload(events.EventType("Bogus"), []byte("{}"))
	assert.Error(t, err)
}

func TestSerializeRejectsWrongPayloadType(t *testing.T) {
	t.Parallel()

	_, err := SerializePayload(lookup.EventTypeJobSubmitted, lookup.CheckCommand{})
	assert.Error(t, err)
}

func TestUnmarshalUniversalEnvelopeValidation(t *testing.T) {
	t.Parallel()

	_, _, err := UnmarshalUniversalEnvelope([]byte("not json"))
	assert.Error(t, err)

	_, _, err = UnmarshalUniversalEnvelope([]byte(`{"payload":{}}`))
	assert.Error(t, err, "missing event type")
}
