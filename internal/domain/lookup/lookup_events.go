package lookup

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ahrav/netscout/internal/domain/events"
)

// Event types relevant to lookup jobs.
const (
	EventTypeJobSubmitted  events.EventType = "JobSubmitted"
	EventTypeTaskCompleted events.EventType = "TaskCompleted"

	// One check command variant per supported service type. The dispatch
	// mapping from service type to command type is exhaustive; an unmapped
	// type faults the submission.
	EventTypeCheckGeoIP      events.EventType = "CheckGeoIP"
	EventTypeCheckPing       events.EventType = "CheckPing"
	EventTypeCheckRDAP       events.EventType = "CheckRDAP"
	EventTypeCheckReverseDNS events.EventType = "CheckReverseDNS"
)

// CheckEventType returns the command event type for a service type.
// It errors for service types outside the supported set: the mapping must be
// exhaustive, so an unknown type is a configuration fault, not a skip.
func CheckEventType(svc ServiceType) (events.EventType, error) {
	switch svc {
	case ServiceTypeGeoIP:
		return EventTypeCheckGeoIP, nil
	case ServiceTypePing:
		return EventTypeCheckPing, nil
	case ServiceTypeRDAP:
		return EventTypeCheckRDAP, nil
	case ServiceTypeReverseDNS:
		return EventTypeCheckReverseDNS, nil
	default:
		return "", fmt.Errorf("no check command mapped for service type %q", svc)
	}
}

// AllCheckEventTypes returns the command event types for every supported
// service, for worker-side subscription.
func AllCheckEventTypes() []events.EventType {
	return []events.EventType{
		EventTypeCheckGeoIP,
		EventTypeCheckPing,
		EventTypeCheckRDAP,
		EventTypeCheckReverseDNS,
	}
}

// JobSubmittedEvent signals that a new lookup job was created and its
// commands should be dispatched. The job id is the correlation id.
type JobSubmittedEvent struct {
	occurredAt time.Time

	JobID      uuid.UUID     `json:"jobId"`
	Target     string        `json:"target"`
	TargetKind TargetKind    `json:"targetKind"`
	Services   []ServiceType `json:"services"`
}

// NewJobSubmittedEvent creates a new job submitted event.
func NewJobSubmittedEvent(jobID uuid.UUID, target Target, services []ServiceType) JobSubmittedEvent {
	return JobSubmittedEvent{
		occurredAt: time.Now().UTC(),
		JobID:      jobID,
		Target:     target.Value(),
		TargetKind: target.Kind(),
		Services:   services,
	}
}

func (e JobSubmittedEvent) EventType() events.EventType { return EventTypeJobSubmitted }
func (e JobSubmittedEvent) OccurredAt() time.Time       { return e.occurredAt }

// CheckCommand instructs one worker to run one service's probe against the
// target. The wire shape is identical for every service; the event type
// routes it to the right worker.
type CheckCommand struct {
	occurredAt time.Time

	JobID       uuid.UUID   `json:"jobId"`
	ServiceType ServiceType `json:"serviceType"`
	Target      string      `json:"target"`
	TargetKind  TargetKind  `json:"targetKind"`
}

// NewCheckCommand creates the check command for one (job, service) pair.
func NewCheckCommand(jobID uuid.UUID, svc ServiceType, target Target) CheckCommand {
	return CheckCommand{
		occurredAt:  time.Now().UTC(),
		JobID:       jobID,
		ServiceType: svc,
		Target:      target.Value(),
		TargetKind:  target.Kind(),
	}
}

func (c CheckCommand) EventType() events.EventType {
	et, err := CheckEventType(c.ServiceType)
	if err != nil {
		// Commands are only constructed through the exhaustive dispatch
		// mapping; hitting this means a variant was added without one.
		panic(err)
	}
	return et
}
func (c CheckCommand) OccurredAt() time.Time { return c.occurredAt }

// TaskCompletedEvent is the completion notification one worker emits after
// persisting its outcome. It carries only the result location, never the
// payload; persistence happens-before this notification.
type TaskCompletedEvent struct {
	occurredAt time.Time

	JobID        uuid.UUID       `json:"jobId"`
	ServiceType  ServiceType     `json:"serviceType"`
	Success      bool            `json:"success"`
	Duration     time.Duration   `json:"durationMs"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	Location     *ResultLocation `json:"resultLocation,omitempty"`
}

// NewTaskCompletedEvent creates a new task completed notification.
// A nil location marks a task whose store write failed; the orchestrator
// treats it as failed-with-no-data rather than blocking.
func NewTaskCompletedEvent(
	jobID uuid.UUID,
	svc ServiceType,
	success bool,
	duration time.Duration,
	errorMessage string,
	location *ResultLocation,
) TaskCompletedEvent {
	return TaskCompletedEvent{
		occurredAt:   time.Now().UTC(),
		JobID:        jobID,
		ServiceType:  svc,
		Success:      success,
		Duration:     duration,
		ErrorMessage: errorMessage,
		Location:     location,
	}
}

func (e TaskCompletedEvent) EventType() events.EventType { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) OccurredAt() time.Time       { return e.occurredAt }
