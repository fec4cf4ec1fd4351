package lookup

import "time"

// TaskMetadata captures what the orchestrator knows about one completed
// task: outcome, timing, and where the payload lives. It is created when a
// task-completed notification is consumed and never mutated afterwards;
// a duplicate notification for the same service overwrites wholesale
// (last-write-wins), which keeps at-least-once delivery safe.
type TaskMetadata struct {
	// Success reports whether the probe produced a usable result.
	Success bool `json:"success"`

	// Duration is how long the worker spent from validation start to just
	// before persistence.
	Duration time.Duration `json:"duration"`

	// CompletedAt is when the orchestrator recorded the completion.
	CompletedAt time.Time `json:"completedAt"`

	// ErrorMessage holds the probe or storage failure text, empty on success.
	ErrorMessage string `json:"errorMessage,omitempty"`

	// ResultLocation points at the persisted payload. Nil when the store
	// write itself failed; such a task is treated as failed-with-no-data.
	ResultLocation *ResultLocation `json:"resultLocation,omitempty"`
}

// WorkerResult is the actual payload for one (job id, service type) pair,
// written once by the worker and read many times by the reconciler. It
// expires independently of the orchestration state's lifecycle.
type WorkerResult struct {
	JobID        string        `json:"jobId"`
	ServiceType  ServiceType   `json:"serviceType"`
	Success      bool          `json:"success"`
	Duration     time.Duration `json:"duration"`
	CompletedAt  time.Time     `json:"completedAt"`
	ErrorMessage string        `json:"errorMessage,omitempty"`

	// Payload holds the probe's structured result, nil for failures.
	Payload map[string]any `json:"payload,omitempty"`
}
