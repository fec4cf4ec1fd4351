package lookup

import "time"

// ServiceResultView is the client-facing view of one service's outcome
// within a job status response.
type ServiceResultView struct {
	ServiceType  ServiceType    `json:"serviceType"`
	Success      bool           `json:"success"`
	Duration     time.Duration  `json:"duration"`
	CompletedAt  time.Time      `json:"completedAt"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// JobStatusView is the reconciled, client-facing status of one job, merged
// from the job record, the orchestration state (when still present), and the
// per-service result data. It is a read model only; nothing writes back
// through it.
type JobStatusView struct {
	JobID      string        `json:"jobId"`
	Target     string        `json:"target"`
	TargetKind TargetKind    `json:"targetKind"`
	Services   []ServiceType `json:"services"`

	Status            JobStatus `json:"status"`
	CompletionPercent float64   `json:"completionPercent"`

	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`

	// Results holds whatever per-service data could be fetched. A service
	// whose fetch failed appears in Warnings instead; a partial read
	// degrades the view, never the request.
	Results  map[ServiceType]ServiceResultView `json:"results,omitempty"`
	Warnings []string                          `json:"warnings,omitempty"`
}
