// pkg/registry/schema.go
package registry

import "fmt"

// Status tracks how far a worker's implementation has progressed.
type Status string

const (
	StatusPlanned    Status = "planned"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusVerified   Status = "verified"
)

// ParseStatus accepts the four known statuses.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPlanned, StatusInProgress, StatusCompleted, StatusVerified:
		return st, nil
	}
	return "", fmt.Errorf("unknown implementation status %q", s)
}

// Deployable reports whether a worker with this status may be started.
func (s Status) Deployable() bool {
	return s == StatusCompleted || s == StatusVerified
}

// ActivityRegistry is the on-disk catalogue of job activities. Schemas are
// JSON Schema documents kept as decoded maps so the file round-trips.
type ActivityRegistry struct {
	Version     string     `json:"version"`
	LastUpdated string     `json:"lastUpdated"`
	Activities  []Activity `json:"activities"`
}

type Activity struct {
	ID                   string                 `json:"id"`
	DisplayName          string                 `json:"displayName"`
	Description          string                 `json:"description"`
	Category             string                 `json:"category"`
	Version              string                 `json:"version"`
	TaskType             string                 `json:"taskType"`
	ImplementationStatus Status                 `json:"implementationStatus"`
	InputSchema          map[string]interface{} `json:"inputSchema"`
	OutputSchema         map[string]interface{} `json:"outputSchema"`
	ErrorCodes           []string               `json:"errorCodes"`
	Timeout              string                 `json:"timeout"`
	Retries              int                    `json:"retries"`
	// Workflows lists the BPMN process ids that call this task type.
	Workflows []string `json:"workflows"`
	Tags      []string `json:"tags"`
}
