// pkg/registry/registry.go
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"session-insights/internal/common/validation"
)

var (
	ErrActivityNotFound = errors.New("ACTIVITY_NOT_FOUND")
	ErrInvalidRegistry  = errors.New("INVALID_REGISTRY")
)

func LoadRegistry(path string) (*ActivityRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var reg ActivityRegistry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}
	return &reg, nil
}

// Save writes the registry as indented JSON, creating the directory.
func (r *ActivityRegistry) Save(path string) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal registry: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	return nil
}

// Find returns the activity registered for taskType.
func (r *ActivityRegistry) Find(taskType string) (*Activity, error) {
	for i := range r.Activities {
		if r.Activities[i].TaskType == taskType {
			return &r.Activities[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrActivityNotFound, taskType)
}

// Add appends an activity and bumps LastUpdated. IDs must be unique.
func (r *ActivityRegistry) Add(a Activity, now time.Time) error {
	if err := validation.ValidateActivityNaming(a.TaskType); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
	}
	for _, existing := range r.Activities {
		if existing.ID == a.ID {
			return fmt.Errorf("activity with ID %s already exists", a.ID)
		}
	}
	r.Activities = append(r.Activities, a)
	r.LastUpdated = now.UTC().Format(time.RFC3339)
	return nil
}

// Update sets one scalar field of the activity with the given id.
func (r *ActivityRegistry) Update(id, field, value string, now time.Time) error {
	var a *Activity
	for i := range r.Activities {
		if r.Activities[i].ID == id {
			a = &r.Activities[i]
			break
		}
	}
	if a == nil {
		return fmt.Errorf("%w: %s", ErrActivityNotFound, id)
	}

	switch field {
	case "status":
		st, err := ParseStatus(value)
		if err != nil {
			return err
		}
		a.ImplementationStatus = st
	case "version":
		a.Version = value
	case "displayName":
		a.DisplayName = value
	case "description":
		a.Description = value
	case "category":
		a.Category = value
	case "taskType":
		if err := validation.ValidateActivityNaming(value); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRegistry, err)
		}
		a.TaskType = value
	case "timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid timeout value: %w", err)
		}
		a.Timeout = value
	case "retries":
		retries, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid retries value: %w", err)
		}
		a.Retries = retries
	default:
		return fmt.Errorf("unknown field: %s", field)
	}
	r.LastUpdated = now.UTC().Format(time.RFC3339)
	return nil
}

// Validate checks required fields, id and task type uniqueness, and that
// every activity carries an input schema that compiles.
func (r *ActivityRegistry) Validate() error {
	if len(r.Activities) == 0 {
		return fmt.Errorf("%w: registry contains no activities", ErrInvalidRegistry)
	}

	ids := make(map[string]bool)
	taskTypes := make(map[string]bool)
	for _, a := range r.Activities {
		if a.ID == "" {
			return fmt.Errorf("%w: activity missing required field: ID", ErrInvalidRegistry)
		}
		if ids[a.ID] {
			return fmt.Errorf("%w: duplicate activity ID: %s", ErrInvalidRegistry, a.ID)
		}
		ids[a.ID] = true

		if a.DisplayName == "" {
			return fmt.Errorf("%w: activity %s missing required field: DisplayName", ErrInvalidRegistry, a.ID)
		}
		if a.Category == "" {
			return fmt.Errorf("%w: activity %s missing required field: Category", ErrInvalidRegistry, a.ID)
		}
		if a.TaskType == "" {
			return fmt.Errorf("%w: activity %s missing required field: TaskType", ErrInvalidRegistry, a.ID)
		}
		if err := validation.ValidateActivityNaming(a.TaskType); err != nil {
			return fmt.Errorf("%w: activity %s: %v", ErrInvalidRegistry, a.ID, err)
		}
		if taskTypes[a.TaskType] {
			return fmt.Errorf("%w: duplicate task type: %s", ErrInvalidRegistry, a.TaskType)
		}
		taskTypes[a.TaskType] = true

		if a.ImplementationStatus != "" {
			if _, err := ParseStatus(string(a.ImplementationStatus)); err != nil {
				return fmt.Errorf("%w: activity %s: %v", ErrInvalidRegistry, a.ID, err)
			}
		}

		if len(a.InputSchema) == 0 {
			return fmt.Errorf("%w: activity %s has no input schema", ErrInvalidRegistry, a.ID)
		}
		if _, err := a.InputValidator(); err != nil {
			return fmt.Errorf("%w: activity %s: %v", ErrInvalidRegistry, a.ID, err)
		}
	}
	return nil
}

// InputValidator compiles the activity's input schema.
func (a *Activity) InputValidator() (*validation.Schema, error) {
	return validation.CompileValue(a.InputSchema)
}

// TimeoutDuration parses Timeout, falling back to def when it is unset or
// malformed.
func (a *Activity) TimeoutDuration(def time.Duration) time.Duration {
	d, err := time.ParseDuration(a.Timeout)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
