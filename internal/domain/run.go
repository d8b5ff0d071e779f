package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Run statuses reported by the execution engine.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCached    = "cached"
)

// PipelineRun is one execution instance of a pipeline. Identity fields
// (workspace, pipeline, stack linkage) never change after creation; only
// Status, DAGPath, and UpdatedAt mutate.
type PipelineRun struct {
	ID          uuid.UUID
	WorkspaceID uuid.UUID
	Name        string

	// PipelineID is nil when the originating pipeline definition was removed
	// after the run was recorded.
	PipelineID *uuid.UUID
	StackID    uuid.UUID

	Status               string
	RuntimeConfiguration Document

	// DAGPath locates the rendered DAG visualization in the object store.
	// Empty until the renderer has produced one.
	DAGPath string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (r PipelineRun) Validate() error {
	if r.ID == uuid.Nil {
		return errors.New("run id is required")
	}
	if r.WorkspaceID == uuid.Nil {
		return errors.New("workspace id is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("run name is required")
	}
	if r.StackID == uuid.Nil {
		return errors.New("stack id is required")
	}
	if strings.TrimSpace(r.Status) == "" {
		return errors.New("status is required")
	}
	return nil
}

// StepRun is one step's execution within a run. ExecutionOrder is the
// topological index of the step in the pipeline DAG; steps created before
// full topological order is known carry the order they were created in.
type StepRun struct {
	ID          uuid.UUID
	RunID       uuid.UUID
	Name        string
	Status      string
	ComponentID string

	Inputs  Document
	Outputs Document

	ExecutionOrder int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (s StepRun) Validate() error {
	if s.ID == uuid.Nil {
		return errors.New("step run id is required")
	}
	if s.RunID == uuid.Nil {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(s.Name) == "" {
		return errors.New("step name is required")
	}
	if strings.TrimSpace(s.Status) == "" {
		return errors.New("status is required")
	}
	if s.ExecutionOrder < 0 {
		return errors.New("execution order must be >= 0")
	}
	return nil
}
