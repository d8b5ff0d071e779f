package repo

import (
	"context"

	"github.com/google/uuid"

	"github.com/pipetrace-labs/pipetrace-go/internal/domain"
	"github.com/pipetrace-labs/pipetrace-go/internal/query"
)

// RunFilter narrows ListRuns. Unset fields mean "no constraint on that
// dimension"; set fields combine with logical AND. Workspace accepts a name
// or an id; stack and pipeline are ids only.
type RunFilter struct {
	Workspace  query.NameOrID
	StackID    *uuid.UUID
	PipelineID *uuid.UUID
}

// RunStore owns pipeline-run records, their step runs, and derived artifacts.
// Reads racing a DeleteRun observe the run either fully present or fully
// gone; the cascade commits as one atomic unit.
type RunStore interface {
	// CreateWorkspace registers an ownership scope for runs.
	CreateWorkspace(ctx context.Context, workspace domain.Workspace) error
	// GetWorkspace resolves a workspace by id or unique name.
	GetWorkspace(ctx context.Context, nameOrID query.NameOrID) (domain.Workspace, error)

	// CreateRun records a new run. Identity fields are immutable afterwards.
	CreateRun(ctx context.Context, run domain.PipelineRun) error
	// GetRun fails with ErrNotFound when no run carries the id.
	GetRun(ctx context.Context, id uuid.UUID) (domain.PipelineRun, error)
	// ListRuns returns matching runs ordered by creation time ascending,
	// run id ascending. No match yields an empty slice, never an error.
	ListRuns(ctx context.Context, filter RunFilter) ([]domain.PipelineRun, error)
	// DeleteRun removes the run, its step runs, and its side-effect
	// documents in one transaction. A second delete of the same id fails
	// with ErrNotFound.
	DeleteRun(ctx context.Context, id uuid.UUID) error
	// UpdateRunStatus mutates exactly the run's status and updated-at.
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status string) error

	// SetRunDAG records the locator of the rendered DAG visualization.
	SetRunDAG(ctx context.Context, id uuid.UUID, dagPath string) error
	// GetRunDAG returns the DAG artifact locator; ErrArtifactUnavailable
	// when the run exists but no visualization was rendered yet.
	GetRunDAG(ctx context.Context, id uuid.UUID) (string, error)

	// CreateStepRun records a step execution under an existing run.
	CreateStepRun(ctx context.Context, step domain.StepRun) error
	// ListRunSteps returns the run's steps in execution order. The run must
	// exist: a deleted or unknown run fails with ErrNotFound.
	ListRunSteps(ctx context.Context, runID uuid.UUID) ([]domain.StepRun, error)
	// UpdateStepRunStatus mutates exactly the step's status and updated-at.
	UpdateStepRunStatus(ctx context.Context, id uuid.UUID, status string) error

	// GetRunRuntimeConfiguration returns the configuration snapshot the run
	// was launched with.
	GetRunRuntimeConfiguration(ctx context.Context, id uuid.UUID) (domain.Document, error)

	// RecordComponentSideEffect upserts the side-effect document for one
	// (run, component) pair.
	RecordComponentSideEffect(ctx context.Context, runID uuid.UUID, componentID string, doc domain.Document) error
	// GetRunComponentSideEffects fails with ErrNoSideEffects when the run
	// exists but the component recorded nothing.
	GetRunComponentSideEffects(ctx context.Context, runID uuid.UUID, componentID string) (domain.Document, error)
}
