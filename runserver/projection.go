package main

import (
	"time"

	"github.com/google/uuid"

	"github.com/pipetrace-labs/pipetrace-go/internal/domain"
)

// runBody is the identity slice of a run response: always present, never
// affected by the hydrate flag.
type runBody struct {
	RunID       string    `json:"run_id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	PipelineID  *string   `json:"pipeline_id"`
	StackID     string    `json:"stack_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// runHydrated extends the body with the expensive fields. A hydrated
// projection is always a superset of the body for the same run.
type runHydrated struct {
	runBody
	RuntimeConfiguration domain.Document `json:"runtime_configuration"`
	DAGPath              string          `json:"dag_path,omitempty"`
}

type stepBody struct {
	StepID         string    `json:"step_id"`
	RunID          string    `json:"run_id"`
	Name           string    `json:"name"`
	Status         string    `json:"status"`
	ComponentID    string    `json:"component_id,omitempty"`
	ExecutionOrder int       `json:"execution_order"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type stepHydrated struct {
	stepBody
	Inputs  domain.Document `json:"inputs"`
	Outputs domain.Document `json:"outputs"`
}

func projectRun(run domain.PipelineRun, hydrate bool) any {
	body := runBody{
		RunID:       run.ID.String(),
		WorkspaceID: run.WorkspaceID.String(),
		Name:        run.Name,
		PipelineID:  uuidPtrString(run.PipelineID),
		StackID:     run.StackID.String(),
		Status:      run.Status,
		CreatedAt:   run.CreatedAt,
		UpdatedAt:   run.UpdatedAt,
	}
	if !hydrate {
		return body
	}
	cfg := run.RuntimeConfiguration
	if cfg == nil {
		cfg = domain.Document{}
	}
	return runHydrated{
		runBody:              body,
		RuntimeConfiguration: cfg,
		DAGPath:              run.DAGPath,
	}
}

func projectRuns(runs []domain.PipelineRun, hydrate bool) []any {
	out := make([]any, 0, len(runs))
	for _, run := range runs {
		out = append(out, projectRun(run, hydrate))
	}
	return out
}

func projectStep(step domain.StepRun, hydrate bool) any {
	body := stepBody{
		StepID:         step.ID.String(),
		RunID:          step.RunID.String(),
		Name:           step.Name,
		Status:         step.Status,
		ComponentID:    step.ComponentID,
		ExecutionOrder: step.ExecutionOrder,
		CreatedAt:      step.CreatedAt,
		UpdatedAt:      step.UpdatedAt,
	}
	if !hydrate {
		return body
	}
	inputs := step.Inputs
	if inputs == nil {
		inputs = domain.Document{}
	}
	outputs := step.Outputs
	if outputs == nil {
		outputs = domain.Document{}
	}
	return stepHydrated{
		stepBody: body,
		Inputs:   inputs,
		Outputs:  outputs,
	}
}

func projectSteps(steps []domain.StepRun, hydrate bool) []any {
	out := make([]any, 0, len(steps))
	for _, step := range steps {
		out = append(out, projectStep(step, hydrate))
	}
	return out
}

func uuidPtrString(id *uuid.UUID) *string {
	if id == nil {
		return nil
	}
	s := id.String()
	return &s
}
