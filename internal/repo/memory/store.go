// Package memory holds a mutex-guarded reference implementation of
// repo.RunStore. It backs isolated tests and small single-process
// deployments; the cascade on delete happens under one lock, so readers
// never observe a half-deleted run.
package memory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pipetrace-labs/pipetrace-go/internal/domain"
	"github.com/pipetrace-labs/pipetrace-go/internal/query"
	"github.com/pipetrace-labs/pipetrace-go/internal/repo"
)

type sideEffectKey struct {
	runID       uuid.UUID
	componentID string
}

type Store struct {
	mu          sync.RWMutex
	workspaces  map[uuid.UUID]domain.Workspace
	runs        map[uuid.UUID]domain.PipelineRun
	steps       map[uuid.UUID]domain.StepRun
	sideEffects map[sideEffectKey]domain.Document
}

func NewStore() *Store {
	return &Store{
		workspaces:  make(map[uuid.UUID]domain.Workspace),
		runs:        make(map[uuid.UUID]domain.PipelineRun),
		steps:       make(map[uuid.UUID]domain.StepRun),
		sideEffects: make(map[sideEffectKey]domain.Document),
	}
}

var _ repo.RunStore = (*Store)(nil)

func (s *Store) CreateWorkspace(ctx context.Context, workspace domain.Workspace) error {
	if err := workspace.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[workspace.ID]; ok {
		return repo.ErrAlreadyExists
	}
	for _, existing := range s.workspaces {
		if existing.Name == workspace.Name {
			return repo.ErrAlreadyExists
		}
	}
	workspace.CreatedAt = normalizeTime(workspace.CreatedAt)
	s.workspaces[workspace.ID] = workspace
	return nil
}

func (s *Store) GetWorkspace(ctx context.Context, nameOrID query.NameOrID) (domain.Workspace, error) {
	if !nameOrID.IsSet() {
		return domain.Workspace{}, errors.New("workspace name or id is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if id, ok := nameOrID.ID(); ok {
		workspace, ok := s.workspaces[id]
		if !ok {
			return domain.Workspace{}, repo.ErrNotFound
		}
		return workspace, nil
	}
	for _, workspace := range s.workspaces {
		if workspace.Name == nameOrID.Name() {
			return workspace, nil
		}
	}
	return domain.Workspace{}, repo.ErrNotFound
}

func (s *Store) CreateRun(ctx context.Context, run domain.PipelineRun) error {
	if err := run.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; ok {
		return repo.ErrAlreadyExists
	}
	if _, ok := s.workspaces[run.WorkspaceID]; !ok {
		return repo.ErrNotFound
	}
	run.CreatedAt = normalizeTime(run.CreatedAt)
	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = run.CreatedAt
	}
	run.RuntimeConfiguration = run.RuntimeConfiguration.Clone()
	s.runs[run.ID] = run
	return nil
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return domain.PipelineRun{}, repo.ErrNotFound
	}
	return cloneRun(run), nil
}

func (s *Store) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.PipelineRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workspaceID, workspaceKnown := s.resolveWorkspaceFilterLocked(filter.Workspace)

	runs := make([]domain.PipelineRun, 0)
	for _, run := range s.runs {
		if filter.Workspace.IsSet() {
			if !workspaceKnown || run.WorkspaceID != workspaceID {
				continue
			}
		}
		if filter.StackID != nil && run.StackID != *filter.StackID {
			continue
		}
		if filter.PipelineID != nil {
			if run.PipelineID == nil || *run.PipelineID != *filter.PipelineID {
				continue
			}
		}
		runs = append(runs, cloneRun(run))
	}
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.Before(runs[j].CreatedAt)
		}
		return runs[i].ID.String() < runs[j].ID.String()
	})
	return runs, nil
}

func (s *Store) DeleteRun(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[id]; !ok {
		return repo.ErrNotFound
	}
	for stepID, step := range s.steps {
		if step.RunID == id {
			delete(s.steps, stepID)
		}
	}
	for key := range s.sideEffects {
		if key.runID == id {
			delete(s.sideEffects, key)
		}
	}
	delete(s.runs, id)
	return nil
}

func (s *Store) UpdateRunStatus(ctx context.Context, id uuid.UUID, status string) error {
	status = strings.TrimSpace(status)
	if status == "" {
		return errors.New("status is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	run.Status = status
	run.UpdatedAt = time.Now().UTC()
	s.runs[id] = run
	return nil
}

func (s *Store) SetRunDAG(ctx context.Context, id uuid.UUID, dagPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	run.DAGPath = strings.TrimSpace(dagPath)
	run.UpdatedAt = time.Now().UTC()
	s.runs[id] = run
	return nil
}

func (s *Store) GetRunDAG(ctx context.Context, id uuid.UUID) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return "", repo.ErrNotFound
	}
	if strings.TrimSpace(run.DAGPath) == "" {
		return "", repo.ErrArtifactUnavailable
	}
	return run.DAGPath, nil
}

func (s *Store) CreateStepRun(ctx context.Context, step domain.StepRun) error {
	if err := step.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.steps[step.ID]; ok {
		return repo.ErrAlreadyExists
	}
	if _, ok := s.runs[step.RunID]; !ok {
		return repo.ErrNotFound
	}
	step.CreatedAt = normalizeTime(step.CreatedAt)
	if step.UpdatedAt.IsZero() {
		step.UpdatedAt = step.CreatedAt
	}
	step.Inputs = step.Inputs.Clone()
	step.Outputs = step.Outputs.Clone()
	s.steps[step.ID] = step
	return nil
}

func (s *Store) ListRunSteps(ctx context.Context, runID uuid.UUID) ([]domain.StepRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; !ok {
		return nil, repo.ErrNotFound
	}
	steps := make([]domain.StepRun, 0)
	for _, step := range s.steps {
		if step.RunID == runID {
			steps = append(steps, cloneStep(step))
		}
	}
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].ExecutionOrder != steps[j].ExecutionOrder {
			return steps[i].ExecutionOrder < steps[j].ExecutionOrder
		}
		if !steps[i].CreatedAt.Equal(steps[j].CreatedAt) {
			return steps[i].CreatedAt.Before(steps[j].CreatedAt)
		}
		return steps[i].Name < steps[j].Name
	})
	return steps, nil
}

func (s *Store) UpdateStepRunStatus(ctx context.Context, id uuid.UUID, status string) error {
	status = strings.TrimSpace(status)
	if status == "" {
		return errors.New("status is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	step, ok := s.steps[id]
	if !ok {
		return repo.ErrNotFound
	}
	step.Status = status
	step.UpdatedAt = time.Now().UTC()
	s.steps[id] = step
	return nil
}

func (s *Store) GetRunRuntimeConfiguration(ctx context.Context, id uuid.UUID) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return run.RuntimeConfiguration.Clone(), nil
}

func (s *Store) RecordComponentSideEffect(ctx context.Context, runID uuid.UUID, componentID string, doc domain.Document) error {
	componentID = strings.TrimSpace(componentID)
	if componentID == "" {
		return errors.New("component id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[runID]; !ok {
		return repo.ErrNotFound
	}
	s.sideEffects[sideEffectKey{runID: runID, componentID: componentID}] = doc.Clone()
	return nil
}

func (s *Store) GetRunComponentSideEffects(ctx context.Context, runID uuid.UUID, componentID string) (domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.runs[runID]; !ok {
		return nil, repo.ErrNotFound
	}
	doc, ok := s.sideEffects[sideEffectKey{runID: runID, componentID: strings.TrimSpace(componentID)}]
	if !ok {
		return nil, repo.ErrNoSideEffects
	}
	return doc.Clone(), nil
}

func (s *Store) resolveWorkspaceFilterLocked(token query.NameOrID) (uuid.UUID, bool) {
	if !token.IsSet() {
		return uuid.Nil, false
	}
	if id, ok := token.ID(); ok {
		_, known := s.workspaces[id]
		return id, known
	}
	for _, workspace := range s.workspaces {
		if workspace.Name == token.Name() {
			return workspace.ID, true
		}
	}
	return uuid.Nil, false
}

func cloneRun(run domain.PipelineRun) domain.PipelineRun {
	run.RuntimeConfiguration = run.RuntimeConfiguration.Clone()
	if run.PipelineID != nil {
		id := *run.PipelineID
		run.PipelineID = &id
	}
	return run
}

func cloneStep(step domain.StepRun) domain.StepRun {
	step.Inputs = step.Inputs.Clone()
	step.Outputs = step.Outputs.Clone()
	return step
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
