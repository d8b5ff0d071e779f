package runs

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/pipetrace-labs/pipetrace-go/internal/domain"
	"github.com/pipetrace-labs/pipetrace-go/internal/query"
	"github.com/pipetrace-labs/pipetrace-go/internal/repo"
)

// ErrMalformedID reports a request token that cannot be an identifier of the
// expected shape. Raised before any store call.
var ErrMalformedID = errors.New("malformed identifier")

type Service struct {
	store repo.RunStore
}

// New wires the service to its store. Both the store and the authorization
// gate are injected by the caller; nothing here reaches for globals.
func New(store repo.RunStore) *Service {
	if store == nil {
		return nil
	}
	return &Service{store: store}
}

// ListFilter carries the raw, still-unparsed query tokens of a list request.
type ListFilter struct {
	Workspace  string
	StackID    string
	PipelineID string
}

func (s *Service) ListRuns(ctx context.Context, raw ListFilter) ([]domain.PipelineRun, error) {
	filter := repo.RunFilter{Workspace: query.ParseOptional(raw.Workspace)}

	stackID, err := parseOptionalUUID("stack id", raw.StackID)
	if err != nil {
		return nil, err
	}
	filter.StackID = stackID

	pipelineID, err := parseOptionalUUID("pipeline id", raw.PipelineID)
	if err != nil {
		return nil, err
	}
	filter.PipelineID = pipelineID

	return s.store.ListRuns(ctx, filter)
}

func (s *Service) GetRun(ctx context.Context, rawRunID string) (domain.PipelineRun, error) {
	id, err := parseRunID(rawRunID)
	if err != nil {
		return domain.PipelineRun{}, err
	}
	return s.store.GetRun(ctx, id)
}

func (s *Service) DeleteRun(ctx context.Context, rawRunID string) error {
	id, err := parseRunID(rawRunID)
	if err != nil {
		return err
	}
	return s.store.DeleteRun(ctx, id)
}

func (s *Service) GetRunDAG(ctx context.Context, rawRunID string) (string, error) {
	id, err := parseRunID(rawRunID)
	if err != nil {
		return "", err
	}
	return s.store.GetRunDAG(ctx, id)
}

func (s *Service) ListRunSteps(ctx context.Context, rawRunID string) ([]domain.StepRun, error) {
	id, err := parseRunID(rawRunID)
	if err != nil {
		return nil, err
	}
	return s.store.ListRunSteps(ctx, id)
}

func (s *Service) GetRunRuntimeConfiguration(ctx context.Context, rawRunID string) (domain.Document, error) {
	id, err := parseRunID(rawRunID)
	if err != nil {
		return nil, err
	}
	return s.store.GetRunRuntimeConfiguration(ctx, id)
}

func (s *Service) GetRunComponentSideEffects(ctx context.Context, rawRunID, componentID string) (domain.Document, error) {
	id, err := parseRunID(rawRunID)
	if err != nil {
		return nil, err
	}
	componentID = strings.TrimSpace(componentID)
	if componentID == "" {
		return nil, fmt.Errorf("%w: component id is required", ErrMalformedID)
	}
	return s.store.GetRunComponentSideEffects(ctx, id, componentID)
}

func parseRunID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%w: run id is required", ErrMalformedID)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: run id %q", ErrMalformedID, raw)
	}
	return id, nil
}

func parseOptionalUUID(field, raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %q", ErrMalformedID, field, raw)
	}
	return &id, nil
}
