package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pipetrace-labs/pipetrace-go/internal/domain"
	"github.com/pipetrace-labs/pipetrace-go/internal/repo"
)

const (
	insertStepRunQuery = `INSERT INTO step_runs (
		step_run_id,
		run_id,
		step_name,
		status,
		component_id,
		inputs,
		outputs,
		execution_order,
		created_at,
		updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	listStepRunsByRunQuery = `SELECT step_run_id, run_id, step_name, status, component_id,
	 inputs, outputs, execution_order, created_at, updated_at
	 FROM step_runs
	 WHERE run_id = $1
	 ORDER BY execution_order ASC, created_at ASC, step_name ASC`

	updateStepRunStatusQuery = `UPDATE step_runs
	 SET status = $1, updated_at = $2
	 WHERE step_run_id = $3`

	upsertSideEffectQuery = `INSERT INTO component_side_effects (run_id, component_id, payload, recorded_at)
	 VALUES ($1,$2,$3,$4)
	 ON CONFLICT (run_id, component_id) DO UPDATE SET payload = EXCLUDED.payload, recorded_at = EXCLUDED.recorded_at`

	selectSideEffectQuery = `SELECT payload
	 FROM component_side_effects
	 WHERE run_id = $1 AND component_id = $2`
)

func (s *RunStore) CreateStepRun(ctx context.Context, step domain.StepRun) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := step.Validate(); err != nil {
		return err
	}
	inputsJSON, err := encodeDocument(step.Inputs)
	if err != nil {
		return fmt.Errorf("encode inputs: %w", err)
	}
	outputsJSON, err := encodeDocument(step.Outputs)
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}
	createdAt := normalizeTime(step.CreatedAt)
	updatedAt := step.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	_, err = s.db.ExecContext(
		ctx,
		insertStepRunQuery,
		step.ID,
		step.RunID,
		strings.TrimSpace(step.Name),
		strings.TrimSpace(step.Status),
		nullIfEmpty(step.ComponentID),
		inputsJSON,
		outputsJSON,
		step.ExecutionOrder,
		createdAt,
		updatedAt.UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return repo.ErrNotFound
		}
		return fmt.Errorf("insert step run: %w", err)
	}
	return nil
}

// ListRunSteps lists before checking run existence: steps read together with
// a concurrently deleted run still reflect the pre-delete state, while an
// empty result for a missing run surfaces ErrNotFound rather than [].
func (s *RunStore) ListRunSteps(ctx context.Context, runID uuid.UUID) ([]domain.StepRun, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}
	if runID == uuid.Nil {
		return nil, fmt.Errorf("run id is required")
	}

	rows, err := s.db.QueryContext(ctx, listStepRunsByRunQuery, runID)
	if err != nil {
		return nil, fmt.Errorf("list step runs: %w", err)
	}
	defer rows.Close()

	steps := make([]domain.StepRun, 0)
	for rows.Next() {
		step, err := scanStepRun(rows)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list step runs: %w", err)
	}

	if len(steps) == 0 {
		exists, err := s.runExists(ctx, runID)
		if err != nil {
			return nil, fmt.Errorf("check run: %w", err)
		}
		if !exists {
			return nil, repo.ErrNotFound
		}
	}
	return steps, nil
}

func (s *RunStore) UpdateStepRunStatus(ctx context.Context, id uuid.UUID, status string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if id == uuid.Nil {
		return fmt.Errorf("step run id is required")
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return fmt.Errorf("status is required")
	}
	res, err := s.db.ExecContext(ctx, updateStepRunStatusQuery, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update step run status: %w", err)
	}
	return requireAffected(res)
}

func (s *RunStore) RecordComponentSideEffect(ctx context.Context, runID uuid.UUID, componentID string, doc domain.Document) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if runID == uuid.Nil {
		return fmt.Errorf("run id is required")
	}
	componentID = strings.TrimSpace(componentID)
	if componentID == "" {
		return fmt.Errorf("component id is required")
	}
	payload, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode side effects: %w", err)
	}
	_, err = s.db.ExecContext(ctx, upsertSideEffectQuery, runID, componentID, payload, time.Now().UTC())
	if err != nil {
		if isForeignKeyViolation(err) {
			return repo.ErrNotFound
		}
		return fmt.Errorf("record side effects: %w", err)
	}
	return nil
}

func (s *RunStore) GetRunComponentSideEffects(ctx context.Context, runID uuid.UUID, componentID string) (domain.Document, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}
	if runID == uuid.Nil {
		return nil, fmt.Errorf("run id is required")
	}
	componentID = strings.TrimSpace(componentID)
	if componentID == "" {
		return nil, fmt.Errorf("component id is required")
	}

	var payload []byte
	err := s.db.QueryRowContext(ctx, selectSideEffectQuery, runID, componentID).Scan(&payload)
	if err != nil {
		if handleNotFound(err) != repo.ErrNotFound {
			return nil, fmt.Errorf("get side effects: %w", err)
		}
		exists, existsErr := s.runExists(ctx, runID)
		if existsErr != nil {
			return nil, fmt.Errorf("check run: %w", existsErr)
		}
		if !exists {
			return nil, repo.ErrNotFound
		}
		return nil, repo.ErrNoSideEffects
	}
	doc, err := decodeDocument(payload)
	if err != nil {
		return nil, fmt.Errorf("decode side effects: %w", err)
	}
	return doc, nil
}

func scanStepRun(scanner rowScanner) (domain.StepRun, error) {
	var step domain.StepRun
	var componentID sql.NullString
	var inputsJSON []byte
	var outputsJSON []byte
	if err := scanner.Scan(
		&step.ID,
		&step.RunID,
		&step.Name,
		&step.Status,
		&componentID,
		&inputsJSON,
		&outputsJSON,
		&step.ExecutionOrder,
		&step.CreatedAt,
		&step.UpdatedAt,
	); err != nil {
		return domain.StepRun{}, handleNotFound(err)
	}
	if componentID.Valid {
		step.ComponentID = componentID.String
	}
	inputs, err := decodeDocument(inputsJSON)
	if err != nil {
		return domain.StepRun{}, fmt.Errorf("decode inputs: %w", err)
	}
	outputs, err := decodeDocument(outputsJSON)
	if err != nil {
		return domain.StepRun{}, fmt.Errorf("decode outputs: %w", err)
	}
	step.Inputs = inputs
	step.Outputs = outputs
	step.CreatedAt = step.CreatedAt.UTC()
	step.UpdatedAt = step.UpdatedAt.UTC()
	return step, nil
}
