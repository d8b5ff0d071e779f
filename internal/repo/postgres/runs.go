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

// RunStore is the relational engine behind repo.RunStore.
type RunStore struct {
	db DB
}

func NewRunStore(db DB) *RunStore {
	if db == nil {
		return nil
	}
	return &RunStore{db: db}
}

const (
	runColumns = `run_id, workspace_id, name, pipeline_id, stack_id, status,
	 runtime_configuration, dag_path, created_at, updated_at`

	insertRunQuery = `INSERT INTO pipeline_runs (
		run_id,
		workspace_id,
		name,
		pipeline_id,
		stack_id,
		status,
		runtime_configuration,
		dag_path,
		created_at,
		updated_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`

	selectRunQuery = `SELECT ` + runColumns + `
	 FROM pipeline_runs
	 WHERE run_id = $1`

	updateRunStatusQuery = `UPDATE pipeline_runs
	 SET status = $1, updated_at = $2
	 WHERE run_id = $3`

	setRunDAGQuery = `UPDATE pipeline_runs
	 SET dag_path = $1, updated_at = $2
	 WHERE run_id = $3`

	selectRunDAGQuery = `SELECT dag_path FROM pipeline_runs WHERE run_id = $1`

	selectRunConfigurationQuery = `SELECT runtime_configuration
	 FROM pipeline_runs
	 WHERE run_id = $1`

	runExistsQuery = `SELECT 1 FROM pipeline_runs WHERE run_id = $1`
)

func (s *RunStore) CreateRun(ctx context.Context, run domain.PipelineRun) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	configJSON, err := encodeDocument(run.RuntimeConfiguration)
	if err != nil {
		return fmt.Errorf("encode runtime configuration: %w", err)
	}
	var pipelineID uuid.NullUUID
	if run.PipelineID != nil {
		pipelineID = uuid.NullUUID{UUID: *run.PipelineID, Valid: true}
	}
	createdAt := normalizeTime(run.CreatedAt)
	updatedAt := run.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	_, err = s.db.ExecContext(
		ctx,
		insertRunQuery,
		run.ID,
		run.WorkspaceID,
		strings.TrimSpace(run.Name),
		pipelineID,
		run.StackID,
		strings.TrimSpace(run.Status),
		configJSON,
		nullIfEmpty(run.DAGPath),
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
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *RunStore) GetRun(ctx context.Context, id uuid.UUID) (domain.PipelineRun, error) {
	if s == nil || s.db == nil {
		return domain.PipelineRun{}, fmt.Errorf("run store not initialized")
	}
	if id == uuid.Nil {
		return domain.PipelineRun{}, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRowContext(ctx, selectRunQuery, id)
	return scanRun(row)
}

func (s *RunStore) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.PipelineRun, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 3)

	if filter.Workspace.IsSet() {
		if id, ok := filter.Workspace.ID(); ok {
			args = append(args, id)
			clauses = append(clauses, fmt.Sprintf("workspace_id = $%d", len(args)))
		} else {
			args = append(args, filter.Workspace.Name())
			clauses = append(clauses, fmt.Sprintf(
				"workspace_id = (SELECT workspace_id FROM workspaces WHERE name = $%d)", len(args)))
		}
	}
	if filter.StackID != nil {
		args = append(args, *filter.StackID)
		clauses = append(clauses, fmt.Sprintf("stack_id = $%d", len(args)))
	}
	if filter.PipelineID != nil {
		args = append(args, *filter.PipelineID)
		clauses = append(clauses, fmt.Sprintf("pipeline_id = $%d", len(args)))
	}

	q := `SELECT ` + runColumns + ` FROM pipeline_runs`
	if len(clauses) > 0 {
		q += " WHERE " + strings.Join(clauses, " AND ")
	}
	q += " ORDER BY created_at ASC, run_id ASC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.PipelineRun, 0)
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// DeleteRun removes the run together with its step runs and side-effect
// documents. The three deletes commit or roll back as one unit.
func (s *RunStore) DeleteRun(ctx context.Context, id uuid.UUID) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if id == uuid.Nil {
		return fmt.Errorf("run id is required")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM component_side_effects WHERE run_id = $1`, id); err != nil {
		return fmt.Errorf("delete side effects: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM step_runs WHERE run_id = $1`, id); err != nil {
		return fmt.Errorf("delete step runs: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM pipeline_runs WHERE run_id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete run: %w", err)
	}
	return nil
}

func (s *RunStore) UpdateRunStatus(ctx context.Context, id uuid.UUID, status string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if id == uuid.Nil {
		return fmt.Errorf("run id is required")
	}
	status = strings.TrimSpace(status)
	if status == "" {
		return fmt.Errorf("status is required")
	}
	res, err := s.db.ExecContext(ctx, updateRunStatusQuery, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return requireAffected(res)
}

func (s *RunStore) SetRunDAG(ctx context.Context, id uuid.UUID, dagPath string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if id == uuid.Nil {
		return fmt.Errorf("run id is required")
	}
	dagPath = strings.TrimSpace(dagPath)
	if dagPath == "" {
		return fmt.Errorf("dag path is required")
	}
	res, err := s.db.ExecContext(ctx, setRunDAGQuery, dagPath, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set run dag: %w", err)
	}
	return requireAffected(res)
}

func (s *RunStore) GetRunDAG(ctx context.Context, id uuid.UUID) (string, error) {
	if s == nil || s.db == nil {
		return "", fmt.Errorf("run store not initialized")
	}
	if id == uuid.Nil {
		return "", fmt.Errorf("run id is required")
	}
	var dagPath sql.NullString
	if err := s.db.QueryRowContext(ctx, selectRunDAGQuery, id).Scan(&dagPath); err != nil {
		return "", handleNotFound(err)
	}
	if !dagPath.Valid || strings.TrimSpace(dagPath.String) == "" {
		return "", repo.ErrArtifactUnavailable
	}
	return dagPath.String, nil
}

func (s *RunStore) GetRunRuntimeConfiguration(ctx context.Context, id uuid.UUID) (domain.Document, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("run store not initialized")
	}
	if id == uuid.Nil {
		return nil, fmt.Errorf("run id is required")
	}
	var raw []byte
	if err := s.db.QueryRowContext(ctx, selectRunConfigurationQuery, id).Scan(&raw); err != nil {
		return nil, handleNotFound(err)
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, fmt.Errorf("decode runtime configuration: %w", err)
	}
	return doc, nil
}

func (s *RunStore) runExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, runExistsQuery, id).Scan(&one)
	if err != nil {
		if handleNotFound(err) == repo.ErrNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (domain.PipelineRun, error) {
	var run domain.PipelineRun
	var pipelineID uuid.NullUUID
	var configJSON []byte
	var dagPath sql.NullString
	if err := scanner.Scan(
		&run.ID,
		&run.WorkspaceID,
		&run.Name,
		&pipelineID,
		&run.StackID,
		&run.Status,
		&configJSON,
		&dagPath,
		&run.CreatedAt,
		&run.UpdatedAt,
	); err != nil {
		return domain.PipelineRun{}, handleNotFound(err)
	}
	if pipelineID.Valid {
		id := pipelineID.UUID
		run.PipelineID = &id
	}
	if dagPath.Valid {
		run.DAGPath = dagPath.String
	}
	config, err := decodeDocument(configJSON)
	if err != nil {
		return domain.PipelineRun{}, fmt.Errorf("decode runtime configuration: %w", err)
	}
	run.RuntimeConfiguration = config
	run.CreatedAt = run.CreatedAt.UTC()
	run.UpdatedAt = run.UpdatedAt.UTC()
	return run, nil
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
