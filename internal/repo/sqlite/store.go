// Package sqlite holds the embedded repo.RunStore engine, for single-node
// deployments that cannot carry a postgres. Timestamps are persisted as
// unix nanoseconds so ordering stays exact across the round trip.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlitedrv "modernc.org/sqlite" // pure go sqlite driver
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/pipetrace-labs/pipetrace-go/internal/domain"
	"github.com/pipetrace-labs/pipetrace-go/internal/query"
	"github.com/pipetrace-labs/pipetrace-go/internal/repo"
)

const schema = `
CREATE TABLE IF NOT EXISTS workspaces (
	workspace_id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL REFERENCES workspaces(workspace_id),
	name TEXT NOT NULL,
	pipeline_id TEXT,
	stack_id TEXT NOT NULL,
	status TEXT NOT NULL,
	runtime_configuration TEXT NOT NULL DEFAULT '{}',
	dag_path TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS step_runs (
	step_run_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL REFERENCES pipeline_runs(run_id),
	step_name TEXT NOT NULL,
	status TEXT NOT NULL,
	component_id TEXT,
	inputs TEXT NOT NULL DEFAULT '{}',
	outputs TEXT NOT NULL DEFAULT '{}',
	execution_order INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (run_id, step_name)
);
CREATE TABLE IF NOT EXISTS component_side_effects (
	run_id TEXT NOT NULL REFERENCES pipeline_runs(run_id),
	component_id TEXT NOT NULL,
	payload TEXT NOT NULL DEFAULT '{}',
	recorded_at INTEGER NOT NULL,
	PRIMARY KEY (run_id, component_id)
);
`

type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and bootstraps the schema.
// Use ":memory:" for an ephemeral store.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// The cascade delete transaction assumes a single connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("run store not initialized")
	}
	return s.db.PingContext(ctx)
}

var _ repo.RunStore = (*Store)(nil)

func (s *Store) CreateWorkspace(ctx context.Context, workspace domain.Workspace) error {
	if err := workspace.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO workspaces (workspace_id, name, created_at) VALUES (?, ?, ?)`,
		workspace.ID.String(),
		workspace.Name,
		normalizeTime(workspace.CreatedAt).UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrAlreadyExists
		}
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

func (s *Store) GetWorkspace(ctx context.Context, nameOrID query.NameOrID) (domain.Workspace, error) {
	if !nameOrID.IsSet() {
		return domain.Workspace{}, errors.New("workspace name or id is required")
	}
	var (
		row       *sql.Row
		rawID     string
		name      string
		createdAt int64
	)
	if id, ok := nameOrID.ID(); ok {
		row = s.db.QueryRowContext(ctx,
			`SELECT workspace_id, name, created_at FROM workspaces WHERE workspace_id = ?`, id.String())
	} else {
		row = s.db.QueryRowContext(ctx,
			`SELECT workspace_id, name, created_at FROM workspaces WHERE name = ?`, nameOrID.Name())
	}
	if err := row.Scan(&rawID, &name, &createdAt); err != nil {
		return domain.Workspace{}, handleNotFound(err)
	}
	id, err := uuid.Parse(rawID)
	if err != nil {
		return domain.Workspace{}, fmt.Errorf("parse workspace id: %w", err)
	}
	return domain.Workspace{ID: id, Name: name, CreatedAt: fromNanos(createdAt)}, nil
}

func (s *Store) CreateRun(ctx context.Context, run domain.PipelineRun) error {
	if err := run.Validate(); err != nil {
		return err
	}
	configJSON, err := encodeDocument(run.RuntimeConfiguration)
	if err != nil {
		return fmt.Errorf("encode runtime configuration: %w", err)
	}
	var pipelineID any
	if run.PipelineID != nil {
		pipelineID = run.PipelineID.String()
	}
	createdAt := normalizeTime(run.CreatedAt)
	updatedAt := run.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO pipeline_runs (
			run_id, workspace_id, name, pipeline_id, stack_id, status,
			runtime_configuration, dag_path, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		run.ID.String(),
		run.WorkspaceID.String(),
		strings.TrimSpace(run.Name),
		pipelineID,
		run.StackID.String(),
		strings.TrimSpace(run.Status),
		string(configJSON),
		nullIfEmpty(run.DAGPath),
		createdAt.UnixNano(),
		updatedAt.UTC().UnixNano(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repo.ErrNotFound
		}
		if isUniqueViolation(err) {
			return repo.ErrAlreadyExists
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (domain.PipelineRun, error) {
	if id == uuid.Nil {
		return domain.PipelineRun{}, errors.New("run id is required")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, workspace_id, name, pipeline_id, stack_id, status,
		 runtime_configuration, dag_path, created_at, updated_at
		 FROM pipeline_runs WHERE run_id = ?`, id.String())
	return scanRun(row)
}

func (s *Store) ListRuns(ctx context.Context, filter repo.RunFilter) ([]domain.PipelineRun, error) {
	clauses := make([]string, 0, 3)
	args := make([]any, 0, 3)

	if filter.Workspace.IsSet() {
		if id, ok := filter.Workspace.ID(); ok {
			clauses = append(clauses, "workspace_id = ?")
			args = append(args, id.String())
		} else {
			clauses = append(clauses, "workspace_id = (SELECT workspace_id FROM workspaces WHERE name = ?)")
			args = append(args, filter.Workspace.Name())
		}
	}
	if filter.StackID != nil {
		clauses = append(clauses, "stack_id = ?")
		args = append(args, filter.StackID.String())
	}
	if filter.PipelineID != nil {
		clauses = append(clauses, "pipeline_id = ?")
		args = append(args, filter.PipelineID.String())
	}

	q := `SELECT run_id, workspace_id, name, pipeline_id, stack_id, status,
	 runtime_configuration, dag_path, created_at, updated_at
	 FROM pipeline_runs`
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

func (s *Store) DeleteRun(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return errors.New("run id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete run: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM component_side_effects WHERE run_id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete side effects: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM step_runs WHERE run_id = ?`, id.String()); err != nil {
		return fmt.Errorf("delete step runs: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM pipeline_runs WHERE run_id = ?`, id.String())
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

func (s *Store) UpdateRunStatus(ctx context.Context, id uuid.UUID, status string) error {
	status = strings.TrimSpace(status)
	if status == "" {
		return errors.New("status is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET status = ?, updated_at = ? WHERE run_id = ?`,
		status, time.Now().UTC().UnixNano(), id.String())
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) SetRunDAG(ctx context.Context, id uuid.UUID, dagPath string) error {
	dagPath = strings.TrimSpace(dagPath)
	if dagPath == "" {
		return errors.New("dag path is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE pipeline_runs SET dag_path = ?, updated_at = ? WHERE run_id = ?`,
		dagPath, time.Now().UTC().UnixNano(), id.String())
	if err != nil {
		return fmt.Errorf("set run dag: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) GetRunDAG(ctx context.Context, id uuid.UUID) (string, error) {
	var dagPath sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT dag_path FROM pipeline_runs WHERE run_id = ?`, id.String()).Scan(&dagPath)
	if err != nil {
		return "", handleNotFound(err)
	}
	if !dagPath.Valid || strings.TrimSpace(dagPath.String) == "" {
		return "", repo.ErrArtifactUnavailable
	}
	return dagPath.String, nil
}

func (s *Store) CreateStepRun(ctx context.Context, step domain.StepRun) error {
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
		`INSERT INTO step_runs (
			step_run_id, run_id, step_name, status, component_id,
			inputs, outputs, execution_order, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		step.ID.String(),
		step.RunID.String(),
		strings.TrimSpace(step.Name),
		strings.TrimSpace(step.Status),
		nullIfEmpty(step.ComponentID),
		string(inputsJSON),
		string(outputsJSON),
		step.ExecutionOrder,
		createdAt.UnixNano(),
		updatedAt.UTC().UnixNano(),
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return repo.ErrNotFound
		}
		if isUniqueViolation(err) {
			return repo.ErrAlreadyExists
		}
		return fmt.Errorf("insert step run: %w", err)
	}
	return nil
}

func (s *Store) ListRunSteps(ctx context.Context, runID uuid.UUID) ([]domain.StepRun, error) {
	if runID == uuid.Nil {
		return nil, errors.New("run id is required")
	}
	if s.runAbsent(ctx, runID) {
		return nil, repo.ErrNotFound
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT step_run_id, run_id, step_name, status, component_id,
		 inputs, outputs, execution_order, created_at, updated_at
		 FROM step_runs
		 WHERE run_id = ?
		 ORDER BY execution_order ASC, created_at ASC, step_name ASC`, runID.String())
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
	return steps, nil
}

func (s *Store) UpdateStepRunStatus(ctx context.Context, id uuid.UUID, status string) error {
	status = strings.TrimSpace(status)
	if status == "" {
		return errors.New("status is required")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE step_runs SET status = ?, updated_at = ? WHERE step_run_id = ?`,
		status, time.Now().UTC().UnixNano(), id.String())
	if err != nil {
		return fmt.Errorf("update step run status: %w", err)
	}
	return requireAffected(res)
}

func (s *Store) GetRunRuntimeConfiguration(ctx context.Context, id uuid.UUID) (domain.Document, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT runtime_configuration FROM pipeline_runs WHERE run_id = ?`, id.String()).Scan(&raw)
	if err != nil {
		return nil, handleNotFound(err)
	}
	doc, err := decodeDocument([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("decode runtime configuration: %w", err)
	}
	return doc, nil
}

func (s *Store) RecordComponentSideEffect(ctx context.Context, runID uuid.UUID, componentID string, doc domain.Document) error {
	componentID = strings.TrimSpace(componentID)
	if componentID == "" {
		return errors.New("component id is required")
	}
	payload, err := encodeDocument(doc)
	if err != nil {
		return fmt.Errorf("encode side effects: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO component_side_effects (run_id, component_id, payload, recorded_at)
		 VALUES (?,?,?,?)
		 ON CONFLICT (run_id, component_id) DO UPDATE SET payload = excluded.payload, recorded_at = excluded.recorded_at`,
		runID.String(), componentID, string(payload), time.Now().UTC().UnixNano())
	if err != nil {
		if isForeignKeyViolation(err) {
			return repo.ErrNotFound
		}
		return fmt.Errorf("record side effects: %w", err)
	}
	return nil
}

func (s *Store) GetRunComponentSideEffects(ctx context.Context, runID uuid.UUID, componentID string) (domain.Document, error) {
	componentID = strings.TrimSpace(componentID)
	if componentID == "" {
		return nil, errors.New("component id is required")
	}
	if s.runAbsent(ctx, runID) {
		return nil, repo.ErrNotFound
	}
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM component_side_effects WHERE run_id = ? AND component_id = ?`,
		runID.String(), componentID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repo.ErrNoSideEffects
		}
		return nil, fmt.Errorf("get side effects: %w", err)
	}
	doc, err := decodeDocument([]byte(payload))
	if err != nil {
		return nil, fmt.Errorf("decode side effects: %w", err)
	}
	return doc, nil
}

func (s *Store) runAbsent(ctx context.Context, id uuid.UUID) bool {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM pipeline_runs WHERE run_id = ?`, id.String()).Scan(&one)
	return errors.Is(err, sql.ErrNoRows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(scanner rowScanner) (domain.PipelineRun, error) {
	var (
		rawID       string
		rawWS       string
		name        string
		rawPipeline sql.NullString
		rawStack    string
		status      string
		configJSON  string
		dagPath     sql.NullString
		createdAt   int64
		updatedAt   int64
	)
	if err := scanner.Scan(&rawID, &rawWS, &name, &rawPipeline, &rawStack, &status,
		&configJSON, &dagPath, &createdAt, &updatedAt); err != nil {
		return domain.PipelineRun{}, handleNotFound(err)
	}
	run := domain.PipelineRun{Name: name, Status: status}
	var err error
	if run.ID, err = uuid.Parse(rawID); err != nil {
		return domain.PipelineRun{}, fmt.Errorf("parse run id: %w", err)
	}
	if run.WorkspaceID, err = uuid.Parse(rawWS); err != nil {
		return domain.PipelineRun{}, fmt.Errorf("parse workspace id: %w", err)
	}
	if run.StackID, err = uuid.Parse(rawStack); err != nil {
		return domain.PipelineRun{}, fmt.Errorf("parse stack id: %w", err)
	}
	if rawPipeline.Valid {
		id, err := uuid.Parse(rawPipeline.String)
		if err != nil {
			return domain.PipelineRun{}, fmt.Errorf("parse pipeline id: %w", err)
		}
		run.PipelineID = &id
	}
	if dagPath.Valid {
		run.DAGPath = dagPath.String
	}
	if run.RuntimeConfiguration, err = decodeDocument([]byte(configJSON)); err != nil {
		return domain.PipelineRun{}, fmt.Errorf("decode runtime configuration: %w", err)
	}
	run.CreatedAt = fromNanos(createdAt)
	run.UpdatedAt = fromNanos(updatedAt)
	return run, nil
}

func scanStepRun(scanner rowScanner) (domain.StepRun, error) {
	var (
		rawID       string
		rawRunID    string
		name        string
		status      string
		componentID sql.NullString
		inputsJSON  string
		outputsJSON string
		order       int
		createdAt   int64
		updatedAt   int64
	)
	if err := scanner.Scan(&rawID, &rawRunID, &name, &status, &componentID,
		&inputsJSON, &outputsJSON, &order, &createdAt, &updatedAt); err != nil {
		return domain.StepRun{}, handleNotFound(err)
	}
	step := domain.StepRun{Name: name, Status: status, ExecutionOrder: order}
	var err error
	if step.ID, err = uuid.Parse(rawID); err != nil {
		return domain.StepRun{}, fmt.Errorf("parse step run id: %w", err)
	}
	if step.RunID, err = uuid.Parse(rawRunID); err != nil {
		return domain.StepRun{}, fmt.Errorf("parse run id: %w", err)
	}
	if componentID.Valid {
		step.ComponentID = componentID.String
	}
	if step.Inputs, err = decodeDocument([]byte(inputsJSON)); err != nil {
		return domain.StepRun{}, fmt.Errorf("decode inputs: %w", err)
	}
	if step.Outputs, err = decodeDocument([]byte(outputsJSON)); err != nil {
		return domain.StepRun{}, fmt.Errorf("decode outputs: %w", err)
	}
	step.CreatedAt = fromNanos(createdAt)
	step.UpdatedAt = fromNanos(updatedAt)
	return step, nil
}

func encodeDocument(doc domain.Document) ([]byte, error) {
	if doc == nil {
		doc = domain.Document{}
	}
	return json.Marshal(doc)
}

func decodeDocument(raw []byte) (domain.Document, error) {
	if len(raw) == 0 {
		return domain.Document{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = map[string]any{}
	}
	return domain.Document(out), nil
}

func nullIfEmpty(value string) sql.NullString {
	value = strings.TrimSpace(value)
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func handleNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return repo.ErrNotFound
	}
	return err
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

// The driver reports constraint failures with extended result codes, so
// unique and foreign-key violations map to sentinels without a re-query.
func isUniqueViolation(err error) bool {
	var driverErr *sqlitedrv.Error
	if !errors.As(err, &driverErr) {
		return false
	}
	switch driverErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	default:
		return false
	}
}

func isForeignKeyViolation(err error) bool {
	var driverErr *sqlitedrv.Error
	return errors.As(err, &driverErr) && driverErr.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}

func normalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}
