package postgres

import (
	"context"
	"fmt"

	"github.com/pipetrace-labs/pipetrace-go/internal/domain"
	"github.com/pipetrace-labs/pipetrace-go/internal/query"
	"github.com/pipetrace-labs/pipetrace-go/internal/repo"
)

const (
	insertWorkspaceQuery = `INSERT INTO workspaces (workspace_id, name, created_at)
	 VALUES ($1, $2, $3)`

	selectWorkspaceByIDQuery = `SELECT workspace_id, name, created_at
	 FROM workspaces
	 WHERE workspace_id = $1`

	selectWorkspaceByNameQuery = `SELECT workspace_id, name, created_at
	 FROM workspaces
	 WHERE name = $1`
)

func (s *RunStore) CreateWorkspace(ctx context.Context, workspace domain.Workspace) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("run store not initialized")
	}
	if err := workspace.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		insertWorkspaceQuery,
		workspace.ID,
		workspace.Name,
		normalizeTime(workspace.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrAlreadyExists
		}
		return fmt.Errorf("insert workspace: %w", err)
	}
	return nil
}

func (s *RunStore) GetWorkspace(ctx context.Context, nameOrID query.NameOrID) (domain.Workspace, error) {
	if s == nil || s.db == nil {
		return domain.Workspace{}, fmt.Errorf("run store not initialized")
	}
	if !nameOrID.IsSet() {
		return domain.Workspace{}, fmt.Errorf("workspace name or id is required")
	}

	var workspace domain.Workspace
	var err error
	if id, ok := nameOrID.ID(); ok {
		err = s.db.QueryRowContext(ctx, selectWorkspaceByIDQuery, id).
			Scan(&workspace.ID, &workspace.Name, &workspace.CreatedAt)
	} else {
		err = s.db.QueryRowContext(ctx, selectWorkspaceByNameQuery, nameOrID.Name()).
			Scan(&workspace.ID, &workspace.Name, &workspace.CreatedAt)
	}
	if err != nil {
		return domain.Workspace{}, handleNotFound(err)
	}
	return workspace, nil
}
