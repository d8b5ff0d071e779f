package domain

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Workspace is the ownership scope for pipeline runs. Every run belongs to
// exactly one workspace.
type Workspace struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

func (w Workspace) Validate() error {
	if w.ID == uuid.Nil {
		return errors.New("workspace id is required")
	}
	if strings.TrimSpace(w.Name) == "" {
		return errors.New("workspace name is required")
	}
	return nil
}
