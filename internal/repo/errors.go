package repo

import "errors"

var (
	// ErrNotFound reports that the referenced run, workspace, or parent
	// entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrArtifactUnavailable reports that the run exists but the requested
	// derived artifact has not been produced yet.
	ErrArtifactUnavailable = errors.New("artifact unavailable")

	// ErrNoSideEffects reports that the run exists but the named component
	// recorded no side-effect document.
	ErrNoSideEffects = errors.New("no side effects recorded")

	// ErrAlreadyExists reports an identifier or unique-name collision on create.
	ErrAlreadyExists = errors.New("already exists")
)
