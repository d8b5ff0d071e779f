// Package runs dispatches pipeline-run read and delete operations.
//
// Each operation is stateless: identifiers and filters arrive as raw request
// tokens, are resolved here (malformed tokens fail with ErrMalformedID before
// any store access), and exactly one store call serves the request. The store
// is the sole source of ErrNotFound, ErrArtifactUnavailable, and
// ErrNoSideEffects; this package never synthesizes those.
package runs
