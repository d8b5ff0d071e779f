// Package query classifies identifying tokens supplied by callers. A token
// is parsed as a canonical UUID first; anything that is not syntactically a
// UUID is treated as a human-readable name. Existence validation is the
// store's responsibility, never this package's.
package query

import (
	"strings"

	"github.com/google/uuid"
)

// NameOrID is an optional identifying token. The zero value means the token
// was not supplied at all, which stores must read as "no constraint".
type NameOrID struct {
	id   uuid.UUID
	name string
	isID bool
	set  bool
}

// ParseOptional classifies an optional raw token. Empty and all-whitespace
// input yields the unset value.
func ParseOptional(raw string) NameOrID {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return NameOrID{}
	}
	if id, err := uuid.Parse(raw); err == nil {
		return NameOrID{id: id, isID: true, set: true}
	}
	return NameOrID{name: raw, set: true}
}

// FromID builds a set token from a known identifier.
func FromID(id uuid.UUID) NameOrID {
	return NameOrID{id: id, isID: true, set: true}
}

// IsSet reports whether a token was supplied.
func (t NameOrID) IsSet() bool { return t.set }

// ID returns the parsed identifier and whether the token was one.
func (t NameOrID) ID() (uuid.UUID, bool) {
	if !t.set || !t.isID {
		return uuid.Nil, false
	}
	return t.id, true
}

// Name returns the name form, empty unless the token was set and not a UUID.
func (t NameOrID) Name() string {
	if !t.set || t.isID {
		return ""
	}
	return t.name
}

func (t NameOrID) String() string {
	if !t.set {
		return ""
	}
	if t.isID {
		return t.id.String()
	}
	return t.name
}
