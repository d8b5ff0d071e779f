package query

import (
	"testing"

	"github.com/google/uuid"
)

func TestParseOptional(t *testing.T) {
	known := uuid.MustParse("3d0a1f6e-9c1b-4f6a-8c1d-2e7b5a9d4c3f")

	tests := []struct {
		name     string
		raw      string
		wantSet  bool
		wantID   bool
		wantName string
	}{
		{name: "empty is unset", raw: "", wantSet: false},
		{name: "whitespace is unset", raw: "   ", wantSet: false},
		{name: "uuid parses as id", raw: known.String(), wantSet: true, wantID: true},
		{name: "uuid with padding", raw: " " + known.String() + " ", wantSet: true, wantID: true},
		{name: "plain name", raw: "default", wantSet: true, wantName: "default"},
		{name: "almost uuid stays a name", raw: "3d0a1f6e-9c1b-4f6a-8c1d", wantSet: true, wantName: "3d0a1f6e-9c1b-4f6a-8c1d"},
	}

	for _, tc := range tests {
		tok := ParseOptional(tc.raw)
		if tok.IsSet() != tc.wantSet {
			t.Fatalf("%s: IsSet() = %v, want %v", tc.name, tok.IsSet(), tc.wantSet)
		}
		id, ok := tok.ID()
		if ok != tc.wantID {
			t.Fatalf("%s: ID() ok = %v, want %v", tc.name, ok, tc.wantID)
		}
		if tc.wantID && id != known {
			t.Fatalf("%s: ID() = %s, want %s", tc.name, id, known)
		}
		if tok.Name() != tc.wantName {
			t.Fatalf("%s: Name() = %q, want %q", tc.name, tok.Name(), tc.wantName)
		}
	}
}

func TestFromID(t *testing.T) {
	id := uuid.MustParse("6f9c2b1a-0d3e-4a5b-9c8d-7e6f5a4b3c2d")
	tok := FromID(id)
	if !tok.IsSet() {
		t.Fatalf("expected set token")
	}
	got, ok := tok.ID()
	if !ok || got != id {
		t.Fatalf("ID() = %s, %v", got, ok)
	}
	if tok.Name() != "" {
		t.Fatalf("expected empty name, got %q", tok.Name())
	}
}
