package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHasAtLeast(t *testing.T) {
	cases := []struct {
		name     string
		roles    []string
		required string
		want     bool
	}{
		{name: "admin covers operator", roles: []string{"admin"}, required: RoleOperator, want: true},
		{name: "operator covers viewer", roles: []string{"operator"}, required: RoleViewer, want: true},
		{name: "viewer does not cover operator", roles: []string{"viewer"}, required: RoleOperator, want: false},
		{name: "case and spacing are normalized", roles: []string{" Admin "}, required: RoleAdmin, want: true},
		{name: "unknown roles are ignored", roles: []string{"owner", "viewer"}, required: RoleViewer, want: true},
		{name: "unknown required role never matches", roles: []string{"admin"}, required: "owner", want: false},
		{name: "no roles", roles: nil, required: RoleViewer, want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := HasAtLeast(tc.roles, tc.required); got != tc.want {
				t.Fatalf("HasAtLeast(%v, %q) = %v, want %v", tc.roles, tc.required, got, tc.want)
			}
		})
	}
}

func TestRequiredRoleForRequest(t *testing.T) {
	get := httptest.NewRequest(http.MethodGet, "/runs", nil)
	if got := RequiredRoleForRequest(get); got != RoleViewer {
		t.Fatalf("GET requires %q, want viewer", got)
	}
	del := httptest.NewRequest(http.MethodDelete, "/runs/abc", nil)
	if got := RequiredRoleForRequest(del); got != RoleOperator {
		t.Fatalf("DELETE requires %q, want operator", got)
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV("Admin, viewer ,, OPERATOR")
	want := []string{"admin", "viewer", "operator"}
	if len(got) != len(want) {
		t.Fatalf("parseCSV returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("parseCSV returned %v, want %v", got, want)
		}
	}
}
