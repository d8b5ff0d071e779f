package domain

import "testing"

func TestDocumentCloneIsolatesNestedState(t *testing.T) {
	original := Document{
		"schedule": "manual",
		"resources": map[string]any{
			"cpu": "2",
			"limits": map[string]any{
				"memory": "4Gi",
			},
		},
		"tags": []any{"nightly", map[string]any{"team": "ml"}},
	}

	cloned := original.Clone()

	original["schedule"] = "cron"
	original["resources"].(map[string]any)["cpu"] = "8"
	original["resources"].(map[string]any)["limits"].(map[string]any)["memory"] = "32Gi"
	original["tags"].([]any)[0] = "adhoc"
	original["tags"].([]any)[1].(map[string]any)["team"] = "infra"

	if cloned["schedule"] != "manual" {
		t.Fatalf("top-level key leaked: %v", cloned["schedule"])
	}
	resources := cloned["resources"].(Document)
	if resources["cpu"] != "2" {
		t.Fatalf("nested map leaked: %v", resources["cpu"])
	}
	limits := resources["limits"].(Document)
	if limits["memory"] != "4Gi" {
		t.Fatalf("doubly nested map leaked: %v", limits["memory"])
	}
	tags := cloned["tags"].([]any)
	if tags[0] != "nightly" {
		t.Fatalf("slice element leaked: %v", tags[0])
	}
	if tags[1].(Document)["team"] != "ml" {
		t.Fatalf("map inside slice leaked: %v", tags[1])
	}
}

func TestDocumentCloneNil(t *testing.T) {
	var d Document
	cloned := d.Clone()
	if cloned == nil {
		t.Fatal("clone of nil document must be usable")
	}
	cloned["k"] = "v"
	if len(cloned) != 1 {
		t.Fatalf("expected writable clone, got %v", cloned)
	}
}
