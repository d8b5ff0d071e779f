package postgres

import (
	"strings"
	"testing"
)

func TestRunQueriesShape(t *testing.T) {
	if !strings.Contains(insertRunQuery, "pipeline_runs") {
		t.Fatalf("expected insert into pipeline_runs")
	}
	if !strings.Contains(selectRunQuery, "WHERE run_id = $1") {
		t.Fatalf("expected run_id predicate in select query")
	}
	if !strings.Contains(updateRunStatusQuery, "SET status = $1, updated_at = $2") {
		t.Fatalf("expected status update to touch only status and updated_at")
	}
	if strings.Contains(updateRunStatusQuery, "workspace_id") || strings.Contains(updateRunStatusQuery, "stack_id") {
		t.Fatalf("status update must not mutate identity columns")
	}
}

func TestStepRunQueriesOrdering(t *testing.T) {
	if !strings.Contains(listStepRunsByRunQuery, "ORDER BY execution_order ASC, created_at ASC, step_name ASC") {
		t.Fatalf("expected execution order with creation-time fallback")
	}
	if !strings.Contains(listStepRunsByRunQuery, "WHERE run_id = $1") {
		t.Fatalf("expected run_id predicate in list query")
	}
}

func TestSideEffectQueriesUpsert(t *testing.T) {
	if !strings.Contains(upsertSideEffectQuery, "ON CONFLICT (run_id, component_id) DO UPDATE") {
		t.Fatalf("expected per-(run, component) upsert clause")
	}
	if !strings.Contains(selectSideEffectQuery, "run_id = $1 AND component_id = $2") {
		t.Fatalf("expected composite predicate in select query")
	}
}
