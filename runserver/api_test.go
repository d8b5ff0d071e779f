package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/pipetrace-labs/pipetrace-go/internal/domain"
	"github.com/pipetrace-labs/pipetrace-go/internal/platform/auth"
	"github.com/pipetrace-labs/pipetrace-go/internal/repo/memory"
	"github.com/pipetrace-labs/pipetrace-go/internal/service/runs"
)

type fixture struct {
	store   *memory.Store
	handler http.Handler
}

func newFixture(t *testing.T, roles []string) fixture {
	t.Helper()
	store := memory.NewStore()
	logger := slog.New(slog.DiscardHandler)

	api := newRunsAPI(logger, runs.New(store))
	mux := http.NewServeMux()
	api.register(mux)

	handler := auth.Middleware{
		Logger: logger,
		Authenticator: auth.NewDevAuthenticator(auth.Config{
			Mode:       auth.ModeDev,
			DevSubject: "test-user",
			DevRoles:   roles,
		}),
		Authorize: auth.MethodRoleAuthorizer(),
	}.Wrap(mux)

	return fixture{store: store, handler: handler}
}

func seedWorkspace(t *testing.T, f fixture, name string) domain.Workspace {
	t.Helper()
	ws := domain.Workspace{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	if err := f.store.CreateWorkspace(context.Background(), ws); err != nil {
		t.Fatalf("CreateWorkspace: %v", err)
	}
	return ws
}

func seedRun(t *testing.T, f fixture, workspaceID uuid.UUID, name string) domain.PipelineRun {
	t.Helper()
	pipelineID := uuid.New()
	run := domain.PipelineRun{
		ID:          uuid.New(),
		WorkspaceID: workspaceID,
		Name:        name,
		PipelineID:  &pipelineID,
		StackID:     uuid.New(),
		Status:      domain.RunStatusRunning,
		RuntimeConfiguration: domain.Document{
			"parameters": map[string]any{"epochs": 10},
		},
	}
	if err := f.store.CreateRun(context.Background(), run); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	return run
}

func do(f fixture, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v\n%s", err, rec.Body.String())
	}
	return body
}

func TestListRunsEndToEnd(t *testing.T) {
	f := newFixture(t, []string{"viewer"})
	wsA := seedWorkspace(t, f, "team-a")
	wsB := seedWorkspace(t, f, "team-b")
	runA := seedRun(t, f, wsA.ID, "train-a")
	seedRun(t, f, wsB.ID, "train-b")

	rec := do(f, http.MethodGet, "/runs")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["count"].(float64) != 2 {
		t.Fatalf("count = %v, want 2", body["count"])
	}

	rec = do(f, http.MethodGet, "/runs?workspace_name_or_id=team-a")
	body = decodeBody(t, rec)
	if body["count"].(float64) != 1 {
		t.Fatalf("filtered count = %v, want 1", body["count"])
	}
	items := body["runs"].([]any)
	first := items[0].(map[string]any)
	if first["run_id"] != runA.ID.String() {
		t.Fatalf("filtered run = %v, want %s", first["run_id"], runA.ID)
	}

	// An unknown workspace filter yields an empty list, not an error.
	rec = do(f, http.MethodGet, "/runs?workspace_name_or_id=no-such-team")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body = decodeBody(t, rec)
	if body["count"].(float64) != 0 {
		t.Fatalf("count = %v, want 0", body["count"])
	}
}

func TestGetRun(t *testing.T) {
	f := newFixture(t, []string{"viewer"})
	ws := seedWorkspace(t, f, "team-a")
	run := seedRun(t, f, ws.ID, "train-a")

	rec := do(f, http.MethodGet, "/runs/"+run.ID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["run_id"] != run.ID.String() {
		t.Fatalf("run_id = %v", body["run_id"])
	}
	if _, ok := body["runtime_configuration"]; !ok {
		t.Fatal("single-run reads hydrate by default")
	}

	rec = do(f, http.MethodGet, "/runs/"+run.ID.String()+"?hydrate=false")
	body = decodeBody(t, rec)
	if _, ok := body["runtime_configuration"]; ok {
		t.Fatal("hydrate=false must drop runtime_configuration")
	}

	rec = do(f, http.MethodGet, "/runs/"+uuid.New().String())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing run status = %d, want 404", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "not_found" {
		t.Fatal("missing run must carry code not_found")
	}

	rec = do(f, http.MethodGet, "/runs/not-a-uuid")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("malformed id status = %d, want 422", rec.Code)
	}
}

func TestDeleteRunCascadesAndIsNotIdempotent(t *testing.T) {
	f := newFixture(t, []string{"operator"})
	ws := seedWorkspace(t, f, "team-a")
	run := seedRun(t, f, ws.ID, "train-a")

	step := domain.StepRun{
		ID:     uuid.New(),
		RunID:  run.ID,
		Name:   "load",
		Status: domain.RunStatusCompleted,
	}
	if err := f.store.CreateStepRun(context.Background(), step); err != nil {
		t.Fatalf("CreateStepRun: %v", err)
	}

	rec := do(f, http.MethodDelete, "/runs/"+run.ID.String())
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204\n%s", rec.Code, rec.Body.String())
	}

	rec = do(f, http.MethodGet, "/runs/"+run.ID.String())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleted run status = %d, want 404", rec.Code)
	}
	rec = do(f, http.MethodGet, "/runs/"+run.ID.String()+"/steps")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("steps of deleted run status = %d, want 404", rec.Code)
	}

	rec = do(f, http.MethodDelete, "/runs/"+run.ID.String())
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestDeleteRunForbiddenForViewer(t *testing.T) {
	f := newFixture(t, []string{"viewer"})
	ws := seedWorkspace(t, f, "team-a")
	run := seedRun(t, f, ws.ID, "train-a")

	rec := do(f, http.MethodDelete, "/runs/"+run.ID.String())
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}

	rec = do(f, http.MethodGet, "/runs/"+run.ID.String())
	if rec.Code != http.StatusOK {
		t.Fatal("run must survive a forbidden delete")
	}
}

func TestGetRunDAG(t *testing.T) {
	f := newFixture(t, []string{"viewer", "operator"})
	ws := seedWorkspace(t, f, "team-a")
	run := seedRun(t, f, ws.ID, "train-a")

	rec := do(f, http.MethodGet, "/runs/"+run.ID.String()+"/graph")
	if rec.Code != http.StatusConflict {
		t.Fatalf("unrendered dag status = %d, want 409\n%s", rec.Code, rec.Body.String())
	}
	if decodeBody(t, rec)["error"] != "dag_unavailable" {
		t.Fatal("unrendered dag must carry code dag_unavailable")
	}

	if err := f.store.SetRunDAG(context.Background(), run.ID, "dags/train-a.json"); err != nil {
		t.Fatalf("SetRunDAG: %v", err)
	}
	rec = do(f, http.MethodGet, "/runs/"+run.ID.String()+"/graph")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if decodeBody(t, rec)["dag_path"] != "dags/train-a.json" {
		t.Fatal("dag locator missing from response")
	}

	rec = do(f, http.MethodGet, "/runs/"+uuid.New().String()+"/graph")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing run dag status = %d, want 404", rec.Code)
	}
}

func TestListRunStepsOrdered(t *testing.T) {
	f := newFixture(t, []string{"viewer"})
	ws := seedWorkspace(t, f, "team-a")
	run := seedRun(t, f, ws.ID, "train-a")

	for i, name := range []string{"train", "load"} {
		step := domain.StepRun{
			ID:             uuid.New(),
			RunID:          run.ID,
			Name:           name,
			Status:         domain.RunStatusCompleted,
			ExecutionOrder: 1 - i,
		}
		if err := f.store.CreateStepRun(context.Background(), step); err != nil {
			t.Fatalf("CreateStepRun: %v", err)
		}
	}

	rec := do(f, http.MethodGet, "/runs/"+run.ID.String()+"/steps")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	steps := body["steps"].([]any)
	if len(steps) != 2 {
		t.Fatalf("steps = %d, want 2", len(steps))
	}
	first := steps[0].(map[string]any)
	second := steps[1].(map[string]any)
	if first["name"] != "load" || second["name"] != "train" {
		t.Fatalf("steps out of execution order: %v then %v", first["name"], second["name"])
	}

	// A run with no steps yet still answers 200 with an empty list.
	empty := seedRun(t, f, ws.ID, "train-b")
	rec = do(f, http.MethodGet, "/runs/"+empty.ID.String()+"/steps")
	if rec.Code != http.StatusOK {
		t.Fatalf("empty steps status = %d, want 200", rec.Code)
	}
	if decodeBody(t, rec)["count"].(float64) != 0 {
		t.Fatal("expected zero steps")
	}
}

func TestGetRuntimeConfiguration(t *testing.T) {
	f := newFixture(t, []string{"viewer"})
	ws := seedWorkspace(t, f, "team-a")
	run := seedRun(t, f, ws.ID, "train-a")

	rec := do(f, http.MethodGet, "/runs/"+run.ID.String()+"/runtime-configuration")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	cfg := body["runtime_configuration"].(map[string]any)
	params := cfg["parameters"].(map[string]any)
	if params["epochs"].(float64) != 10 {
		t.Fatalf("epochs = %v, want 10", params["epochs"])
	}

	rec = do(f, http.MethodGet, "/runs/"+run.ID.String()+"/runtime-configuration?format=yaml")
	if rec.Code != http.StatusOK {
		t.Fatalf("yaml status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.Contains(ct, "yaml") {
		t.Fatalf("Content-Type = %q, want yaml", ct)
	}
	var parsed map[string]any
	if err := yaml.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("yaml output must parse: %v", err)
	}
	if _, ok := parsed["parameters"]; !ok {
		t.Fatal("yaml output missing parameters")
	}
}

func TestGetComponentSideEffects(t *testing.T) {
	f := newFixture(t, []string{"viewer"})
	ws := seedWorkspace(t, f, "team-a")
	run := seedRun(t, f, ws.ID, "train-a")

	rec := do(f, http.MethodGet, "/runs/"+run.ID.String()+"/component-side-effects")
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing component_id status = %d, want 422", rec.Code)
	}

	rec = do(f, http.MethodGet, "/runs/"+run.ID.String()+"/component-side-effects?component_id=orchestrator")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unrecorded component status = %d, want 404", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "no_side_effects" {
		t.Fatal("unrecorded component must carry code no_side_effects")
	}

	doc := domain.Document{"cache_hits": 3}
	if err := f.store.RecordComponentSideEffect(context.Background(), run.ID, "orchestrator", doc); err != nil {
		t.Fatalf("RecordComponentSideEffect: %v", err)
	}
	rec = do(f, http.MethodGet, "/runs/"+run.ID.String()+"/component-side-effects?component_id=orchestrator")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	effects := body["side_effects"].(map[string]any)
	if effects["cache_hits"].(float64) != 3 {
		t.Fatalf("cache_hits = %v, want 3", effects["cache_hits"])
	}

	rec = do(f, http.MethodGet, "/runs/"+uuid.New().String()+"/component-side-effects?component_id=orchestrator")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing run status = %d, want 404", rec.Code)
	}
	if decodeBody(t, rec)["error"] != "not_found" {
		t.Fatal("missing run must carry code not_found, not no_side_effects")
	}
}

func TestUnauthenticatedRequestRejectedBeforeHandlers(t *testing.T) {
	store := memory.NewStore()
	logger := slog.New(slog.DiscardHandler)

	api := newRunsAPI(logger, runs.New(store))
	mux := http.NewServeMux()
	api.register(mux)

	authn, err := auth.NewGatewayHeadersAuthenticator("secret")
	if err != nil {
		t.Fatalf("NewGatewayHeadersAuthenticator: %v", err)
	}
	handler := auth.Middleware{
		Logger:        logger,
		Authenticator: authn,
		Authorize:     auth.MethodRoleAuthorizer(),
	}.Wrap(mux)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
