package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/minio/minio-go/v7"
	"gopkg.in/yaml.v3"

	"github.com/pipetrace-labs/pipetrace-go/internal/platform/auditlog"
	"github.com/pipetrace-labs/pipetrace-go/internal/platform/auth"
	"github.com/pipetrace-labs/pipetrace-go/internal/platform/requestid"
	"github.com/pipetrace-labs/pipetrace-go/internal/repo"
	"github.com/pipetrace-labs/pipetrace-go/internal/service/runs"
)

type runsAPI struct {
	logger  *slog.Logger
	service *runs.Service

	// dags streams rendered DAG documents when an object store is wired;
	// nil means the API returns the locator only.
	dags      *minio.Client
	dagBucket string

	// audit receives deletion events; nil disables the audit trail.
	audit auditlog.QueryRower
}

func newRunsAPI(logger *slog.Logger, service *runs.Service) *runsAPI {
	return &runsAPI{
		logger:  logger,
		service: service,
	}
}

func (api *runsAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /runs", api.handleListRuns)
	mux.HandleFunc("GET /runs/{run_id}", api.handleGetRun)
	mux.HandleFunc("DELETE /runs/{run_id}", api.handleDeleteRun)
	mux.HandleFunc("GET /runs/{run_id}/graph", api.handleGetRunDAG)
	mux.HandleFunc("GET /runs/{run_id}/steps", api.handleListRunSteps)
	mux.HandleFunc("GET /runs/{run_id}/runtime-configuration", api.handleGetRuntimeConfiguration)
	mux.HandleFunc("GET /runs/{run_id}/component-side-effects", api.handleGetComponentSideEffects)
}

func (api *runsAPI) handleListRuns(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := runs.ListFilter{
		Workspace:  strings.TrimSpace(q.Get("workspace_name_or_id")),
		StackID:    strings.TrimSpace(q.Get("stack_id")),
		PipelineID: strings.TrimSpace(q.Get("pipeline_id")),
	}

	items, err := api.service.ListRuns(r.Context(), filter)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	hydrate := parseBoolQuery(r, "hydrate", false)
	api.writeJSON(w, http.StatusOK, map[string]any{
		"runs":  projectRuns(items, hydrate),
		"count": len(items),
	})
}

func (api *runsAPI) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := api.service.GetRun(r.Context(), r.PathValue("run_id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	api.writeJSON(w, http.StatusOK, projectRun(run, parseBoolQuery(r, "hydrate", true)))
}

func (api *runsAPI) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("run_id")
	if err := api.service.DeleteRun(r.Context(), runID); err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	if api.audit != nil {
		actor := "anonymous"
		if id, ok := auth.IdentityFromContext(r.Context()); ok {
			actor = id.Subject
		}
		reqID := requestid.FromContext(r.Context())
		if err := auditlog.InsertRunDeletion(r.Context(), api.audit, "runserver", runID, actor, reqID); err != nil {
			api.logger.ErrorContext(r.Context(), "audit insert failed", "run_id", runID, "error", err)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *runsAPI) handleGetRunDAG(w http.ResponseWriter, r *http.Request) {
	dagPath, err := api.service.GetRunDAG(r.Context(), r.PathValue("run_id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}

	if api.dags == nil {
		api.writeJSON(w, http.StatusOK, map[string]any{"dag_path": dagPath})
		return
	}

	obj, err := api.dags.GetObject(r.Context(), api.dagBucket, dagPath, minio.GetObjectOptions{})
	if err != nil {
		api.logger.ErrorContext(r.Context(), "dag fetch failed", "dag_path", dagPath, "error", err)
		api.writeError(w, r, http.StatusBadGateway, "dag_fetch_failed")
		return
	}
	defer func() { _ = obj.Close() }()

	stat, err := obj.Stat()
	if err != nil {
		resp := minio.ToErrorResponse(err)
		if resp.Code == "NoSuchKey" {
			// The locator exists but the object was pruned from the store.
			api.writeError(w, r, http.StatusConflict, "dag_unavailable")
			return
		}
		api.logger.ErrorContext(r.Context(), "dag stat failed", "dag_path", dagPath, "error", err)
		api.writeError(w, r, http.StatusBadGateway, "dag_fetch_failed")
		return
	}

	contentType := stat.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj); err != nil {
		api.logger.ErrorContext(r.Context(), "dag stream interrupted", "dag_path", dagPath, "error", err)
	}
}

func (api *runsAPI) handleListRunSteps(w http.ResponseWriter, r *http.Request) {
	steps, err := api.service.ListRunSteps(r.Context(), r.PathValue("run_id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	hydrate := parseBoolQuery(r, "hydrate", false)
	api.writeJSON(w, http.StatusOK, map[string]any{
		"steps": projectSteps(steps, hydrate),
		"count": len(steps),
	})
}

func (api *runsAPI) handleGetRuntimeConfiguration(w http.ResponseWriter, r *http.Request) {
	cfg, err := api.service.GetRunRuntimeConfiguration(r.Context(), r.PathValue("run_id"))
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	if cfg == nil {
		cfg = map[string]any{}
	}

	if strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("format")), "yaml") {
		blob, err := yaml.Marshal(cfg)
		if err != nil {
			api.logger.ErrorContext(r.Context(), "yaml render failed", "error", err)
			api.writeError(w, r, http.StatusInternalServerError, "internal_error")
			return
		}
		w.Header().Set("Content-Type", "application/yaml")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(blob)
		return
	}

	api.writeJSON(w, http.StatusOK, map[string]any{"runtime_configuration": cfg})
}

func (api *runsAPI) handleGetComponentSideEffects(w http.ResponseWriter, r *http.Request) {
	componentID := strings.TrimSpace(r.URL.Query().Get("component_id"))
	doc, err := api.service.GetRunComponentSideEffects(r.Context(), r.PathValue("run_id"), componentID)
	if err != nil {
		api.writeServiceError(w, r, err)
		return
	}
	if doc == nil {
		doc = map[string]any{}
	}
	api.writeJSON(w, http.StatusOK, map[string]any{
		"component_id": componentID,
		"side_effects": doc,
	})
}

// writeServiceError maps the service and store error taxonomy onto HTTP.
// The component-without-side-effects case shares the 404 status with missing
// runs but carries its own code so clients can tell the two apart.
func (api *runsAPI) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, runs.ErrMalformedID):
		api.writeError(w, r, http.StatusUnprocessableEntity, "malformed_identifier")
	case errors.Is(err, repo.ErrNoSideEffects):
		api.writeError(w, r, http.StatusNotFound, "no_side_effects")
	case errors.Is(err, repo.ErrNotFound):
		api.writeError(w, r, http.StatusNotFound, "not_found")
	case errors.Is(err, repo.ErrArtifactUnavailable):
		api.writeError(w, r, http.StatusConflict, "dag_unavailable")
	default:
		api.logger.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		api.writeError(w, r, http.StatusInternalServerError, "internal_error")
	}
}

func (api *runsAPI) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(true)
	_ = enc.Encode(body)
}

func (api *runsAPI) writeError(w http.ResponseWriter, r *http.Request, status int, code string) {
	api.writeJSON(w, status, map[string]any{
		"error":      code,
		"request_id": requestid.FromContext(r.Context()),
	})
}

func parseBoolQuery(r *http.Request, key string, def bool) bool {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return def
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return parsed
}
