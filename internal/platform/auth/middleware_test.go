package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticAuthenticator struct {
	id  Identity
	err error
}

func (a staticAuthenticator) Authenticate(ctx context.Context, r *http.Request) (Identity, error) {
	return a.id, a.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestMiddlewareAttachesIdentity(t *testing.T) {
	var seen Identity
	var ok bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, ok = IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	mw := Middleware{
		Logger:        discardLogger(),
		Authenticator: staticAuthenticator{id: Identity{Subject: "u1", Roles: []string{"viewer"}}},
		Authorize:     MethodRoleAuthorizer(),
	}

	rec := httptest.NewRecorder()
	mw.Wrap(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !ok || seen.Subject != "u1" {
		t.Fatalf("identity not attached: %+v (ok=%v)", seen, ok)
	}
}

func TestMiddlewareRejectsUnauthenticated(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

	var audited []DenyEvent
	mw := Middleware{
		Logger:        discardLogger(),
		Authenticator: staticAuthenticator{err: ErrUnauthenticated},
		Audit: func(ctx context.Context, ev DenyEvent) error {
			audited = append(audited, ev)
			return nil
		},
	}

	rec := httptest.NewRecorder()
	mw.Wrap(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runs", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if called {
		t.Fatal("handler must not run for unauthenticated requests")
	}
	if len(audited) != 1 || audited[0].Status != http.StatusUnauthorized {
		t.Fatalf("expected one 401 audit event, got %+v", audited)
	}
}

func TestMiddlewareForbidsInsufficientRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	})
	mw := Middleware{
		Logger:        discardLogger(),
		Authenticator: staticAuthenticator{id: Identity{Subject: "u1", Roles: []string{"viewer"}}},
		Authorize:     MethodRoleAuthorizer(),
	}

	rec := httptest.NewRecorder()
	mw.Wrap(next).ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/runs/abc", nil))

	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
}

func TestMiddlewareSkipPrefixes(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := Middleware{
		Logger:        discardLogger(),
		Authenticator: staticAuthenticator{err: errors.New("must not be called")},
		SkipPrefixes:  []string{"/healthz", "/metrics"},
	}

	rec := httptest.NewRecorder()
	mw.Wrap(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 for skipped prefix", rec.Code)
	}
}
