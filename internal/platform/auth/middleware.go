package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pipetrace-labs/pipetrace-go/internal/platform/requestid"
)

type AuthorizeFunc func(r *http.Request, id Identity) error

// DenyEvent describes a rejected request for the audit trail.
type DenyEvent struct {
	Subject    string
	Email      string
	Roles      []string
	Method     string
	Path       string
	Reason     string
	Error      string
	Status     int
	RequestID  string
	RemoteAddr string
	UserAgent  string
	Time       time.Time
}

// Middleware authenticates every request, attaches the identity to the
// context, and enforces the authorize hook. Paths under SkipPrefixes
// (health probes, metrics) bypass the gate entirely.
type Middleware struct {
	Logger        *slog.Logger
	Authenticator Authenticator
	Authorize     AuthorizeFunc
	Audit         func(ctx context.Context, event DenyEvent) error
	SkipPrefixes  []string
}

func (m Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for _, prefix := range m.SkipPrefixes {
			if strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
		}

		id, err := m.Authenticator.Authenticate(r.Context(), r)
		if err != nil {
			m.deny(w, r, id, http.StatusUnauthorized, "unauthenticated", err)
			return
		}

		if m.Authorize != nil {
			if err := m.Authorize(r, id); err != nil {
				status := http.StatusForbidden
				reason := "forbidden"
				if errors.Is(err, ErrUnauthenticated) {
					status = http.StatusUnauthorized
					reason = "unauthenticated"
				}
				m.deny(w, r, id, status, reason, err)
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

func (m Middleware) deny(w http.ResponseWriter, r *http.Request, id Identity, status int, reason string, err error) {
	if m.Logger != nil {
		m.Logger.WarnContext(r.Context(), "request denied",
			"method", r.Method,
			"path", r.URL.Path,
			"subject", id.Subject,
			"reason", reason,
			"error", err,
		)
	}
	if m.Audit != nil {
		event := DenyEvent{
			Subject:    id.Subject,
			Email:      id.Email,
			Roles:      id.Roles,
			Method:     r.Method,
			Path:       r.URL.Path,
			Reason:     reason,
			Error:      err.Error(),
			Status:     status,
			RequestID:  requestid.FromContext(r.Context()),
			RemoteAddr: r.RemoteAddr,
			UserAgent:  r.UserAgent(),
			Time:       time.Now().UTC(),
		}
		if auditErr := m.Audit(r.Context(), event); auditErr != nil && m.Logger != nil {
			m.Logger.ErrorContext(r.Context(), "audit insert failed", "error", auditErr)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": reason, "message": http.StatusText(status)},
	})
}

// MethodRoleAuthorizer enforces the viewer/operator split from
// RequiredRoleForRequest.
func MethodRoleAuthorizer() AuthorizeFunc {
	return func(r *http.Request, id Identity) error {
		required := RequiredRoleForRequest(r)
		if !HasAtLeast(id.Roles, required) {
			return ErrForbidden
		}
		return nil
	}
}
