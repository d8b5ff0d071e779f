package auth

import (
	"context"
	"net/http"
)

// DevAuthenticator stamps every request with the identity configured through
// PIPETRACE_AUTH_DEV_*. It never rejects, so it must only back local
// pipetrace deployments where the run endpoints are not reachable from
// outside.
type DevAuthenticator struct {
	subject string
	email   string
	roles   []string
}

func NewDevAuthenticator(cfg Config) *DevAuthenticator {
	return &DevAuthenticator{
		subject: cfg.DevSubject,
		email:   cfg.DevEmail,
		roles:   cfg.DevRoles,
	}
}

// Authenticate returns the configured identity without looking at the
// request.
func (a *DevAuthenticator) Authenticate(_ context.Context, _ *http.Request) (Identity, error) {
	return Identity{Subject: a.subject, Email: a.email, Roles: a.roles}, nil
}
