package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pipetrace-labs/pipetrace-go/internal/platform/env"
)

const (
	// ModeDev trusts a fixed identity; local development only.
	ModeDev = "dev"
	// ModeHeaders trusts HMAC-signed identity headers from a fronting gateway.
	ModeHeaders = "headers"
	// ModeOIDC verifies bearer tokens against an OIDC provider.
	ModeOIDC = "oidc"
)

type Config struct {
	Mode string

	DevSubject string
	DevEmail   string
	DevRoles   []string

	HeadersSecret string

	OIDCIssuerURL string
	OIDCClientID  string
	EmailClaim    string
	RolesClaim    string
}

func ConfigFromEnv() (Config, error) {
	cfg := Config{
		Mode:          strings.ToLower(strings.TrimSpace(env.String("PIPETRACE_AUTH_MODE", ModeDev))),
		DevSubject:    env.String("PIPETRACE_AUTH_DEV_SUBJECT", "dev-user"),
		DevEmail:      env.String("PIPETRACE_AUTH_DEV_EMAIL", "dev@localhost"),
		DevRoles:      parseCSV(env.String("PIPETRACE_AUTH_DEV_ROLES", "admin")),
		HeadersSecret: env.String("PIPETRACE_INTERNAL_AUTH_SECRET", ""),
		OIDCIssuerURL: env.String("PIPETRACE_OIDC_ISSUER_URL", ""),
		OIDCClientID:  env.String("PIPETRACE_OIDC_CLIENT_ID", ""),
		EmailClaim:    env.String("PIPETRACE_OIDC_EMAIL_CLAIM", "email"),
		RolesClaim:    env.String("PIPETRACE_OIDC_ROLES_CLAIM", "roles"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Mode {
	case ModeDev:
		if strings.TrimSpace(c.DevSubject) == "" {
			return errors.New("PIPETRACE_AUTH_DEV_SUBJECT is required in dev mode")
		}
	case ModeHeaders:
		if strings.TrimSpace(c.HeadersSecret) == "" {
			return errors.New("PIPETRACE_INTERNAL_AUTH_SECRET is required in headers mode")
		}
	case ModeOIDC:
		if strings.TrimSpace(c.OIDCIssuerURL) == "" {
			return errors.New("PIPETRACE_OIDC_ISSUER_URL is required in oidc mode")
		}
		if strings.TrimSpace(c.OIDCClientID) == "" {
			return errors.New("PIPETRACE_OIDC_CLIENT_ID is required in oidc mode")
		}
	default:
		return fmt.Errorf("unsupported auth mode %q", c.Mode)
	}
	return nil
}
