package auth

import "testing"

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "dev ok", cfg: Config{Mode: ModeDev, DevSubject: "dev-user"}},
		{name: "dev missing subject", cfg: Config{Mode: ModeDev}, wantErr: true},
		{name: "headers ok", cfg: Config{Mode: ModeHeaders, HeadersSecret: "s"}},
		{name: "headers missing secret", cfg: Config{Mode: ModeHeaders}, wantErr: true},
		{name: "oidc ok", cfg: Config{Mode: ModeOIDC, OIDCIssuerURL: "https://issuer", OIDCClientID: "cid"}},
		{name: "oidc missing issuer", cfg: Config{Mode: ModeOIDC, OIDCClientID: "cid"}, wantErr: true},
		{name: "oidc missing client id", cfg: Config{Mode: ModeOIDC, OIDCIssuerURL: "https://issuer"}, wantErr: true},
		{name: "unknown mode", cfg: Config{Mode: "magic"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfigFromEnvDefaultsToDev(t *testing.T) {
	t.Setenv("PIPETRACE_AUTH_MODE", "dev")
	cfg, err := ConfigFromEnv()
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("default mode = %q, want dev", cfg.Mode)
	}
	if cfg.DevSubject == "" {
		t.Fatal("dev subject default missing")
	}
}
