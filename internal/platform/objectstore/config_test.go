package objectstore

import "testing"

func TestConfigValidate(t *testing.T) {
	base := Config{
		Endpoint:   "localhost:9000",
		AccessKey:  "ak",
		SecretKey:  "sk",
		BucketDAGs: "pipetrace-dags",
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("Validate() err=%v", err)
	}

	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{name: "missing endpoint", mutate: func(c *Config) { c.Endpoint = "" }},
		{name: "missing access key", mutate: func(c *Config) { c.AccessKey = "" }},
		{name: "missing secret key", mutate: func(c *Config) { c.SecretKey = "" }},
		{name: "missing bucket", mutate: func(c *Config) { c.BucketDAGs = " " }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
