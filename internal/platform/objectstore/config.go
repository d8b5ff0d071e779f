package objectstore

import (
	"errors"
	"strings"

	"github.com/pipetrace-labs/pipetrace-go/internal/platform/env"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool

	// BucketDAGs holds serialized run DAG documents, keyed by the dag_path
	// column on pipeline_runs.
	BucketDAGs string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("PIPETRACE_MINIO_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}
	cfg := Config{
		Endpoint:   env.String("PIPETRACE_MINIO_ENDPOINT", "localhost:9000"),
		AccessKey:  env.String("PIPETRACE_MINIO_ACCESS_KEY", ""),
		SecretKey:  env.String("PIPETRACE_MINIO_SECRET_KEY", ""),
		Region:     env.String("PIPETRACE_MINIO_REGION", "us-east-1"),
		UseSSL:     useSSL,
		BucketDAGs: env.String("PIPETRACE_MINIO_BUCKET_DAGS", "pipetrace-dags"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("PIPETRACE_MINIO_ENDPOINT is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("PIPETRACE_MINIO_ACCESS_KEY is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("PIPETRACE_MINIO_SECRET_KEY is required")
	}
	if strings.TrimSpace(c.BucketDAGs) == "" {
		return errors.New("PIPETRACE_MINIO_BUCKET_DAGS is required")
	}
	return nil
}
