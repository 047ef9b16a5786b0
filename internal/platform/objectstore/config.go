package objectstore

import (
	"errors"
	"strings"

	"github.com/aeolus-labs/aeolus-go/internal/platform/env"
)

type Config struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	Region        string
	BucketRecipes string
	BucketOutputs string
}

func ConfigFromEnv() (Config, error) {
	useSSL, err := env.Bool("OBJECTSTORE_USE_SSL", false)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Endpoint:      env.String("OBJECTSTORE_ENDPOINT", "localhost:9000"),
		AccessKey:     env.String("OBJECTSTORE_ACCESS_KEY", "aeolus"),
		SecretKey:     env.String("OBJECTSTORE_SECRET_KEY", "aeolus-secret"),
		UseSSL:        useSSL,
		Region:        env.String("OBJECTSTORE_REGION", "us-east-1"),
		BucketRecipes: env.String("OBJECTSTORE_BUCKET_RECIPES", "aeolus-recipes"),
		BucketOutputs: env.String("OBJECTSTORE_BUCKET_OUTPUTS", "aeolus-outputs"),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("OBJECTSTORE_ENDPOINT is required")
	}
	if strings.TrimSpace(c.AccessKey) == "" {
		return errors.New("OBJECTSTORE_ACCESS_KEY is required")
	}
	if strings.TrimSpace(c.SecretKey) == "" {
		return errors.New("OBJECTSTORE_SECRET_KEY is required")
	}
	if strings.TrimSpace(c.BucketRecipes) == "" {
		return errors.New("OBJECTSTORE_BUCKET_RECIPES is required")
	}
	if strings.TrimSpace(c.BucketOutputs) == "" {
		return errors.New("OBJECTSTORE_BUCKET_OUTPUTS is required")
	}
	return nil
}
