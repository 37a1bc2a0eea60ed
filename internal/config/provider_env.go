package config

import (
	"context"
	"os"
)

// SecretProvider abstracts secret retrieval so that SSM (deployed
// environments) and the process environment (local development) are
// interchangeable in LoadConfig.
type SecretProvider interface {
	// GetParametersBatch resolves the given parameter paths and returns
	// path -> plaintext for every parameter that was found.
	GetParametersBatch(ctx context.Context, keys []string) (map[string]string, error)
}

// EnvVarProvider implements SecretProvider by looking each key up as an OS
// environment variable. Missing keys are omitted from the result.
type EnvVarProvider struct{}

// NewEnvVarProvider creates a new EnvVarProvider.
func NewEnvVarProvider() *EnvVarProvider {
	return &EnvVarProvider{}
}

// GetParametersBatch implements SecretProvider.
func (p *EnvVarProvider) GetParametersBatch(_ context.Context, keys []string) (map[string]string, error) {
	result := make(map[string]string, len(keys))
	for _, key := range keys {
		if val, ok := os.LookupEnv(key); ok {
			result[key] = val
		}
	}
	return result, nil
}

// NewSecretProvider picks the provider for the running environment: the
// process environment for APP_ENV=local, SSM in the given region otherwise.
func NewSecretProvider(region string) SecretProvider {
	if env, _ := os.LookupEnv("APP_ENV"); env == localEnv {
		return NewEnvVarProvider()
	}
	return NewSSMProvider(region)
}
