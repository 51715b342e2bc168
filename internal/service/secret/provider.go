// Package secret resolves named credentials at call time.
package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrSecretNotFound is returned when no provider knows the requested name.
var ErrSecretNotFound = errors.New("secret not found")

// Provider resolves a named secret. Implementations must never log values.
type Provider interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// EnvProvider reads secrets from the process environment.
type EnvProvider struct{}

// Resolve returns the trimmed value of the environment variable name.
func (EnvProvider) Resolve(_ context.Context, name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return value, nil
}

// FileProvider reads secrets mounted as one file per name under Dir.
type FileProvider struct {
	Dir string
}

// Resolve returns the trimmed content of Dir/name.
func (p FileProvider) Resolve(_ context.Context, name string) (string, error) {
	if p.Dir == "" || name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}

	raw, err := os.ReadFile(filepath.Join(p.Dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	if err != nil {
		return "", fmt.Errorf("read secret %s: %w", name, err)
	}

	value := strings.TrimSpace(string(raw))
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
	}
	return value, nil
}

// Chain tries each provider in order and returns the first value found.
type Chain []Provider

// Resolve walks the chain. Errors other than ErrSecretNotFound stop the walk.
func (c Chain) Resolve(ctx context.Context, name string) (string, error) {
	for _, p := range c {
		value, err := p.Resolve(ctx, name)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrSecretNotFound) {
			return "", err
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}

// Static is a fixed map of secrets, used by tools and tests.
type Static map[string]string

// Resolve looks name up in the map.
func (s Static) Resolve(_ context.Context, name string) (string, error) {
	if value, ok := s[name]; ok && value != "" {
		return value, nil
	}
	return "", fmt.Errorf("%w: %s", ErrSecretNotFound, name)
}
