// Package auth guards the batch-submission endpoint with a shared secret.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Secret store errors.
var (
	ErrSecretUnavailable = errors.New("shared secret unavailable")
	ErrNoSource          = errors.New("no secret source configured")
)

// Source loads the current shared secret.
type Source interface {
	Load() (string, error)
}

// EnvSource reads the secret from an environment variable.
type EnvSource string

// Load implements Source.
func (e EnvSource) Load() (string, error) {
	v, ok := os.LookupEnv(string(e))
	if !ok || strings.TrimSpace(v) == "" {
		return "", fmt.Errorf("%w: %s is not set", ErrSecretUnavailable, string(e))
	}

	return strings.TrimSpace(v), nil
}

// FileSource reads the secret from a file, such as a mounted secret volume.
type FileSource string

// Load implements Source.
func (f FileSource) Load() (string, error) {
	data, err := os.ReadFile(string(f))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrSecretUnavailable, err)
	}

	v := strings.TrimSpace(string(data))
	if v == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrSecretUnavailable, string(f))
	}

	return v, nil
}

// StaticSource always returns the same secret.
type StaticSource string

// Load implements Source.
func (s StaticSource) Load() (string, error) {
	if s == "" {
		return "", ErrSecretUnavailable
	}

	return string(s), nil
}

// SecretStore caches the secret from its source. The first call to Secret
// loads it; Refresh reloads it and Invalidate drops the cached value.
type SecretStore struct {
	source Source

	mu     sync.RWMutex
	secret string
	loaded bool
}

// NewSecretStore creates a store over source.
func NewSecretStore(source Source) *SecretStore {
	return &SecretStore{source: source}
}

// NewSecretStoreFromConfig picks the file source when set, else the env source.
func NewSecretStoreFromConfig(secretEnv, secretFile string) (*SecretStore, error) {
	switch {
	case secretFile != "":
		return NewSecretStore(FileSource(secretFile)), nil
	case secretEnv != "":
		return NewSecretStore(EnvSource(secretEnv)), nil
	default:
		return nil, ErrNoSource
	}
}

// Secret returns the cached secret, loading it on first use.
func (s *SecretStore) Secret() (string, error) {
	s.mu.RLock()
	secret, loaded := s.secret, s.loaded
	s.mu.RUnlock()

	if loaded {
		return secret, nil
	}

	return s.Refresh()
}

// Refresh reloads the secret from the source. On failure the cache is left empty.
func (s *SecretStore) Refresh() (string, error) {
	secret, err := s.source.Load()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.secret, s.loaded = "", false

		return "", err
	}

	s.secret, s.loaded = secret, true

	return secret, nil
}

// Invalidate drops the cached secret so the next Secret call reloads it.
func (s *SecretStore) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.secret, s.loaded = "", false
}
