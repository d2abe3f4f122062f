package testsupport

import (
	"path/filepath"
	"testing"

	"milltrack/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	for _, opt := range opts {
		opt(&cfg)
	}
	return &cfg
}

// WithProducer maps a user account to a producer identity on the test
// config.
func WithProducer(userID, producerID string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Identity.Producers[userID] = producerID
	}
}

// WithHandler registers a handler display name on the test config.
func WithHandler(handlerID, displayName string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Identity.Handlers[handlerID] = displayName
	}
}
