package config

import (
	"fmt"
	"strings"

	"milltrack/internal/services"
)

// Validate rejects configurations the services cannot run with. It is
// called after normalization, so string fields are already trimmed.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		return services.Wrap(services.ErrConfiguration, "config", "validate", "paths.data_dir must be set", nil)
	}
	if c.Paths.MinFreeSpace < 0 {
		return services.Wrap(services.ErrConfiguration, "config", "validate",
			fmt.Sprintf("paths.min_free_space_gib must not be negative (got %d)", c.Paths.MinFreeSpace), nil)
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		return services.Wrap(services.ErrConfiguration, "config", "validate",
			fmt.Sprintf("logging.format must be console or json (got %q)", c.Logging.Format), nil)
	}
	if c.Notifications.RequestTimeout < 0 {
		return services.Wrap(services.ErrConfiguration, "config", "validate",
			"notifications.request_timeout must not be negative", nil)
	}
	for user, producer := range c.Identity.Producers {
		if strings.TrimSpace(user) == "" || strings.TrimSpace(producer) == "" {
			return services.Wrap(services.ErrConfiguration, "config", "validate",
				"identity.producers entries must have non-empty user and producer ids", nil)
		}
	}
	return nil
}
