// Package identity exposes the consumed collaborator contracts: resolving
// a user account to a producer identity, and resolving handler identities
// to display names. The core never inspects ambient identity; callers pass
// resolved values in.
package identity

import (
	"context"
	"strings"

	"milltrack/internal/config"
)

// HandlerUnavailable is the placeholder shown when a handler identity
// cannot be resolved to a display name.
const HandlerUnavailable = "n/a"

// ProducerResolver resolves which producer a user account belongs to.
// Ok is false when no producer record exists for the user; that is a
// normal outcome, not an error.
type ProducerResolver interface {
	ResolveProducer(ctx context.Context, userID string) (producerID string, ok bool, err error)
}

// HandlerDirectory resolves handler identities to display names.
type HandlerDirectory interface {
	HandlerName(ctx context.Context, handlerID string) (name string, ok bool)
}

// ConfigDirectory serves producer and handler lookups from the static
// identity section of the application config.
type ConfigDirectory struct {
	producers map[string]string
	handlers  map[string]string
}

// NewConfigDirectory builds a directory from config identity mappings.
func NewConfigDirectory(cfg *config.Config) *ConfigDirectory {
	producers := map[string]string{}
	handlers := map[string]string{}
	if cfg != nil {
		for user, producer := range cfg.Identity.Producers {
			producers[strings.TrimSpace(user)] = strings.TrimSpace(producer)
		}
		for handler, name := range cfg.Identity.Handlers {
			handlers[strings.TrimSpace(handler)] = strings.TrimSpace(name)
		}
	}
	return &ConfigDirectory{producers: producers, handlers: handlers}
}

func (d *ConfigDirectory) ResolveProducer(_ context.Context, userID string) (string, bool, error) {
	producer, ok := d.producers[strings.TrimSpace(userID)]
	if !ok || producer == "" {
		return "", false, nil
	}
	return producer, true, nil
}

func (d *ConfigDirectory) HandlerName(_ context.Context, handlerID string) (string, bool) {
	name, ok := d.handlers[strings.TrimSpace(handlerID)]
	if !ok || name == "" {
		return "", false
	}
	return name, true
}

// DisplayHandler maps a handler identity to its display name, falling back
// to the not-available marker for empty or unresolvable identities.
func DisplayHandler(ctx context.Context, directory HandlerDirectory, handlerID string) string {
	handlerID = strings.TrimSpace(handlerID)
	if handlerID == "" {
		return HandlerUnavailable
	}
	if directory != nil {
		if name, ok := directory.HandlerName(ctx, handlerID); ok {
			return name
		}
	}
	return handlerID
}
