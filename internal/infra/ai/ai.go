// Package ai writes outbound replies. Generators receive the recent
// conversation from the caller and never touch storage.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xavierca1/conduit/internal/config"
	"github.com/xavierca1/conduit/internal/entity"
	"github.com/xavierca1/conduit/internal/infra/ratelimit"
)

// DefaultConversationSize is how many recent messages callers pass in.
const DefaultConversationSize = 5

var ErrPermanent = errors.New("ai backend rejected the request")

type Request struct {
	LeadID  string
	Channel entity.Channel
	// Conversation holds the most recent messages, newest first. It may be empty.
	Conversation []*entity.Message
	Context      string
}

// Generator returns non-empty reply text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
	// Backend names the implementation for audit events.
	Backend() string
}

// IsPermanent reports whether retrying the request cannot succeed.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// New picks the generator for cfg.AI.Backend. limiter may be nil.
func New(cfg config.AI, limiter *ratelimit.Limiter, logger *slog.Logger) (Generator, error) {
	constructors := map[string]func() Generator{
		config.AIBackendTemplate: func() Generator { return NewTemplateGenerator() },
		config.AIBackendOpenAI: func() Generator {
			return NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, cfg.OpenAIBaseURL, limiter, logger)
		},
	}

	build, ok := constructors[cfg.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown ai backend %q", cfg.Backend)
	}
	return build(), nil
}
