package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/xavierca1/conduit/internal/entity"
	"github.com/xavierca1/conduit/internal/infra/ratelimit"
)

const (
	maxRateLimitWait = 30 * time.Second
	maxReplyTokens   = 300
)

const systemPrompt = `You write short, friendly sales follow-ups for a prospect.
Answer in at most three sentences, in the language the prospect uses.
Never invent prices, dates or commitments. Plain text only.`

type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIGenerator asks a chat completion model for the reply. Calls are
// throttled through the shared limiter when one is set.
type OpenAIGenerator struct {
	client   chatCompleter
	model    string
	limiter  *ratelimit.Limiter
	fallback *TemplateGenerator
	logger   *slog.Logger
}

func NewOpenAIGenerator(apiKey, model, baseURL string, limiter *ratelimit.Limiter, logger *slog.Logger) *OpenAIGenerator {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIGenerator{
		client:   openai.NewClientWithConfig(cfg),
		model:    model,
		limiter:  limiter,
		fallback: NewTemplateGenerator(),
		logger:   logger,
	}
}

func (g *OpenAIGenerator) Backend() string { return "openai" }

func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx, maxRateLimitWait); err != nil {
			return "", fmt.Errorf("openai: %w", err)
		}
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Messages:    buildPrompt(req),
		MaxTokens:   maxReplyTokens,
		Temperature: 0.7,
	})
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	var text string
	if len(resp.Choices) > 0 {
		text = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	if text == "" {
		g.logger.Warn("openai returned an empty reply, using template", "lead_id", req.LeadID, "model", g.model)
		return g.fallback.reply(req.Context), nil
	}
	return text, nil
}

// buildPrompt replays the conversation oldest first so the model reads it in order.
func buildPrompt(req Request) []openai.ChatCompletionMessage {
	msgs := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: fmt.Sprintf("%s\nThe reply will be delivered over %s.", systemPrompt, req.Channel),
	}}

	for i := len(req.Conversation) - 1; i >= 0; i-- {
		m := req.Conversation[i]
		role := openai.ChatMessageRoleAssistant
		if m.Direction == entity.DirectionInbound {
			role = openai.ChatMessageRoleUser
		}
		msgs = append(msgs, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}

	instruction := "Write the next reply to the prospect."
	if c := strings.TrimSpace(req.Context); c != "" {
		instruction += " Work this in: " + c
	}
	msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: instruction})
	return msgs
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.HTTPStatusCode
		if code >= 400 && code < 500 && code != http.StatusTooManyRequests && code != http.StatusRequestTimeout {
			return fmt.Errorf("openai %d: %w: %w", code, ErrPermanent, err)
		}
	}
	return fmt.Errorf("openai: %w", err)
}
