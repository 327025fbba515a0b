// SPDX-License-Identifier: Apache-2.0

// Package llm wraps provider construction and the chat-completion call
// shared by the planner, replanner and verifier.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/kestrel-ai/kestrel/internal/core/config"
)

// NewModel builds the configured provider client.
func NewModel(cfg config.LLMConfig, apiKey string) (llms.Model, error) {
	switch cfg.Provider {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(apiKey),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		return openai.New(opts...)
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(cfg.Model)}
		if cfg.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(cfg.BaseURL))
		}
		return ollama.New(opts...)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}

// Generate runs one system+user chat completion with exponential backoff
// between attempts. The context is consulted before each retry so a
// cancelled request does not keep hammering the provider.
func Generate(ctx context.Context, model llms.Model, retry config.RetryConfig, system, user string) (string, error) {
	messages := []llms.MessageContent{
		{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		},
		{
			Role:  llms.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{llms.TextPart(user)},
		},
	}

	backoff := retry.BackoffBase
	var lastErr error
	for attempt := 1; attempt <= retry.MaxAttempts; attempt++ {
		resp, err := model.GenerateContent(ctx, messages)
		if err == nil {
			if len(resp.Choices) == 0 {
				lastErr = fmt.Errorf("model returned no choices")
			} else {
				return resp.Choices[0].Content, nil
			}
		} else {
			lastErr = err
		}

		if attempt == retry.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * retry.BackoffMultiplier)
		if backoff > retry.MaxBackoff {
			backoff = retry.MaxBackoff
		}
	}
	return "", fmt.Errorf("generation failed after %d attempts: %w", retry.MaxAttempts, lastErr)
}
