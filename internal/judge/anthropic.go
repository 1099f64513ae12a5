package judge

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// AnthropicConfig configures the Anthropic-backed judgment capability.
type AnthropicConfig struct {
	APIKey      string
	Model       string
	MaxTokens   int64
	RateLimit   float64 // requests per second, 0 disables
	TokenBudget int     // prompt budget, 0 for default
}

// Anthropic implements Capability against the Anthropic Messages API.
type Anthropic struct {
	client      anthropic.Client
	model       anthropic.Model
	maxTokens   int64
	tokenBudget int
	limiter     *rate.Limiter
}

// NewAnthropic creates the capability. The API key is required; everything
// else has workable defaults.
func NewAnthropic(cfg AnthropicConfig) (*Anthropic, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(anthropic.ModelClaudeHaiku4_5)
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Anthropic{
		client:      anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:       anthropic.Model(cfg.Model),
		maxTokens:   cfg.MaxTokens,
		tokenBudget: cfg.TokenBudget,
		limiter:     limiter,
	}, nil
}

// Judge sends one judgment request and parses the reply. API errors come
// back as-is; undecodable replies come back as ErrMalformed.
func (a *Anthropic) Judge(ctx context.Context, req Request) (Response, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return Response{}, fmt.Errorf("rate limiter: %w", err)
	}

	prompt := BuildPrompt(req, a.tokenBudget)
	log.Debug().Str("title", req.Title).Int("candidates", len(req.Candidates)).
		Int("prompt_tokens", countTokens(prompt)).Msg("Requesting cluster judgment")

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Response{}, fmt.Errorf("anthropic message: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return parseResponse(text.String())
}
