package codegen

import (
	"context"
	"fmt"

	"github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"
)

const defaultAnthropicModel = "claude-sonnet-4-20250514"

// AnthropicGenerator generates transformation code via the Anthropic API.
type AnthropicGenerator struct {
	client *anthropic.Client
	model  string
	logger *zap.Logger
}

// AnthropicConfig holds Anthropic generator configuration.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string // Optional override for proxied deployments
	Model   string
}

// NewAnthropicGenerator creates an Anthropic-backed generator.
func NewAnthropicGenerator(cfg *AnthropicConfig, logger *zap.Logger) (*AnthropicGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}

	var opts []anthropic.ClientOption
	if cfg.BaseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	return &AnthropicGenerator{
		client: anthropic.NewClient(cfg.APIKey, opts...),
		model:  model,
		logger: logger,
	}, nil
}

var _ Generator = (*AnthropicGenerator)(nil)

// Generate produces candidate transformation code for the request.
func (g *AnthropicGenerator) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(g.model),
		MaxTokens: 4096,
		System:    systemPrompt,
		Messages: []anthropic.Message{
			anthropic.NewUserTextMessage(prompt),
		},
	})
	if err != nil {
		classified := ClassifyError(err)
		classified.Model = g.model
		return nil, classified
	}

	text := resp.GetFirstContentText()
	if text == "" {
		return nil, NewError(ErrorTypeParse, "empty response", false, nil)
	}

	result, err := ParseResponse(text, g.model)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("generated transformation code",
		zap.String("model", g.model),
		zap.String("kind", string(req.Kind)),
		zap.Int("iteration", req.IterationNumber))

	return result, nil
}
