package codegen

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// OpenAIGenerator generates transformation code via any OpenAI-compatible
// endpoint, which covers both the hosted API and self-hosted model servers.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// OpenAIConfig holds OpenAI-compatible generator configuration.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // e.g. "https://api.openai.com/v1" or a self-hosted endpoint
	Model   string
}

// NewOpenAIGenerator creates an OpenAI-compatible generator.
func NewOpenAIGenerator(cfg *OpenAIConfig, logger *zap.Logger) (*OpenAIGenerator, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

var _ Generator = (*OpenAIGenerator)(nil)

// Generate produces candidate transformation code for the request.
func (g *OpenAIGenerator) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResult, error) {
	prompt, err := BuildPrompt(req)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		classified := ClassifyError(err)
		classified.Model = g.model
		return nil, classified
	}

	if len(resp.Choices) == 0 {
		return nil, NewError(ErrorTypeParse, "no choices in response", false, nil)
	}

	result, err := ParseResponse(resp.Choices[0].Message.Content, g.model)
	if err != nil {
		return nil, err
	}

	g.logger.Debug("generated transformation code",
		zap.String("model", g.model),
		zap.String("kind", string(req.Kind)),
		zap.Int("iteration", req.IterationNumber))

	return result, nil
}
