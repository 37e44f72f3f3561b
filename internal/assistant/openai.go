package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cvreview/pkg/logger"

	"github.com/sashabaranov/go-openai"
)

const DefaultModel = "gpt-4o"

// Params tune one completion.
type Params struct {
	Temperature float32
	MaxTokens   int
}

// Completer produces a chat completion for a system persona and a prompt.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, params Params) (string, error)
}

type OpenAIClient struct {
	client *openai.Client
	model  string
}

func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	return NewOpenAIClientWithConfig(openai.DefaultConfig(apiKey), model)
}

// NewOpenAIClientWithConfig is NewOpenAIClient with a custom transport
// configuration, such as another BaseURL.
func NewOpenAIClientWithConfig(cfg openai.ClientConfig, model string) *OpenAIClient {
	if model == "" {
		model = DefaultModel
		logger.Sugar.Warnf("OPENAI_MODEL not set, defaulting to %s", DefaultModel)
	}
	logger.Sugar.Infof("Initializing OpenAI client, model %s", model)
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg), model: model}
}

func (o *OpenAIClient) Complete(ctx context.Context, system, prompt string, params Params) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature:         params.Temperature,
		MaxCompletionTokens: params.MaxTokens,
	}

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		logger.Sugar.Errorf("OpenAI API call failed: %v", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("OpenAI returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
