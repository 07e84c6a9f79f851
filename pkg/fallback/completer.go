package fallback

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

// Completer produces the next assistant reply for a conversation.
type Completer interface {
	Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error)
}

// OpenAICompleter implements Completer against a chat-completions endpoint.
type OpenAICompleter struct {
	client      *openai.Client
	model       string
	temperature float32
	logger      *logrus.Logger
}

// NewOpenAICompleter creates a completer for the configured model.
func NewOpenAICompleter(apiKey, baseURL, model string, temperature float32, logger *logrus.Logger) *OpenAICompleter {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAICompleter{
		client:      openai.NewClientWithConfig(cfg),
		model:       model,
		temperature: temperature,
		logger:      logger,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	response, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("error creating chat completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response choices returned")
	}

	content := response.Choices[0].Message.Content
	c.logger.WithField("response", content).Debug("completion received")
	return content, nil
}
