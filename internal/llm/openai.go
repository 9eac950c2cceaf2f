package llm

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements TextGenerator against the OpenAI chat API (or any
// compatible endpoint via BaseURL).
type OpenAIClient struct {
	client         *openai.Client
	circuitBreaker *CircuitBreaker
	model          string
}

// OpenAIConfig holds OpenAI client configuration.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewOpenAIClient creates a new OpenAI text generation client.
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	if config.Model == "" {
		config.Model = openai.GPT4oMini
	}

	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client:         openai.NewClientWithConfig(cfg),
		circuitBreaker: NewCircuitBreaker("openai"),
		model:          config.Model,
	}
}

// Complete sends a single-turn chat completion and returns the response text.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: c.model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleUser, Content: prompt},
			},
		})
		if err != nil {
			return nil, fmt.Errorf("openai: chat completion failed: %w", err)
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("openai: chat completion returned no choices")
		}
		return resp.Choices[0].Message.Content, nil
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return "", fmt.Errorf("openai circuit breaker open: %w", err)
		}
		return "", err
	}

	return result.(string), nil
}

// GetModel returns the configured model name.
func (c *OpenAIClient) GetModel() string {
	return c.model
}

// OpenAIEmbeddingClient implements EmbeddingGenerator against the OpenAI
// embeddings API.
type OpenAIEmbeddingClient struct {
	client         *openai.Client
	circuitBreaker *CircuitBreaker
	model          string
}

// OpenAIEmbeddingConfig holds embedding client configuration.
type OpenAIEmbeddingConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// NewOpenAIEmbeddingClient creates a new OpenAI embedding client.
func NewOpenAIEmbeddingClient(config OpenAIEmbeddingConfig) *OpenAIEmbeddingClient {
	if config.Model == "" {
		config.Model = string(openai.SmallEmbedding3)
	}

	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}

	return &OpenAIEmbeddingClient{
		client:         openai.NewClientWithConfig(cfg),
		circuitBreaker: NewCircuitBreaker("openai-embed"),
		model:          config.Model,
	}
}

// Embed generates an embedding vector for the given text.
func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	result, err := c.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: []string{text},
			Model: openai.EmbeddingModel(c.model),
		})
		if err != nil {
			return nil, fmt.Errorf("openai: embedding request failed: %w", err)
		}
		if len(resp.Data) == 0 {
			return nil, fmt.Errorf("openai: embedding request returned no data")
		}
		return resp.Data[0].Embedding, nil
	})
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) {
			return nil, fmt.Errorf("openai circuit breaker open: %w", err)
		}
		return nil, err
	}

	return result.([]float32), nil
}

// GetModel returns the configured model name.
func (c *OpenAIEmbeddingClient) GetModel() string {
	return c.model
}
