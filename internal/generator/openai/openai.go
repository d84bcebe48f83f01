// Package openai adapts an OpenAI-compatible chat completions endpoint
// to the generator's ChatClient interface.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	oai "github.com/sashabaranov/go-openai"

	"medrag/internal/backoff"
	"medrag/internal/domain"
)

// Config configures the chat completions client.
type Config struct {
	BaseURL     string
	APIKeyEnv   string
	Model       string
	Temperature float32
	Timeout     time.Duration
	Retry       backoff.Policy
}

// Client calls the chat completions API with per-attempt timeout and
// bounded retry, mirroring the embedding client's policy.
type Client struct {
	client      *oai.Client
	model       string
	temperature float32
	timeout     time.Duration
	retry       backoff.Policy
}

// New creates the chat client, reading the API key from the configured
// environment variable.
func New(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrConfig, cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retry.MaxRetries == 0 && cfg.Retry.Base == 0 {
		cfg.Retry = backoff.Default()
	}
	clientCfg := oai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Client{
		client:      oai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		timeout:     cfg.Timeout,
		retry:       cfg.Retry,
	}, nil
}

// Complete sends one system/user prompt pair and returns the completion.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	var text string
	err := backoff.Retry(ctx, c.retry, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		resp, err := c.client.CreateChatCompletion(callCtx, oai.ChatCompletionRequest{
			Model:       c.model,
			Temperature: c.temperature,
			Messages: []oai.ChatCompletionMessage{
				{Role: oai.ChatMessageRoleSystem, Content: system},
				{Role: oai.ChatMessageRoleUser, Content: user},
			},
		})
		if err != nil {
			return classify(err)
		}
		if len(resp.Choices) == 0 {
			return backoff.Transient(errors.New("completion returned no choices"))
		}
		text = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: chat completion: %v", domain.ErrTimeout, err)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrGenerationService, err)
	}
	return text, nil
}

// classify splits API failures into retryable and permanent, using the
// same rules as the embedding client.
func classify(err error) error {
	var apiErr *oai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500 {
			return backoff.Transient(err)
		}
		return err
	}
	return backoff.Transient(err)
}
