package model

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// Response carries the completion text and the raw provider payload.
type Response struct {
	Text string
	Raw  string
}

// TransportError wraps provider or network failures from an Invoke call.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("lm transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

type Client struct {
	*openai.Client
	model   string
	limiter *rate.Limiter
}

type Option func(*Client)

// WithRateLimit caps outgoing completion requests at rps per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// NewClient builds an OpenAI-compatible client against baseurl, e.g. a
// LiteLLM proxy at http://localhost:4000.
func NewClient(baseurl string, apikey string, model string, opts ...Option) *Client {
	cfg := openai.DefaultConfig(apikey)
	if baseurl != "" {
		cfg.BaseURL = baseurl
	}
	client := &Client{
		Client: openai.NewClientWithConfig(cfg),
		model:  model,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Invoke sends the rendered prompt as a single user message and returns the
// completion. Any provider failure comes back as a *TransportError.
func (c *Client) Invoke(ctx context.Context, prompt string) (Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, &TransportError{Err: err}
		}
	}
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	resp, err := c.CreateChatCompletion(ctx, req)
	if err != nil {
		return Response{}, &TransportError{Err: err}
	}
	if len(resp.Choices) == 0 {
		return Response{}, &TransportError{Err: fmt.Errorf("completion returned no choices")}
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		raw = nil
	}
	return Response{
		Text: resp.Choices[0].Message.Content,
		Raw:  string(raw),
	}, nil
}
