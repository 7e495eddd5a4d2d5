// Package openai runs analysis prompts against the OpenAI chat completions
// API (or any compatible endpoint) using github.com/sashabaranov/go-openai.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaisdk "github.com/sashabaranov/go-openai"

	"pinganalyst/internal/services/llm"
)

const defaultModel = openaisdk.GPT4oMini

// Config selects the key, model and optional endpoint override.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client implements the analysis backend on top of go-openai.
type Client struct {
	client *openaisdk.Client
	model  string
}

// NewClient builds an OpenAI client. No request is made.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, llm.ErrMissingAPIKey
	}
	clientCfg := openaisdk.DefaultConfig(apiKey)
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.BaseURL = strings.TrimRight(base, "/")
	}
	timeout := llm.DefaultHTTPTimeout()
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	clientCfg.HTTPClient = &http.Client{Timeout: timeout}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	return &Client{client: openaisdk.NewClientWithConfig(clientCfg), model: model}, nil
}

func (c *Client) Name() string { return "openai" }

func (c *Client) Model() string { return c.model }

// Generate sends req with images as low-detail image_url parts.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, buildRequest(c.model, req))
	if err != nil {
		return "", mapError(err)
	}
	for _, choice := range resp.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	empty := &llm.EmptyContentError{Op: "openai generate"}
	if len(resp.Choices) > 0 {
		empty.FinishReason = string(resp.Choices[0].FinishReason)
		empty.Refusal = resp.Choices[0].Message.Refusal
	}
	return "", empty
}

// HealthCheck verifies the key and model with a tiny JSON prompt.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.Generate(ctx, llm.HealthRequest())
	if err != nil {
		return fmt.Errorf("openai health: %w", err)
	}
	return llm.CheckHealthReply(content)
}

func buildRequest(model string, req llm.Request) openaisdk.ChatCompletionRequest {
	messages := make([]openaisdk.ChatCompletionMessage, 0, 2)
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, openaisdk.ChatCompletionMessage{
			Role:    openaisdk.ChatMessageRoleSystem,
			Content: system,
		})
	}
	user := strings.TrimSpace(req.User)
	if len(req.Images) == 0 {
		messages = append(messages, openaisdk.ChatCompletionMessage{
			Role:    openaisdk.ChatMessageRoleUser,
			Content: user,
		})
	} else {
		parts := make([]openaisdk.ChatMessagePart, 0, len(req.Images)+1)
		if user != "" {
			parts = append(parts, openaisdk.ChatMessagePart{Type: openaisdk.ChatMessagePartTypeText, Text: user})
		}
		for _, img := range req.Images {
			parts = append(parts, openaisdk.ChatMessagePart{
				Type: openaisdk.ChatMessagePartTypeImageURL,
				ImageURL: &openaisdk.ChatMessageImageURL{
					URL:    img,
					Detail: openaisdk.ImageURLDetailLow,
				},
			})
		}
		messages = append(messages, openaisdk.ChatCompletionMessage{
			Role:         openaisdk.ChatMessageRoleUser,
			MultiContent: parts,
		})
	}
	out := openaisdk.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}
	if req.JSON {
		out.ResponseFormat = &openaisdk.ChatCompletionResponseFormat{
			Type: openaisdk.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return out
}

// mapError converts go-openai errors into llm.StatusError.
func mapError(err error) error {
	var apiErr *openaisdk.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode > 0 {
		return &llm.StatusError{StatusCode: apiErr.HTTPStatusCode, Body: apiErr.Message}
	}
	var reqErr *openaisdk.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode > 0 {
		return &llm.StatusError{StatusCode: reqErr.HTTPStatusCode, Body: string(reqErr.Body)}
	}
	return fmt.Errorf("openai generate: %w", err)
}
