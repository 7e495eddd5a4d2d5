// Package gemini runs analysis prompts directly against the Gemini API with
// the google.golang.org/genai SDK.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"pinganalyst/internal/services/llm"
)

const defaultModel = "gemini-2.5-flash"

// Config selects the key, model and optional endpoint override.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client implements the analysis backend on top of genai.
type Client struct {
	client *genai.Client
	model  string
}

// NewClient builds a Gemini API client. No request is made.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, llm.ErrMissingAPIKey
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		clientCfg.HTTPOptions.BaseURL = base
	}
	if cfg.TimeoutSeconds > 0 {
		clientCfg.HTTPClient = &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	}
	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModel
	}
	// Gateway-style ids ("google/gemini-2.5-flash") are accepted as-is elsewhere.
	model = strings.TrimPrefix(model, "google/")
	return &Client{client: client, model: model}, nil
}

func (c *Client) Name() string { return "gemini" }

func (c *Client) Model() string { return c.model }

// Generate sends req as a single user turn with inline JPEG parts.
func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	contents, err := buildContents(req)
	if err != nil {
		return "", err
	}
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, buildConfig(req))
	if err != nil {
		return "", mapError(err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &llm.EmptyContentError{Op: "gemini generate", FinishReason: finishReason(resp)}
	}
	return text, nil
}

// HealthCheck verifies the key and model with a tiny JSON prompt.
func (c *Client) HealthCheck(ctx context.Context) error {
	content, err := c.Generate(ctx, llm.HealthRequest())
	if err != nil {
		return fmt.Errorf("gemini health: %w", err)
	}
	return llm.CheckHealthReply(content)
}

func buildContents(req llm.Request) ([]*genai.Content, error) {
	parts := make([]*genai.Part, 0, len(req.Images)+1)
	if user := strings.TrimSpace(req.User); user != "" {
		parts = append(parts, genai.NewPartFromText(user))
	}
	for i, img := range req.Images {
		mediaType, data, err := llm.DecodeDataURL(img)
		if err != nil {
			return nil, fmt.Errorf("gemini: image %d: %w", i, err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, mediaType))
	}
	if len(parts) == 0 {
		return nil, errors.New("gemini generate: empty request")
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil
}

func buildConfig(req llm.Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if system := strings.TrimSpace(req.System); system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

func finishReason(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil {
		return ""
	}
	return string(resp.Candidates[0].FinishReason)
}

// mapError converts genai API errors into llm.StatusError.
func mapError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError(apiErr, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return statusError(*apiErrPtr, err)
	}
	return fmt.Errorf("gemini generate: %w", err)
}

func statusError(apiErr genai.APIError, cause error) error {
	if apiErr.Code == 0 {
		return fmt.Errorf("gemini generate: %w", cause)
	}
	body := strings.TrimSpace(apiErr.Message)
	if apiErr.Status != "" {
		body = apiErr.Status + ": " + body
	}
	return &llm.StatusError{StatusCode: apiErr.Code, Body: body}
}
