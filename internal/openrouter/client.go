// Package openrouter forwards chat completions to the OpenRouter API.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/YosriMlik/llm-wrapper/internal/config"
	"github.com/YosriMlik/llm-wrapper/internal/models"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	completionsPath = "/chat/completions"

	// maxErrorBody caps how much of a failed upstream reply is kept for the error.
	maxErrorBody = 64 << 10
)

// Client builds and issues upstream completion requests. It holds no
// per-request state and is safe for concurrent use.
type Client struct {
	cfg        config.OpenRouterConfig
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a client for cfg. The credential is attached by an
// oauth2 static token transport; without one every call fails with a
// ConfigurationError.
func NewClient(cfg config.OpenRouterConfig, logger *zap.Logger) *Client {
	base := http.DefaultTransport.(*http.Transport).Clone()
	// Transparent gzip would hold back SSE bytes until a deflate block completes
	base.DisableCompression = true

	var transport http.RoundTripper = base
	if cfg.APIKey != "" {
		transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: cfg.APIKey,
				TokenType:   "Bearer",
			}),
			Base: base,
		}
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Transport: transport},
		logger:     logger,
	}
}

// Forward issues one upstream call and returns the response once upstream has
// answered with a 2xx status. The caller owns and must close the body.
func (c *Client) Forward(ctx context.Context, model string, messages []models.ChatMessage, stream bool) (*http.Response, error) {
	if c.cfg.APIKey == "" {
		return nil, &ConfigurationError{Message: "OpenRouter API key not configured"}
	}

	body, err := json.Marshal(models.CompletionRequest{
		Model:       model,
		Messages:    messages,
		Stream:      stream,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", c.cfg.PublicURL)
	req.Header.Set("X-Title", c.cfg.AppTitle)
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	} else {
		req.Header.Set("Accept", "application/json")
	}

	c.logger.Debug("Sending request to OpenRouter",
		zap.String("model", model),
		zap.Bool("stream", stream),
		zap.Int("messages", len(messages)),
		zap.Int("body_length", len(body)))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		c.logger.Warn("OpenRouter returned error",
			zap.String("model", model),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(errBody)))

		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(errBody)),
		}
	}

	return resp, nil
}

// Complete performs a non-streaming completion bounded by the configured
// request timeout and verifies that at least one choice came back.
func (c *Client) Complete(ctx context.Context, model string, messages []models.ChatMessage) (*models.Completion, error) {
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	resp, err := c.Forward(ctx, model, messages, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read upstream response: %w", err)
	}

	completion := &models.Completion{Raw: raw}
	if err := json.Unmarshal(raw, &completion.Response); err != nil {
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(raw), maxErrorBody),
			Err:        fmt.Errorf("invalid upstream response: %w", err),
		}
	}

	if len(completion.Response.Choices) == 0 {
		return nil, &UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       truncate(string(raw), maxErrorBody),
			Err:        ErrNoChoices,
		}
	}

	return completion, nil
}

// Stream starts a streaming completion and returns the upstream SSE body.
// Cancelling ctx aborts the upstream read.
func (c *Client) Stream(ctx context.Context, model string, messages []models.ChatMessage) (io.ReadCloser, error) {
	resp, err := c.Forward(ctx, model, messages, true)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
