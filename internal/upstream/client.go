package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"streamgate/internal/session"
)

const maxRequestSize = 2 * 1024 * 1024 // 2MB total JSON payload

// Stream issues a streaming chat completion for one candidate model and
// returns the raw SSE body on any 2xx response. Non-2xx responses and network
// failures come back as errors so the caller can advance its fallback list.
func (c *client) Stream(ctx context.Context, model string, messages []session.Message) (io.ReadCloser, error) {
	resp, err := c.doChat(ctx, model, messages, true)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.statusError("stream", model, resp)
	}

	c.logger.Debug("upstream stream connected",
		zap.String("model", model),
		zap.Int("status", resp.StatusCode),
	)

	return resp.Body, nil
}

// Complete issues a non-streaming chat completion and returns the assistant
// content of the first choice.
func (c *client) Complete(ctx context.Context, model string, messages []session.Message) (string, error) {
	start := time.Now()

	resp, err := c.doChat(ctx, model, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", c.statusError("completion", model, resp)
	}

	var pResp providerChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&pResp); err != nil {
		return "", fmt.Errorf("upstream: decode completion response: %w", err)
	}

	if len(pResp.Choices) == 0 {
		c.logger.Error("upstream returned no choices",
			zap.String("model", model),
		)
		return "", fmt.Errorf("upstream: provider returned no choices")
	}

	content := strings.TrimSpace(pResp.Choices[0].Message.Content)

	c.logger.Info("upstream completion finished",
		zap.String("model", pResp.Model),
		zap.Int("content_length", len(content)),
		zap.Duration("duration", time.Since(start)),
	)

	return content, nil
}

// Models fetches the upstream model catalog and returns the body unparsed; the
// gateway serves it to clients as-is.
func (c *client) Models(ctx context.Context) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("upstream: build models request: %w", err)
	}
	c.setHeaders(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream: fetch models: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.statusError("models", "", resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("upstream: read models body: %w", err)
	}
	return body, nil
}

// doChat builds and sends one chat-completion request. It never retries; the
// relay's candidate fallback is the only resilience layer.
func (c *client) doChat(ctx context.Context, model string, messages []session.Message, stream bool) (*http.Response, error) {
	if model == "" {
		return nil, fmt.Errorf("upstream: model is required")
	}
	if len(messages) == 0 {
		return nil, fmt.Errorf("upstream: at least one message is required")
	}

	pReq := providerChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
	}

	bodyBytes, err := json.Marshal(pReq)
	if err != nil {
		return nil, fmt.Errorf("upstream: marshal chat request: %w", err)
	}
	if len(bodyBytes) > maxRequestSize {
		return nil, fmt.Errorf("upstream: request too large (%d bytes, max %d)",
			len(bodyBytes), maxRequestSize)
	}

	c.logger.Debug("upstream chat request",
		zap.String("model", model),
		zap.Bool("stream", stream),
		zap.Int("message_count", len(messages)),
	)

	url := c.cfg.BaseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("upstream: build chat request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("upstream: chat request failed: %w", err)
	}
	return resp, nil
}

func (c *client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if c.cfg.Referer != "" {
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}
}

// statusError drains up to a small amount of the body and turns a non-2xx
// response into an error, preferring the provider's structured error shape.
func (c *client) statusError(op, model string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	var perr providerErrorResponse
	if err := json.Unmarshal(body, &perr); err == nil && perr.Error.Message != "" {
		c.logger.Warn("upstream provider error",
			zap.String("op", op),
			zap.String("model", model),
			zap.Int("status", resp.StatusCode),
			zap.String("error_type", perr.Error.Type),
			zap.String("error_message", perr.Error.Message),
		)
		return fmt.Errorf("upstream: %s %d: %s (%s)",
			op, resp.StatusCode, perr.Error.Message, perr.Error.Type)
	}

	c.logger.Warn("upstream error",
		zap.String("op", op),
		zap.String("model", model),
		zap.Int("status", resp.StatusCode),
		zap.String("body", truncate(string(body), 200)),
	)
	return fmt.Errorf("upstream: %s %d: %s", op, resp.StatusCode, truncate(string(body), 200))
}

// truncate limits string length for logging and error messages.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
