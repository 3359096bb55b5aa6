// ABOUTME: Chat-completion client adapter with per-attempt timeout and retry policy.
// ABOUTME: Builds requests from conversation history plus a fixed system instruction.

package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/2389/coven-relay/internal/conversation"
	"github.com/2389/coven-relay/internal/faults"
	"github.com/2389/coven-relay/internal/retry"
)

const defaultBaseURL = "https://api.openai.com/v1"

// Config holds the completion backend settings.
type Config struct {
	APIKey       string
	Model        string
	BaseURL      string        // endpoint base, defaults to the OpenAI API
	SystemPrompt string        // fixed instruction prepended to every request
	Timeout      time.Duration // per-attempt deadline
	MaxRetries   int           // transient retries after the first attempt
	BackoffBase  time.Duration
}

// Client calls the chat-completions endpoint. It is stateless: every Complete
// call is a pure request/response and never touches conversation state.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a completion client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger.With("component", "completion"),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends the history (oldest first) to the backend and returns the
// generated reply text. Transient failures are retried with exponential
// backoff up to MaxRetries; a provider rejection surfaces immediately as a
// permanent failure.
//
// Attempts run on their own deadlines, detached from the caller's
// cancellation, so an ingress shutdown never aborts a request mid-flight.
func (c *Client) Complete(ctx context.Context, history []conversation.Turn) (string, error) {
	payload, err := json.Marshal(c.buildRequest(history))
	if err != nil {
		return "", faults.Wrap(faults.KindPermanent, fmt.Errorf("marshaling completion request: %w", err))
	}

	base := context.WithoutCancel(ctx)
	attempts := c.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := retry.Delay(attempt-1, c.cfg.BackoffBase, c.cfg.Timeout)
			c.logger.Debug("retrying completion request",
				"attempt", attempt+1,
				"delay", delay,
				"error", lastErr)
			time.Sleep(delay)
		}

		reply, err := c.attempt(base, payload)
		if err == nil {
			return reply, nil
		}
		if faults.Is(err, faults.KindPermanent) {
			return "", err
		}
		lastErr = err
	}

	return "", faults.Wrap(faults.KindTransientExhausted,
		fmt.Errorf("completion failed after %d attempts: %w", attempts, lastErr))
}

// attempt performs a single request with its own deadline.
func (c *Client) attempt(ctx context.Context, payload []byte) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost,
		c.cfg.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", faults.Wrap(faults.KindPermanent, fmt.Errorf("creating completion request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Timeouts and transport failures are retryable.
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading completion response: %w", err)
	}

	if !retryableStatus(resp.StatusCode) && (resp.StatusCode < 200 || resp.StatusCode >= 300) {
		return "", faults.New(faults.KindPermanent,
			"completion provider rejected request: status %d body %s", resp.StatusCode, truncate(string(body), 400))
	}
	if retryableStatus(resp.StatusCode) {
		return "", fmt.Errorf("completion transient failure: status %d", resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", faults.New(faults.KindPermanent,
			"unparseable completion response: %s", truncate(string(body), 400))
	}
	if len(parsed.Choices) == 0 {
		return "", faults.New(faults.KindPermanent, "completion response contained no choices")
	}

	reply := strings.TrimSpace(parsed.Choices[0].Message.Content)
	if reply == "" {
		return "", faults.New(faults.KindPermanent, "completion response contained empty text")
	}
	return reply, nil
}

// buildRequest assembles system prompt + ordered history.
func (c *Client) buildRequest(history []conversation.Turn) chatRequest {
	messages := make([]chatMessage, 0, len(history)+1)
	if c.cfg.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: c.cfg.SystemPrompt})
	}
	for _, turn := range history {
		messages = append(messages, chatMessage{Role: string(turn.Role), Content: turn.Text})
	}
	return chatRequest{Model: c.cfg.Model, Messages: messages}
}

// retryableStatus reports whether an HTTP status is worth another attempt.
// 408/429 are explicit try-again signals; 5xx is provider-side trouble.
func retryableStatus(code int) bool {
	return code == http.StatusRequestTimeout ||
		code == http.StatusTooManyRequests ||
		code >= 500
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
