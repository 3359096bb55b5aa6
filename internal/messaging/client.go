// ABOUTME: Messaging-provider client adapter for outbound replies.
// ABOUTME: Form-encoded send API with retry policy and ambiguous-timeout detection.

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/coven-relay/internal/faults"
	"github.com/2389/coven-relay/internal/retry"
)

const defaultAPIBase = "https://api.twilio.com"

// Config holds the messaging provider settings.
type Config struct {
	AccountSID  string
	AuthToken   string
	From        string        // sender address, e.g. "whatsapp:+14155238886"
	BaseURL     string        // API base, defaults to the Twilio API
	Timeout     time.Duration // per-attempt deadline
	MaxRetries  int           // transient retries after the first attempt
	BackoffBase time.Duration
}

// Client dispatches outbound messages through the provider's REST API.
// Stateless: every Send is a pure request/response.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a messaging client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultAPIBase
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     logger.With("component", "messaging"),
	}
}

type sendResponse struct {
	SID     string `json:"sid"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Send delivers text to the user, cleaned of markdown formatting and split
// into provider-sized chunks. Returns the provider message ID of the first
// chunk.
//
// A timeout after the request may have reached the provider is reported as an
// ambiguous delivery and never retried: retrying a request that actually
// landed would double-send. Connection failures that provably happened before
// dispatch are retried with exponential backoff.
func (c *Client) Send(ctx context.Context, userID, text string) (string, error) {
	if userID == "" {
		return "", faults.New(faults.KindInvalidArgument, "recipient is required")
	}

	chunks := Chunk(Clean(text), MaxChunkLength)
	if len(chunks) == 0 {
		return "", faults.New(faults.KindInvalidArgument, "outbound text is empty")
	}

	base := context.WithoutCancel(ctx)
	var firstID string
	for i, chunk := range chunks {
		id, err := c.sendChunk(base, userID, chunk)
		if err != nil {
			return firstID, fmt.Errorf("sending chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if firstID == "" {
			firstID = id
		}
	}
	return firstID, nil
}

// sendChunk dispatches one message with the full retry policy.
func (c *Client) sendChunk(ctx context.Context, userID, text string) (string, error) {
	attempts := c.cfg.MaxRetries + 1
	var lastErr error

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := retry.Delay(attempt-1, c.cfg.BackoffBase, c.cfg.Timeout)
			c.logger.Debug("retrying send",
				"attempt", attempt+1,
				"delay", delay,
				"error", lastErr)
			time.Sleep(delay)
		}

		id, err := c.attempt(ctx, userID, text)
		if err == nil {
			return id, nil
		}
		if faults.Is(err, faults.KindPermanent) || faults.Is(err, faults.KindAmbiguous) {
			return "", err
		}
		lastErr = err
	}

	return "", faults.Wrap(faults.KindTransientExhausted,
		fmt.Errorf("send failed after %d attempts: %w", attempts, lastErr))
}

// attempt performs a single send with its own deadline.
func (c *Client) attempt(ctx context.Context, userID, text string) (string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	form := url.Values{}
	form.Set("To", userID)
	form.Set("From", c.cfg.From)
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", c.cfg.BaseURL, c.cfg.AccountSID)
	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return "", faults.Wrap(faults.KindPermanent, fmt.Errorf("creating send request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		// The provider accepted the request but the response was cut short.
		return "", faults.Wrap(faults.KindAmbiguous, fmt.Errorf("reading send response: %w", err))
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed sendResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return "", faults.New(faults.KindAmbiguous,
				"send accepted but response unparseable: %s", truncate(string(body), 400))
		}
		return parsed.SID, nil
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("send transient failure: status %d", resp.StatusCode)
	default:
		// Invalid recipient, auth failure, policy rejection.
		return "", faults.New(faults.KindPermanent,
			"messaging provider rejected request: status %d body %s", resp.StatusCode, truncate(string(body), 400))
	}
}

// classifyTransportError separates failures that provably happened before the
// request reached the provider (retryable) from timeouts where the message may
// already be on its way (ambiguous, never retried).
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return faults.Wrap(faults.KindAmbiguous, fmt.Errorf("send timed out, delivery unknown: %w", err))
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return faults.Wrap(faults.KindAmbiguous, fmt.Errorf("send timed out, delivery unknown: %w", err))
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		// Never connected, safe to retry.
		return fmt.Errorf("send connection failed: %w", err)
	}

	// Remaining transport errors (reset mid-request, broken pipe) happened
	// after the connection was up; the request may have been received.
	return faults.Wrap(faults.KindAmbiguous, fmt.Errorf("send interrupted, delivery unknown: %w", err))
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
