// Package extract holds the transport shared by every extraction provider:
// sentinel errors, a retrying JSON POST, and credential fingerprints for logs.
package extract

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	defaultBaseDelay = 500 * time.Millisecond
	maxDelay         = 8 * time.Second
	maxErrorBody     = 512
)

// Options configures the HTTP transport used by providers.
type Options struct {
	HTTPClient *http.Client
	MaxRetries int
	BaseDelay  time.Duration
	Logger     *slog.Logger
}

func (o Options) client() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return http.DefaultClient
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func (o Options) delay(attempt int) time.Duration {
	base := o.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	d := base << attempt
	if d > maxDelay || d <= 0 {
		d = maxDelay
	}
	return d
}

// PostJSON sends body as JSON to url and returns the raw 2xx response body.
// Network failures, 429 and 5xx responses are retried up to opts.MaxRetries
// times with exponential backoff; every other status fails immediately.
// The request deadline comes from ctx.
func PostJSON(ctx context.Context, url string, headers map[string]string, body any, opts Options) ([]byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := opts.delay(attempt - 1)
			opts.logger().Warn("extract.http.retry",
				"attempt", attempt, "wait_ms", wait.Milliseconds(), "error", lastErr)
			select {
			case <-ctx.Done():
				return nil, classifyTransportError(ctx.Err())
			case <-time.After(wait):
			}
		}

		raw, status, err := send(ctx, opts.client(), url, headers, payload)
		if err != nil {
			lastErr = classifyTransportError(err)
			if ctx.Err() != nil {
				return nil, lastErr
			}
			continue
		}
		if status/100 == 2 {
			return raw, nil
		}

		lastErr = statusError(status, raw)
		if !shouldRetry(status) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func send(ctx context.Context, client *http.Client, url string, headers map[string]string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("reading response: %w", err)
	}
	return raw, resp.StatusCode, nil
}

func shouldRetry(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// statusError maps a non-2xx response to a sentinel, keeping the service's own message.
func statusError(status int, raw []byte) error {
	var sentinel error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		sentinel = ErrCredentialRejected
	case status == http.StatusTooManyRequests:
		sentinel = ErrRateLimited
	case status >= 500:
		sentinel = ErrProviderUnavailable
	default:
		sentinel = ErrRequestRejected
	}

	if msg := errorMessage(raw); msg != "" {
		return fmt.Errorf("%w: status %d: %s", sentinel, status, msg)
	}
	return fmt.Errorf("%w: status %d", sentinel, status)
}

// errorMessage pulls error.message out of a provider error body, falling back
// to a truncated copy of the raw body.
func errorMessage(raw []byte) string {
	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil && body.Error.Message != "" {
		return body.Error.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody]
	}
	return s
}

// classifyTransportError maps transport-level errors to sentinel errors.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrInferenceTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

// Fingerprint returns a short, non-reversible tag for a credential so logs
// can correlate jobs without ever containing the key itself.
func Fingerprint(apiKey string) string {
	if apiKey == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:4])
}
