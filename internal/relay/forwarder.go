package relay

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
)

// Forwarder delivers a raw payload to the command service and returns its ack.
// Every failure is reported wrapped in ErrUpstreamUnavailable.
type Forwarder interface {
	Forward(ctx context.Context, payload string) (string, error)
}

// HTTPForwarder posts payloads to the command service's /sos endpoint.
type HTTPForwarder struct {
	client  *http.Client
	url     string
	timeout time.Duration
	logger  *zap.Logger
}

// HTTPForwarderConfig configures an HTTPForwarder.
type HTTPForwarderConfig struct {
	CommandURL string        // base URL of the command service
	Timeout    time.Duration // per-request timeout, defaults to 5s
}

// NewHTTPForwarder creates a forwarder for the given command service.
func NewHTTPForwarder(cfg HTTPForwarderConfig, logger *zap.Logger) *HTTPForwarder {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &HTTPForwarder{
		client:  &http.Client{},
		url:     strings.TrimRight(cfg.CommandURL, "/") + "/sos",
		timeout: timeout,
		logger:  logger,
	}
}

type forwardRequest struct {
	Raw string `json:"raw"`
}

type forwardResponse struct {
	Ack string `json:"ack"`
}

// Forward sends one attempt. It does not retry.
func (f *HTTPForwarder) Forward(ctx context.Context, payload string) (string, error) {
	body, err := json.Marshal(forwardRequest{Raw: payload})
	if err != nil {
		return "", fmt.Errorf("encode forward request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: build request: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Beacon-Relay/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status %d, body: %s", ErrUpstreamUnavailable, resp.StatusCode, string(respBody))
	}

	var out forwardResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("%w: decode ack: %v", ErrUpstreamUnavailable, err)
	}
	if out.Ack == "" {
		return "", fmt.Errorf("%w: response carried no ack", ErrUpstreamUnavailable)
	}

	f.logger.Debug("alert forwarded",
		zap.String("url", f.url),
		zap.Int("status_code", resp.StatusCode),
		zap.String("ack", out.Ack),
	)

	return out.Ack, nil
}
