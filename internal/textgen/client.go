package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnavailable wraps every failure to obtain generated text
var ErrUnavailable = errors.New("text generation unavailable")

// maxResponseBytes caps how much of a response body is read
const maxResponseBytes = 1 << 20

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// Client calls a hosted language model over HTTP
type Client struct {
	endpoint *url.URL
	apiKey   string
	model    string
	http     *http.Client
	logger   *zap.Logger
}

func NewClient(endpoint, apiKey, model string, timeout time.Duration, logger *zap.Logger) (*Client, error) {
	target, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to parse endpoint URL: %w", err)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, fmt.Errorf("endpoint must be an http(s) URL, got %q", endpoint)
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConnsPerHost:   10,
		ResponseHeaderTimeout: timeout,
	}

	return &Client{
		endpoint: target,
		apiKey:   apiKey,
		model:    model,
		http:     &http.Client{Transport: transport, Timeout: timeout},
		logger:   logger.With(zap.String("component", "textgen"), zap.String("host", target.Host)),
	}, nil
}

// Generate sends prompt and returns the generated text
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{Model: c.model, Prompt: prompt})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint.String(), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			c.logger.Error("Backend timeout", zap.Duration("elapsed", time.Since(start)))
			return "", fmt.Errorf("%w: timed out after %s", ErrUnavailable, time.Since(start).Round(time.Millisecond))
		}
		c.logger.Error("Request failed", zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read response: %v", ErrUnavailable, err)
	}

	c.logger.Debug("Response received from backend",
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)),
		zap.Duration("elapsed", time.Since(start)))

	var out generateResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := strings.TrimSpace(out.Error)
		if decodeErr != nil || detail == "" {
			detail = http.StatusText(resp.StatusCode)
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrUnavailable, resp.StatusCode, detail)
	}

	if decodeErr != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrUnavailable, decodeErr)
	}

	text := strings.TrimSpace(out.Text)
	if text == "" {
		return "", fmt.Errorf("%w: empty response", ErrUnavailable)
	}
	return text, nil
}

// Unavailable stands in for a client when no endpoint is configured. Every
// call fails with ErrUnavailable.
type Unavailable struct{}

func (Unavailable) Generate(context.Context, string) (string, error) {
	return "", ErrUnavailable
}
