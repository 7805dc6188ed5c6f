package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/http2"

	"github.com/brickops/fieldsync/internal/config"
	"github.com/brickops/fieldsync/internal/events"
	"github.com/brickops/fieldsync/internal/models"
	"github.com/brickops/fieldsync/internal/retry"
)

// HTTPClient talks to the Socrata endpoints with app-token auth and
// bounded linear retry on transient failures.
type HTTPClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
	appToken  string
	logger    *events.Logger

	policy retry.Policy
}

// NewHTTPClient creates an HTTP client from API config.
func NewHTTPClient(cfg *config.APIConfig, logger *events.Logger) *HTTPClient {
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		TLSClientConfig: &tls.Config{
			NextProtos: []string{"h2", "http/1.1"},
		},
	}

	if err := http2.ConfigureTransport(transport); err != nil {
		logger.WithError(err).Warn("Failed to configure HTTP/2")
	}

	return &HTTPClient{
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		appToken:  cfg.AppToken,
		logger:    logger.WithField("component", "http_client"),
		policy: retry.Policy{
			MaxAttempts: cfg.MaxRetries,
			Base:        time.Second,
		},
	}
}

// GetJSON performs a GET and decodes the JSON response into out.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	c.logger.WithFields(map[string]any{
		"method": "GET",
		"url":    reqURL,
	}).Debug("Sending request")

	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		c.setHeaders(req)

		return c.execute(req, out)
	})
}

// PostJSON performs a POST with a JSON body and decodes the response into out.
func (c *HTTPClient) PostJSON(ctx context.Context, path string, payload any, out any) error {
	reqURL := c.baseURL + path

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	c.logger.WithFields(map[string]any{
		"method": "POST",
		"url":    reqURL,
		"size":   len(body),
	}).Debug("Sending request")

	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		c.setHeaders(req)

		return c.execute(req, out)
	})
}

func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if c.appToken != "" {
		req.Header.Set("X-App-Token", c.appToken)
	}
}

func (c *HTTPClient) execute(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		code := models.ErrCodeNetwork
		if req.Context().Err() != nil {
			code = models.ErrCodeTimeout
		}
		return &models.NetworkError{
			Code:      code,
			Op:        req.Method,
			URL:       req.URL.String(),
			Retryable: true,
			Err:       err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	c.logger.WithFields(map[string]any{
		"status": resp.StatusCode,
		"size":   len(respBody),
	}).Debug("Received response")

	if resp.StatusCode != http.StatusOK {
		return statusError(req, resp.StatusCode, respBody)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// statusError classifies a non-200 response. Rate limits and server
// errors are retryable; client errors are terminal.
func statusError(req *http.Request, status int, body []byte) error {
	code := models.ErrCodeNetwork
	retryable := false

	switch {
	case status == http.StatusTooManyRequests:
		code = models.ErrCodeRateLimit
		retryable = true
	case status == http.StatusRequestTimeout:
		code = models.ErrCodeTimeout
		retryable = true
	case status >= 500:
		retryable = true
	}

	return &models.NetworkError{
		Code:      code,
		Op:        req.Method,
		URL:       req.URL.String(),
		Retryable: retryable,
		Err:       fmt.Errorf("HTTP %d: %s", status, truncate(body, 256)),
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
