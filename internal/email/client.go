// Package email talks to the separate email-crawling microservice and
// attaches extracted addresses back onto stored results.
package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Client is a minimal HTTP client for the email-crawling microservice.
type Client struct {
	baseURL string
	hc      *http.Client
	log     *zap.Logger
}

// NewClient creates a crawler client. If httpClient is nil, a default with a
// 60s timeout is used — crawling a site takes a while.
func NewClient(baseURL string, httpClient *http.Client, log *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{baseURL: baseURL, hc: httpClient, log: log}
}

// ExtractResult is the crawler's answer for one URL.
type ExtractResult struct {
	URL    string   `json:"url"`
	Emails []string `json:"emails"`
}

// BatchResult is the crawler's answer for a batch of URLs.
type BatchResult struct {
	Results      []ExtractResult `json:"results"`
	UniqueEmails []string        `json:"unique_emails"`
}

// ExtractFromURL crawls a single URL for email addresses.
func (c *Client) ExtractFromURL(ctx context.Context, url string) (*ExtractResult, error) {
	var out ExtractResult
	if err := c.post(ctx, "/extract", map[string]any{"url": url}, &out); err != nil {
		return nil, fmt.Errorf("extract emails: %w", err)
	}
	return &out, nil
}

// ExtractFromURLs crawls a batch of URLs for email addresses.
func (c *Client) ExtractFromURLs(ctx context.Context, urls []string) (*BatchResult, error) {
	var out BatchResult
	if err := c.post(ctx, "/extract/batch", map[string]any{"urls": urls}, &out); err != nil {
		return nil, fmt.Errorf("extract emails: %w", err)
	}
	return &out, nil
}

// Health reports the crawler's health; an unreachable service is reported,
// not an error.
func (c *Client) Health(ctx context.Context) map[string]any {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return map[string]any{"status": "unavailable", "error": err.Error()}
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return map[string]any{"status": "unavailable", "error": err.Error()}
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return map[string]any{"status": "unavailable", "error": err.Error()}
	}
	return out
}

func (c *Client) post(ctx context.Context, path string, body map[string]any, out any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Warn("email service request failed", zap.String("path", path), zap.Error(err))
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	c.log.Debug("email service response",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("email service status=%d body=%s", resp.StatusCode, string(respBody))
	}
	return json.Unmarshal(respBody, out)
}
