package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/arnav/places_service/internal/apperr"
)

// DefaultBaseURL is the metered maps-search API endpoint.
const DefaultBaseURL = "https://scraper.tech/api"

// Client is a thin adapter over the external maps-search API. One call is one
// HTTP round trip; failures map to stable SCRAPER_<status> codes and are never
// retried here — pacing and tolerance belong to the orchestrator.
type Client struct {
	baseURL string
	apiKey  string
	hc      *http.Client
	log     *zap.Logger
}

// NewClient creates a provider client. If httpClient is nil, a default with a
// 30s timeout is used.
func NewClient(baseURL, apiKey string, httpClient *http.Client, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{baseURL: baseURL, apiKey: apiKey, hc: httpClient, log: log}
}

// SearchMapsParams parameterizes one searchmaps.php round trip. Lat/Lng/Zoom
// are only sent for area-mode calls.
type SearchMapsParams struct {
	Query    string
	Limit    int
	Country  string
	Language string
	Offset   int
	Lat      *float64
	Lng      *float64
	Zoom     int
}

// SearchMaps runs one text or area search call. The provider answers with
// either a bare array of place records or an object wrapping one under "data"
// or "results"; a payload with no array means end of data and returns nil
// records with no error.
func (c *Client) SearchMaps(ctx context.Context, p SearchMapsParams) ([]map[string]any, error) {
	params := url.Values{}
	params.Set("query", p.Query)
	params.Set("limit", strconv.Itoa(p.Limit))
	params.Set("country", p.Country)
	params.Set("lang", p.Language)
	params.Set("offset", strconv.Itoa(p.Offset))
	if p.Lat != nil && p.Lng != nil {
		params.Set("lat", strconv.FormatFloat(*p.Lat, 'f', -1, 64))
		params.Set("lng", strconv.FormatFloat(*p.Lng, 'f', -1, 64))
		params.Set("zoom", strconv.Itoa(p.Zoom))
	}

	body, err := c.get(ctx, "/searchmaps.php", params)
	if err != nil {
		return nil, err
	}
	return decodeRecords(body), nil
}

// PlaceInfoParams identifies a place by provider place id or business id.
type PlaceInfoParams struct {
	PlaceID    string
	BusinessID string
	Country    string
	Language   string
}

// GetPlaceInfo fetches detailed place information.
func (c *Client) GetPlaceInfo(ctx context.Context, p PlaceInfoParams) (map[string]any, error) {
	params := url.Values{}
	params.Set("country", p.Country)
	params.Set("lang", p.Language)
	if p.PlaceID != "" {
		params.Set("place_id", p.PlaceID)
	}
	if p.BusinessID != "" {
		params.Set("business_id", p.BusinessID)
	}

	body, err := c.get(ctx, "/place.php", params)
	if err != nil {
		return nil, err
	}
	return decodeObject(body), nil
}

// ReviewsParams parameterizes a paginated review fetch.
type ReviewsParams struct {
	PlaceID string
	Sort    string
	Limit   int
	Cursor  string
}

// GetReviews fetches a page of reviews for a place.
func (c *Client) GetReviews(ctx context.Context, p ReviewsParams) (map[string]any, error) {
	params := url.Values{}
	params.Set("place_id", p.PlaceID)
	params.Set("sort", p.Sort)
	params.Set("limit", strconv.Itoa(p.Limit))
	if p.Cursor != "" {
		params.Set("cursor", p.Cursor)
	}

	body, err := c.get(ctx, "/reviews.php", params)
	if err != nil {
		return nil, err
	}
	return decodeObject(body), nil
}

// GetPhotos fetches a page of photos for a place.
func (c *Client) GetPhotos(ctx context.Context, placeID, cursor string) (map[string]any, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	if cursor != "" {
		params.Set("cursor", cursor)
	}

	body, err := c.get(ctx, "/photos.php", params)
	if err != nil {
		return nil, err
	}
	return decodeObject(body), nil
}

// WhatIsHere reverse-geocodes a coordinate.
func (c *Client) WhatIsHere(ctx context.Context, lat, lng float64) (map[string]any, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lng", strconv.FormatFloat(lng, 'f', -1, 64))

	body, err := c.get(ctx, "/whatishere.php", params)
	if err != nil {
		return nil, err
	}
	return decodeObject(body), nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	u := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("provider new request: %w", err)
	}
	req.Header.Set("Scraper-Key", c.apiKey)

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		c.log.Warn("provider request failed",
			zap.String("path", path), zap.Error(err))
		return nil, fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	c.log.Debug("provider response",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apperr.Provider(resp.StatusCode)
	}
	return body, nil
}

// decodeRecords extracts the array of place records from a provider payload,
// whatever its wrapping shape. Returns nil when no array is present.
func decodeRecords(body []byte) []map[string]any {
	var parsed any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil
	}

	switch v := parsed.(type) {
	case []any:
		return toRecords(v)
	case map[string]any:
		if arr, ok := v["data"].([]any); ok {
			return toRecords(arr)
		}
		if arr, ok := v["results"].([]any); ok {
			return toRecords(arr)
		}
	}
	return nil
}

// decodeObject parses an object payload, unwrapping a "data" object when the
// provider nests one.
func decodeObject(body []byte) map[string]any {
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil
	}
	if inner, ok := parsed["data"].(map[string]any); ok {
		return inner
	}
	return parsed
}

func toRecords(arr []any) []map[string]any {
	records := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if m, ok := item.(map[string]any); ok {
			records = append(records, m)
		}
	}
	if len(records) == 0 {
		return nil
	}
	return records
}
