package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// arrClient is the shared HTTP transport for Radarr-family APIs.
type arrClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

func newArrClient(baseURL, apiKey string, log *slog.Logger) arrClient {
	return arrClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		log:     log,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// get performs a GET against an /api/v3 path and decodes the JSON response.
// A 404 maps to ErrNotFound, a 401 to ErrInvalidAPIKey, transport failures to
// ErrUnavailable.
func (c *arrClient) get(ctx context.Context, path string, query url.Values, result any) error {
	reqURL := c.baseURL + "/api/v3" + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, path, result)
}

// post performs a POST with a JSON body against an /api/v3 path.
func (c *arrClient) post(ctx context.Context, path string, body, result any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v3"+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, path, result)
}

func (c *arrClient) do(req *http.Request, path string, result any) error {
	start := time.Now()
	req.Header.Set("X-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("api request failed", "path", path, "error", err)
		return ErrUnavailable
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrInvalidAPIKey
	case resp.StatusCode >= 300:
		c.log.Debug("api unexpected status", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	c.log.Debug("api request complete", "path", path, "duration_ms", time.Since(start).Milliseconds())
	return nil
}
