package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// TautulliClient talks to the Tautulli v2 API.
type TautulliClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *slog.Logger
}

// NewTautulliClient creates a Tautulli client.
func NewTautulliClient(baseURL, apiKey string, log *slog.Logger) *TautulliClient {
	if log == nil {
		log = slog.Default()
	}
	return &TautulliClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		log:     log.With("component", "tautulli"),
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// RecentlyAdded lists movies and shows added since the given time. Seasons and
// episodes are folded away; only whole titles are reported.
func (c *TautulliClient) RecentlyAdded(ctx context.Context, since time.Time) ([]RecentItem, error) {
	params := url.Values{
		"cmd":   {"get_recently_added"},
		"count": {"50"},
	}

	var data struct {
		RecentlyAdded []struct {
			Title     string      `json:"title"`
			Year      json.Number `json:"year"`
			MediaType string      `json:"media_type"`
			AddedAt   json.Number `json:"added_at"`
		} `json:"recently_added"`
	}
	if err := c.doRequest(ctx, params, &data); err != nil {
		return nil, err
	}

	var items []RecentItem
	for _, raw := range data.RecentlyAdded {
		if raw.MediaType != "movie" && raw.MediaType != "show" {
			continue
		}
		addedUnix, _ := raw.AddedAt.Int64()
		addedAt := time.Unix(addedUnix, 0).UTC()
		if !addedAt.After(since) {
			continue
		}
		year, _ := raw.Year.Int64()
		items = append(items, RecentItem{
			Title:     raw.Title,
			Year:      int(year),
			MediaType: raw.MediaType,
			AddedAt:   addedAt,
		})
	}
	return items, nil
}

// ActiveStreams reports whether any stream is currently playing.
func (c *TautulliClient) ActiveStreams(ctx context.Context) (bool, error) {
	params := url.Values{"cmd": {"get_activity"}}

	var data struct {
		StreamCount json.Number `json:"stream_count"`
	}
	if err := c.doRequest(ctx, params, &data); err != nil {
		return false, err
	}

	n, _ := data.StreamCount.Int64()
	return n > 0, nil
}

// LibraryContains searches the library for an item with the title and year.
func (c *TautulliClient) LibraryContains(ctx context.Context, title string, year int) (bool, error) {
	params := url.Values{
		"cmd":   {"search"},
		"query": {title},
	}

	var data struct {
		ResultsList struct {
			Movie []searchResult `json:"movie"`
			Show  []searchResult `json:"show"`
		} `json:"results_list"`
	}
	if err := c.doRequest(ctx, params, &data); err != nil {
		return false, err
	}

	results := append(data.ResultsList.Movie, data.ResultsList.Show...)
	for _, r := range results {
		if !strings.EqualFold(r.Title, title) {
			continue
		}
		ry, _ := r.Year.Int64()
		if year == 0 || ry == 0 || int(ry) == year {
			return true, nil
		}
	}
	return false, nil
}

type searchResult struct {
	Title string      `json:"title"`
	Year  json.Number `json:"year"`
}

// Reachable reports whether Tautulli answers an activity probe. Used as the
// media server liveness signal by the power controller.
func (c *TautulliClient) Reachable(ctx context.Context) bool {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	params := url.Values{"cmd": {"get_activity"}}
	var data struct{}
	if err := c.doRequest(probeCtx, params, &data); err != nil {
		c.log.Debug("liveness probe failed", "error", err)
		return false
	}
	return true
}

// doRequest performs a Tautulli API call and unwraps the response envelope.
func (c *TautulliClient) doRequest(ctx context.Context, params url.Values, result any) error {
	params.Set("apikey", c.apiKey)
	reqURL := c.baseURL + "/api/v2?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("api request failed", "cmd", params.Get("cmd"), "error", err)
		return ErrUnavailable
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var envelope struct {
		Response struct {
			Result  string          `json:"result"`
			Message string          `json:"message"`
			Data    json.RawMessage `json:"data"`
		} `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if envelope.Response.Result != "success" {
		return fmt.Errorf("tautulli %s: %s", params.Get("cmd"), envelope.Response.Message)
	}
	if err := json.Unmarshal(envelope.Response.Data, result); err != nil {
		return fmt.Errorf("decode data: %w", err)
	}
	return nil
}
