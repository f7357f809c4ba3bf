package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
)

// RadarrClient is the movie acquisition backend.
type RadarrClient struct {
	arrClient
	rootFolder     string
	qualityProfile int
}

// NewRadarrClient creates a Radarr backend client.
func NewRadarrClient(baseURL, apiKey, rootFolder string, qualityProfile int, log *slog.Logger) *RadarrClient {
	if log == nil {
		log = slog.Default()
	}
	return &RadarrClient{
		arrClient:      newArrClient(baseURL, apiKey, log.With("component", "radarr")),
		rootFolder:     rootFolder,
		qualityProfile: qualityProfile,
	}
}

type radarrMovie struct {
	ID        int64 `json:"id"`
	HasFile   bool  `json:"hasFile"`
	Monitored bool  `json:"monitored"`
}

type radarrQueue struct {
	Records []struct {
		MovieID int64 `json:"movieId"`
	} `json:"records"`
}

// AddItem adds a movie by TMDB id and triggers a search for it.
func (c *RadarrClient) AddItem(ctx context.Context, p AddParams) (int64, error) {
	tmdbID, err := strconv.ParseInt(p.ExternalID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad tmdb id %q: %w", p.ExternalID, err)
	}

	rootFolder := p.RootFolder
	if rootFolder == "" {
		rootFolder = c.rootFolder
	}
	profile := p.QualityProfile
	if profile == 0 {
		profile = c.qualityProfile
	}

	body := map[string]any{
		"tmdbId":           tmdbID,
		"title":            p.Title,
		"year":             p.Year,
		"qualityProfileId": profile,
		"rootFolderPath":   rootFolder,
		"monitored":        true,
		"addOptions": map[string]any{
			"searchForMovie": true,
		},
	}

	var added radarrMovie
	if err := c.post(ctx, "/movie", body, &added); err != nil {
		return 0, fmt.Errorf("radarr add: %w", err)
	}
	if added.ID == 0 {
		return 0, fmt.Errorf("radarr add returned no id")
	}

	c.log.Info("movie added", "tmdb_id", tmdbID, "movie_id", added.ID)
	return added.ID, nil
}

// GetStatus reports a movie's acquisition state.
func (c *RadarrClient) GetStatus(ctx context.Context, itemID int64) (*ItemStatus, error) {
	var movie radarrMovie
	if err := c.get(ctx, "/movie/"+strconv.FormatInt(itemID, 10), nil, &movie); err != nil {
		return nil, fmt.Errorf("radarr status: %w", err)
	}

	if movie.HasFile {
		return &ItemStatus{State: StateAvailable}, nil
	}
	if !movie.Monitored {
		// Unmonitored without a file means Radarr gave up on it.
		return &ItemStatus{State: StateNotFound}, nil
	}

	var queue radarrQueue
	if err := c.get(ctx, "/queue", nil, &queue); err != nil {
		return nil, fmt.Errorf("radarr queue: %w", err)
	}
	for _, rec := range queue.Records {
		if rec.MovieID == itemID {
			return &ItemStatus{State: StateDownloading}, nil
		}
	}

	return &ItemStatus{State: StateQueued}, nil
}

// ItemExists reports whether a movie with the TMDB id is already tracked.
func (c *RadarrClient) ItemExists(ctx context.Context, externalID string) (bool, error) {
	var movies []radarrMovie
	query := url.Values{"tmdbId": {externalID}}
	if err := c.get(ctx, "/movie", query, &movies); err != nil {
		return false, fmt.Errorf("radarr lookup: %w", err)
	}
	for _, m := range movies {
		if m.ID != 0 {
			return true, nil
		}
	}
	return false, nil
}
