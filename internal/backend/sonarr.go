package backend

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
)

// SonarrClient is the series acquisition backend.
type SonarrClient struct {
	arrClient
	rootFolder     string
	qualityProfile int
}

// NewSonarrClient creates a Sonarr backend client.
func NewSonarrClient(baseURL, apiKey, rootFolder string, qualityProfile int, log *slog.Logger) *SonarrClient {
	if log == nil {
		log = slog.Default()
	}
	return &SonarrClient{
		arrClient:      newArrClient(baseURL, apiKey, log.With("component", "sonarr")),
		rootFolder:     rootFolder,
		qualityProfile: qualityProfile,
	}
}

type sonarrSeries struct {
	ID        int64          `json:"id"`
	Monitored bool           `json:"monitored"`
	Seasons   []sonarrSeason `json:"seasons"`
}

type sonarrSeason struct {
	SeasonNumber int  `json:"seasonNumber"`
	Monitored    bool `json:"monitored"`
	Statistics   *struct {
		EpisodeCount      int     `json:"episodeCount"`
		EpisodeFileCount  int     `json:"episodeFileCount"`
		PercentOfEpisodes float64 `json:"percentOfEpisodes"`
	} `json:"statistics"`
}

type sonarrQueue struct {
	Records []struct {
		SeriesID int64 `json:"seriesId"`
	} `json:"records"`
}

// seasonMonitor maps our season scope to Sonarr's addOptions.monitor values.
func seasonMonitor(seasons string) string {
	switch seasons {
	case "latest":
		return "latestSeason"
	case "first":
		return "firstSeason"
	default:
		return "all"
	}
}

// AddItem adds a series by TVDB id, monitoring the selected season scope,
// and triggers a search for missing episodes.
func (c *SonarrClient) AddItem(ctx context.Context, p AddParams) (int64, error) {
	tvdbID, err := strconv.ParseInt(p.ExternalID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad tvdb id %q: %w", p.ExternalID, err)
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
		"tvdbId":           tvdbID,
		"title":            p.Title,
		"qualityProfileId": profile,
		"rootFolderPath":   rootFolder,
		"monitored":        true,
		"seasonFolder":     true,
		"addOptions": map[string]any{
			"monitor":                  seasonMonitor(p.Seasons),
			"searchForMissingEpisodes": true,
		},
	}

	var added sonarrSeries
	if err := c.post(ctx, "/series", body, &added); err != nil {
		return 0, fmt.Errorf("sonarr add: %w", err)
	}
	if added.ID == 0 {
		return 0, fmt.Errorf("sonarr add returned no id")
	}

	c.log.Info("series added", "tvdb_id", tvdbID, "series_id", added.ID, "monitor", seasonMonitor(p.Seasons))
	return added.ID, nil
}

// GetStatus reports a series' acquisition state with per-season completeness.
// Season scope satisfaction is the caller's concern.
func (c *SonarrClient) GetStatus(ctx context.Context, itemID int64) (*ItemStatus, error) {
	var series sonarrSeries
	if err := c.get(ctx, "/series/"+strconv.FormatInt(itemID, 10), nil, &series); err != nil {
		return nil, fmt.Errorf("sonarr status: %w", err)
	}

	status := &ItemStatus{State: StateQueued}
	for _, s := range series.Seasons {
		if s.SeasonNumber == 0 {
			continue // specials don't count toward scope
		}
		complete := false
		if s.Statistics != nil && s.Statistics.EpisodeCount > 0 {
			complete = s.Statistics.EpisodeFileCount >= s.Statistics.EpisodeCount
		}
		status.Seasons = append(status.Seasons, SeasonStatus{
			Number:   s.SeasonNumber,
			Complete: complete,
		})
	}

	if !series.Monitored {
		status.State = StateNotFound
		return status, nil
	}

	var queue sonarrQueue
	if err := c.get(ctx, "/queue", nil, &queue); err != nil {
		return nil, fmt.Errorf("sonarr queue: %w", err)
	}
	for _, rec := range queue.Records {
		if rec.SeriesID == itemID {
			status.State = StateDownloading
			break
		}
	}

	return status, nil
}

// ItemExists reports whether a series with the TVDB id is already tracked.
func (c *SonarrClient) ItemExists(ctx context.Context, externalID string) (bool, error) {
	var series []sonarrSeries
	query := url.Values{"tvdbId": {externalID}}
	if err := c.get(ctx, "/series", query, &series); err != nil {
		return false, fmt.Errorf("sonarr lookup: %w", err)
	}
	for _, s := range series {
		if s.ID != 0 {
			return true, nil
		}
	}
	return false, nil
}
