// Package partner fetches records from partner feed APIs.
package partner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"regsync/internal/domain"
)

// Config holds partner client tuning.
type Config struct {
	Timeout time.Duration
}

// Client is the partner-feed collaborator. Partner feeds expose a flat
// JSON array of records, authenticated by API key header.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
}

type partnerRecord struct {
	ExternalID  string `json:"external_id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Region      string `json:"region"`
	PublishedAt string `json:"published_at"`
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}

// Fetch retrieves the partner feed for one source.
func (c *Client) Fetch(ctx context.Context, src domain.DataSource) ([]domain.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "regsync/1.0")
	if src.RequiresAuth {
		req.Header.Set("X-API-Key", src.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var feed []partnerRecord
	if err := json.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	records := make([]domain.Record, 0, len(feed))
	for _, pr := range feed {
		publishedAt, err := time.Parse(time.RFC3339, pr.PublishedAt)
		if err != nil {
			c.logger.Warn("skipping record with unparseable date",
				"source", src.ID,
				"external_id", pr.ExternalID,
				"published_at", pr.PublishedAt,
			)
			continue
		}
		records = append(records, domain.Record{
			ExternalID:  pr.ExternalID,
			Title:       pr.Title,
			Content:     pr.Content,
			Region:      pr.Region,
			PublishedAt: publishedAt,
		})
	}

	return records, nil
}
