package invoker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"regsync/internal/domain"
)

// apiResponse is the document listing returned by official regulatory
// APIs.
type apiResponse struct {
	Documents []apiDocument `json:"documents"`
}

type apiDocument struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Content     string `json:"content"`
	Region      string `json:"region"`
	PublishedAt string `json:"publishedAt"`
}

// fetchOfficial performs one authenticated HTTP fetch against an
// official-API source and parses rate-limit headers when present.
// Quota information is returned even for failed responses so the gate
// can record a 429's window.
func (inv *Invoker) fetchOfficial(ctx context.Context, src domain.DataSource) ([]domain.Record, *quotaInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "regsync/1.0")
	if src.RequiresAuth {
		req.Header.Set("Authorization", "Bearer "+src.APIKey)
	}

	resp, err := inv.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	quota := parseQuotaHeaders(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, quota, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var apiResp apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, quota, fmt.Errorf("decode response: %w", err)
	}

	records := make([]domain.Record, 0, len(apiResp.Documents))
	for _, doc := range apiResp.Documents {
		publishedAt, err := time.Parse(time.RFC3339, doc.PublishedAt)
		if err != nil {
			inv.logger.Warn("skipping document with unparseable date",
				"source", src.ID,
				"external_id", doc.ID,
				"published_at", doc.PublishedAt,
			)
			continue
		}

		records = append(records, domain.Record{
			ExternalID:  doc.ID,
			Title:       doc.Title,
			Content:     doc.Content,
			Region:      doc.Region,
			PublishedAt: publishedAt,
		})
	}

	return records, quota, nil
}

// parseQuotaHeaders extracts a quota window from X-RateLimit-Remaining
// and X-RateLimit-Reset (unix seconds). A 429 with Retry-After is
// translated into an exhausted window. Returns nil when the response
// carried no usable quota information.
func parseQuotaHeaders(resp *http.Response) *quotaInfo {
	remainingStr := resp.Header.Get("X-RateLimit-Remaining")
	resetStr := resp.Header.Get("X-RateLimit-Reset")

	if remainingStr != "" && resetStr != "" {
		remaining, err1 := strconv.Atoi(remainingStr)
		resetUnix, err2 := strconv.ParseInt(resetStr, 10, 64)
		if err1 == nil && err2 == nil {
			return &quotaInfo{
				remaining: remaining,
				resetAt:   time.Unix(resetUnix, 0).UTC(),
			}
		}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if seconds, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
			return &quotaInfo{
				remaining: 0,
				resetAt:   time.Now().Add(time.Duration(seconds) * time.Second).UTC(),
			}
		}
	}

	return nil
}
