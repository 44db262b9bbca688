// Package scraper extracts regulatory notices from scraped HTML pages.
// It is the default web-scrape collaborator; site-specific extraction
// can replace it behind the invoker's Scraper interface.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"regsync/internal/domain"
)

// Config holds scraper tuning.
type Config struct {
	Timeout   time.Duration
	UserAgent string
}

// Scraper fetches a source's listing page and extracts one record per
// article element.
type Scraper struct {
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Scraper {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "regsync/1.0"
	}
	return &Scraper{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		userAgent:  cfg.UserAgent,
		logger:     logger,
	}
}

// Scrape fetches the source endpoint and returns zero or more records.
// Articles without a resolvable link are skipped: the link is the only
// stable external identity a scraped page offers.
func (s *Scraper) Scrape(ctx context.Context, src domain.DataSource) ([]domain.Record, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(src.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}

	now := time.Now().UTC()
	var records []domain.Record

	doc.Find("article").Each(func(_ int, sel *goquery.Selection) {
		link := s.resolveLink(base, sel)
		if link == "" {
			return
		}

		title := strings.TrimSpace(sel.Find("h1, h2, h3").First().Text())
		if title == "" {
			title = strings.TrimSpace(sel.Find("a").First().Text())
		}
		if title == "" {
			return
		}

		publishedAt := now
		if dt, ok := sel.Find("time").First().Attr("datetime"); ok {
			if parsed, err := time.Parse(time.RFC3339, dt); err == nil {
				publishedAt = parsed
			}
		}

		records = append(records, domain.Record{
			ExternalID:  link,
			Title:       title,
			Content:     strings.TrimSpace(sel.Find("p").Text()),
			PublishedAt: publishedAt,
		})
	})

	s.logger.Debug("scraped page",
		"source", src.ID,
		"records", len(records),
	)
	return records, nil
}

func (s *Scraper) resolveLink(base *url.URL, sel *goquery.Selection) string {
	href, ok := sel.Find("a").First().Attr("href")
	if !ok || href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}
