package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"regsync/internal/domain"
)

// DigestService summarizes the trailing week of stored records and
// notifies operators that the digest is ready.
type DigestService struct {
	records    RecordStore
	notifier   Notifier
	recipients []string
	logger     *slog.Logger
	now        func() time.Time
}

func NewDigestService(records RecordStore, notifier Notifier, recipients []string, logger *slog.Logger) *DigestService {
	return &DigestService{
		records:    records,
		notifier:   notifier,
		recipients: recipients,
		logger:     logger,
		now:        time.Now,
	}
}

// Generate builds the weekly digest summary and emits the digest-ready
// alert.
func (d *DigestService) Generate(ctx context.Context) error {
	since := d.now().AddDate(0, 0, -7)

	counts, err := d.records.CountByRegionSince(ctx, since)
	if err != nil {
		return fmt.Errorf("count records: %w", err)
	}

	total := 0
	regions := make([]string, 0, len(counts))
	for region, n := range counts {
		total += n
		regions = append(regions, region)
	}
	sort.Strings(regions)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d regulatory records collected in the last 7 days.", total)
	for _, region := range regions {
		fmt.Fprintf(&sb, " %s: %d.", region, counts[region])
	}

	alert := domain.Alert{
		Recipients: d.recipients,
		Title:      "Weekly regulatory digest ready",
		Message:    sb.String(),
		Severity:   domain.SeverityLow,
	}
	if err := d.notifier.Notify(ctx, alert); err != nil {
		return fmt.Errorf("send digest alert: %w", err)
	}

	d.logger.Info("weekly digest generated",
		"total_records", total,
		"regions", len(regions),
	)
	return nil
}
