package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"regsync/internal/domain"
	"regsync/internal/service/mocks"
)

func TestDigestGenerate(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	records := mocks.NewMockRecordStore(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	d := NewDigestService(records, notifier, []string{"ops@example.com"}, logger)
	now := time.Date(2025, 3, 10, 6, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }

	records.EXPECT().
		CountByRegionSince(gomock.Any(), now.AddDate(0, 0, -7)).
		Return(map[string]int{"EU": 12, "APAC": 3}, nil)

	var sent domain.Alert
	notifier.EXPECT().Notify(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, alert domain.Alert) error {
			sent = alert
			return nil
		},
	)

	require.NoError(t, d.Generate(context.Background()))

	assert.Equal(t, "Weekly regulatory digest ready", sent.Title)
	assert.Equal(t, domain.SeverityLow, sent.Severity)
	assert.Equal(t, []string{"ops@example.com"}, sent.Recipients)
	// Regions are reported in alphabetical order.
	assert.Equal(t, "15 regulatory records collected in the last 7 days. APAC: 3. EU: 12.", sent.Message)
}

func TestDigestGenerate_CountError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	records := mocks.NewMockRecordStore(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	d := NewDigestService(records, notifier, nil, logger)

	records.EXPECT().
		CountByRegionSince(gomock.Any(), gomock.Any()).
		Return(nil, errors.New("db down"))

	err := d.Generate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "count records")
}
