// Package scheduler triggers orchestrator runs on fixed cadences:
// an hourly check sync, a daily full sync at a fixed UTC time, and a
// weekly digest at a fixed UTC weekday and time.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"regsync/internal/domain"
)

type Orchestrator interface {
	SyncAll(ctx context.Context, activeOnly bool) (*domain.SyncRun, error)
}

type DigestGenerator interface {
	Generate(ctx context.Context) error
}

type Notifier interface {
	Notify(ctx context.Context, alert domain.Alert) error
}

// Config holds the three job cadences and per-job alerting toggles.
type Config struct {
	HourlyInterval time.Duration

	DailyHour   int
	DailyMinute int

	WeeklyWeekday time.Weekday
	WeeklyHour    int
	WeeklyMinute  int

	// Only daily and weekly failures raise operator alerts by default.
	HourlyAlerts bool
	DailyAlerts  bool
	WeeklyAlerts bool

	Recipients []string
}

// Scheduler runs the three jobs on independent timers. The jobs may
// fire concurrently with each other; all shared state they touch lives
// behind the registry and the rate limiter, which synchronize
// internally.
//
// Repeat intervals are fixed from the first firing rather than
// re-anchored to the wall-clock target each cycle. A long-lived process
// therefore keeps its original phase; a restart recomputes the next
// UTC occurrence from scratch.
type Scheduler struct {
	cfg          Config
	orchestrator Orchestrator
	digest       DigestGenerator
	notifier     Notifier
	logger       *slog.Logger

	now func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfg Config, orchestrator Orchestrator, digest DigestGenerator, notifier Notifier, logger *slog.Logger) *Scheduler {
	if cfg.HourlyInterval <= 0 {
		cfg.HourlyInterval = time.Hour
	}
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		digest:       digest,
		notifier:     notifier,
		logger:       logger,
		now:          time.Now,
	}
}

// Start launches all three job timers. Calling Start while the
// scheduler is already running is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(3)
	go s.hourlyLoop(ctx)
	go s.dailyLoop(ctx)
	go s.weeklyLoop(ctx)

	s.logger.Info("scheduler started",
		"hourly_interval", s.cfg.HourlyInterval,
		"daily_at", fmt.Sprintf("%02d:%02d UTC", s.cfg.DailyHour, s.cfg.DailyMinute),
		"weekly_at", fmt.Sprintf("%s %02d:%02d UTC", s.cfg.WeeklyWeekday, s.cfg.WeeklyHour, s.cfg.WeeklyMinute),
	)
}

// Stop cancels all pending timers and waits for in-flight jobs to
// return. The scheduler can be started again afterwards.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// hourlyLoop runs immediately on start, then repeats on a fixed
// interval. Hourly failures are logged but do not alert by default.
func (s *Scheduler) hourlyLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.HourlyInterval)
	defer ticker.Stop()

	s.runJob(ctx, "hourly-sync", s.cfg.HourlyAlerts, domain.SeverityMedium, s.hourlySync)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runJob(ctx, "hourly-sync", s.cfg.HourlyAlerts, domain.SeverityMedium, s.hourlySync)
		}
	}
}

// dailyLoop waits for the next occurrence of the configured UTC time,
// then repeats every 24 hours from that first firing.
func (s *Scheduler) dailyLoop(ctx context.Context) {
	defer s.wg.Done()

	first := nextDailyRun(s.now(), s.cfg.DailyHour, s.cfg.DailyMinute)
	s.fixedPeriodLoop(ctx, first, 24*time.Hour, func(ctx context.Context) {
		s.runJob(ctx, "daily-sync", s.cfg.DailyAlerts, domain.SeverityHigh, s.dailySync)
	})
}

// weeklyLoop waits for the next occurrence of the configured UTC
// weekday and time, then repeats every 7 days from that first firing.
func (s *Scheduler) weeklyLoop(ctx context.Context) {
	defer s.wg.Done()

	first := nextWeeklyRun(s.now(), s.cfg.WeeklyWeekday, s.cfg.WeeklyHour, s.cfg.WeeklyMinute)
	s.fixedPeriodLoop(ctx, first, 7*24*time.Hour, func(ctx context.Context) {
		s.runJob(ctx, "weekly-digest", s.cfg.WeeklyAlerts, domain.SeverityMedium, s.weeklyDigest)
	})
}

func (s *Scheduler) fixedPeriodLoop(ctx context.Context, first time.Time, period time.Duration, job func(context.Context)) {
	timer := time.NewTimer(first.Sub(s.now()))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	job(ctx)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			job(ctx)
		}
	}
}

func (s *Scheduler) hourlySync(ctx context.Context) error {
	_, err := s.orchestrator.SyncAll(ctx, true)
	return err
}

func (s *Scheduler) dailySync(ctx context.Context) error {
	_, err := s.orchestrator.SyncAll(ctx, true)
	return err
}

func (s *Scheduler) weeklyDigest(ctx context.Context) error {
	return s.digest.Generate(ctx)
}

// runJob is the scheduler boundary: callback errors and panics are
// swallowed here so a failing job can never terminate the process.
func (s *Scheduler) runJob(ctx context.Context, name string, alertOnFailure bool, severity domain.Severity, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked", "job", name, "panic", r)
			if alertOnFailure {
				s.alert(ctx, name, fmt.Sprintf("job panicked: %v", r), severity)
			}
		}
	}()

	s.logger.Info("scheduled job firing", "job", name)

	if err := fn(ctx); err != nil {
		s.logger.Error("scheduled job failed", "job", name, "error", err)
		if alertOnFailure {
			s.alert(ctx, name, fmt.Sprintf("job failed: %v", err), severity)
		}
	}
}

func (s *Scheduler) alert(ctx context.Context, job, message string, severity domain.Severity) {
	alert := domain.Alert{
		Recipients: s.cfg.Recipients,
		Title:      fmt.Sprintf("Scheduled job %s failed", job),
		Message:    message,
		Severity:   severity,
	}
	if err := s.notifier.Notify(ctx, alert); err != nil {
		s.logger.Error("failed to send job alert", "job", job, "error", err)
	}
}

// nextDailyRun computes the next occurrence of hour:minute UTC. A time
// that has already passed today targets tomorrow.
func nextDailyRun(now time.Time, hour, minute int) time.Time {
	now = now.UTC()
	target := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, time.UTC)
	if !target.After(now) {
		target = target.Add(24 * time.Hour)
	}
	return target
}

// nextWeeklyRun computes the next occurrence of weekday hour:minute
// UTC using modular day arithmetic (0=Sunday).
func nextWeeklyRun(now time.Time, weekday time.Weekday, hour, minute int) time.Time {
	now = now.UTC()
	days := (int(weekday) - int(now.Weekday()) + 7) % 7
	target := time.Date(now.Year(), now.Month(), now.Day()+days, hour, minute, 0, 0, time.UTC)
	if !target.After(now) {
		target = target.AddDate(0, 0, 7)
	}
	return target
}
