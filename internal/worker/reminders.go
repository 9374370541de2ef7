package worker

import (
	"context"
	"fmt"
	"time"

	"selefli/internal/domain"
	"selefli/internal/models"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// ReminderScheduler runs the daily sweep over active bookings: a reminder
// the day before the return-by date and an overdue notice once it passed.
type ReminderScheduler struct {
	repo     domain.ScheduleRepository
	notifier domain.Notifier
	cron     *cron.Cron
	spec     string
	loc      *time.Location
	now      func() time.Time
	logger   *zerolog.Logger
}

func NewReminderScheduler(repo domain.ScheduleRepository, notifier domain.Notifier, spec string, loc *time.Location, logger *zerolog.Logger) *ReminderScheduler {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if loc == nil {
		loc = time.UTC
	}
	l := logger.With().Str("component", "reminders").Logger()
	return &ReminderScheduler{
		repo:     repo,
		notifier: notifier,
		cron:     cron.New(cron.WithLocation(loc)),
		spec:     spec,
		loc:      loc,
		now:      time.Now,
		logger:   &l,
	}
}

// Start schedules the sweep and stops it when ctx is done.
func (s *ReminderScheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.logger.Error().Err(err).Msg("reminder sweep failed")
		}
	}); err != nil {
		return fmt.Errorf("invalid scheduler spec %q: %w", s.spec, err)
	}
	s.cron.Start()
	s.logger.Info().Str("spec", s.spec).Str("timezone", s.loc.String()).Msg("started")

	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.logger.Info().Msg("stopped")
	}()
	return nil
}

// RunOnce performs one sweep for the current day.
func (s *ReminderScheduler) RunOnce(ctx context.Context) error {
	today := models.DateOf(s.now().In(s.loc))

	due, err := s.repo.ListActiveBookingsDue(ctx, today.AddDays(1))
	if err != nil {
		return fmt.Errorf("load bookings due tomorrow: %w", err)
	}
	for i := range due {
		s.notifier.BookingReminder(ctx, &due[i])
	}

	overdue, err := s.repo.ListOverdueBookings(ctx, today)
	if err != nil {
		return fmt.Errorf("load overdue bookings: %w", err)
	}
	for i := range overdue {
		s.notifier.BookingOverdue(ctx, &overdue[i])
	}

	s.logger.Info().Int("reminders", len(due)).Int("overdue", len(overdue)).Msg("sweep finished")
	return nil
}
