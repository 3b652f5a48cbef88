// Package schedule provides recurrence rules for starting runs.
//
// This package includes:
//   - Schedule interface for defining recurrence
//   - Every() for fixed-interval schedules
//   - Daily() for daily schedules at a specific time
//   - Weekly() for weekly schedules on a specific day and time
//   - Cron() for cron expression-based schedules
//   - Loop() for firing a callback at each schedule point
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule determines when recurring runs start.
type Schedule interface {
	// Next returns the next activation strictly after from.
	Next(from time.Time) time.Time
}

// everySchedule runs at fixed intervals.
type everySchedule struct {
	interval time.Duration
}

// Every creates a schedule that runs at fixed intervals.
func Every(d time.Duration) Schedule {
	return &everySchedule{interval: d}
}

func (s *everySchedule) Next(from time.Time) time.Time {
	return from.Add(s.interval)
}

// dailySchedule runs at a specific time each day.
type dailySchedule struct {
	hour   int
	minute int
	loc    *time.Location
}

// Daily creates a schedule that runs at a specific UTC time each day.
func Daily(hour, minute int) Schedule {
	return &dailySchedule{hour: hour, minute: minute, loc: time.UTC}
}

func (s *dailySchedule) Next(from time.Time) time.Time {
	from = from.In(s.loc)
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// weeklySchedule runs at a specific day and time each week.
type weeklySchedule struct {
	day    time.Weekday
	hour   int
	minute int
	loc    *time.Location
}

// Weekly creates a schedule that runs at a specific day and UTC time each week.
func Weekly(day time.Weekday, hour, minute int) Schedule {
	return &weeklySchedule{day: day, hour: hour, minute: minute, loc: time.UTC}
}

func (s *weeklySchedule) Next(from time.Time) time.Time {
	from = from.In(s.loc)

	daysUntil := int(s.day - from.Weekday())
	if daysUntil < 0 {
		daysUntil += 7
	}

	next := time.Date(from.Year(), from.Month(), from.Day()+daysUntil, s.hour, s.minute, 0, 0, s.loc)
	if !next.After(from) {
		next = next.AddDate(0, 0, 7)
	}
	return next
}

// cronSchedule wraps a cron expression.
type cronSchedule struct {
	schedule cron.Schedule
}

// Cron creates a schedule from a cron expression.
func Cron(expr string) Schedule {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		panic("invalid cron expression: " + err.Error())
	}
	return &cronSchedule{schedule: schedule}
}

func (s *cronSchedule) Next(from time.Time) time.Time {
	return s.schedule.Next(from)
}

// Parse builds a Schedule from a config string. Three forms are accepted:
// "every=<duration>", "daily=HH:MM", or a five-field cron expression.
func Parse(spec string) (Schedule, error) {
	switch {
	case strings.HasPrefix(spec, "every="):
		d, err := time.ParseDuration(strings.TrimPrefix(spec, "every="))
		if err != nil {
			return nil, fmt.Errorf("schedule: parse %q: %w", spec, err)
		}
		if d <= 0 {
			return nil, fmt.Errorf("schedule: interval in %q must be positive", spec)
		}
		return Every(d), nil

	case strings.HasPrefix(spec, "daily="):
		hhmm := strings.TrimPrefix(spec, "daily=")
		parts := strings.SplitN(hhmm, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("schedule: daily spec %q wants HH:MM", spec)
		}
		hour, err := strconv.Atoi(parts[0])
		if err != nil || hour < 0 || hour > 23 {
			return nil, fmt.Errorf("schedule: bad hour in %q", spec)
		}
		minute, err := strconv.Atoi(parts[1])
		if err != nil || minute < 0 || minute > 59 {
			return nil, fmt.Errorf("schedule: bad minute in %q", spec)
		}
		return Daily(hour, minute), nil

	default:
		parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		s, err := parser.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("schedule: parse %q: %w", spec, err)
		}
		return &cronSchedule{schedule: s}, nil
	}
}

// Loop fires at each schedule point until the context ends. Errors from
// fire are logged, not fatal; the next activation still happens.
func Loop(ctx context.Context, s Schedule, logger *slog.Logger, fire func(ctx context.Context, at time.Time) error) error {
	if logger == nil {
		logger = slog.Default()
	}

	for {
		next := s.Next(time.Now())
		logger.Info("next scheduled activation", "at", next)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}

		if err := fire(ctx, next); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Error("scheduled activation failed", "at", next, "error", err)
		}
	}
}
