package schedules

import (
	"errors"
	"fmt"
	"time"

	commands "purifier-cloud/internal/commands/domain"
)

// ErrNotFound indicates an unknown schedule id.
var ErrNotFound = errors.New("schedule: not found")

// Schedule is a recurring weekly window during which a device holds a
// target fan speed: enter-fire sets the speed, exit-fire powers off.
type Schedule struct {
	ScheduleID string
	DeviceID   string
	Day        string
	StartTime  string
	EndTime    string
	FanSpeed   int
	Active     bool
	CreatedAt  time.Time
}

var weekdays = map[string]time.Weekday{
	"Sunday":    time.Sunday,
	"Monday":    time.Monday,
	"Tuesday":   time.Tuesday,
	"Wednesday": time.Wednesday,
	"Thursday":  time.Thursday,
	"Friday":    time.Friday,
	"Saturday":  time.Saturday,
}

// New validates the fields and returns an active schedule. Start equal to
// end is permitted: both fires land on the same instant with undefined
// order, a documented tie.
func New(deviceID, day, startTime, endTime string, fanSpeed int, now time.Time) (*Schedule, error) {
	if deviceID == "" {
		return nil, commands.NewValidationError("device id required")
	}
	if _, ok := weekdays[day]; !ok {
		return nil, commands.NewValidationError("unknown day of week: " + day)
	}
	if _, _, err := ParseClock(startTime); err != nil {
		return nil, commands.NewValidationError("invalid start time: " + startTime)
	}
	if _, _, err := ParseClock(endTime); err != nil {
		return nil, commands.NewValidationError("invalid end time: " + endTime)
	}
	if fanSpeed < 0 || fanSpeed > 100 {
		return nil, commands.NewValidationError("fan speed must be between 0 and 100")
	}
	return &Schedule{
		DeviceID:  deviceID,
		Day:       day,
		StartTime: startTime,
		EndTime:   endTime,
		FanSpeed:  fanSpeed,
		Active:    true,
		CreatedAt: now.UTC(),
	}, nil
}

// Weekday returns the schedule's day as a time.Weekday.
func (s *Schedule) Weekday() time.Weekday {
	return weekdays[s.Day]
}

// ParseClock parses a minute-resolution HH:MM wall-clock value.
func ParseClock(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, fmt.Errorf("parse clock %q: %w", value, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NextOccurrence returns the first instant strictly after now that falls
// on weekday at hour:minute in now's location.
func NextOccurrence(now time.Time, weekday time.Weekday, hour, minute int) time.Time {
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	days := (int(weekday) - int(now.Weekday()) + 7) % 7
	candidate = candidate.AddDate(0, 0, days)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}
