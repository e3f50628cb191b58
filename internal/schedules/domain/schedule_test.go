package schedules

import (
	"testing"
	"time"

	commands "purifier-cloud/internal/commands/domain"
)

func TestNewValidation(t *testing.T) {
	now := time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	cases := []struct {
		name      string
		deviceID  string
		day       string
		startTime string
		endTime   string
		fanSpeed  int
		wantErr   bool
	}{
		{"valid", "dev-1", "Monday", "09:00", "17:00", 50, false},
		{"start equals end", "dev-1", "Monday", "09:00", "09:00", 50, false},
		{"missing device", "", "Monday", "09:00", "17:00", 50, true},
		{"bad day", "dev-1", "Moonday", "09:00", "17:00", 50, true},
		{"bad start", "dev-1", "Monday", "25:00", "17:00", 50, true},
		{"bad end", "dev-1", "Monday", "09:00", "9pm", 50, true},
		{"fan speed out of range", "dev-1", "Monday", "09:00", "17:00", 101, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sched, err := New(tc.deviceID, tc.day, tc.startTime, tc.endTime, tc.fanSpeed, now)
			if tc.wantErr {
				if !commands.IsValidation(err) {
					t.Fatalf("got %v, want validation error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if !sched.Active {
				t.Error("new schedule not active")
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	hour, minute, err := ParseClock("07:45")
	if err != nil {
		t.Fatalf("ParseClock: %v", err)
	}
	if hour != 7 || minute != 45 {
		t.Errorf("got %d:%d, want 7:45", hour, minute)
	}
	if _, _, err := ParseClock("7:45pm"); err == nil {
		t.Error("accepted a non HH:MM value")
	}
}

func TestNextOccurrence(t *testing.T) {
	// Tuesday 2026-03-10 10:00 UTC.
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		weekday time.Weekday
		hour    int
		minute  int
		want    time.Time
	}{
		{"later today", time.Tuesday, 18, 30, time.Date(2026, 3, 10, 18, 30, 0, 0, time.UTC)},
		{"earlier today rolls a week", time.Tuesday, 9, 0, time.Date(2026, 3, 17, 9, 0, 0, 0, time.UTC)},
		{"exactly now rolls a week", time.Tuesday, 10, 0, time.Date(2026, 3, 17, 10, 0, 0, 0, time.UTC)},
		{"later this week", time.Friday, 6, 0, time.Date(2026, 3, 13, 6, 0, 0, 0, time.UTC)},
		{"earlier in the week", time.Monday, 12, 0, time.Date(2026, 3, 16, 12, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := NextOccurrence(now, tc.weekday, tc.hour, tc.minute)
			if !got.Equal(tc.want) {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}
