package model

import (
	"math"
	"time"
)

// Session is one continuous play interval for one user and game.
// EndTime is nil while the session is open.
type Session struct {
	ID              int64      `json:"id"`
	UserID          string     `json:"user_id"`
	GameName        string     `json:"game_name"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	EventID         int64      `json:"event_id"`
}

// Open reports whether the session has not been closed.
func (s Session) Open() bool {
	return s.EndTime == nil
}

// LiveMinutes returns the elapsed minutes of the session as of now. Closed
// sessions return their stored duration.
func (s Session) LiveMinutes(now time.Time) float64 {
	if s.EndTime != nil {
		if s.DurationMinutes != nil {
			return float64(*s.DurationMinutes)
		}
		return s.EndTime.Sub(s.StartTime).Minutes()
	}
	if now.Before(s.StartTime) {
		return 0
	}
	return now.Sub(s.StartTime).Minutes()
}

// DurationMinutes rounds the elapsed time between start and end to whole
// minutes. Negative intervals yield zero.
func DurationMinutes(start, end time.Time) int {
	d := end.Sub(start)
	if d < 0 {
		return 0
	}
	return int(math.Round(d.Minutes()))
}

// ActivityAction labels an entry in the recent activity feed.
type ActivityAction string

// Activity actions.
const (
	ActionStarted ActivityAction = "started"
	ActionStopped ActivityAction = "stopped"
)

// Activity is a session projected into a started or stopped feed entry.
type Activity struct {
	UserID          string         `json:"user"`
	GameName        string         `json:"game"`
	Action          ActivityAction `json:"action"`
	Timestamp       time.Time      `json:"timestamp"`
	DurationMinutes *int           `json:"duration_minutes,omitempty"`
}
