package models

import "time"

// RateWindow is one fixed counting window for an identifier. The count only
// resets when the window has fully elapsed.
type RateWindow struct {
	Identifier  string    `db:"identifier"`
	WindowStart time.Time `db:"window_start"`
	Count       int64     `db:"count"`
}

// AnomalyThreshold triggers breach escalation once Count matching events are
// observed within the trailing window.
type AnomalyThreshold struct {
	Count         int64
	WindowMinutes int
}

func (t AnomalyThreshold) Window() time.Duration {
	return time.Duration(t.WindowMinutes) * time.Minute
}
