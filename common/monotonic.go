package common

import (
	"time"

	humanize "github.com/dustin/go-humanize"
)

// Monotonic is a process clock advanced by a ticker instead of reading the
// wall clock, so relative times stay stable across RTC adjustments (NTP
// steps shortly after boot are routine on headless boards).
type Monotonic struct {
	Milliseconds uint64
	Time         time.Time
	ticker       *time.Ticker
}

// NewMonotonic returns a running clock starting at the zero time.
func NewMonotonic() *Monotonic {
	m := &Monotonic{Time: time.Time{}, ticker: time.NewTicker(10 * time.Millisecond)}
	go m.watch()
	return m
}

func (m *Monotonic) watch() {
	for range m.ticker.C {
		m.Milliseconds += 10
		m.Time = m.Time.Add(10 * time.Millisecond)
	}
}

// Since returns the time elapsed between t and the clock's current reading.
func (m *Monotonic) Since(t time.Time) time.Duration {
	return m.Time.Sub(t)
}

// HumanizeTime renders t relative to the clock's current reading.
func (m *Monotonic) HumanizeTime(t time.Time) string {
	return humanize.RelTime(t, m.Time, "ago", "from now")
}
