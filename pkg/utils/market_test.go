package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ist(day, h, m int) time.Time {
	return time.Date(2025, 6, day, h, m, 0, 0, IndiaLocation)
}

func TestInSession(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want bool
	}{
		{"before open", ist(2, 9, 14), false},
		{"at open", ist(2, 9, 15), true},
		{"midday", ist(2, 12, 0), true},
		{"last minute", ist(2, 15, 29), true},
		{"at close", ist(2, 15, 30), false},
		{"after close", ist(2, 16, 0), false},
		{"saturday", ist(7, 10, 0), false},
		{"sunday", ist(8, 10, 0), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, InSession(tt.t))
		})
	}
}

func TestIntervalStartAnchorsToSessionOpen(t *testing.T) {
	width := 15 * time.Minute

	assert.Equal(t, ist(2, 9, 15), IntervalStart(ist(2, 9, 15), width))
	assert.Equal(t, ist(2, 9, 15), IntervalStart(ist(2, 9, 29), width))
	assert.Equal(t, ist(2, 9, 30), IntervalStart(ist(2, 9, 30), width))
	assert.Equal(t, ist(2, 15, 15), IntervalStart(ist(2, 15, 29), width))

	// Pre-open times clamp to the open.
	assert.Equal(t, ist(2, 9, 15), IntervalStart(ist(2, 9, 0), width))
}

func TestIntervalStartOtherWidths(t *testing.T) {
	assert.Equal(t, ist(2, 9, 20), IntervalStart(ist(2, 9, 24), 5*time.Minute))
	assert.Equal(t, ist(2, 10, 15), IntervalStart(ist(2, 11, 0), time.Hour))
}

func TestDayKey(t *testing.T) {
	assert.Equal(t, "2025-06-02", DayKey(ist(2, 10, 0)))

	// A UTC timestamp late in the day crosses into the next IST day.
	utc := time.Date(2025, 6, 2, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-06-03", DayKey(utc))
}

func TestDaysUntil(t *testing.T) {
	assert.Equal(t, 0, DaysUntil(ist(2, 9, 0), ist(2, 23, 0)))
	assert.Equal(t, 1, DaysUntil(ist(2, 23, 0), ist(3, 0, 30)))
	assert.Equal(t, 26, DaysUntil(ist(2, 10, 0), time.Date(2025, 6, 28, 15, 30, 0, 0, IndiaLocation)))
	assert.Equal(t, -1, DaysUntil(ist(3, 10, 0), ist(2, 10, 0)))
}
