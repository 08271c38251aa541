package contest

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeekOf(t *testing.T) {
	tests := []struct {
		name string
		t    time.Time
		want Week
	}{
		{"jan 1", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Week{2024, 1}},
		{"jan 7", time.Date(2024, 1, 7, 23, 59, 0, 0, time.UTC), Week{2024, 1}},
		{"jan 8", time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), Week{2024, 2}},
		{"june 3 leap year", time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC), Week{2024, 23}},
		{"june 10 leap year", time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC), Week{2024, 24}},
		{"dec 31 leap year", time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC), Week{2024, 53}},
		{"dec 31", time.Date(2023, 12, 31, 12, 0, 0, 0, time.UTC), Week{2023, 53}},
		{"dec 30", time.Date(2023, 12, 30, 12, 0, 0, 0, time.UTC), Week{2023, 52}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WeekOf(tt.t, time.UTC))
		})
	}
}

func TestWeekOfUsesContestTimezone(t *testing.T) {
	nairobi, err := time.LoadLocation("Africa/Nairobi")
	require.NoError(t, err)

	// Sunday night UTC is already Monday in Nairobi.
	ts := time.Date(2024, 1, 7, 22, 0, 0, 0, time.UTC)
	assert.Equal(t, Week{2024, 1}, WeekOf(ts, time.UTC))
	assert.Equal(t, Week{2024, 2}, WeekOf(ts, nairobi))

	newYear := time.Date(2023, 12, 31, 22, 30, 0, 0, time.UTC)
	assert.Equal(t, Week{2024, 1}, WeekOf(newYear, nairobi))
}

func TestClockCurrent(t *testing.T) {
	c := NewClock(nil)
	c.now = func() time.Time { return time.Date(2024, 6, 3, 9, 0, 0, 0, time.UTC) }
	assert.Equal(t, Week{2024, 23}, c.Current())
}
