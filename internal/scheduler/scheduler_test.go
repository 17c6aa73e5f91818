package scheduler

import (
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraftCronSpec(t *testing.T) {
	assert.Equal(t, "30 8 * * 1", DraftCronSpec("weekly", "08:30"))
	assert.Equal(t, "0 8 * * *", DraftCronSpec("daily", "08:00"))
	assert.Equal(t, "15 19 * * *", DraftCronSpec("daily", "19:15"))

	// Frequencies the cron layer doesn't model fire daily.
	assert.Equal(t, "0 9 * * *", DraftCronSpec("custom", "09:00"))
	assert.Equal(t, "0 9 * * *", DraftCronSpec("fortnightly", "09:00"))
}

func TestDraftCronSpecParseable(t *testing.T) {
	parser := cron.ParseStandard
	for _, spec := range []string{
		DraftCronSpec("weekly", "08:30"),
		DraftCronSpec("daily", "23:59"),
		DraftCronSpec("daily", "garbage"),
	} {
		_, err := parser(spec)
		require.NoError(t, err, "spec %q must be valid standard cron", spec)
	}
}

func TestParseScheduleTime(t *testing.T) {
	hour, minute := ParseScheduleTime("07:45")
	assert.Equal(t, 7, hour)
	assert.Equal(t, 45, minute)

	for _, bad := range []string{"", "8", "25:00", "08:75", "ab:cd"} {
		hour, minute = ParseScheduleTime(bad)
		assert.Equal(t, 8, hour, "input %q falls back to 08:00", bad)
		assert.Equal(t, 0, minute)
	}
}
