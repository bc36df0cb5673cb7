package display

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/daviddao/deskflow/internal/types"
)

func TestDaysAgo(t *testing.T) {
	now := time.Date(2024, 5, 10, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, "never", DaysAgo("", now))
	assert.Equal(t, "today", DaysAgo("2024-05-10", now))
	assert.Equal(t, "yesterday", DaysAgo("2024-05-09", now))
	assert.Equal(t, "9d ago", DaysAgo("2024-05-01", now))
	assert.Equal(t, "in the future", DaysAgo("2024-05-11", now))
	assert.Equal(t, "garbage", DaysAgo("garbage", now))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "zoë", Truncate("zoë adams", 3))
}

func TestRunSummary(t *testing.T) {
	var buf bytes.Buffer
	RunSummary(&buf, &types.RunSummary{
		RunID:       "run-1",
		Fetched:     7,
		Eligible:    5,
		Submitted:   3,
		Flagged:     1,
		Failed:      1,
		DryRun:      true,
		LastRunDate: "2024-05-02",
	})

	out := buf.String()
	assert.Contains(t, out, "deskflow run (dry run)")
	assert.Contains(t, out, "Fetched:       7 rows")
	assert.Contains(t, out, "Submitted:     3")
	assert.Contains(t, out, "Watermark: 2024-05-02")
	assert.Contains(t, out, "stay eligible")
}

func TestState(t *testing.T) {
	st := types.DefaultState()
	st.LastRunDate = "2024-05-09"
	st.EmailToIssue = map[string]string{"b@x.com": "HD-2", "a@x.com": "HD-1", "c@x.com": "HD-3"}
	st.FlaggedRequests = map[string]string{"d@x.com": "Invalid timeframe: someday"}

	var buf bytes.Buffer
	State(&buf, st, time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC), 2)

	out := buf.String()
	assert.Contains(t, out, "2024-05-09")
	assert.Contains(t, out, "yesterday")
	assert.Contains(t, out, "Tickets (3)")
	assert.Contains(t, out, "HD-1")
	assert.Contains(t, out, "HD-2")
	assert.NotContains(t, out, "HD-3")
	assert.Contains(t, out, "... and 1 more")
	assert.Contains(t, out, "Invalid timeframe: someday")
}

func TestState_Empty(t *testing.T) {
	var buf bytes.Buffer
	State(&buf, types.DefaultState(), time.Now(), 0)
	assert.Contains(t, buf.String(), "never")
	assert.Contains(t, buf.String(), "Tickets (0)")
}
