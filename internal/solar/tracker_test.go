package solar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, min, sec int) time.Time {
	return time.Date(2025, 6, 15, hour, min, sec, 0, time.UTC)
}

func TestSample_NotReadyBeforeReference(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.Ready())

	_, err := tr.Sample(at(12, 0, 0))
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSample_Scenarios(t *testing.T) {
	cases := []struct {
		name    string
		now     time.Time
		elapsed time.Duration
		until   time.Duration
		clock   string
	}{
		{
			name:    "after today's sunset",
			now:     at(19, 45, 10),
			elapsed: time.Hour + 15*time.Minute + 10*time.Second,
			until:   22*time.Hour + 44*time.Minute + 50*time.Second,
			clock:   "01:15:10",
		},
		{
			name:    "before today's sunset",
			now:     at(18, 0, 0),
			elapsed: 23*time.Hour + 30*time.Minute,
			until:   30 * time.Minute,
			clock:   "23:30:00",
		},
		{
			name:    "exactly at sunset",
			now:     at(18, 30, 0),
			elapsed: 0,
			until:   Day,
			clock:   "00:00:00",
		},
		{
			name:    "just after midnight",
			now:     at(0, 0, 1),
			elapsed: 5*time.Hour + 30*time.Minute + time.Second,
			until:   18*time.Hour + 29*time.Minute + 59*time.Second,
			clock:   "05:30:01",
		},
	}

	tr := NewTracker()
	tr.SetReference(at(18, 30, 0))

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := tr.Sample(tc.now)
			require.NoError(t, err)
			assert.Equal(t, tc.elapsed, r.Elapsed)
			assert.Equal(t, tc.until, r.Until)
			assert.Equal(t, tc.clock, FormatClock(r.Elapsed))
		})
	}
}

func TestSample_ReferenceOnAnotherDay(t *testing.T) {
	tr := NewTracker()
	// Only the time-of-day of the reference is used.
	tr.SetReference(time.Date(2019, 1, 3, 18, 30, 0, 0, time.UTC))

	r, err := tr.Sample(at(19, 45, 10))
	require.NoError(t, err)
	assert.Equal(t, time.Hour+15*time.Minute+10*time.Second, r.Elapsed)
	assert.Equal(t, at(18, 30, 0), r.LastOccurrence)
	assert.Equal(t, at(18, 30, 0).Add(Day), r.NextOccurrence)
}

func TestSample_ReferenceInOtherZone(t *testing.T) {
	dhaka := time.FixedZone("BST", 6*3600)
	tr := NewTracker()
	// 12:30 UTC is 18:30 in Dhaka.
	tr.SetReference(time.Date(2025, 6, 15, 12, 30, 0, 0, time.UTC))

	now := time.Date(2025, 6, 15, 19, 45, 10, 0, dhaka)
	r, err := tr.Sample(now)
	require.NoError(t, err)
	assert.Equal(t, "01:15:10", FormatClock(r.Elapsed))
}

func TestSample_SumIsOneDay(t *testing.T) {
	tr := NewTracker()
	tr.SetReference(at(18, 30, 0))

	start := at(0, 0, 0)
	for i := 0; i < 48*60; i++ {
		now := start.Add(time.Duration(i)*time.Minute + 517*time.Millisecond)
		r, err := tr.Sample(now)
		require.NoError(t, err)

		assert.Equal(t, Day, r.Elapsed+r.Until, "at %s", now)
		assert.GreaterOrEqual(t, r.Elapsed, time.Duration(0))
		assert.Less(t, r.Elapsed, Day)
		assert.Greater(t, r.Until, time.Duration(0))
		assert.LessOrEqual(t, r.Until, Day)
	}
}

func TestSample_Idempotent(t *testing.T) {
	tr := NewTracker()
	tr.SetReference(at(18, 30, 0))

	now := at(7, 12, 44)
	first, err := tr.Sample(now)
	require.NoError(t, err)
	second, err := tr.Sample(now)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSample_MonotonicWithinCycle(t *testing.T) {
	tr := NewTracker()
	tr.SetReference(at(18, 30, 0))

	prev, err := tr.Sample(at(18, 30, 1))
	require.NoError(t, err)
	for now := at(18, 31, 0); now.Before(at(18, 30, 0).Add(Day)); now = now.Add(17 * time.Minute) {
		cur, err := tr.Sample(now)
		require.NoError(t, err)
		assert.Greater(t, cur.Elapsed, prev.Elapsed)
		assert.Less(t, cur.Until, prev.Until)
		prev = cur
	}
}

func TestSample_Wraparound(t *testing.T) {
	tr := NewTracker()
	tr.SetReference(at(18, 30, 0))

	before, err := tr.Sample(at(18, 29, 59))
	require.NoError(t, err)
	after, err := tr.Sample(at(18, 30, 1))
	require.NoError(t, err)

	assert.Equal(t, Day-time.Second, before.Elapsed)
	assert.Equal(t, time.Second, before.Until)
	assert.Equal(t, time.Second, after.Elapsed)
	assert.Equal(t, Day-time.Second, after.Until)
}

func TestSetReference_ReplacesPrevious(t *testing.T) {
	tr := NewTracker()
	tr.SetReference(at(18, 30, 0))
	tr.SetReference(at(17, 0, 0))

	r, err := tr.Sample(at(18, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, time.Hour, r.Elapsed)

	ref, ok := tr.Reference()
	assert.True(t, ok)
	assert.Equal(t, at(17, 0, 0), ref)
}

func TestDispose(t *testing.T) {
	tr := NewTracker()
	tr.SetReference(at(18, 30, 0))
	tr.Dispose()

	_, err := tr.Sample(at(19, 0, 0))
	assert.ErrorIs(t, err, ErrNotReady)
}
