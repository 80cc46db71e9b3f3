package batch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTrackerCountersStayConsistent(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	tracker.RecordSuccess(2 * time.Second)
	tracker.RecordFailure(4 * time.Second)
	tracker.RecordSuccess(3 * time.Second)

	snap := tracker.Snapshot()
	require.EqualValues(t, 3, snap.TotalProcessed)
	require.EqualValues(t, 2, snap.SuccessfulProcessed)
	require.EqualValues(t, 1, snap.FailedProcessed)
	require.Equal(t, snap.TotalProcessed, snap.SuccessfulProcessed+snap.FailedProcessed)
	require.InDelta(t, 9.0, snap.TotalTime, 0.001)
	require.InDelta(t, 3.0, snap.AverageTime, 0.001)
}

func TestTrackerAverageIsZeroBeforeFirstItem(t *testing.T) {
	t.Parallel()

	snap := NewTracker().Snapshot()
	require.Zero(t, snap.TotalProcessed)
	require.Zero(t, snap.AverageTime)
}

func TestTrackerCurrentFile(t *testing.T) {
	t.Parallel()

	tracker := NewTracker()
	tracker.SetCurrent("speech.wav")
	require.Equal(t, "speech.wav", tracker.Snapshot().CurrentFile)

	tracker.ClearCurrent()
	require.Empty(t, tracker.Snapshot().CurrentFile)
}
