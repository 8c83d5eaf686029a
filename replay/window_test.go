package replay

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFirstPacketAlwaysAccepted(t *testing.T) {
	w, err := New(DefaultWidth)
	require.NoError(t, err)
	require.True(t, w.Check(0))
	w.Commit(0)
	require.Equal(t, uint64(0), w.HighWatermark())
}

func TestMonotonicAdvance(t *testing.T) {
	w, err := New(DefaultWidth)
	require.NoError(t, err)
	for seq := uint64(0); seq < 10; seq++ {
		require.True(t, w.Check(seq))
		w.Commit(seq)
	}
	require.Equal(t, uint64(9), w.HighWatermark())
}

func TestReplayRejected(t *testing.T) {
	w, err := New(DefaultWidth)
	require.NoError(t, err)
	w.Commit(5)
	require.False(t, w.Check(5))
}

func TestOutOfOrderWithinWindowAccepted(t *testing.T) {
	w, err := New(DefaultWidth)
	require.NoError(t, err)
	w.Commit(10)
	require.True(t, w.Check(7))
	w.Commit(7)
	require.False(t, w.Check(7))
	require.True(t, w.Check(9))
}

func TestOutsideWindowRejected(t *testing.T) {
	w, err := New(MinWidth)
	require.NoError(t, err)
	w.Commit(1000)
	require.False(t, w.Check(1000-MinWidth))
}

func TestFailedVerificationDoesNotPoisonWindow(t *testing.T) {
	w, err := New(DefaultWidth)
	require.NoError(t, err)
	w.Commit(100)
	// seq 101 tentatively checked (simulating AEAD auth failure) but
	// never committed.
	require.True(t, w.Check(101))
	// 101 must still be acceptable afterward since it was never
	// committed.
	require.True(t, w.Check(101))
	w.Commit(101)
	require.False(t, w.Check(101))
}

func TestMinWidthEnforced(t *testing.T) {
	_, err := New(1)
	require.Error(t, err)
}

func TestShiftBeyondWidthClearsWindow(t *testing.T) {
	w, err := New(MinWidth)
	require.NoError(t, err)
	w.Commit(0)
	w.Commit(1000)
	// The jump past the window width cleared every old bit: only the
	// freshly committed watermark itself is marked.
	require.False(t, w.Check(1000))
	for i := uint64(1); i < MinWidth; i++ {
		require.True(t, w.Check(1000-i))
	}
}
