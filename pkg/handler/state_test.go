package handler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateStoreGetDefaultsToZero(t *testing.T) {
	s, err := OpenStateStore(t.TempDir())
	require.NoError(t, err)

	bits, err := s.Get("never-seen")
	require.NoError(t, err)
	require.Zero(t, bits)

	ready, err := s.IsReady("never-seen")
	require.NoError(t, err)
	require.False(t, ready)
}

func TestStateStoreMarkReadyPersists(t *testing.T) {
	dir := t.TempDir()

	s1, err := OpenStateStore(dir)
	require.NoError(t, err)
	require.NoError(t, s1.MarkReady("sync"))

	ready, err := s1.IsReady("sync")
	require.NoError(t, err)
	require.True(t, ready)

	// A fresh store over the same directory must observe the persisted bit.
	s2, err := OpenStateStore(dir)
	require.NoError(t, err)
	ready, err = s2.IsReady("sync")
	require.NoError(t, err)
	require.True(t, ready)
}

func TestStateStoreSetPreservesOtherBits(t *testing.T) {
	s, err := OpenStateStore(t.TempDir())
	require.NoError(t, err)

	const customBit = uint64(1) << 3
	require.NoError(t, s.Set("sync", customBit))
	require.NoError(t, s.MarkReady("sync"))

	bits, err := s.Get("sync")
	require.NoError(t, err)
	require.Equal(t, customBit|ReadyBit, bits)
}
