package counter

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestGraySequenceWrapsEvery16UpdatesAndOrdersCorrectly exercises nextSeq,
// validSeq and newer directly (spec §4.D's wear-levelled sequence
// encoding): only 16 byte values ever pass validSeq, nextSeq must cycle
// through all 16 before repeating, and newer must keep comparing correctly
// across the wraparound back to the first value, the one step its (int8)
// difference alone would get backwards.
func TestGraySequenceWrapsEvery16UpdatesAndOrdersCorrectly(t *testing.T) {
	const period = 16

	prev := byte(0)
	seen := make(map[byte]bool, period)
	for i := 0; i < period; i++ {
		cur := nextSeq(prev)
		require.True(t, validSeq(cur), "nextSeq produced a non-gray-valid byte %#x", cur)
		require.True(t, newer(cur, prev), "sequence step %d: %#x should compare newer than %#x", i, cur, prev)
		require.False(t, newer(prev, cur), "sequence step %d: %#x should not compare newer than %#x", i, prev, cur)
		require.False(t, seen[cur], "sequence value %#x repeated before completing a full %d-update cycle", cur, period)
		seen[cur] = true
		prev = cur
	}

	first := nextSeq(byte(0))
	wrapped := nextSeq(prev)
	require.Equal(t, first, wrapped, "sequence must wrap back to its starting value after exactly %d updates", period)
	require.True(t, newer(wrapped, prev), "the wrapped-around value must still compare newer than the value before it")
}
