package storage_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jochen0x90h/roomnode/flash"
	"github.com/jochen0x90h/roomnode/storage"
)

// stringSpec treats the RAM companion as a fixed 4-byte scratch counter,
// independent of the string's length, to exercise variable flash size vs.
// fixed RAM size in the same array.
var stringSpec = storage.ArraySpec[string]{
	Encode:  func(v string) []byte { return []byte(v) },
	Decode:  func(raw []byte) string { return string(raw) },
	RAMSize: func(string) int { return 4 },
}

func newTestDevice() flash.Device {
	return flash.NewEmulated(4, 256, 4)
}

func newTestStorage(t *testing.T, dev flash.Device) *storage.Storage {
	t.Helper()
	s, err := storage.New(dev, storage.Config{
		PageStart:   0,
		PageCount:   4,
		MaxElements: 64,
		RAMSize:     1024,
	}, nil)
	require.NoError(t, err)
	return s
}

func TestArrayAppendAndRead(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestDevice())
	arr := storage.Register(s, stringSpec)
	require.NoError(t, s.Init(ctx))

	require.NoError(t, arr.Write(ctx, 0, "hello", nil))
	require.NoError(t, arr.Write(ctx, 1, "world", nil))
	require.Equal(t, 2, arr.Len())

	v0, _, err := arr.Get(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "hello", v0)

	v1, _, err := arr.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "world", v1)
}

func TestArrayOverwriteInPlace(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestDevice())
	arr := storage.Register(s, stringSpec)
	require.NoError(t, s.Init(ctx))

	require.NoError(t, arr.Write(ctx, 0, "aaa", nil))
	require.NoError(t, arr.Write(ctx, 0, "replaced", nil))
	require.Equal(t, 1, arr.Len())

	v, _, err := arr.Get(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "replaced", v)
}

func TestArrayEraseShiftsLaterElements(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestDevice())
	arr := storage.Register(s, stringSpec)
	require.NoError(t, s.Init(ctx))

	require.NoError(t, arr.Write(ctx, 0, "a", nil))
	require.NoError(t, arr.Write(ctx, 1, "b", nil))
	require.NoError(t, arr.Write(ctx, 2, "c", nil))

	require.NoError(t, arr.Erase(ctx, 0))
	require.Equal(t, 2, arr.Len())

	v0, _, err := arr.Get(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "b", v0)
	v1, _, err := arr.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "c", v1)
}

func TestArrayMoveReordersElements(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestDevice())
	arr := storage.Register(s, stringSpec)
	require.NoError(t, s.Init(ctx))

	require.NoError(t, arr.Write(ctx, 0, "a", nil))
	require.NoError(t, arr.Write(ctx, 1, "b", nil))
	require.NoError(t, arr.Write(ctx, 2, "c", nil))

	require.NoError(t, arr.Move(ctx, 0, 2))

	v0, _, _ := arr.Get(ctx, 0)
	v1, _, _ := arr.Get(ctx, 1)
	v2, _, _ := arr.Get(ctx, 2)
	require.Equal(t, "b", v0)
	require.Equal(t, "c", v1)
	require.Equal(t, "a", v2)
}

// varSizeSpec ties the RAM companion size to the value itself (2, 3 and 4
// bytes below), so after a move Get must hand back each element's companion
// at its own RAMSize length, even though ramAlign gives all three a 4-byte
// arena slot.
var varSizeSpec = storage.ArraySpec[string]{
	Encode:  func(v string) []byte { return []byte(v) },
	Decode:  func(raw []byte) string { return string(raw) },
	RAMSize: func(v string) int { return len(v) },
}

func TestArrayMoveToLowerIndexWithNonUniformRAMSizes(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestDevice())
	arr := storage.Register(s, varSizeSpec)
	require.NoError(t, s.Init(ctx))

	require.NoError(t, arr.Write(ctx, 0, "aa", []byte{1, 1}))
	require.NoError(t, arr.Write(ctx, 1, "bbb", []byte{2, 2, 2}))
	require.NoError(t, arr.Write(ctx, 2, "cccc", []byte{3, 3, 3, 3}))

	require.NoError(t, arr.Move(ctx, 2, 0))

	v0, ram0, err := arr.Get(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "cccc", v0)
	require.Equal(t, []byte{3, 3, 3, 3}, ram0)

	v1, ram1, err := arr.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "aa", v1)
	require.Equal(t, []byte{1, 1}, ram1)

	v2, ram2, err := arr.Get(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, "bbb", v2)
	require.Equal(t, []byte{2, 2, 2}, ram2)
}

func TestRAMCompanionMutableInPlace(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestDevice())
	arr := storage.Register(s, stringSpec)
	require.NoError(t, s.Init(ctx))

	require.NoError(t, arr.Write(ctx, 0, "counter", []byte{0, 0, 0, 0}))
	_, ram, err := arr.Get(ctx, 0)
	require.NoError(t, err)
	ram[0] = 7

	_, ram2, err := arr.Get(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, byte(7), ram2[0])
}

// TestCompactionReclaimsGarbageFromRepeatedOverwrites keeps the live set at
// two elements but overwrites one of them many times, accumulating stale log
// entries in the active region faster than the live data itself grows.
// Without compaction reclaiming the superseded entries, this would exhaust
// the region; with it, both elements survive indefinitely.
func TestCompactionReclaimsGarbageFromRepeatedOverwrites(t *testing.T) {
	ctx := context.Background()
	// One sector = one region half: 64 bytes. Tiny on purpose, to force
	// several compactions well before 40 overwrites complete.
	dev := flash.NewEmulated(2, 64, 4)
	s, err := storage.New(dev, storage.Config{
		PageStart:   0,
		PageCount:   2,
		MaxElements: 8,
		RAMSize:     256,
	}, nil)
	require.NoError(t, err)
	arr := storage.Register(s, stringSpec)
	require.NoError(t, s.Init(ctx))

	require.NoError(t, arr.Write(ctx, 0, "stable", nil))
	require.NoError(t, arr.Write(ctx, 1, "init", nil))

	for i := 0; i < 40; i++ {
		require.NoError(t, arr.Write(ctx, 1, fmt.Sprintf("v%d", i), nil))
	}
	require.Equal(t, 2, arr.Len())

	v0, _, err := arr.Get(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "stable", v0)

	v1, _, err := arr.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "v39", v1)
}

func TestReplayRebuildsStateAfterRestart(t *testing.T) {
	ctx := context.Background()
	dev := newTestDevice()

	s1 := newTestStorage(t, dev)
	arr1 := storage.Register(s1, stringSpec)
	require.NoError(t, s1.Init(ctx))
	require.NoError(t, arr1.Write(ctx, 0, "persisted-a", nil))
	require.NoError(t, arr1.Write(ctx, 1, "persisted-b", nil))

	// Simulate a reboot: fresh Storage over the same flash image.
	s2 := newTestStorage(t, dev)
	arr2 := storage.Register(s2, stringSpec)
	require.NoError(t, s2.Init(ctx))
	require.Equal(t, 2, arr2.Len())

	v0, _, err := arr2.Get(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, "persisted-a", v0)
	v1, _, err := arr2.Get(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "persisted-b", v1)
}

func TestWriteBeyondEndIndexRejected(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t, newTestDevice())
	arr := storage.Register(s, stringSpec)
	require.NoError(t, s.Init(ctx))

	require.ErrorIs(t, arr.Write(ctx, 5, "x", nil), storage.ErrIndexOutOfRange)
}
