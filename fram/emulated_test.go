package fram_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jochen0x90h/roomnode/fram"
)

func TestEmulatedReadWriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := fram.NewEmulated(256)

	data := []byte{1, 2, 3, 4, 5}
	require.NoError(t, f.Write(ctx, 16, data))

	out := make([]byte, len(data))
	require.NoError(t, f.Read(ctx, 16, out))
	require.Equal(t, data, out)
}

func TestEmulatedWriteOutOfRange(t *testing.T) {
	ctx := context.Background()
	f := fram.NewEmulated(16)
	require.Error(t, f.Write(ctx, 12, make([]byte, 8)))
	require.Error(t, f.Read(ctx, -1, make([]byte, 4)))
}

func TestEmulatedTearWriteCommitsOnlyPrefix(t *testing.T) {
	ctx := context.Background()
	f := fram.NewEmulated(32)

	original := []byte{0xaa, 0xaa, 0xaa, 0xaa}
	require.NoError(t, f.Write(ctx, 0, original))

	torn := []byte{0x11, 0x22, 0x33, 0x44}
	f.TearWrite(0, torn, 2)

	out := make([]byte, 4)
	require.NoError(t, f.Read(ctx, 0, out))
	require.Equal(t, []byte{0x11, 0x22, 0xaa, 0xaa}, out)
}
