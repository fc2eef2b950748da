package flash_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jochen0x90h/roomnode/flash"
)

func TestEmulatedProgramDirection(t *testing.T) {
	ctx := context.Background()
	f := flash.NewEmulated(4, 4096, 256)

	out := make([]byte, 4)
	require.NoError(t, f.Read(ctx, 0, out))
	require.Equal(t, []byte{0xff, 0xff, 0xff, 0xff}, out)

	data := make([]byte, 256)
	data[0] = 0x0f
	require.NoError(t, f.Write(ctx, 0, data))
	require.NoError(t, f.Read(ctx, 0, out))
	require.Equal(t, byte(0x0f), out[0])

	// writing 0xf0 over an already-programmed 0x0f can only clear bits,
	// never set them back to 1
	data2 := make([]byte, 256)
	data2[0] = 0xf0
	require.NoError(t, f.Write(ctx, 0, data2))
	require.NoError(t, f.Read(ctx, 0, out))
	require.Equal(t, byte(0x00), out[0])
}

func TestEmulatedEraseResetsToFF(t *testing.T) {
	ctx := context.Background()
	f := flash.NewEmulated(2, 4096, 256)
	data := make([]byte, 256)
	for i := range data {
		data[i] = 0x55
	}
	require.NoError(t, f.Write(ctx, 0, data))
	require.False(t, f.IsEmpty(0))

	require.NoError(t, f.EraseSector(ctx, 0))
	require.True(t, f.IsEmpty(0))

	out := make([]byte, 4096)
	require.NoError(t, f.Read(ctx, 0, out))
	for _, b := range out {
		require.Equal(t, byte(0xff), b)
	}
}

func TestEmulatedWriteMustBeBlockAligned(t *testing.T) {
	ctx := context.Background()
	f := flash.NewEmulated(1, 4096, 256)
	require.Error(t, f.Write(ctx, 1, make([]byte, 256)))
	require.Error(t, f.Write(ctx, 0, make([]byte, 255)))
}
