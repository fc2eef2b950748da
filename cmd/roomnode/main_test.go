package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/jochen0x90h/roomnode/flash"
	"github.com/jochen0x90h/roomnode/fram"
	"github.com/jochen0x90h/roomnode/storage"
)

func TestBootSequenceInitializesStorageAndCounters(t *testing.T) {
	flashDev := flash.NewEmulated(16, 4096, 256)
	framDev := fram.NewEmulated(1024)
	log := zaptest.NewLogger(t)
	ctx := context.Background()

	st, err := storage.New(flashDev, storage.Config{
		PageStart:   0,
		PageCount:   16,
		MaxElements: 64,
		RAMSize:     4096,
	}, log)
	require.NoError(t, err)
	endpoints := storage.Register(st, endpointConfigSpec)
	require.NoError(t, st.Init(ctx))
	require.Equal(t, 0, endpoints.Len())

	require.NoError(t, endpoints.Write(ctx, 0, endpointConfig{EndpointType: 3, Flags: 0x1}, nil))
	v, _, err := endpoints.Get(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, endpointConfig{EndpointType: 3, Flags: 0x1}, v)
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	log := zaptest.NewLogger(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := run(ctx, true, "", 5*time.Millisecond, log)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
