package netwait

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollerWaitsForCheck(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var up atomic.Bool
	p := NewPoller(clock, time.Second, up.Load)

	done := make(chan error, 1)
	go func() { done <- p.WaitForNetwork(context.Background()) }()

	clock.BlockUntil(1)
	clock.Advance(time.Second)
	clock.BlockUntil(1)
	up.Store(true)
	clock.Advance(time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitForNetwork did not return")
	}
}

func TestPollerCancel(t *testing.T) {
	p := NewPoller(clockwork.NewFakeClock(), 0, func() bool { return false })
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.WaitForNetwork(ctx), context.Canceled)

	assert.NoError(t, Always{}.WaitForNetwork(context.Background()))
}
