package hwlock

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireExclusive(t *testing.T) {
	b := NewBroker()
	g := b.Acquire(BusA)
	require.True(t, g.Holds(BusA))
	assert.False(t, g.Holds(DisplayChannel))

	_, ok := b.TryAcquire(BusA)
	assert.False(t, ok, "BusA must be held")

	// другие ресурсы независимы
	d, ok := b.TryAcquire(DisplayChannel)
	require.True(t, ok)
	d.Release()

	g.Release()
	assert.False(t, g.Holds(BusA))
	g.Release() // идемпотентно

	g2, ok := b.TryAcquire(BusA)
	require.True(t, ok)
	g2.Release()
}

func TestReleaseWakesWaiter(t *testing.T) {
	b := NewBroker()
	g := b.Acquire(BusA)

	acquired := make(chan struct{})
	go func() {
		w := b.Acquire(BusA)
		close(acquired)
		w.Release()
	}()

	select {
	case <-acquired:
		t.Fatal("waiter acquired a held lock")
	case <-time.After(20 * time.Millisecond):
	}
	g.Release()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken")
	}
}

func TestMutualExclusionUnderContention(t *testing.T) {
	b := NewBroker()
	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_ = b.With(BusA, func(Holder) error {
					n := atomic.AddInt32(&inside, 1)
					for {
						m := atomic.LoadInt32(&maxInside)
						if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
							break
						}
					}
					atomic.AddInt32(&inside, -1)
					return nil
				})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxInside)
}

func TestCompositeOrder(t *testing.T) {
	b := NewBroker()

	cg := b.AcquireBusDisplay()
	assert.Equal(t, []Name{BusA, DisplayChannel}, cg.Names())
	assert.True(t, cg.Holds(BusA))
	assert.True(t, cg.Holds(DisplayChannel))
	assert.False(t, cg.Holds(BusB))
	require.NoError(t, CheckOrder(cg.Names()))
	cg.Release()
	cg.Release()

	// порядок аргументов не влияет на порядок захвата
	cg = b.AcquireOrdered(DisplayChannel, BusB, BusA, DisplayChannel)
	assert.Equal(t, []Name{BusA, BusB, DisplayChannel}, cg.Names())
	require.NoError(t, CheckOrder(cg.Names()))
	cg.Release()

	for _, n := range []Name{BusA, BusB, DisplayChannel} {
		g, ok := b.TryAcquire(n)
		require.True(t, ok, "%s left held", n)
		g.Release()
	}
}

func TestCheckOrderFlagsViolations(t *testing.T) {
	tests := []struct {
		name string
		seq  []Name
		ok   bool
	}{
		{"empty", nil, true},
		{"bus then display", []Name{BusA, DisplayChannel}, true},
		{"full order", []Name{BusA, BusB, DisplayChannel}, true},
		{"display before bus", []Name{DisplayChannel, BusA}, false},
		{"spi before i2c", []Name{BusB, BusA}, false},
		{"reentrant", []Name{BusA, BusA}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckOrder(tt.seq)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrLockOrder)
			}
		})
	}

	assert.Error(t, CheckOrder([]Name{"usb"}))
}

func TestWithReleasesOnErrorAndPanic(t *testing.T) {
	b := NewBroker()
	boom := errors.New("boom")

	err := b.WithBusDisplay(func(h Holder) error {
		assert.True(t, h.Holds(BusA))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	func() {
		defer func() { _ = recover() }()
		_ = b.With(BusA, func(Holder) error { panic("abnormal exit") })
	}()

	for _, n := range []Name{BusA, DisplayChannel} {
		g, ok := b.TryAcquire(n)
		require.True(t, ok, "%s not released", n)
		g.Release()
	}
}

func TestUnknownResourcePanics(t *testing.T) {
	b := NewBroker()
	assert.Panics(t, func() { b.Acquire("usb") })
}
