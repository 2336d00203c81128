package rtc

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmornati/homeplate/internal/config"
	"github.com/mmornati/homeplate/internal/hwlock"
	"github.com/mmornati/homeplate/internal/tz"
)

func newTestBridge(t *testing.T) (*Bridge, *MemoryChip, clockwork.FakeClock, *hwlock.Broker) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Unix(0, 0))
	chip := NewMemoryChip(clock)
	zone := tz.FromConfig(config.Default().Timezone)
	return NewBridge(chip, NewSessionClock(clock), zone, config.MinPlausibleEpoch), chip, clock, hwlock.NewBroker()
}

func TestExternalOpsRequireBusA(t *testing.T) {
	b, _, _, broker := newTestBridge(t)

	_, err := b.ReadExternalEpoch(nil)
	assert.ErrorIs(t, err, ErrBusNotHeld)

	// чужая блокировка не подходит
	g := broker.Acquire(hwlock.DisplayChannel)
	assert.ErrorIs(t, b.WriteExternalEpoch(g, 1700000000), ErrBusNotHeld)
	g.Release()

	// освобождённый guard больше не доказательство
	g = broker.Acquire(hwlock.BusA)
	require.NoError(t, b.WriteExternalEpoch(g, 1700000000))
	g.Release()
	_, err = b.IsExternalClockSet(g)
	assert.ErrorIs(t, err, ErrBusNotHeld)

	require.NoError(t, broker.WithBusDisplay(func(h hwlock.Holder) error {
		e, err := b.ReadExternalEpoch(h)
		assert.Equal(t, uint32(1700000000), e)
		return err
	}))
}

func TestIsExternalClockSetThreshold(t *testing.T) {
	b, chip, _, broker := newTestBridge(t)
	min := config.MinPlausibleEpoch

	for _, e := range []int64{min, min + 1, 1700000000, 4000000000} {
		require.NoError(t, broker.With(hwlock.BusA, func(h hwlock.Holder) error {
			require.NoError(t, b.WriteExternalEpoch(h, e))
			set, err := b.IsExternalClockSet(h)
			assert.True(t, set, "epoch %d", e)
			return err
		}))
	}

	// ниже порога: «не выставлен» при любом сыром флаге
	for _, e := range []int64{0, 1, min - 1} {
		for _, raw := range []bool{true, false} {
			require.NoError(t, broker.With(hwlock.BusA, func(h hwlock.Holder) error {
				require.NoError(t, b.WriteExternalEpoch(h, e))
				chip.Preset(uint32(e), raw)
				set, err := b.IsExternalClockSet(h)
				assert.False(t, set, "epoch %d raw %v", e, raw)
				return err
			}))
		}
	}

	// сырой флаг снят, не выставлен даже с правдоподобным временем
	chip.Preset(1700000000, false)
	g := broker.Acquire(hwlock.BusA)
	defer g.Release()
	set, err := b.IsExternalClockSet(g)
	require.NoError(t, err)
	assert.False(t, set)
}

func TestWriteExternalRejectsOutOfRange(t *testing.T) {
	b, chip, _, broker := newTestBridge(t)
	g := broker.Acquire(hwlock.BusA)
	defer g.Release()

	assert.Error(t, b.WriteExternalEpoch(g, -1))
	assert.Error(t, b.WriteExternalEpoch(g, 1<<32))
	assert.Equal(t, 0, chip.Writes())
}

func TestCheckIntegrity(t *testing.T) {
	b, chip, _, broker := newTestBridge(t)
	g := broker.Acquire(hwlock.BusA)
	defer g.Release()

	chip.Preset(12345, true)
	assert.ErrorIs(t, b.CheckIntegrity(g), ErrClockIntegrity)

	chip.Preset(12345, false)
	assert.NoError(t, b.CheckIntegrity(g))

	chip.Preset(1700000000, true)
	assert.NoError(t, b.CheckIntegrity(g))

	boom := errors.New("i2c nack")
	chip.FailReads(boom)
	assert.ErrorIs(t, b.CheckIntegrity(g), boom)
	set, err := b.IsExternalClockSet(g)
	assert.False(t, set)
	assert.ErrorIs(t, err, boom)
}

func TestLocalOffsetSeconds(t *testing.T) {
	b, _, _, _ := newTestBridge(t)

	winter := time.Date(2024, time.January, 10, 12, 0, 0, 0, time.UTC).Unix()
	summer := time.Date(2024, time.July, 10, 12, 0, 0, 0, time.UTC).Unix()
	assert.Equal(t, int64(3600), b.LocalOffsetSeconds(winter))
	assert.Equal(t, int64(7200), b.LocalOffsetSeconds(summer))

	for e := config.MinPlausibleEpoch; e < 2000000000; e += 9876543 {
		off := b.LocalOffsetSeconds(e)
		require.Equal(t, off, b.LocalOffsetSeconds(e))
		require.Equal(t, e, e+off-off)
	}
}

func TestLocalClockAndOffset(t *testing.T) {
	b, _, clock, _ := newTestBridge(t)
	assert.Equal(t, int64(0), b.ReadLocalEpoch())

	b.SetLocalEpoch(1700000000)
	b.ApplyOffset(b.LocalOffsetSeconds(1700000000))
	clock.Advance(90 * time.Second)

	assert.Equal(t, int64(1700000090), b.ReadLocalEpoch())
	assert.Equal(t, int64(1700000090+3600), b.Session().LocalEpoch())
	assert.Equal(t, LocalSession, b.ReadLocal().Source)
	assert.True(t, b.ReadLocal().Plausible(config.MinPlausibleEpoch))
	assert.False(t, Reading{Epoch: 5, Source: ExternalChip}.Plausible(config.MinPlausibleEpoch))
}
