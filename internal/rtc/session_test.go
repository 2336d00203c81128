package rtc

import (
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
)

func TestSessionClockTracksBaseClock(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(1000, 0))
	s := NewSessionClock(clock)
	assert.Equal(t, int64(1000), s.Epoch())

	clock.Advance(5 * time.Second)
	assert.Equal(t, int64(1005), s.Epoch())

	assert.NoError(t, s.SetEpoch(1700000000))
	clock.Advance(time.Minute)
	assert.Equal(t, int64(1700000060), s.Epoch())

	s.SetOffset(-5 * 3600)
	assert.Equal(t, int64(-18000), s.Offset())
	assert.Equal(t, int64(1700000060-18000), s.LocalEpoch())
	assert.Equal(t, time.Unix(1700000060-18000, 0).UTC(), s.LocalTime())
}

func TestSessionClockStep(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Unix(0, 0))
	var stepped []time.Time
	s := NewSessionClock(clock).WithStep(func(t time.Time) error {
		stepped = append(stepped, t)
		return nil
	})
	assert.NoError(t, s.SetEpoch(1700000000))
	assert.Equal(t, []time.Time{time.Unix(1700000000, 0)}, stepped)

	// ошибка перевода системных часов не мешает часам сессии
	eperm := errors.New("operation not permitted")
	s.WithStep(func(time.Time) error { return eperm })
	assert.ErrorIs(t, s.SetEpoch(1800000000), eperm)
	assert.Equal(t, int64(1800000000), s.Epoch())
}
