package rtc

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// StepFunc выставляет системные часы (clockadj.Step).
type StepFunc func(time.Time) error

// SessionClock — локальные часы сессии: время clock плюс поправка, выставленная синхронизацией,
// и смещение часового пояса. При старте совпадает с clock (после холодного старта это
// может быть 1970 год).
type SessionClock struct {
	mu     sync.Mutex
	clock  clockwork.Clock
	corr   int64 // секунды поверх clock
	offset int64 // смещение пояса, секунды, со знаком
	step   StepFunc
}

// NewSessionClock создаёт часы сессии поверх clock (nil = реальные часы).
func NewSessionClock(clock clockwork.Clock) *SessionClock {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SessionClock{clock: clock}
}

// WithStep включает перевод системных часов при SetEpoch.
func (s *SessionClock) WithStep(step StepFunc) *SessionClock {
	s.mu.Lock()
	s.step = step
	s.mu.Unlock()
	return s
}

// Epoch — текущее время сессии (UTC, секунды).
func (s *SessionClock) Epoch() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Now().Unix() + s.corr
}

// SetEpoch выставляет время сессии. Поправка считается после step: если системные часы
// переведены, она получается нулевой. Ошибка step возвращается, но время сессии
// всё равно выставлено.
func (s *SessionClock) SetEpoch(epoch int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err error
	if s.step != nil {
		err = s.step(time.Unix(epoch, 0))
	}
	s.corr = epoch - s.clock.Now().Unix()
	return err
}

// Offset — смещение пояса в секундах.
func (s *SessionClock) Offset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offset
}

// SetOffset задаёт смещение пояса (может быть отрицательным).
func (s *SessionClock) SetOffset(off int64) {
	s.mu.Lock()
	s.offset = off
	s.mu.Unlock()
}

// LocalEpoch — время сессии с учётом смещения пояса.
func (s *SessionClock) LocalEpoch() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock.Now().Unix() + s.corr + s.offset
}

// LocalTime — местное время как time.Time в UTC-локации (поля = настенные часы).
func (s *SessionClock) LocalTime() time.Time {
	return time.Unix(s.LocalEpoch(), 0).UTC()
}
