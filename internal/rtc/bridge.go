// Package rtc — мост между внешним RTC (на шине I2C), локальными часами сессии и часовым поясом.
//
// Операции с внешним чипом принимают hwlock.Holder: мост сам шину не захватывает,
// вызывающий обязан держать BusA.
package rtc

import (
	"errors"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/mmornati/homeplate/internal/hwlock"
	"github.com/mmornati/homeplate/internal/logger"
	"github.com/mmornati/homeplate/internal/tz"
)

var (
	// ErrBusNotHeld — операция с чипом без блокировки BusA.
	ErrBusNotHeld = errors.New("rtc: bus lock not held")
	// ErrClockIntegrity — чип сообщает «выставлен», но время до минимально правдоподобного.
	ErrClockIntegrity = errors.New("rtc: clock reports set but value is implausible")
)

// Source — откуда получено показание часов.
type Source int

const (
	ExternalChip Source = iota
	LocalSession
	Network
)

func (s Source) String() string {
	switch s {
	case ExternalChip:
		return "external"
	case LocalSession:
		return "session"
	case Network:
		return "network"
	default:
		return "unknown"
	}
}

// Reading — показание часов с указанием источника.
type Reading struct {
	Epoch  int64
	Source Source
}

// Plausible: показания чипа и сети до min считаются «часы не выставлены»;
// локальные часы правдоподобны всегда.
func (r Reading) Plausible(min int64) bool {
	return r.Source == LocalSession || r.Epoch >= min
}

// Bridge объединяет внешний чип, часы сессии и правило пояса.
type Bridge struct {
	chip     Chip
	session  *SessionClock
	zone     *tz.Timezone
	minEpoch int64
	log      *zap.SugaredLogger
}

// NewBridge создаёт мост. minEpoch — порог правдоподобия (946684800).
func NewBridge(chip Chip, session *SessionClock, zone *tz.Timezone, minEpoch int64) *Bridge {
	return &Bridge{
		chip:     chip,
		session:  session,
		zone:     zone,
		minEpoch: minEpoch,
		log:      logger.Named("RTC"),
	}
}

// MinEpoch — порог правдоподобия.
func (b *Bridge) MinEpoch() int64 { return b.minEpoch }

// Zone — действующее правило пояса.
func (b *Bridge) Zone() *tz.Timezone { return b.zone }

// Session — часы сессии.
func (b *Bridge) Session() *SessionClock { return b.session }

// ReadExternalEpoch читает время чипа.
func (b *Bridge) ReadExternalEpoch(h hwlock.Holder) (uint32, error) {
	if err := held(h); err != nil {
		return 0, err
	}
	return b.chip.ReadEpoch()
}

// ReadExternal — ReadExternalEpoch в виде Reading.
func (b *Bridge) ReadExternal(h hwlock.Holder) (Reading, error) {
	e, err := b.ReadExternalEpoch(h)
	if err != nil {
		return Reading{}, err
	}
	return Reading{Epoch: int64(e), Source: ExternalChip}, nil
}

// WriteExternalEpoch записывает время в чип. Значения вне uint32 отклоняются.
func (b *Bridge) WriteExternalEpoch(h hwlock.Holder, epoch int64) error {
	if err := held(h); err != nil {
		return err
	}
	if epoch < 0 || epoch > math.MaxUint32 {
		return fmt.Errorf("rtc: epoch %d does not fit 32 bits", epoch)
	}
	return b.chip.WriteEpoch(uint32(epoch))
}

// IsExternalClockSet — чип выставлен: сырой флаг установлен И время не раньше порога.
// Ошибка чтения считается «не выставлен».
func (b *Bridge) IsExternalClockSet(h hwlock.Holder) (bool, error) {
	if err := held(h); err != nil {
		return false, err
	}
	raw, err := b.chip.IsSet()
	if err != nil || !raw {
		return false, err
	}
	e, err := b.chip.ReadEpoch()
	if err != nil {
		return false, err
	}
	return int64(e) >= b.minEpoch, nil
}

// CheckIntegrity возвращает ErrClockIntegrity, если сырой флаг чипа установлен,
// а время раньше порога (подменённый или сброшенный чип).
func (b *Bridge) CheckIntegrity(h hwlock.Holder) error {
	if err := held(h); err != nil {
		return err
	}
	raw, err := b.chip.IsSet()
	if err != nil || !raw {
		return err
	}
	e, err := b.chip.ReadEpoch()
	if err != nil {
		return err
	}
	if int64(e) < b.minEpoch {
		return fmt.Errorf("%w: chip epoch %d < %d", ErrClockIntegrity, e, b.minEpoch)
	}
	return nil
}

// ReadLocalEpoch — время сессии (UTC).
func (b *Bridge) ReadLocalEpoch() int64 {
	return b.session.Epoch()
}

// ReadLocal — ReadLocalEpoch в виде Reading.
func (b *Bridge) ReadLocal() Reading {
	return Reading{Epoch: b.session.Epoch(), Source: LocalSession}
}

// SetLocalEpoch выставляет часы сессии. Ошибка перевода системных часов только логируется.
func (b *Bridge) SetLocalEpoch(epoch int64) {
	if err := b.session.SetEpoch(epoch); err != nil {
		b.log.Warnf("system clock step failed: %v", err)
	}
}

// LocalOffsetSeconds = tz.ToLocal(epoch) - epoch; пересчитывается на каждый вызов.
func (b *Bridge) LocalOffsetSeconds(epoch int64) int64 {
	return b.zone.ToLocal(epoch) - epoch
}

// ApplyOffset применяет смещение пояса к часам сессии.
func (b *Bridge) ApplyOffset(off int64) {
	b.session.SetOffset(off)
}

func held(h hwlock.Holder) error {
	if h == nil || !h.Holds(hwlock.BusA) {
		return ErrBusNotHeld
	}
	return nil
}
