package rtc

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Chip — внешний RTC с батарейкой. Все вызовы выполняются только под блокировкой шины BusA;
// сам Chip ничего не блокирует.
type Chip interface {
	// ReadEpoch читает текущее время чипа (секунды Unix, беззнаковые 32 бита).
	ReadEpoch() (uint32, error)
	// WriteEpoch записывает время и сбрасывает флаг «часы остановлены».
	WriteEpoch(epoch uint32) error
	// IsSet — «сырой» флаг чипа: время было записано и генератор не останавливался.
	IsSet() (bool, error)
}

// MemoryChip — RTC в памяти: для режима simulate и тестов.
// Время идёт по clock от момента последней записи. Флаг set хранится отдельно от времени
// и может с ним расходиться (как у чипа после замены батарейки).
type MemoryChip struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	epoch   uint32
	at      time.Time
	set     bool
	writes  int
	readErr error
	// dropWrites: запись «проходит» без ошибки, но чип её не сохраняет
	dropWrites bool
}

var _ Chip = (*MemoryChip)(nil)

// NewMemoryChip создаёт чип в состоянии «не выставлен» с нулевым временем.
func NewMemoryChip(clock clockwork.Clock) *MemoryChip {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &MemoryChip{clock: clock, at: clock.Now()}
}

func (m *MemoryChip) ReadEpoch() (uint32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return 0, m.readErr
	}
	return m.epoch + uint32(m.clock.Since(m.at)/time.Second), nil
}

func (m *MemoryChip) WriteEpoch(epoch uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes++
	if m.dropWrites {
		return nil
	}
	m.epoch = epoch
	m.at = m.clock.Now()
	m.set = true
	return nil
}

func (m *MemoryChip) IsSet() (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.readErr != nil {
		return false, m.readErr
	}
	return m.set, nil
}

// DropWrites заставляет WriteEpoch молча терять запись: время и флаг не меняются.
func (m *MemoryChip) DropWrites(drop bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dropWrites = drop
}

// Preset выставляет время и флаг напрямую, не считая это записью.
func (m *MemoryChip) Preset(epoch uint32, set bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch = epoch
	m.at = m.clock.Now()
	m.set = set
}

// FailReads заставляет ReadEpoch/IsSet возвращать err (nil снимает ошибку).
func (m *MemoryChip) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// Writes — число вызовов WriteEpoch.
func (m *MemoryChip) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}
