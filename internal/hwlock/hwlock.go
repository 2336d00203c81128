// Package hwlock — эксклюзивный доступ к общим аппаратным ресурсам (шина I2C, шина SPI, канал дисплея).
//
// Порядок захвата глобальный: BusA → BusB → DisplayChannel, освобождение — в обратном порядке.
// Составные блокировки строятся только через AcquireBusDisplay/AcquireOrdered, поэтому
// вызывающий код не может захватить DisplayChannel раньше BusA. Реентерабельности нет:
// повторный Acquire того же ресурса держателем блокирует его навсегда.
package hwlock

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Name — идентификатор аппаратного ресурса.
type Name string

const (
	BusA           Name = "i2c"     // внешний RTC, тач, PMIC
	BusB           Name = "spi"     // SD-карта
	DisplayChannel Name = "display" // e-paper панель
)

// rank — глобальный порядок захвата.
var rank = map[Name]int{
	BusA:           0,
	BusB:           1,
	DisplayChannel: 2,
}

// ErrLockOrder — последовательность захвата нарушает глобальный порядок (потенциальный deadlock).
var ErrLockOrder = errors.New("hwlock: acquisition order violates BusA < BusB < DisplayChannel")

// Holder — доказательство владения блокировкой; его принимают операции, требующие шины.
type Holder interface {
	Holds(name Name) bool
}

// Broker — набор бинарных семафоров, по одному на ресурс.
type Broker struct {
	sems map[Name]chan struct{}
}

// NewBroker создаёт брокер со всеми известными ресурсами в свободном состоянии.
func NewBroker() *Broker {
	b := &Broker{sems: make(map[Name]chan struct{}, len(rank))}
	for n := range rank {
		b.sems[n] = make(chan struct{}, 1)
	}
	return b
}

// Acquire блокирует вызывающую горутину до освобождения ресурса и возвращает guard.
func (b *Broker) Acquire(name Name) *Guard {
	b.sem(name) <- struct{}{}
	return &Guard{b: b, name: name}
}

// TryAcquire захватывает ресурс без ожидания; ok=false, если ресурс занят.
func (b *Broker) TryAcquire(name Name) (g *Guard, ok bool) {
	select {
	case b.sem(name) <- struct{}{}:
		return &Guard{b: b, name: name}, true
	default:
		return nil, false
	}
}

// AcquireBusDisplay захватывает BusA, затем DisplayChannel (аналог I2CDisplayLock).
func (b *Broker) AcquireBusDisplay() *CompositeGuard {
	return b.AcquireOrdered(BusA, DisplayChannel)
}

// AcquireOrdered захватывает набор ресурсов в глобальном порядке, независимо от порядка аргументов.
// Дубликаты игнорируются.
func (b *Broker) AcquireOrdered(names ...Name) *CompositeGuard {
	ordered := normalize(names)
	cg := &CompositeGuard{guards: make([]*Guard, 0, len(ordered))}
	for _, n := range ordered {
		cg.guards = append(cg.guards, b.Acquire(n))
	}
	return cg
}

// With выполняет fn под блокировкой name; блокировка снимается на любом пути выхода, включая panic.
func (b *Broker) With(name Name, fn func(h Holder) error) error {
	g := b.Acquire(name)
	defer g.Release()
	return fn(g)
}

// WithBusDisplay — With для составной блокировки BusA+DisplayChannel.
func (b *Broker) WithBusDisplay(fn func(h Holder) error) error {
	g := b.AcquireBusDisplay()
	defer g.Release()
	return fn(g)
}

func (b *Broker) sem(name Name) chan struct{} {
	s, ok := b.sems[name]
	if !ok {
		panic(fmt.Sprintf("hwlock: unknown resource %q", name))
	}
	return s
}

func (b *Broker) release(name Name) {
	select {
	case <-b.sem(name):
	default:
		panic(fmt.Sprintf("hwlock: release of free resource %q", name))
	}
}

// Guard — владение одним ресурсом. Release идемпотентен.
type Guard struct {
	b    *Broker
	name Name
	once sync.Once
	done atomic.Bool
}

// Release освобождает ресурс и будит одного ожидающего.
func (g *Guard) Release() {
	if g == nil {
		return
	}
	g.once.Do(func() {
		g.done.Store(true)
		g.b.release(g.name)
	})
}

// Holds возвращает true, пока guard держит name.
func (g *Guard) Holds(name Name) bool {
	return g != nil && !g.done.Load() && g.name == name
}

// Name возвращает ресурс guard'а.
func (g *Guard) Name() Name {
	return g.name
}

// CompositeGuard — владение несколькими ресурсами; освобождение в обратном порядке.
type CompositeGuard struct {
	guards []*Guard
	once   sync.Once
}

// Release освобождает ресурсы в порядке, обратном захвату.
func (c *CompositeGuard) Release() {
	if c == nil {
		return
	}
	c.once.Do(func() {
		for i := len(c.guards) - 1; i >= 0; i-- {
			c.guards[i].Release()
		}
	})
}

// Holds возвращает true, если среди захваченных есть name.
func (c *CompositeGuard) Holds(name Name) bool {
	if c == nil {
		return false
	}
	for _, g := range c.guards {
		if g.Holds(name) {
			return true
		}
	}
	return false
}

// Names возвращает ресурсы в порядке захвата.
func (c *CompositeGuard) Names() []Name {
	out := make([]Name, len(c.guards))
	for i, g := range c.guards {
		out[i] = g.name
	}
	return out
}

// CheckOrder — статическая проверка последовательности захвата (для тестов и ревью путей захвата).
// В рантайме Acquire порядок не проверяет.
func CheckOrder(seq []Name) error {
	last := -1
	seen := make(map[Name]bool, len(seq))
	for _, n := range seq {
		r, ok := rank[n]
		if !ok {
			return fmt.Errorf("hwlock: unknown resource %q", n)
		}
		if seen[n] {
			return fmt.Errorf("%w: %q acquired twice (no reentrancy)", ErrLockOrder, n)
		}
		if r < last {
			return fmt.Errorf("%w: %q after higher-ranked resource", ErrLockOrder, n)
		}
		seen[n] = true
		last = r
	}
	return nil
}

func normalize(names []Name) []Name {
	uniq := make(map[Name]struct{}, len(names))
	out := make([]Name, 0, len(names))
	for _, n := range names {
		if _, ok := rank[n]; !ok {
			panic(fmt.Sprintf("hwlock: unknown resource %q", n))
		}
		if _, dup := uniq[n]; dup {
			continue
		}
		uniq[n] = struct{}{}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return rank[out[i]] < rank[out[j]] })
	return out
}
