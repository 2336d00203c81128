// Package netwait — ожидание сетевого подключения перед запросом времени.
package netwait

import (
	"context"
	"net"
	"time"

	"github.com/jonboulle/clockwork"
)

// Waiter блокирует до появления сети или отмены ctx.
type Waiter interface {
	WaitForNetwork(ctx context.Context) error
}

// CheckFunc возвращает true, когда сеть доступна.
type CheckFunc func() bool

// Poller опрашивает check с периодом poll.
type Poller struct {
	clock clockwork.Clock
	poll  time.Duration
	check CheckFunc
}

// NewPoller создаёт ожидание; по умолчанию check = HasRoute, poll = 1s.
func NewPoller(clock clockwork.Clock, poll time.Duration, check CheckFunc) *Poller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if poll <= 0 {
		poll = time.Second
	}
	if check == nil {
		check = HasRoute
	}
	return &Poller{clock: clock, poll: poll, check: check}
}

func (p *Poller) WaitForNetwork(ctx context.Context) error {
	for !p.check() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.clock.After(p.poll):
		}
	}
	return nil
}

// HasRoute — есть поднятый не-loopback интерфейс с адресом.
func HasRoute() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagUp == 0 || ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifc.Addrs()
		if err == nil && len(addrs) > 0 {
			return true
		}
	}
	return false
}

// Always — сеть считается доступной всегда (проводное подключение, тесты).
type Always struct{}

func (Always) WaitForNetwork(ctx context.Context) error { return ctx.Err() }
