//go:build linux

package watchdog

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sys/unix"

	"github.com/mmornati/homeplate/internal/logger"
)

// DefaultDevice — стандартный узел аппаратного watchdog в Linux.
const DefaultDevice = "/dev/watchdog"

// DeviceTimer — аппаратный watchdog /dev/watchdog поверх TaskTimer.
// Пока все задачи живы или контроль на паузе, устройство «кормится» каждые timeout/4;
// после первого пропуска кормление прекращается и плата перезагружается по таймауту устройства.
type DeviceTimer struct {
	*TaskTimer
	path    string
	clock   clockwork.Clock
	stalled atomic.Bool

	mu   sync.Mutex
	f    *os.File
	stop chan struct{}
	done chan struct{}
}

var _ Timer = (*DeviceTimer)(nil)

// NewDeviceTimer создаёт таймер для устройства path ("" = /dev/watchdog).
func NewDeviceTimer(path string, clock clockwork.Clock, onExpired ExpiredFunc) *DeviceTimer {
	if path == "" {
		path = DefaultDevice
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	d := &DeviceTimer{path: path, clock: clock}
	d.TaskTimer = NewTaskTimer(clock, func(task string, silent time.Duration) {
		d.stalled.Store(true)
		if onExpired != nil {
			onExpired(task, silent)
			return
		}
		logger.Named("WDT").DPanicf("Task '%s' stalled for %v, hardware reset pending", task, silent)
	})
	return d
}

func (d *DeviceTimer) Init(timeout time.Duration, panicOnTimeout bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.f != nil {
		return fmt.Errorf("%w: %s already open", ErrTimerConfig, d.path)
	}
	f, err := os.OpenFile(d.path, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTimerConfig, err)
	}
	secs := int(timeout / time.Second)
	if secs < 1 {
		secs = 1
	}
	if err := unix.IoctlSetPointerInt(int(f.Fd()), unix.WDIOC_SETTIMEOUT, secs); err != nil {
		closeDevice(f)
		return fmt.Errorf("%w: WDIOC_SETTIMEOUT %d: %v", ErrTimerConfig, secs, err)
	}
	// panicOnTimeout для устройства не важен: перезагрузка делает сама плата
	if err := d.TaskTimer.Init(timeout, panicOnTimeout); err != nil {
		closeDevice(f)
		return err
	}
	d.stalled.Store(false)
	d.f = f
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.pet(f, d.clock.NewTicker(timeout/4), d.stop, d.done)
	return nil
}

// Pause на время паузы продолжает кормить устройство; снятие паузы прощает
// пропуск, случившийся до неё.
func (d *DeviceTimer) Pause(paused bool) {
	if !paused {
		d.stalled.Store(false)
	}
	d.TaskTimer.Pause(paused)
}

func (d *DeviceTimer) Deinit() error {
	d.mu.Lock()
	f, stop, done := d.f, d.stop, d.done
	d.f, d.stop, d.done = nil, nil, nil
	d.mu.Unlock()
	if f == nil {
		return nil
	}
	close(stop)
	<-done
	err := d.TaskTimer.Deinit()
	closeDevice(f)
	return err
}

func (d *DeviceTimer) pet(f *os.File, ticker clockwork.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			if !d.Paused() && (d.stalled.Load() || !d.Healthy()) {
				continue
			}
			_ = unix.IoctlSetInt(int(f.Fd()), unix.WDIOC_KEEPALIVE, 0)
		}
	}
}

// closeDevice пишет magic close 'V': драйвер отключает таймер вместо перезагрузки.
func closeDevice(f *os.File) {
	_, _ = f.Write([]byte("V"))
	_ = f.Close()
}
