//go:build !linux

package watchdog

import (
	"fmt"
	"runtime"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultDevice = "/dev/watchdog"

// DeviceTimer — заглушка на не-Linux: аппаратного watchdog нет, Init всегда возвращает ErrTimerConfig.
type DeviceTimer struct {
	*TaskTimer
	path string
}

var _ Timer = (*DeviceTimer)(nil)

func NewDeviceTimer(path string, clock clockwork.Clock, onExpired ExpiredFunc) *DeviceTimer {
	return &DeviceTimer{TaskTimer: NewTaskTimer(clock, onExpired), path: path}
}

func (d *DeviceTimer) Init(timeout time.Duration, panicOnTimeout bool) error {
	return fmt.Errorf("%w: %s not supported on %s", ErrTimerConfig, d.path, runtime.GOOS)
}
