//go:build linux

package clockadj

import (
	"time"

	"golang.org/x/sys/unix"
)

// Step устанавливает системное время скачком (CLOCK_REALTIME). Требует CAP_SYS_TIME или root.
func Step(t time.Time) error {
	ts := unix.NsecToTimespec(t.UnixNano())
	return unix.ClockSettime(unix.CLOCK_REALTIME, &ts)
}

// KernelSynced читает adjtimex без изменения и возвращает true, если ядро считает
// системные часы синхронизированными (нет STA_UNSYNC, состояние не TIME_ERROR).
func KernelSynced() (bool, error) {
	buf := &unix.Timex{}
	state, err := unix.Adjtimex(buf)
	if err != nil {
		return false, err
	}
	if buf.Status&unix.STA_UNSYNC != 0 {
		return false, nil
	}
	return state != unix.TIME_ERROR, nil
}
