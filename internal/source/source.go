package source

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable — источник не дал пригодного времени.
var ErrUnavailable = errors.New("time source unavailable")

// TimeSource — сетевой источник времени (NTP, HTTP Date)
type TimeSource interface {
	// Name возвращает имя источника для логов
	Name() string
	// Protocol возвращает протокол: ntp, http
	Protocol() string
	// GetTime делает один запрос; таймаут: меньшее из собственного и дедлайна ctx
	GetTime(ctx context.Context) (time.Time, error)
	// Close освобождает ресурсы
	Close() error
}

// deadline — момент, до которого должен завершиться запрос.
func deadline(ctx context.Context, timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(d) {
		return dl
	}
	return d
}
