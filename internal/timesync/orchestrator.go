// Package timesync согласует часы при каждой загрузке: внешний RTC, часы сессии и
// сетевое время. Startup поднимает состояние из RTC, Sync запускает фоновое задание
// с ограниченным числом попыток, Boot решает, нужна ли синхронизация.
package timesync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/mmornati/homeplate/internal/hwlock"
	"github.com/mmornati/homeplate/internal/logger"
	"github.com/mmornati/homeplate/internal/metrics"
	"github.com/mmornati/homeplate/internal/netwait"
	"github.com/mmornati/homeplate/internal/rtc"
)

const (
	DefaultMaxRetries     = 5
	DefaultBackoff        = 30 * time.Second
	DefaultAttemptTimeout = 10 * time.Second
)

var (
	ErrAttemptFailed    = errors.New("timesync: network time attempt failed")
	ErrRetriesExhausted = errors.New("timesync: retries exhausted")
	ErrNoNetworkClock   = errors.New("timesync: no network time source")
)

// NetworkClock — источник сетевого времени (clockselect.Election).
type NetworkClock interface {
	FetchEpoch(ctx context.Context) (int64, error)
}

// Options — параметры оркестратора. Нулевые значения заменяются значениями по умолчанию.
type Options struct {
	// Network == nil: сетевой источник не настроен, Boot не синхронизирует.
	Network           NetworkClock
	Waiter            netwait.Waiter
	Clock             clockwork.Clock
	SyncIntervalBoots int
	MaxRetries        int
	Backoff           time.Duration
	AttemptTimeout    time.Duration
	Metrics           *metrics.Metrics
	// OnSynced вызывается после успешного коммита (запись времени в bootstate).
	OnSynced func(epoch int64) error
}

type Orchestrator struct {
	bridge *rtc.Bridge
	locks  *hwlock.Broker
	opts   Options
	log    *zap.SugaredLogger
}

func New(bridge *rtc.Bridge, locks *hwlock.Broker, opts Options) *Orchestrator {
	if opts.Waiter == nil {
		opts.Waiter = netwait.Always{}
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Backoff <= 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	return &Orchestrator{
		bridge: bridge,
		locks:  locks,
		opts:   opts,
		log:    logger.Named("TIME"),
	}
}

// Startup выполняется один раз при загрузке: читает флаг и время RTC под BusA,
// выставляет ExternalClockSet и смещение пояса. Чип с флагом «выставлен», но временем
// раньше порога считается невыставленным.
func (o *Orchestrator) Startup(st *State) {
	local := o.bridge.ReadLocalEpoch()

	var (
		set      bool
		chip     uint32
		chipRead bool
	)
	_ = o.locks.With(hwlock.BusA, func(h hwlock.Holder) error {
		if err := o.bridge.CheckIntegrity(h); err != nil {
			if errors.Is(err, rtc.ErrClockIntegrity) {
				o.log.Errorf("RTC reports set but time is implausible: %v", err)
			} else {
				o.log.Warnf("RTC read failed: %v", err)
			}
		}
		var err error
		set, err = o.bridge.IsExternalClockSet(h)
		if err != nil {
			o.log.Warnf("RTC status read failed: %v", err)
			return nil
		}
		if set {
			if chip, err = o.bridge.ReadExternalEpoch(h); err == nil {
				chipRead = true
			}
		}
		return nil
	})

	if set && chipRead {
		off := o.bridge.LocalOffsetSeconds(int64(chip))
		o.bridge.ApplyOffset(off)
		st.setLastOffset(off)
		o.opts.Metrics.TZOffset(off)
		o.log.Infof("Internal Clock and RTC differ by %d seconds. local(%d) RTC(%d)",
			local-int64(chip), local, chip)
		if local < o.bridge.MinEpoch() {
			// часы сессии сброшены (холодный старт без системного времени)
			o.log.Infof("session clock implausible (%d), restoring from RTC", local)
			o.bridge.SetLocalEpoch(int64(chip))
		}
	}

	st.setExternalClockSet(set)
	o.opts.Metrics.ExternalClockSet(set)
	o.opts.Metrics.BootCount(st.BootCount())
	if set {
		o.log.Infof("RTC is set, local time %s", NewReader(o.bridge, st).FormattedDate())
	} else {
		o.log.Infof("RTC is not set")
	}
}

// Boot — Startup плюс решение о синхронизации. Возвращает nil, если синхронизация
// не нужна или сетевой источник не настроен.
func (o *Orchestrator) Boot(ctx context.Context, st *State) *Job {
	o.Startup(st)
	if o.opts.Network == nil {
		o.log.Infof("no network time source configured, skipping sync")
		return nil
	}
	s := st.Snapshot()
	if !NeedsResync(s.ExternalClockSet, s.WakeFromSleep, s.BootCount, o.opts.SyncIntervalBoots) {
		o.log.Debugf("sync not needed on boot %d", s.BootCount)
		return nil
	}
	if s.ExternalClockSet && s.WakeFromSleep {
		o.log.Infof("re-syncing NTP: on boot %d, every %d", s.BootCount, o.opts.SyncIntervalBoots)
	}
	return o.Sync(ctx, st)
}

// Sync запускает фоновое задание синхронизации и сразу возвращает его.
// Задание делает не более MaxRetries попыток с паузой Backoff между ними.
func (o *Orchestrator) Sync(ctx context.Context, st *State) *Job {
	ctx, cancel := context.WithCancel(ctx)
	job := newJob(cancel)
	go func() {
		defer cancel()
		res := o.run(ctx, st)
		o.opts.Metrics.SyncOutcome(res.Outcome.String())
		o.log.Debugf("sync job %s finished: %s after %d attempts", job.ID, res.Outcome, res.Attempts)
		job.finish(res)
	}()
	return job
}

// RefreshOffset пересчитывает смещение пояса по текущему времени сессии
// (переход на летнее время между синхронизациями).
func (o *Orchestrator) RefreshOffset(st *State) int64 {
	off := o.bridge.LocalOffsetSeconds(o.bridge.ReadLocalEpoch())
	o.bridge.ApplyOffset(off)
	st.setLastOffset(off)
	o.opts.Metrics.TZOffset(off)
	return off
}

func (o *Orchestrator) run(ctx context.Context, st *State) Result {
	total := o.opts.MaxRetries
	var lastErr error
	for attempt := 1; attempt <= total; attempt++ {
		o.log.Debugf("loop...")
		if err := o.opts.Waiter.WaitForNetwork(ctx); err != nil {
			return Result{Outcome: Cancelled, Attempts: attempt - 1, Err: err}
		}
		o.log.Infof("Syncing RTC to NTP (attempt %d/%d)", attempt, total)
		o.opts.Metrics.SyncAttempt()

		epoch, err := o.attempt(ctx)
		if err == nil {
			o.commit(st, epoch)
			return Result{Outcome: Succeeded, Attempts: attempt, Epoch: epoch}
		}
		if ctx.Err() != nil {
			return Result{Outcome: Cancelled, Attempts: attempt, Err: ctx.Err()}
		}
		lastErr = fmt.Errorf("%w (attempt %d/%d): %w", ErrAttemptFailed, attempt, total, err)
		o.opts.Metrics.SyncFailure()
		o.log.Warnf("NTP Sync failed: %v", lastErr)
		if attempt == total {
			break
		}

		select {
		case <-ctx.Done():
			return Result{Outcome: Cancelled, Attempts: attempt, Err: ctx.Err()}
		case <-o.opts.Clock.After(o.opts.Backoff):
		}
	}
	o.log.Errorf("NTP sync gave up after %d attempts", total)
	return Result{
		Outcome:  RetriesExhausted,
		Attempts: total,
		Err:      fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, total, lastErr),
	}
}

// attempt — один запрос сетевого времени с таймаутом. Время раньше порога — неудача.
func (o *Orchestrator) attempt(ctx context.Context) (int64, error) {
	if o.opts.Network == nil {
		return 0, ErrNoNetworkClock
	}
	actx, cancel := context.WithTimeout(ctx, o.opts.AttemptTimeout)
	defer cancel()
	epoch, err := o.opts.Network.FetchEpoch(actx)
	if err != nil {
		return 0, err
	}
	r := rtc.Reading{Epoch: epoch, Source: rtc.Network}
	if !r.Plausible(o.bridge.MinEpoch()) {
		return 0, fmt.Errorf("%w: %s epoch %d", rtc.ErrClockIntegrity, r.Source, epoch)
	}
	return epoch, nil
}

// commit записывает сетевое время в RTC и часы сессии под BusA, затем пересчитывает
// смещение и перечитывает флаг RTC.
func (o *Orchestrator) commit(st *State, epoch int64) {
	localBefore := o.bridge.ReadLocalEpoch()
	var (
		chipBefore int64
		chipOK     bool
	)
	_ = o.locks.With(hwlock.BusA, func(h hwlock.Holder) error {
		if e, err := o.bridge.ReadExternalEpoch(h); err == nil {
			chipBefore, chipOK = int64(e), true
		}
		if err := o.bridge.WriteExternalEpoch(h, epoch); err != nil {
			o.log.Errorf("RTC write failed: %v", err)
		}
		o.bridge.SetLocalEpoch(epoch)
		return nil
	})
	st.setNetworkSynced(true)

	o.log.Infof("Internal clock was adjusted by %d seconds", epoch-localBefore)
	o.opts.Metrics.ClockAdjusted("session", epoch-localBefore)
	if chipOK {
		o.log.Infof("Internal RTC was adjusted by %d seconds", epoch-chipBefore)
		o.opts.Metrics.ClockAdjusted("external", epoch-chipBefore)
	}

	off := o.bridge.LocalOffsetSeconds(epoch)
	o.bridge.ApplyOffset(off)
	st.setLastOffset(off)
	o.opts.Metrics.TZOffset(off)
	o.log.Infof("NTP epoch %d, TZ offset %d, local time %s",
		epoch, off, NewReader(o.bridge, st).FormattedDate())

	var set bool
	_ = o.locks.With(hwlock.BusA, func(h hwlock.Holder) error {
		var err error
		set, err = o.bridge.IsExternalClockSet(h)
		if err != nil {
			o.log.Warnf("RTC status read failed: %v", err)
		}
		return nil
	})
	st.setExternalClockSet(set)
	o.opts.Metrics.ExternalClockSet(set)
	if !set {
		o.log.Errorf("Failed to set RTC!")
	}

	if o.opts.OnSynced != nil {
		if err := o.opts.OnSynced(epoch); err != nil {
			o.log.Warnf("recording sync time failed: %v", err)
		}
	}
}
