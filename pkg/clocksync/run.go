// Package clocksync собирает одну загрузку homeplate: RTC, часовой пояс, watchdog,
// сетевые источники и оркестратор синхронизации, и ведёт цикл
// «проснулся → синхронизировал → уснул».
package clocksync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/mmornati/homeplate/internal/bootstate"
	"github.com/mmornati/homeplate/internal/clockadj"
	"github.com/mmornati/homeplate/internal/clockselect"
	"github.com/mmornati/homeplate/internal/config"
	"github.com/mmornati/homeplate/internal/hwlock"
	"github.com/mmornati/homeplate/internal/logger"
	"github.com/mmornati/homeplate/internal/metrics"
	"github.com/mmornati/homeplate/internal/netwait"
	"github.com/mmornati/homeplate/internal/rtc"
	"github.com/mmornati/homeplate/internal/source"
	"github.com/mmornati/homeplate/internal/timesync"
	"github.com/mmornati/homeplate/internal/tz"
	"github.com/mmornati/homeplate/internal/watchdog"
)

// MainTask — имя основного цикла в watchdog.
const MainTask = "main"

// Options переопределяют компоненты, которые иначе строятся из конфига (тесты, simulate).
type Options struct {
	Quiet   bool
	Clock   clockwork.Clock
	Chip    rtc.Chip
	Network timesync.NetworkClock
	Waiter  netwait.Waiter
	// LogWriter — sink логов вместо stderr/serial.
	LogWriter io.Writer
	// WatchdogTimer — бэкенд watchdog вместо /dev/watchdog или программного таймера.
	WatchdogTimer watchdog.Timer
}

// Boot — собранные компоненты одной загрузки.
type Boot struct {
	Config       *config.Config
	Clock        clockwork.Clock
	Locks        *hwlock.Broker
	Bridge       *rtc.Bridge
	State        *timesync.State
	Orchestrator *timesync.Orchestrator
	Reader       *timesync.Reader
	Watchdog     *watchdog.Supervisor
	Metrics      *metrics.Metrics
	Store        *bootstate.Store
	Job          *timesync.Job

	log     *zap.SugaredLogger
	closers []func() error
}

// RunBoot выполняет одну загрузку до сна (cycle.awake) или отмены ctx.
// Сон отмечается в bootstate только при штатном завершении цикла.
func RunBoot(ctx context.Context, cfg *config.Config, opts Options) error {
	b, err := Start(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer b.Close()
	return b.Cycle(ctx)
}

// Start собирает компоненты, выполняет Startup и, если нужно, запускает задание синхронизации.
func Start(ctx context.Context, cfg *config.Config, opts Options) (*Boot, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger.Quiet = opts.Quiet
	b := &Boot{Config: cfg, Clock: opts.Clock}
	if b.Clock == nil {
		b.Clock = clockwork.NewRealClock()
	}

	if err := b.setupLogging(opts); err != nil {
		return nil, err
	}
	b.log = logger.Named("BOOT")

	b.Metrics = metrics.New()
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := b.Metrics.Serve(ctx, cfg.Metrics.Listen); err != nil {
				b.log.Errorf("metrics: %v", err)
			}
		}()
	}

	b.Watchdog = watchdog.NewSupervisor(b.watchdogTimer(opts))
	if !cfg.Watchdog.Disable {
		timeout := config.Duration(cfg.Watchdog.Timeout, watchdog.DefaultTimeout)
		if err := b.Watchdog.Init(timeout, cfg.Watchdog.PanicOnTimeout); err != nil {
			// без watchdog работаем дальше
			b.log.Warnf("running without watchdog: %v", err)
		}
	}

	b.Store = bootstate.NewStore(cfg.State.Path)
	info, err := b.Store.Load()
	if err != nil {
		b.log.Warnf("boot state: %v", err)
	}
	b.log.Infof("boot %d (wake from sleep: %v)", info.Count, info.WakeFromSleep)

	b.Locks = hwlock.NewBroker()
	b.Bridge = rtc.NewBridge(b.chip(opts), b.session(), tz.FromConfig(cfg.Timezone), cfg.Time.MinPlausibleEpoch)
	b.State = timesync.NewState(timesync.BootInfo{Count: info.Count, WakeFromSleep: info.WakeFromSleep})
	b.Reader = timesync.NewReader(b.Bridge, b.State)

	waiter := opts.Waiter
	if waiter == nil {
		waiter = netwait.NewPoller(b.Clock, time.Second, nil)
	}
	b.Orchestrator = timesync.New(b.Bridge, b.Locks, timesync.Options{
		Network:           b.network(opts),
		Waiter:            waiter,
		Clock:             b.Clock,
		SyncIntervalBoots: cfg.Time.SyncIntervalBoots,
		MaxRetries:        cfg.Time.MaxRetries,
		Backoff:           config.Duration(cfg.Time.RetryBackoff, timesync.DefaultBackoff),
		AttemptTimeout:    config.Duration(cfg.Time.AttemptTimeout, timesync.DefaultAttemptTimeout),
		Metrics:           b.Metrics,
		OnSynced:          b.Store.RecordSync,
	})

	b.Job = b.Orchestrator.Boot(ctx, b.State)
	if b.Job != nil {
		b.log.Infof("sync job %s started", b.Job.ID)
	}
	return b, nil
}

// Cycle — основной цикл: сбрасывает watchdog, дожидается задания синхронизации и
// через cycle.awake отмечает сон. С пустым cycle.awake работает до отмены ctx.
func (b *Boot) Cycle(ctx context.Context) error {
	sub, err := b.Watchdog.Subscribe(MainTask)
	if err != nil && !errors.Is(err, watchdog.ErrNotInitialized) {
		b.log.Warnf("watchdog: %v", err)
	}
	defer func() { _ = b.Watchdog.Unsubscribe(sub) }()

	feed := b.Clock.NewTicker(config.Duration(b.Config.Cycle.FeedInterval, config.DefaultFeedInterval))
	defer feed.Stop()

	var awake <-chan time.Time
	if b.Config.Cycle.Awake != "" {
		awake = b.Clock.After(config.Duration(b.Config.Cycle.Awake, time.Minute))
	}
	var jobDone <-chan struct{}
	if b.Job != nil {
		jobDone = b.Job.Done()
	}

	for {
		select {
		case <-ctx.Done():
			b.log.Infof("shutdown requested, not marking sleep")
			b.stopJob()
			return ctx.Err()
		case <-feed.Chan():
			sub.Reset()
			b.Orchestrator.RefreshOffset(b.State)
		case <-jobDone:
			jobDone = nil
			res := b.Job.Result()
			if res.Err != nil {
				b.log.Warnf("sync %s: %v", res.Outcome, res.Err)
			} else {
				b.log.Infof("sync %s after %d attempts, local time %s",
					res.Outcome, res.Attempts, b.Reader.FormattedDate())
			}
		case <-awake:
			b.stopJob()
			if err := b.Store.MarkSleep(); err != nil {
				return fmt.Errorf("mark sleep: %w", err)
			}
			b.log.Infof("going to sleep at %s", b.Reader.FormattedTime())
			return nil
		}
	}
}

// Close освобождает шину, порт логов, источники и watchdog.
func (b *Boot) Close() error {
	b.Watchdog.Deinit()
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	_ = logger.Sync()
	return errors.Join(errs...)
}

func (b *Boot) stopJob() {
	if b.Job == nil {
		return
	}
	select {
	case <-b.Job.Done():
		return
	default:
	}
	b.log.Infof("cancelling sync job %s", b.Job.ID)
	b.Job.Cancel()
	<-b.Job.Done()
}

func (b *Boot) setupLogging(opts Options) error {
	w := opts.LogWriter
	if w == nil && b.Config.Log.SerialPort != "" {
		port, err := logger.OpenSerial(b.Config.Log.SerialPort, b.Config.Log.Baud)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, port.Close)
		w = port
	}
	return logger.Setup(logger.Options{Level: b.Config.Log.Level, Writer: w})
}

func (b *Boot) watchdogTimer(opts Options) watchdog.Timer {
	if opts.WatchdogTimer != nil {
		return opts.WatchdogTimer
	}
	panicOnTimeout := b.Config.Watchdog.PanicOnTimeout
	onExpired := func(task string, silent time.Duration) {
		b.Metrics.WatchdogExpired(task, silent)
		logger.Named("WDT").DPanicf("Task '%s' did not reset the watchdog for %v", task, silent)
		if panicOnTimeout {
			panic(fmt.Sprintf("watchdog: task %q stalled for %v", task, silent))
		}
	}
	if b.Config.Watchdog.Device != "" {
		// аппаратный таймер перезагрузит сам; программный panic не нужен
		return watchdog.NewDeviceTimer(b.Config.Watchdog.Device, b.Clock, func(task string, silent time.Duration) {
			b.Metrics.WatchdogExpired(task, silent)
			logger.Named("WDT").DPanicf("Task '%s' stalled for %v, hardware reset pending", task, silent)
		})
	}
	return watchdog.NewTaskTimer(b.Clock, onExpired)
}

func (b *Boot) chip(opts Options) rtc.Chip {
	if opts.Chip != nil {
		return opts.Chip
	}
	if !b.Config.RTC.Simulate {
		p, err := rtc.OpenPCF85063(b.Config.RTC.Bus, b.Config.RTC.Address)
		if err == nil {
			b.closers = append(b.closers, p.Close)
			return p
		}
		b.log.Errorf("RTC unavailable, continuing with unset clock: %v", err)
	}
	return rtc.NewMemoryChip(b.Clock)
}

func (b *Boot) session() *rtc.SessionClock {
	s := rtc.NewSessionClock(b.Clock)
	if b.Config.Time.AdjustSystemClock {
		return s.WithStep(clockadj.Step)
	}
	if synced, err := clockadj.KernelSynced(); err == nil && synced {
		b.log.Infof("kernel clock is disciplined by another daemon")
	}
	return s
}

func (b *Boot) network(opts Options) timesync.NetworkClock {
	if opts.Network != nil {
		return opts.Network
	}
	if !b.Config.Time.HasNetworkTime() {
		return nil
	}
	timeout := config.Duration(b.Config.Time.AttemptTimeout, timesync.DefaultAttemptTimeout)
	primary, errs := source.NewList(b.Config.Time.PrimaryServers, timeout)
	secondary, errs2 := source.NewList(b.Config.Time.SecondaryServers, timeout)
	for _, err := range append(errs, errs2...) {
		b.log.Warnf("time source: %v", err)
	}
	election := clockselect.NewElection(primary, secondary)
	if election.Len() == 0 {
		return nil
	}
	b.closers = append(b.closers, election.Close)
	b.log.Infof("time sources: primary=%d secondary=%d", len(primary), len(secondary))
	return election
}
