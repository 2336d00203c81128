// Package watchdog — единый супервизор сторожевого таймера процесса.
//
// Каждая долгоживущая горутина подписывается (Subscribe) и периодически сбрасывает
// таймер (Subscription.Reset). Если подписчик не успел за timeout, Timer срабатывает:
// по умолчанию — panic, на устройстве — перезагрузка по /dev/watchdog.
// Супервизор следит за живостью, а не за корректностью: причина зависания ему неважна.
package watchdog

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mmornati/homeplate/internal/logger"
)

// DefaultTimeout — таймаут по умолчанию (2 минуты).
const DefaultTimeout = 120 * time.Second

var (
	// ErrNotInitialized — подписка до Init или после Deinit.
	ErrNotInitialized = errors.New("watchdog: not initialized")
	// ErrTimerConfig — таймер не удалось создать; защита watchdog недоступна, процесс работает дальше.
	ErrTimerConfig = errors.New("watchdog: timer configuration failed")
)

// Timer — бэкенд сторожевого таймера (программный или аппаратный).
type Timer interface {
	Init(timeout time.Duration, panicOnTimeout bool) error
	Add(task string) error
	Delete(task string) error
	Reset(task string) error
	// Pause(true) снимает контроль с задач; Pause(false) возвращает его,
	// считая, что каждая задача сбросила таймер только что.
	Pause(paused bool)
	Deinit() error
}

// Supervisor хранит состояние {initialized, enabled} и делегирует таймеру.
// Ошибки возвращают только Init и Subscribe/Unsubscribe; остальное молча деградирует в no-op.
type Supervisor struct {
	mu          sync.Mutex
	timer       Timer
	initialized bool
	enabled     bool
	log         *zap.SugaredLogger
}

// NewSupervisor создаёт супервизор поверх timer.
func NewSupervisor(timer Timer) *Supervisor {
	return &Supervisor{timer: timer, log: logger.Named("WDT")}
}

// Init настраивает таймер. Повторный вызов после успешного Init ничего не делает.
func (s *Supervisor) Init(timeout time.Duration, panicOnTimeout bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		s.log.Info("Already initialized")
		return nil
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if err := s.timer.Init(timeout, panicOnTimeout); err != nil {
		s.log.Errorf("Failed to initialize watchdog: %v", err)
		if errors.Is(err, ErrTimerConfig) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrTimerConfig, err)
	}
	s.initialized = true
	s.enabled = true
	s.log.Infof("Watchdog initialized with %d second timeout", int(timeout/time.Second))
	return nil
}

// Subscribe ставит задачу task под наблюдение. Задача обязана вызывать Reset чаще timeout
// и Unsubscribe при завершении.
func (s *Supervisor) Subscribe(task string) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		s.log.Warn("Cannot subscribe: watchdog not initialized")
		return nil, ErrNotInitialized
	}
	if err := s.timer.Add(task); err != nil {
		s.log.Errorf("Failed to subscribe task '%s': %v", task, err)
		return nil, fmt.Errorf("watchdog subscribe %s: %w", task, err)
	}
	s.log.Infof("Task '%s' subscribed to watchdog", task)
	return &Subscription{s: s, task: task}, nil
}

// Unsubscribe снимает задачу с наблюдения.
func (s *Supervisor) Unsubscribe(sub *Subscription) error {
	if sub == nil {
		return nil
	}
	return sub.Unsubscribe()
}

func (s *Supervisor) unsubscribe(task string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrNotInitialized
	}
	if err := s.timer.Delete(task); err != nil {
		s.log.Errorf("Failed to unsubscribe task '%s': %v", task, err)
		return fmt.Errorf("watchdog unsubscribe %s: %w", task, err)
	}
	s.log.Infof("Task '%s' unsubscribed from watchdog", task)
	return nil
}

func (s *Supervisor) reset(task string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized || !s.enabled {
		return
	}
	if err := s.timer.Reset(task); err != nil {
		s.log.Debugf("reset %s: %v", task, err)
	}
}

// Disable приостанавливает контроль на время долгой операции: задачи не
// просрочиваются, Reset ничего не делает. Подписки сохраняются.
func (s *Supervisor) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized && s.enabled {
		s.enabled = false
		s.timer.Pause(true)
		s.log.Info("Watchdog disabled")
	}
}

// Enable возобновляет контроль; у каждой задачи снова полный timeout.
func (s *Supervisor) Enable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized && !s.enabled {
		s.timer.Pause(false)
		s.enabled = true
		s.log.Info("Watchdog enabled")
	}
}

// Deinit останавливает таймер и сбрасывает оба флага.
func (s *Supervisor) Deinit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return
	}
	if err := s.timer.Deinit(); err != nil {
		s.log.Errorf("deinit: %v", err)
	}
	s.initialized = false
	s.enabled = false
	s.log.Info("Watchdog deinitialized")
}

func (s *Supervisor) IsInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *Supervisor) IsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Subscription — подписка одной задачи; живёт столько же, сколько задача.
type Subscription struct {
	s    *Supervisor
	task string
	once sync.Once
	err  error
}

// Task — имя задачи.
func (sub *Subscription) Task() string { return sub.task }

// Reset сбрасывает таймер задачи. Вне состояния initialized && enabled ничего не делает.
func (sub *Subscription) Reset() {
	if sub == nil {
		return
	}
	sub.s.reset(sub.task)
}

// Unsubscribe снимает задачу с наблюдения; повторный вызов возвращает результат первого.
func (sub *Subscription) Unsubscribe() error {
	sub.once.Do(func() {
		sub.err = sub.s.unsubscribe(sub.task)
	})
	return sub.err
}
