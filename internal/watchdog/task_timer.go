package watchdog

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mmornati/homeplate/internal/logger"
)

// ExpiredFunc вызывается из горутины монитора, когда задача не сбросила таймер за timeout.
type ExpiredFunc func(task string, silent time.Duration)

// TaskTimer — программный task watchdog: помнит последний сброс каждой задачи и
// раз в timeout/4 проверяет их на clock.
type TaskTimer struct {
	clock     clockwork.Clock
	onExpired ExpiredFunc

	mu             sync.Mutex
	timeout        time.Duration
	panicOnTimeout bool
	paused         bool
	tasks          map[string]time.Time
	stop           chan struct{}
	done           chan struct{}
}

var _ Timer = (*TaskTimer)(nil)

// NewTaskTimer создаёт таймер. onExpired == nil — реакция по умолчанию:
// panic при panicOnTimeout, иначе запись CRIT в лог.
func NewTaskTimer(clock clockwork.Clock, onExpired ExpiredFunc) *TaskTimer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &TaskTimer{clock: clock, onExpired: onExpired}
}

func (t *TaskTimer) Init(timeout time.Duration, panicOnTimeout bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout %v", ErrTimerConfig, timeout)
	}
	if t.stop != nil {
		return fmt.Errorf("%w: already running", ErrTimerConfig)
	}
	t.timeout = timeout
	t.panicOnTimeout = panicOnTimeout
	t.paused = false
	t.tasks = make(map[string]time.Time)
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.monitor(t.clock.NewTicker(timeout/4), t.stop, t.done)
	return nil
}

func (t *TaskTimer) Add(task string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.tasks == nil {
		return ErrNotInitialized
	}
	if _, ok := t.tasks[task]; ok {
		return fmt.Errorf("task %q already subscribed", task)
	}
	t.tasks[task] = t.clock.Now()
	return nil
}

func (t *TaskTimer) Delete(task string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tasks[task]; !ok {
		return fmt.Errorf("task %q not subscribed", task)
	}
	delete(t.tasks, task)
	return nil
}

func (t *TaskTimer) Reset(task string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.tasks[task]; !ok {
		return fmt.Errorf("task %q not subscribed", task)
	}
	t.tasks[task] = t.clock.Now()
	return nil
}

// Pause останавливает проверку задач. При снятии паузы окно каждой задачи
// отсчитывается заново от текущего момента.
func (t *TaskTimer) Pause(paused bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused && !paused {
		now := t.clock.Now()
		for name := range t.tasks {
			t.tasks[name] = now
		}
	}
	t.paused = paused
}

// Paused — проверка задач приостановлена.
func (t *TaskTimer) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

func (t *TaskTimer) Deinit() error {
	t.mu.Lock()
	stop, done := t.stop, t.done
	t.stop, t.done, t.tasks = nil, nil, nil
	t.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	<-done
	return nil
}

// Healthy — все подписанные задачи сбрасывали таймер в пределах timeout.
func (t *TaskTimer) Healthy() bool {
	return len(t.stale()) == 0
}

// Timeout — настроенный таймаут (0 до Init).
func (t *TaskTimer) Timeout() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.timeout
}

func (t *TaskTimer) monitor(ticker clockwork.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			for _, task := range t.stale() {
				t.expire(task)
			}
		}
	}
}

type staleTask struct {
	name   string
	silent time.Duration
}

// stale возвращает задачи, пропустившие окно, по имени.
func (t *TaskTimer) stale() []staleTask {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		return nil
	}
	now := t.clock.Now()
	var out []staleTask
	for name, last := range t.tasks {
		if d := now.Sub(last); d >= t.timeout {
			out = append(out, staleTask{name: name, silent: d})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (t *TaskTimer) expire(st staleTask) {
	t.mu.Lock()
	if t.paused {
		t.mu.Unlock()
		return
	}
	// следующее срабатывание для этой задачи не раньше чем через timeout
	if _, ok := t.tasks[st.name]; ok {
		t.tasks[st.name] = t.clock.Now()
	}
	panicOnTimeout := t.panicOnTimeout
	t.mu.Unlock()

	if t.onExpired != nil {
		t.onExpired(st.name, st.silent)
		return
	}
	logger.Named("WDT").DPanicf("Task '%s' did not reset the watchdog for %v", st.name, st.silent)
	if panicOnTimeout {
		panic(fmt.Sprintf("watchdog: task %q stalled for %v", st.name, st.silent))
	}
}
