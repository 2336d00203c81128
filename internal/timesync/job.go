package timesync

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Outcome — терминальное состояние задания синхронизации.
type Outcome int

const (
	Running Outcome = iota
	Succeeded
	RetriesExhausted
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case RetriesExhausted:
		return "retries_exhausted"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result — итог задания.
type Result struct {
	Outcome  Outcome
	Attempts int
	Epoch    int64 // сетевое время, записанное при Succeeded
	Err      error
}

// Job — фоновое задание синхронизации с ограниченным числом попыток.
// Горутина задания всегда завершается; Done закрывается после записи Result.
type Job struct {
	ID     uuid.UUID
	done   chan struct{}
	cancel context.CancelFunc

	mu  sync.Mutex
	res Result
}

func newJob(cancel context.CancelFunc) *Job {
	return &Job{ID: uuid.New(), done: make(chan struct{}), cancel: cancel}
}

// Done закрывается при завершении задания.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait блокирует до завершения и возвращает итог.
func (j *Job) Wait() Result {
	<-j.done
	return j.Result()
}

// Result возвращает итог; до завершения Outcome == Running.
func (j *Job) Result() Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.res
}

// Cancel прерывает ожидание сети или паузу между попытками. Идущий запрос
// обрывается по дедлайну ctx.
func (j *Job) Cancel() {
	j.cancel()
}

func (j *Job) finish(r Result) {
	j.mu.Lock()
	j.res = r
	j.mu.Unlock()
	close(j.done)
}
