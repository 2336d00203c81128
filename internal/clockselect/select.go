package clockselect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mmornati/homeplate/internal/source"
)

// Election — выбор сетевого источника: сначала primary, при недоступности — secondary.
// Первый ответивший источник становится активным и опрашивается первым в следующий раз.
type Election struct {
	primary   []source.TimeSource
	secondary []source.TimeSource

	mu     sync.Mutex
	active source.TimeSource
}

// NewElection создаёт выборщик из списков primary и secondary
func NewElection(primary, secondary []source.TimeSource) *Election {
	return &Election{
		primary:   primary,
		secondary: secondary,
	}
}

// Len — число настроенных источников.
func (e *Election) Len() int {
	return len(e.primary) + len(e.secondary)
}

// Query опрашивает источники по порядку и возвращает первое полученное время.
// Если не ответил никто, ошибка объединяет ошибки всех источников.
func (e *Election) Query(ctx context.Context) (time.Time, source.TimeSource, error) {
	var errs []error
	for _, s := range e.order() {
		if err := ctx.Err(); err != nil {
			return time.Time{}, nil, err
		}
		t, err := s.GetTime(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		e.mu.Lock()
		e.active = s
		e.mu.Unlock()
		return t, s, nil
	}
	e.mu.Lock()
	e.active = nil
	e.mu.Unlock()
	if len(errs) == 0 {
		return time.Time{}, nil, source.ErrUnavailable
	}
	return time.Time{}, nil, errors.Join(append([]error{source.ErrUnavailable}, errs...)...)
}

// FetchEpoch — Query, сведённый к секундам Unix.
func (e *Election) FetchEpoch(ctx context.Context) (int64, error) {
	t, _, err := e.Query(ctx)
	if err != nil {
		return 0, err
	}
	return t.Unix(), nil
}

// Active возвращает источник, ответивший последним (nil, если последний Query не удался)
func (e *Election) Active() source.TimeSource {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// Close закрывает все источники.
func (e *Election) Close() error {
	var errs []error
	for _, s := range e.primary {
		errs = append(errs, s.Close())
	}
	for _, s := range e.secondary {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

// order: активный первым, затем primary и secondary без повторов.
func (e *Election) order() []source.TimeSource {
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	out := make([]source.TimeSource, 0, e.Len())
	if active != nil {
		out = append(out, active)
	}
	for _, list := range [][]source.TimeSource{e.primary, e.secondary} {
		for _, s := range list {
			if s != active {
				out = append(out, s)
			}
		}
	}
	return out
}
