// Package metrics — счётчики Prometheus цикла синхронизации и watchdog.
// Все методы безопасны для nil *Metrics (метрики выключены).
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "homeplate"

type Metrics struct {
	reg *prometheus.Registry

	syncAttempts   prometheus.Counter
	syncFailures   prometheus.Counter
	syncOutcomes   *prometheus.CounterVec
	clockAdjust    *prometheus.GaugeVec
	tzOffset       prometheus.Gauge
	externalSet    prometheus.Gauge
	bootCount      prometheus.Gauge
	wdtExpirations *prometheus.CounterVec
}

// New создаёт метрики в собственном реестре (вместе со стандартными go/process коллекторами).
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		syncAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_attempts_total",
			Help:      "Network time requests issued by the sync job.",
		}),
		syncFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_attempt_failures_total",
			Help:      "Network time requests that failed or timed out.",
		}),
		syncOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_outcomes_total",
			Help:      "Terminal outcomes of sync jobs.",
		}, []string{"outcome"}),
		clockAdjust: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "clock_adjust_seconds",
			Help:      "Last correction applied on network sync, per clock (session, external).",
		}, []string{"clock"}),
		tzOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tz_offset_seconds",
			Help:      "Timezone offset applied to the session clock.",
		}),
		externalSet: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "external_clock_set",
			Help:      "1 when the external RTC is confirmed set this boot.",
		}),
		bootCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "boot_count",
			Help:      "Boot counter used for the periodic resync decision.",
		}),
		wdtExpirations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "watchdog_expirations_total",
			Help:      "Watchdog windows missed, per task.",
		}, []string{"task"}),
	}
	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.syncAttempts,
		m.syncFailures,
		m.syncOutcomes,
		m.clockAdjust,
		m.tzOffset,
		m.externalSet,
		m.bootCount,
		m.wdtExpirations,
	)
	return m
}

// Registry — реестр для тестов и встраивания.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) SyncAttempt() {
	if m == nil {
		return
	}
	m.syncAttempts.Inc()
}

func (m *Metrics) SyncFailure() {
	if m == nil {
		return
	}
	m.syncFailures.Inc()
}

// SyncOutcome фиксирует терминальное состояние задания (succeeded, retries_exhausted, cancelled).
func (m *Metrics) SyncOutcome(outcome string) {
	if m == nil {
		return
	}
	m.syncOutcomes.WithLabelValues(outcome).Inc()
}

// ClockAdjusted — поправка часов clock при коммите, секунды со знаком.
func (m *Metrics) ClockAdjusted(clock string, delta int64) {
	if m == nil {
		return
	}
	m.clockAdjust.WithLabelValues(clock).Set(float64(delta))
}

func (m *Metrics) TZOffset(off int64) {
	if m == nil {
		return
	}
	m.tzOffset.Set(float64(off))
}

func (m *Metrics) ExternalClockSet(set bool) {
	if m == nil {
		return
	}
	v := 0.0
	if set {
		v = 1
	}
	m.externalSet.Set(v)
}

func (m *Metrics) BootCount(n int) {
	if m == nil {
		return
	}
	m.bootCount.Set(float64(n))
}

// WatchdogExpired подходит как watchdog.ExpiredFunc.
func (m *Metrics) WatchdogExpired(task string, _ time.Duration) {
	if m == nil {
		return
	}
	m.wdtExpirations.WithLabelValues(task).Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// Serve отдаёт /metrics на listen до отмены ctx.
func (m *Metrics) Serve(ctx context.Context, listen string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	select {
	case <-ctx.Done():
		shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
