package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, m *Metrics, name string, label string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			if label != "" {
				match := false
				for _, lp := range metric.GetLabel() {
					if lp.GetValue() == label {
						match = true
					}
				}
				if !match {
					continue
				}
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			}
		}
	}
	t.Fatalf("metric %s{%s} not found", name, label)
	return 0
}

func TestMetricsRecord(t *testing.T) {
	m := New()
	m.SyncAttempt()
	m.SyncAttempt()
	m.SyncFailure()
	m.SyncOutcome("succeeded")
	m.ClockAdjusted("external", -42)
	m.TZOffset(7200)
	m.ExternalClockSet(true)
	m.BootCount(24)
	m.WatchdogExpired("main", 0)

	assert.Equal(t, 2.0, value(t, m, "homeplate_sync_attempts_total", ""))
	assert.Equal(t, 1.0, value(t, m, "homeplate_sync_attempt_failures_total", ""))
	assert.Equal(t, 1.0, value(t, m, "homeplate_sync_outcomes_total", "succeeded"))
	assert.Equal(t, -42.0, value(t, m, "homeplate_clock_adjust_seconds", "external"))
	assert.Equal(t, 7200.0, value(t, m, "homeplate_tz_offset_seconds", ""))
	assert.Equal(t, 1.0, value(t, m, "homeplate_external_clock_set", ""))
	assert.Equal(t, 24.0, value(t, m, "homeplate_boot_count", ""))
	assert.Equal(t, 1.0, value(t, m, "homeplate_watchdog_expirations_total", "main"))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "homeplate_boot_count 24"))
}

func TestNilMetricsAreNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SyncAttempt()
		m.SyncFailure()
		m.SyncOutcome("cancelled")
		m.ClockAdjusted("session", 1)
		m.TZOffset(1)
		m.ExternalClockSet(false)
		m.BootCount(1)
		m.WatchdogExpired("x", 0)
	})
	assert.Nil(t, m.Registry())
}
