package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"WARN", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"crit", zapcore.DPanicLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNamedFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup(Options{Level: "debug", Writer: &buf}))
	t.Cleanup(func() { _ = Setup(Options{}) })

	Named("time").Infof("offset %d", -3600)
	Named("wdt").DPanic("stalled")

	assert.Equal(t, "[INFO] [TIME] offset -3600\n[CRIT] [WDT] stalled\n", buf.String())
}

func TestQuietSuppressesInfo(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup(Options{Writer: &buf}))
	t.Cleanup(func() {
		Quiet = false
		_ = Setup(Options{})
	})

	Quiet = true
	Info("hidden")
	Error("shown %d", 1)

	assert.Equal(t, "[ERROR] shown 1\n", buf.String())
}

func TestQuietRaisesNamedLevel(t *testing.T) {
	var buf bytes.Buffer
	Quiet = true
	t.Cleanup(func() {
		Quiet = false
		_ = Setup(Options{})
	})
	require.NoError(t, Setup(Options{Level: "debug", Writer: &buf}))

	log := Named("time")
	log.Debug("skip")
	log.Info("skip")
	log.Warn("keep")
	log.Error("keep")

	assert.Equal(t, "[WARN] [TIME] keep\n[ERROR] [TIME] keep\n", buf.String())
}

func TestLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Setup(Options{Level: "warn", Writer: &buf}))
	t.Cleanup(func() { _ = Setup(Options{}) })

	Named("rtc").Info("skip")
	Named("rtc").Warn("keep")

	assert.Equal(t, "[WARN] [RTC] keep\n", buf.String())
}
