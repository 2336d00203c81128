// Package logger — единый вывод диагностики homeplate: строки вида "[INFO] [TIME] сообщение".
//
// Бэкенд — zap с консольным энкодером без метки времени: на старте часы устройства
// ещё не синхронизированы, и время в логе только путает.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Quiet при true отключает информационные и отладочные сообщения всех логгеров,
// включая Named; WARN и выше выводятся всегда. Действует с ближайшего Setup.
var Quiet bool

// Options — параметры Setup.
type Options struct {
	Level  string    // debug, info, warn, error, crit; пусто = info
	Writer io.Writer // nil = os.Stderr
}

var (
	mu   sync.RWMutex
	base = newLogger(zapcore.InfoLevel, os.Stderr)
)

// Setup пересобирает глобальный логгер. Повторный вызов заменяет sink и уровень.
func Setup(opts Options) error {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return err
	}
	if Quiet && lvl < zapcore.WarnLevel {
		lvl = zapcore.WarnLevel
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	l := newLogger(lvl, w)
	mu.Lock()
	old := base
	base = l
	mu.Unlock()
	_ = old.Sync()
	return nil
}

// ParseLevel разбирает уровень из конфига; "crit" соответствует zap DPanic.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return zapcore.InfoLevel, nil
	case "crit", "critical":
		return zapcore.DPanicLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}
	return zapcore.ParseLevel(s)
}

// Named возвращает логгер компонента с тегом (TIME, WDT, RTC, ...).
func Named(tag string) *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Named(strings.ToUpper(tag)).Sugar()
}

// Info выводит сообщение без тега, если Quiet == false.
func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	mu.RLock()
	defer mu.RUnlock()
	base.Sugar().Infof(format, args...)
}

// Error выводит сообщение об ошибке всегда.
func Error(format string, args ...interface{}) {
	mu.RLock()
	defer mu.RUnlock()
	base.Sugar().Errorf(format, args...)
}

// Sync сбрасывает буферы sink (перед уходом в сон).
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()
	return base.Sync()
}

func newLogger(lvl zapcore.Level, w io.Writer) *zap.Logger {
	enc := zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		LevelKey:         "level",
		NameKey:          "tag",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      encodeLevel,
		EncodeName:       encodeName,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	})
	core := zapcore.NewCore(enc, zapcore.AddSync(w), lvl)
	// DPanic используется как CRIT: в production-режиме zap не паникует на нём.
	return zap.New(core)
}

func encodeLevel(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + levelString(l) + "]")
}

func encodeName(name string, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString("[" + name + "]")
}

func levelString(l zapcore.Level) string {
	switch l {
	case zapcore.DebugLevel:
		return "DEBUG"
	case zapcore.InfoLevel:
		return "INFO"
	case zapcore.WarnLevel:
		return "WARN"
	case zapcore.ErrorLevel:
		return "ERROR"
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		return "CRIT"
	default:
		return "UNKNOWN"
	}
}
