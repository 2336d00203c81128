package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// MinPlausibleEpoch — 2000-01-01T00:00:00Z; всё, что раньше, считается «часы не выставлены».
const MinPlausibleEpoch int64 = 946684800

// Значения по умолчанию для пустых длительностей cycle.feed_interval и watchdog.timeout.
const (
	DefaultFeedInterval    = 10 * time.Second
	DefaultWatchdogTimeout = 120 * time.Second
)

// Config — конфигурация homeplate (часы, RTC, watchdog, логи).
type Config struct {
	Time     TimeConfig     `yaml:"time"`
	Timezone TimezoneConfig `yaml:"timezone"`
	RTC      RTCConfig      `yaml:"rtc"`
	Watchdog WatchdogConfig `yaml:"watchdog"`
	Log      LogConfig      `yaml:"log"`
	State    StateConfig    `yaml:"state"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Cycle    CycleConfig    `yaml:"cycle"`
}

// TimeConfig — синхронизация с сетевым временем.
// Пустые PrimaryServers и SecondaryServers = сетевой источник не настроен, синхронизация не запускается.
type TimeConfig struct {
	PrimaryServers    []ServerConfig `yaml:"primary_servers"`
	SecondaryServers  []ServerConfig `yaml:"secondary_servers"`
	SyncIntervalBoots int            `yaml:"sync_interval_boots"`
	MaxRetries        int            `yaml:"max_retries"`
	RetryBackoff      string         `yaml:"retry_backoff"`   // "30s"
	AttemptTimeout    string         `yaml:"attempt_timeout"` // таймаут одного запроса
	MinPlausibleEpoch int64          `yaml:"min_plausible_epoch"`
	// AdjustSystemClock — дополнительно выставлять CLOCK_REALTIME (нужен CAP_SYS_TIME)
	AdjustSystemClock bool `yaml:"adjust_system_clock"`
}

// ServerConfig — один источник сетевого времени (protocol: ntp, http).
type ServerConfig struct {
	Protocol string `yaml:"protocol"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
}

// TimezoneConfig — пара правил перехода (летнее/стандартное время).
// Если DST и STD совпадают, перехода нет.
type TimezoneConfig struct {
	DST RuleConfig `yaml:"dst"`
	STD RuleConfig `yaml:"std"`
}

// RuleConfig — правило перехода: неделя (0 = последняя), день недели (1 = вс), месяц, час, смещение в минутах.
type RuleConfig struct {
	Abbrev string `yaml:"abbrev"`
	Week   int    `yaml:"week"`
	DOW    int    `yaml:"dow"`
	Month  int    `yaml:"month"`
	Hour   int    `yaml:"hour"`
	Offset int    `yaml:"offset"`
}

// RTCConfig — внешний RTC (PCF85063A на I2C).
type RTCConfig struct {
	Bus      string `yaml:"bus"`      // имя I2C шины periph, например "/dev/i2c-1" или "1"
	Address  uint16 `yaml:"address"`  // 0x51
	Simulate bool   `yaml:"simulate"` // RTC в памяти вместо I2C
}

// WatchdogConfig — аппаратный watchdog.
type WatchdogConfig struct {
	Disable        bool   `yaml:"disable"`
	Timeout        string `yaml:"timeout"` // "120s"
	PanicOnTimeout bool   `yaml:"panic_on_timeout"`
	Device         string `yaml:"device"` // "/dev/watchdog"; пусто = программный таймер
}

// LogConfig — диагностический вывод.
type LogConfig struct {
	Level      string `yaml:"level"`
	SerialPort string `yaml:"serial_port"` // пусто = stderr
	Baud       int    `yaml:"baud"`
}

// StateConfig — файл счётчика загрузок.
type StateConfig struct {
	Path string `yaml:"path"`
}

// MetricsConfig — Prometheus /metrics; пустой Listen отключает HTTP.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// CycleConfig — цикл «проснулся → синхронизировал → уснул».
type CycleConfig struct {
	Awake        string `yaml:"awake"`         // сколько работать до сна; пусто = до сигнала
	FeedInterval string `yaml:"feed_interval"` // период сброса watchdog основным циклом
}

// Default возвращает конфиг по умолчанию
func Default() *Config {
	return &Config{
		Time: TimeConfig{
			SyncIntervalBoots: 24,
			MaxRetries:        5,
			RetryBackoff:      "30s",
			AttemptTimeout:    "5s",
			MinPlausibleEpoch: MinPlausibleEpoch,
		},
		Timezone: TimezoneConfig{
			DST: RuleConfig{Abbrev: "CEST", Week: 0, DOW: 1, Month: 3, Hour: 2, Offset: 120},
			STD: RuleConfig{Abbrev: "CET", Week: 0, DOW: 1, Month: 10, Hour: 3, Offset: 60},
		},
		RTC: RTCConfig{
			Bus:     "",
			Address: 0x51,
		},
		Watchdog: WatchdogConfig{
			Timeout:        "120s",
			PanicOnTimeout: true,
		},
		Log: LogConfig{
			Level: "info",
			Baud:  115200,
		},
		State: StateConfig{
			Path: "homeplate-state.yml",
		},
		Cycle: CycleConfig{
			FeedInterval: "10s",
		},
	}
}

// Load читает конфиг из YAML
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	// Разбираем поверх Default(): ключи, которых нет в файле, сохраняют значения по умолчанию
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate проверяет значения, которые иначе всплыли бы только на устройстве.
func (c *Config) Validate() error {
	for _, d := range []struct {
		name, val string
	}{
		{"time.retry_backoff", c.Time.RetryBackoff},
		{"time.attempt_timeout", c.Time.AttemptTimeout},
		{"watchdog.timeout", c.Watchdog.Timeout},
		{"cycle.awake", c.Cycle.Awake},
		{"cycle.feed_interval", c.Cycle.FeedInterval},
	} {
		if d.val == "" {
			continue
		}
		if _, err := time.ParseDuration(d.val); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	feed := Duration(c.Cycle.FeedInterval, DefaultFeedInterval)
	if feed <= 0 {
		return fmt.Errorf("cycle.feed_interval: must be positive, got %v", feed)
	}
	if !c.Watchdog.Disable {
		timeout := Duration(c.Watchdog.Timeout, DefaultWatchdogTimeout)
		if timeout <= 0 {
			timeout = DefaultWatchdogTimeout
		}
		if feed >= timeout {
			return fmt.Errorf("cycle.feed_interval %v: must be shorter than watchdog.timeout %v", feed, timeout)
		}
	}
	if c.Time.MaxRetries < 1 {
		return fmt.Errorf("time.max_retries: must be >= 1, got %d", c.Time.MaxRetries)
	}
	for _, r := range []RuleConfig{c.Timezone.DST, c.Timezone.STD} {
		if r.Month < 1 || r.Month > 12 || r.DOW < 1 || r.DOW > 7 || r.Week < 0 || r.Week > 4 {
			return fmt.Errorf("timezone rule %q: week/dow/month out of range", r.Abbrev)
		}
	}
	return nil
}

// HasNetworkTime возвращает true, если настроен хотя бы один сетевой источник.
func (t TimeConfig) HasNetworkTime() bool {
	return len(t.PrimaryServers)+len(t.SecondaryServers) > 0
}

// Duration разбирает строку длительности; при пустой строке или ошибке возвращает defaultVal.
func Duration(s string, defaultVal time.Duration) time.Duration {
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

func applyDefaults(c *Config) {
	d := Default()
	if c.Time.SyncIntervalBoots == 0 {
		c.Time.SyncIntervalBoots = d.Time.SyncIntervalBoots
	}
	if c.Time.MaxRetries == 0 {
		c.Time.MaxRetries = d.Time.MaxRetries
	}
	if c.Time.RetryBackoff == "" {
		c.Time.RetryBackoff = d.Time.RetryBackoff
	}
	if c.Time.AttemptTimeout == "" {
		c.Time.AttemptTimeout = d.Time.AttemptTimeout
	}
	if c.Time.MinPlausibleEpoch == 0 {
		c.Time.MinPlausibleEpoch = d.Time.MinPlausibleEpoch
	}
	for _, list := range [][]ServerConfig{c.Time.PrimaryServers, c.Time.SecondaryServers} {
		for i := range list {
			if list[i].Protocol == "" {
				list[i].Protocol = "ntp"
			}
		}
	}
	if c.RTC.Address == 0 {
		c.RTC.Address = d.RTC.Address
	}
	if c.Watchdog.Timeout == "" {
		c.Watchdog.Timeout = d.Watchdog.Timeout
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Baud == 0 {
		c.Log.Baud = d.Log.Baud
	}
	if c.State.Path == "" {
		c.State.Path = d.State.Path
	}
	if c.Cycle.FeedInterval == "" {
		c.Cycle.FeedInterval = d.Cycle.FeedInterval
	}
}
