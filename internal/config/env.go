package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix — префикс переменных окружения, переопределяющих YAML.
const EnvPrefix = "HOMEPLATE_"

// ApplyEnv подгружает .env (если файлы заданы и существуют) и переопределяет поля из HOMEPLATE_*.
// Поддерживаются только ключи, которые меняют при сборке/прошивке устройства:
// NTP_SERVER, SYNC_INTERVAL_BOOTS, WDT_TIMEOUT, LOG_LEVEL, LOG_SERIAL, RTC_BUS, STATE_PATH, METRICS_LISTEN.
func (c *Config) ApplyEnv(files ...string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		// godotenv.Load не перезаписывает уже выставленные переменные
		if err := godotenv.Load(f); err != nil {
			return err
		}
	}
	if v := env("NTP_SERVER"); v != "" {
		c.Time.PrimaryServers = nil
		for _, host := range strings.Split(v, ",") {
			if host = strings.TrimSpace(host); host != "" {
				c.Time.PrimaryServers = append(c.Time.PrimaryServers, ServerConfig{Protocol: "ntp", Host: host})
			}
		}
	}
	if v := env("SYNC_INTERVAL_BOOTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Time.SyncIntervalBoots = n
		}
	}
	if v := env("WDT_TIMEOUT"); v != "" {
		// как в прошивке: голое число = секунды
		if _, err := strconv.Atoi(v); err == nil {
			v += "s"
		}
		c.Watchdog.Timeout = v
	}
	if v := env("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := env("LOG_SERIAL"); v != "" {
		c.Log.SerialPort = v
	}
	if v := env("RTC_BUS"); v != "" {
		c.RTC.Bus = v
	}
	if v := env("STATE_PATH"); v != "" {
		c.State.Path = v
	}
	if v := env("METRICS_LISTEN"); v != "" {
		c.Metrics.Listen = v
	}
	return c.Validate()
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(EnvPrefix + key))
}
