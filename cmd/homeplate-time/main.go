// homeplate-time — часы e-paper табло: RTC, синхронизация по NTP, watchdog.
//
// Один запуск = одна загрузка устройства: поднять время из RTC, при необходимости
// синхронизировать его с сетью, поработать cycle.awake и отметить сон.
//
// Использование:
//
//	homeplate-time -config homeplate.yml        — одна загрузка
//	homeplate-time -simulate -awake 30s          — без I2C, RTC в памяти
//	homeplate-time -print                        — показать время и выйти
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mmornati/homeplate/internal/config"
	"github.com/mmornati/homeplate/internal/logger"
	"github.com/mmornati/homeplate/pkg/clocksync"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигу (по умолчанию homeplate.yml)")
	envFile := flag.String("env", ".env", "файл переменных HOMEPLATE_*")
	simulate := flag.Bool("simulate", false, "RTC в памяти вместо I2C")
	awake := flag.String("awake", "", "время работы до сна (переопределяет config)")
	level := flag.String("log-level", "", "уровень логов (переопределяет config)")
	printOnly := flag.Bool("print", false, "поднять время из RTC, вывести и выйти")
	quiet := flag.Bool("quiet", false, "меньше вывода")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ApplyEnv(*envFile); err != nil {
		log.Fatalf("env: %v", err)
	}
	if *simulate {
		cfg.RTC.Simulate = true
	}
	if *awake != "" {
		cfg.Cycle.Awake = *awake
	}
	if *level != "" {
		cfg.Log.Level = *level
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := clocksync.Options{Quiet: *quiet}
	if *printOnly {
		printTime(ctx, cfg, opts)
		return
	}

	if err := clocksync.RunBoot(ctx, cfg, opts); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("%v", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	explicit := path != ""
	if !explicit {
		path = "homeplate.yml"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) && !explicit {
		return config.Default(), nil
	}
	return config.Load(path)
}

// printTime выполняет только Startup: без сети, без watchdog и без счётчика загрузок.
func printTime(ctx context.Context, cfg *config.Config, opts clocksync.Options) {
	cfg.Time.PrimaryServers = nil
	cfg.Time.SecondaryServers = nil
	cfg.Watchdog.Disable = true
	// настоящий файл состояния не трогаем: Load сбросил бы отметку сна
	dir, err := os.MkdirTemp("", "homeplate-print")
	if err != nil {
		log.Fatalf("temp dir: %v", err)
	}
	defer os.RemoveAll(dir)
	cfg.State.Path = filepath.Join(dir, "state.yml")

	b, err := clocksync.Start(ctx, cfg, opts)
	if err != nil {
		log.Fatalf("start: %v", err)
	}
	defer b.Close()

	s := b.State.Snapshot()
	fmt.Printf("RTC set:     %v\n", s.ExternalClockSet)
	fmt.Printf("Local time:  %s (%s, offset %ds)\n",
		b.Reader.FormattedDate(), b.Bridge.Zone().Abbrev(b.Bridge.ReadLocalEpoch()), s.LastOffset)
}
