// Package bootstate хранит счётчик загрузок между циклами сна.
//
// Счётчик переживает только сон: перед сном процесс ставит метку (MarkSleep), и
// следующий старт продолжает счёт. Старт без метки считается холодным и начинает с 1.
package bootstate

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

const stateVersion = 1

// fileState — содержимое файла состояния.
type fileState struct {
	Version     int   `yaml:"version"`
	BootCount   int   `yaml:"boot_count"`
	SleepMarker bool  `yaml:"sleep_marker"`
	LastSync    int64 `yaml:"last_sync,omitempty"` // epoch последней сетевой синхронизации
}

// Info — сведения о текущей загрузке.
type Info struct {
	Count         int
	WakeFromSleep bool
}

type Store struct {
	mu   sync.Mutex
	path string
	cur  fileState
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load читает состояние, считает текущую загрузку и сразу сохраняет его со снятой меткой сна:
// аварийный выход до MarkSleep даст холодный старт.
func (s *Store) Load() (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.read()
	if err != nil {
		// испорченный файл: холодный старт, следующий MarkSleep перезапишет его
		s.cur = fileState{BootCount: 1}
		return Info{Count: 1}, err
	}
	info := Info{Count: 1}
	if prev.SleepMarker {
		info = Info{Count: prev.BootCount + 1, WakeFromSleep: true}
	}
	s.cur = fileState{BootCount: info.Count, LastSync: prev.LastSync}
	if err := s.write(); err != nil {
		return info, err
	}
	return info, nil
}

// MarkSleep ставит метку сна: следующий старт будет пробуждением.
func (s *Store) MarkSleep() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.SleepMarker = true
	return s.write()
}

// RecordSync запоминает epoch успешной синхронизации.
func (s *Store) RecordSync(epoch int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur.LastSync = epoch
	return s.write()
}

// LastSync — epoch последней синхронизации (0 — не было).
func (s *Store) LastSync() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur.LastSync
}

func (s *Store) read() (fileState, error) {
	var st fileState
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("read state: %w", err)
	}
	if err := yaml.Unmarshal(data, &st); err != nil {
		return fileState{}, fmt.Errorf("parse state %s: %w", s.path, err)
	}
	return st, nil
}

// write пишет через временный файл и rename, чтобы обрыв питания не оставил полфайла.
func (s *Store) write() error {
	s.cur.Version = stateVersion
	data, err := yaml.Marshal(&s.cur)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return os.Rename(tmp, s.path)
}
