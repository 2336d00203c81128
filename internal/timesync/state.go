package timesync

import "sync"

// BootInfo — сведения о загрузке из постоянного хранилища.
type BootInfo struct {
	Count         int
	WakeFromSleep bool
}

// State — состояние синхронизации одной загрузки. Создаётся один раз при старте
// и передаётся оркестратору явно; NetworkSynced между загрузками не сохраняется.
type State struct {
	mu               sync.Mutex
	boot             BootInfo
	externalClockSet bool
	networkSynced    bool
	lastOffset       int64
}

// Snapshot — согласованная копия State.
type Snapshot struct {
	BootCount        int
	WakeFromSleep    bool
	ExternalClockSet bool
	NetworkSynced    bool
	LastOffset       int64
}

func NewState(boot BootInfo) *State {
	return &State{boot: boot}
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		BootCount:        s.boot.Count,
		WakeFromSleep:    s.boot.WakeFromSleep,
		ExternalClockSet: s.externalClockSet,
		NetworkSynced:    s.networkSynced,
		LastOffset:       s.lastOffset,
	}
}

// ExternalClockSet — внешний RTC подтверждён выставленным в этой загрузке.
func (s *State) ExternalClockSet() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.externalClockSet
}

func (s *State) NetworkSynced() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.networkSynced
}

func (s *State) BootCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boot.Count
}

func (s *State) LastOffset() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOffset
}

func (s *State) setExternalClockSet(v bool) {
	s.mu.Lock()
	s.externalClockSet = v
	s.mu.Unlock()
}

func (s *State) setNetworkSynced(v bool) {
	s.mu.Lock()
	s.networkSynced = v
	s.mu.Unlock()
}

func (s *State) setLastOffset(off int64) {
	s.mu.Lock()
	s.lastOffset = off
	s.mu.Unlock()
}

// NeedsResync — нужна ли синхронизация в этой загрузке. Любое из условий достаточно:
// RTC не выставлен, холодный старт, или bootCount кратен interval (interval <= 0 отключает
// периодическую синхронизацию).
func NeedsResync(rtcSet, wakeFromSleep bool, bootCount, interval int) bool {
	periodic := interval > 0 && bootCount%interval == 0
	return !rtcSet || !wakeFromSleep || periodic
}
