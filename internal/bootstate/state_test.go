package bootstate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColdBootThenSleepCycles(t *testing.T) {
	p := filepath.Join(t.TempDir(), "state", "boot.yml")

	s := NewStore(p)
	info, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, Info{Count: 1}, info)
	require.NoError(t, s.MarkSleep())

	for want := 2; want <= 4; want++ {
		s = NewStore(p)
		info, err = s.Load()
		require.NoError(t, err)
		assert.Equal(t, Info{Count: want, WakeFromSleep: true}, info)
		require.NoError(t, s.MarkSleep())
	}

	// выход без MarkSleep (сбой, перезагрузка по watchdog) даёт холодный старт
	s = NewStore(p)
	_, err = s.Load()
	require.NoError(t, err)
	info, err = NewStore(p).Load()
	require.NoError(t, err)
	assert.Equal(t, Info{Count: 1}, info)
}

func TestRecordSyncSurvives(t *testing.T) {
	p := filepath.Join(t.TempDir(), "boot.yml")
	s := NewStore(p)
	_, err := s.Load()
	require.NoError(t, err)
	require.NoError(t, s.RecordSync(1700000000))
	require.NoError(t, s.MarkSleep())

	s = NewStore(p)
	_, err = s.Load()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), s.LastSync())
}

func TestCorruptStateIsColdBoot(t *testing.T) {
	p := filepath.Join(t.TempDir(), "boot.yml")
	require.NoError(t, os.WriteFile(p, []byte("boot_count: [oops"), 0o644))

	s := NewStore(p)
	info, err := s.Load()
	assert.Error(t, err)
	assert.Equal(t, 1, info.Count)
	assert.False(t, info.WakeFromSleep)

	// сон после испорченного файла продолжает счёт с первой загрузки
	require.NoError(t, s.MarkSleep())
	info, err = NewStore(p).Load()
	require.NoError(t, err)
	assert.Equal(t, Info{Count: 2, WakeFromSleep: true}, info)
}
