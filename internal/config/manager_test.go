package config

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestWatcher(t *testing.T) (*Manager, string) {
	t.Helper()
	dir := t.TempDir()
	m, err := NewManager(dir, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { m.Stop() })
	return m, dir
}

func TestManagerLoadsInitialConfigs(t *testing.T) {
	m, dir := newTestWatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "limits.yaml"), []byte("max_parallel: 4\n"), 0644))

	require.NoError(t, m.Start())

	cfg, ok := m.GetConfig("limits.yaml")
	require.True(t, ok)
	assert.Equal(t, 4, cfg["max_parallel"])
}

func TestManagerHotReload(t *testing.T) {
	m, dir := newTestWatcher(t)
	path := filepath.Join(dir, "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_parallel: 4\n"), 0644))

	var reloads atomic.Int32
	m.RegisterHandler("limits.yaml", func(event ChangeEvent) error {
		if event.Action != "initial_load" {
			reloads.Add(1)
		}
		return nil
	})
	require.NoError(t, m.Start())

	require.NoError(t, os.WriteFile(path, []byte("max_parallel: 16\n"), 0644))

	require.Eventually(t, func() bool {
		cfg, ok := m.GetConfig("limits.yaml")
		return ok && cfg["max_parallel"] == 16
	}, 3*time.Second, 20*time.Millisecond)
	assert.Eventually(t, func() bool { return reloads.Load() >= 1 }, 3*time.Second, 20*time.Millisecond)
}

func TestManagerValidatorRejectsBadConfig(t *testing.T) {
	m, dir := newTestWatcher(t)
	path := filepath.Join(dir, "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_parallel: 4\n"), 0644))

	m.RegisterValidator("limits.yaml", func(cfg map[string]interface{}) error {
		if v, ok := cfg["max_parallel"].(int); ok && v <= 0 {
			return errors.New("max_parallel must be positive")
		}
		return nil
	})
	require.NoError(t, m.Start())

	// Invalid update is rejected and the previous config kept
	require.NoError(t, os.WriteFile(path, []byte("max_parallel: -1\n"), 0644))
	time.Sleep(300 * time.Millisecond)

	cfg, ok := m.GetConfig("limits.yaml")
	require.True(t, ok)
	assert.Equal(t, 4, cfg["max_parallel"])
}

func TestManagerFileRemoval(t *testing.T) {
	m, dir := newTestWatcher(t)
	path := filepath.Join(dir, "limits.yaml")
	require.NoError(t, os.WriteFile(path, []byte("max_parallel: 4\n"), 0644))
	require.NoError(t, m.Start())

	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		_, ok := m.GetConfig("limits.yaml")
		return !ok
	}, 3*time.Second, 20*time.Millisecond)
}

func TestManagerIgnoresNonConfigFiles(t *testing.T) {
	m, dir := newTestWatcher(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644))
	require.NoError(t, m.Start())

	_, ok := m.GetConfig("notes.txt")
	assert.False(t, ok)
}
