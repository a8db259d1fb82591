package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 1.0, cfg.Sync.DriftThreshold)
	assert.Equal(t, time.Second, cfg.Sync.SettleWindow)
	assert.Equal(t, 10*time.Second, cfg.Sync.PlaybackInterval)
	assert.Equal(t, 5*time.Second, cfg.Sync.ChatInterval)
	assert.Equal(t, 10*time.Second, cfg.Sync.MemberCountInterval)
	assert.Equal(t, 15*time.Second, cfg.Sync.MemberListInterval)
	assert.Equal(t, 5*time.Second, cfg.Sync.HeartbeatInterval)
	assert.Equal(t, 60*time.Second, cfg.Sync.DedupClearInterval)
	assert.Equal(t, 3*time.Second, cfg.Sync.VideoCheckCooldown)
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.VideoCheckDelay)
	assert.Equal(t, 54*time.Second, cfg.Push.PingPeriod)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.test.yaml")
	body := []byte(`
client:
  server_url: http://example.test
  room_code: ABC123
sync:
  drift_threshold: 2.5
  playback_interval: 3s
server:
  redis_addr: localhost:6379
`)
	require.NoError(t, os.WriteFile(file, body, 0o600))

	cfg, err := LoadFile(file)
	require.NoError(t, err)

	assert.Equal(t, "http://example.test", cfg.Client.ServerURL)
	assert.Equal(t, "ABC123", cfg.Client.RoomCode)
	assert.Equal(t, 2.5, cfg.Sync.DriftThreshold)
	assert.Equal(t, 3*time.Second, cfg.Sync.PlaybackInterval)
	assert.Equal(t, 5*time.Second, cfg.Sync.ChatInterval, "unset keys keep their defaults")
	assert.Equal(t, "localhost:6379", cfg.Server.RedisAddr)
}

func TestLoadFileMissingUsesDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Sync, cfg.Sync)
}

func TestLoadFileEnvOverride(t *testing.T) {
	t.Setenv("WATCHSYNC_SYNC_CHAT_INTERVAL", "2s")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.Sync.ChatInterval)
}

func TestLoadFileRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(file, []byte("sync:\n  drift_threshold: 0\n"), 0o600))

	_, err := LoadFile(file)
	assert.Error(t, err)
}
