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

	assert.Equal(t, "webrtc", cfg.Transport.Kind)
	assert.Equal(t, "proto", cfg.Codec)
	assert.Len(t, cfg.Relay.Endpoints, 3)
	assert.Equal(t, "https://piping.glitch.me/", cfg.Relay.Default)
	assert.Len(t, cfg.Transport.STUNServers, 5)
	assert.Equal(t, ":memory:", cfg.Inbox.DSN)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peerdrop.yaml")
	content := `
log:
  level: debug
transport:
  kind: quic
  quic_listen: "127.0.0.1:7000"
relay:
  endpoints:
    - "https://relay-a/"
    - "https://relay-b/"
  ttl: 30s
codec: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "quic", cfg.Transport.Kind)
	assert.Equal(t, "127.0.0.1:7000", cfg.Transport.QUICListen)
	assert.Equal(t, []string{"https://relay-a/", "https://relay-b/"}, cfg.Relay.Endpoints)
	assert.Equal(t, 30*time.Second, cfg.Relay.TTL)
	assert.Equal(t, "json", cfg.Codec)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("PEERDROP_CODEC", "cbor")
	t.Setenv("PEERDROP_SIGNAL_URL", "ws://signal.example/ws")

	t.Setenv("PEERDROP_CONFIG", "")
	chdir(t, t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "cbor", cfg.Codec)
	assert.Equal(t, "ws://signal.example/ws", cfg.Signal.URL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidCodec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peerdrop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("codec: xml\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidTransport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peerdrop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport:\n  kind: carrier-pigeon\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
