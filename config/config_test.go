package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sessions/config"
)

func TestMustLoadPath_Defaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
storage_path: "./sessions.db"
identity:
  signing_secret: "secret"
`), 0o600))

	cfg := config.MustLoadPath(path)

	assert.Equal(t, "local", cfg.Env)
	assert.Equal(t, 24*time.Hour, cfg.Sessions.DefaultTTL())
	assert.Equal(t, 30*24*time.Hour, cfg.Sessions.RememberMeTTL())
	assert.Equal(t, 5, cfg.Sessions.MaxActive)
	assert.Equal(t, 500*time.Millisecond, cfg.Identity.RetryBackoff)
	// A provider call, the retry wait and the retried call fit in one request.
	assert.Less(t, 2*cfg.Identity.Timeout+cfg.Identity.RetryBackoff, cfg.GRPC.Timeout)
	assert.Equal(t, 256, cfg.Audit.Buffer)
}

func TestMustLoadPath_LocalFile(t *testing.T) {
	cfg := config.MustLoadPath("local.yaml")

	assert.Equal(t, 44044, cfg.GRPC.Port)
	assert.Equal(t, []string{"127.0.0.1/32"}, cfg.GRPC.TrustedPeers)
	assert.Equal(t, 10, cfg.Identity.AttemptsPerMinute)
	assert.Less(t, 2*cfg.Identity.Timeout+cfg.Identity.RetryBackoff, cfg.GRPC.Timeout)
}

func TestMustLoadPath_MissingFile(t *testing.T) {
	assert.Panics(t, func() {
		config.MustLoadPath(filepath.Join(t.TempDir(), "nope.yaml"))
	})
}
