package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestLoadFileDefaults(t *testing.T) {
	cfg, err := LoadFile(writeFile(t, "mode: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "local", cfg.Bus.Driver)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.NotEmpty(t, cfg.Secret)
	assert.Equal(t, cfg.Secret, cfg.Auth.JWTSecret)
	assert.Equal(t, cfg.Secret, cfg.Auth.ChannelSecret)
}

func TestLoadFileRequiresSecretInRelease(t *testing.T) {
	_, err := LoadFile(writeFile(t, "mode: release\n"))
	assert.ErrorIs(t, err, ErrInsecureSecret)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ROOMS_SECRET", "s3cret")
	t.Setenv("ROOMS_STORE_DRIVER", "redis")
	t.Setenv("ROOMS_BUS_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("ROOMS_AUTH_CHANNEL_SECRET", "chan")

	cfg, err := LoadFile(writeFile(t, "mode: release\nport: 9000\n"))
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "redis", cfg.Store.Driver)
	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "chan", cfg.Auth.ChannelSecret)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Bus.Kafka.Brokers)
}
