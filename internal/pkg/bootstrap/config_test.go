package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inventory.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `
app:
  port: 9090
  store_driver: mysql
  lock_timeout: 1500ms
infra:
  mysql:
    dsn: "user:pw@tcp(db:3306)/inventory"
  kafka:
    brokers: ["k1:9092", "k2:9092"]
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.App.Port)
	assert.Equal(t, "mysql", cfg.App.StoreDriver)
	assert.Equal(t, 1500*time.Millisecond, cfg.App.LockTimeout)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Infra.Kafka.Brokers)
	// 文件中没有的字段保持默认值
	assert.Equal(t, "inventory-transfers", cfg.Infra.Kafka.Topic)
	assert.Same(t, cfg, GetCurrentConfig())
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.App.StoreDriver)
	assert.Equal(t, 8082, cfg.App.Port)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7000")
	t.Setenv("LOCK_TIMEOUT", "250ms")
	t.Setenv("KAFKA_BROKERS", "a:1,b:2")
	t.Setenv("REDIS_ADDR", "redis:6379")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 7000, cfg.App.Port)
	assert.Equal(t, 250*time.Millisecond, cfg.App.LockTimeout)
	assert.Equal(t, []string{"a:1", "b:2"}, cfg.Infra.Kafka.Brokers)
	assert.Equal(t, "redis:6379", cfg.Infra.Redis.Addr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "app:\n  store_driver: mysql\n"))
	assert.ErrorContains(t, err, "infra.mysql.dsn")

	_, err = LoadConfig(writeConfig(t, "app:\n  store_driver: postgres\n"))
	assert.ErrorContains(t, err, "unknown store_driver")

	t.Setenv("PORT", "abc")
	_, err = LoadConfig("")
	assert.Error(t, err)
}

func TestAppConfig_ClaimTTL(t *testing.T) {
	assert.Equal(t, 10*time.Second, AppConfig{LockTimeout: time.Second}.ClaimTTL())
	assert.Equal(t, 20*time.Second, AppConfig{LockTimeout: 5 * time.Second}.ClaimTTL())
	assert.Equal(t, 10*time.Second, AppConfig{}.ClaimTTL())
	assert.Equal(t, time.Minute, AppConfig{LockTimeout: 5 * time.Second, IdempotencyClaimTTL: time.Minute}.ClaimTTL())
}
