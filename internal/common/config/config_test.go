package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name     string `validate:"required"`
	Timeout  time.Duration
	Level    log.Level
	Hosts    []string
	Redis    RedisConfig
	Capacity int `validate:"gt=0"`
}

const baseConfig = `
name: base
timeout: 5s
level: warn
hosts: a,b
capacity: 10
redis:
  addrs: ["localhost:6379"]
  poolSize: 100
`

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", baseConfig)

	var c testConfig
	_, err := LoadConfig(&c, dir, nil)
	require.NoError(t, err)

	assert.Equal(t, "base", c.Name)
	assert.Equal(t, 5*time.Second, c.Timeout)
	assert.Equal(t, log.WarnLevel, c.Level)
	assert.Equal(t, []string{"a", "b"}, c.Hosts)
	assert.Equal(t, []string{"localhost:6379"}, c.Redis.Addrs)
	assert.Equal(t, 100, c.Redis.PoolSize)
	assert.NoError(t, Validate(c))
}

func TestLoadConfig_OverridesAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", baseConfig)
	override := writeFile(t, dir, "override.yaml", "timeout: 1m\nlevel: debug\n")
	t.Setenv("LOGANALYZER_NAME", "fromenv")

	var c testConfig
	_, err := LoadConfig(&c, dir, []string{override})
	require.NoError(t, err)

	assert.Equal(t, "fromenv", c.Name)
	assert.Equal(t, time.Minute, c.Timeout)
	assert.Equal(t, log.DebugLevel, c.Level)
	assert.Equal(t, 10, c.Capacity)
}

func TestLoadConfig_MissingDefault(t *testing.T) {
	var c testConfig
	_, err := LoadConfig(&c, t.TempDir(), nil)
	assert.Error(t, err)
}

func TestLoadConfig_MissingOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", baseConfig)
	var c testConfig
	_, err := LoadConfig(&c, dir, []string{filepath.Join(dir, "nope.yaml")})
	assert.Error(t, err)
}

func TestValidate_Failures(t *testing.T) {
	err := Validate(testConfig{Capacity: 0})
	require.Error(t, err)
	// exercises the reporting path; output goes to the logrus standard logger
	LogValidationErrors(err)
}

func TestStripPrefix(t *testing.T) {
	assert.Equal(t, "Redis.Addrs", stripPrefix("testConfig.Redis.Addrs"))
	assert.Equal(t, "Name", stripPrefix("Name"))
}

func TestRedisConfig_NewClient(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	client := RedisConfig{Addrs: []string{server.Addr()}, DB: 2, PoolSize: 3}.NewClient()
	defer client.Close()

	require.NoError(t, client.Set("key", "value", 0).Err())
	server.Select(2)
	stored, err := server.Get("key")
	require.NoError(t, err)
	assert.Equal(t, "value", stored)
}
