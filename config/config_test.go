package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testShardConfig struct {
	Retries int `mapstructure:"retries"`
	Shards  []struct {
		Name   string `mapstructure:"name"`
		Driver string `mapstructure:"driver"`
		Port   int    `mapstructure:"port"`
	} `mapstructure:"shards"`
}

const baseYAML = `
log:
  level: info
shard:
  retries: 3
  shards:
    - name: shard0
      driver: mysql
      port: 3306
    - name: shard1
      driver: mysql
      port: 3307
`

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func newTestLoader(t *testing.T, dir string, opts ...Option) Loader {
	t.Helper()
	l, err := New(&Config{Name: "config", Paths: []string{dir}, EnvPrefix: "SHARDSQLTEST"}, opts...)
	require.NoError(t, err)
	return l
}

func TestLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", baseYAML)

	l := newTestLoader(t, dir)
	require.NoError(t, l.Load(context.Background()))

	assert.Equal(t, "info", l.Get("log.level"))

	var sc testShardConfig
	require.NoError(t, l.UnmarshalKey("shard", &sc))
	assert.Equal(t, 3, sc.Retries)
	require.Len(t, sc.Shards, 2)
	assert.Equal(t, "shard1", sc.Shards[1].Name)
	assert.Equal(t, 3307, sc.Shards[1].Port)
}

func TestLoader_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", baseYAML)
	t.Setenv("SHARDSQLTEST_LOG_LEVEL", "debug")

	l := newTestLoader(t, dir)
	require.NoError(t, l.Load(context.Background()))
	assert.Equal(t, "debug", l.Get("log.level"))
}

func TestLoader_EnvironmentOverlay(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", baseYAML)
	writeFile(t, dir, "config.prod.yaml", "shard:\n  retries: 5\n")
	t.Setenv("SHARDSQLTEST_ENV", "prod")

	l := newTestLoader(t, dir)
	require.NoError(t, l.Load(context.Background()))

	var sc testShardConfig
	require.NoError(t, l.UnmarshalKey("shard", &sc))
	assert.Equal(t, 5, sc.Retries)
	assert.Equal(t, "info", l.Get("log.level"))
}

func TestLoader_DotEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", baseYAML)
	writeFile(t, dir, ".env", "SHARDSQLTEST_LOG_FORMAT=json\n")
	t.Cleanup(func() { _ = os.Unsetenv("SHARDSQLTEST_LOG_FORMAT") })

	l := newTestLoader(t, dir)
	require.NoError(t, l.Load(context.Background()))
	assert.Equal(t, "json", l.Get("log.format"))
}

func TestLoader_Defaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", baseYAML)

	l := newTestLoader(t, dir, WithDefault("http.addr", ":8080"))
	require.NoError(t, l.Load(context.Background()))
	assert.Equal(t, ":8080", l.Get("http.addr"))
}

func TestLoader_EmptyConfig(t *testing.T) {
	l := newTestLoader(t, t.TempDir())
	err := l.Load(context.Background())
	require.Error(t, err)
	assert.True(t, IsInvalidInput(err))
}

func TestLoader_Watch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", baseYAML)

	l := newTestLoader(t, dir)
	require.NoError(t, l.Load(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := l.Watch(ctx, "log.level")
	require.NoError(t, err)

	writeFile(t, dir, "config.yaml", "log:\n  level: warn\nshard:\n  retries: 3\n")

	select {
	case ev := <-ch:
		assert.Equal(t, "log.level", ev.Key)
		assert.Equal(t, "warn", ev.Value)
		assert.Equal(t, "info", ev.OldValue)
	case <-time.After(5 * time.Second):
		t.Fatal("no change event received")
	}
}

func TestLoader_WatchCancel(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "config.yaml", baseYAML)

	l := newTestLoader(t, dir)
	require.NoError(t, l.Load(context.Background()))

	_, err := l.Watch(context.Background(), "")
	assert.True(t, IsInvalidInput(err))

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := l.Watch(ctx, "log.level")
	require.NoError(t, err)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}
