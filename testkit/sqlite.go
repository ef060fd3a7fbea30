package testkit

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/shardsql/connector"
	"github.com/ceyewan/shardsql/shard"
)

// NewSQLiteConfig 返回 SQLite 内存库配置，同名共享一个库，ID 随机避免测试间串数据
func NewSQLiteConfig(name string) connector.Config {
	return connector.Config{
		Name:   name,
		Driver: connector.DriverSQLite,
		Path:   fmt.Sprintf("file:%s-%s?mode=memory&cache=shared", name, NewID()),
	}
}

// NewPersistentSQLiteConfig 返回文件型 SQLite 配置，文件位于 t.TempDir()，测试和基准测试都可使用
func NewPersistentSQLiteConfig(t testing.TB, name string) connector.Config {
	return connector.Config{
		Name:   name,
		Driver: connector.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), name+".db"),
	}
}

// NewSQLiteConnector 获取已连接的 SQLite 连接器，生命周期由 t.Cleanup 管理
func NewSQLiteConnector(t *testing.T) connector.SQLConnector {
	cfg := NewPersistentSQLiteConfig(t, "sqlite")
	conn, err := connector.NewSQLite(&cfg, connector.WithLogger(NewLogger()), connector.WithSilentMode())
	require.NoError(t, err, "failed to create sqlite connector")
	require.NoError(t, conn.Connect(context.Background()), "failed to connect to sqlite")

	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// NewSQLiteShardConfig 返回 n 个文件型 SQLite 分片组成的配置。
// 文件型库在重连替换连接池后数据仍然保留。
func NewSQLiteShardConfig(t testing.TB, n int) *shard.Config {
	cfg := &shard.Config{}
	for i := 0; i < n; i++ {
		cfg.Shards = append(cfg.Shards, shard.ShardConfig{
			Config:         NewPersistentSQLiteConfig(t, fmt.Sprintf("shard%d", i)),
			AcquireTimeout: 5 * time.Second,
		})
	}
	return cfg
}

// Shards 已初始化的分片访问层
type Shards struct {
	Registry *shard.Registry
	Executor *shard.Executor
}

// NewSQLiteShards 创建并初始化 n 个 SQLite 分片，生命周期由 t.Cleanup 管理
func NewSQLiteShards(t testing.TB, n int, opts ...shard.Option) *Shards {
	return NewShards(t, NewSQLiteShardConfig(t, n), opts...)
}

// NewShards 按配置创建 Registry 和 Executor
func NewShards(t testing.TB, cfg *shard.Config, opts ...shard.Option) *Shards {
	t.Helper()
	opts = append([]shard.Option{
		shard.WithLogger(NewLogger()),
		shard.WithDialer(shard.NewConnectorDialer(connector.WithLogger(NewLogger()), connector.WithSilentMode())),
	}, opts...)

	reg, err := shard.NewRegistry(cfg, opts...)
	require.NoError(t, err, "failed to create shard registry")
	require.NoError(t, reg.Initialize(context.Background()), "failed to initialize shards")
	t.Cleanup(func() { _ = reg.Close() })

	exec, err := shard.NewExecutor(reg, opts...)
	require.NoError(t, err, "failed to create shard executor")

	return &Shards{Registry: reg, Executor: exec}
}
