package shard

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/shardsql/connector"
)

// newSingleConnExecutor 单分片 SQLite，连接池上限为 1
func newSingleConnExecutor(t *testing.T, acquire time.Duration) (*Executor, *Registry) {
	t.Helper()
	cfg := &Config{Shards: []ShardConfig{{
		Config: connector.Config{
			Name:         "shard0",
			Driver:       connector.DriverSQLite,
			Path:         filepath.Join(t.TempDir(), "shard0.db"),
			MaxOpenConns: 1,
		},
		AcquireTimeout: acquire,
	}}}
	reg, err := NewRegistry(cfg, WithDialer(NewConnectorDialer(connector.WithSilentMode())))
	require.NoError(t, err)
	require.NoError(t, reg.Initialize(context.Background()))
	t.Cleanup(func() { _ = reg.Close() })

	exec, err := NewExecutor(reg)
	require.NoError(t, err)
	return exec, reg
}

func TestExecuteOnShard_AcquireTimeout(t *testing.T) {
	const acquire = 100 * time.Millisecond
	exec, reg := newSingleConnExecutor(t, acquire)
	ctx := context.Background()

	pool, err := reg.Pool(0)
	require.NoError(t, err)
	sqlDB, err := pool.(*gormPool).conn.GetClient().DB()
	require.NoError(t, err)

	held, err := sqlDB.Conn(ctx)
	require.NoError(t, err)

	start := time.Now()
	_, err = exec.ExecuteOnShardWithRetries(ctx, 0, 0, "SELECT 1 AS one")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransientConnection)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsTransient(err))
	assert.GreaterOrEqual(t, elapsed, acquire)
	assert.Less(t, elapsed, 2*time.Second)

	// 连接在超时前归还时，排队的调用方拿到连接继续执行
	done := make(chan error, 1)
	go func() {
		_, err := exec.ExecuteOnShardWithRetries(ctx, 0, 0, "SELECT 1 AS one")
		done <- err
	}()
	time.Sleep(acquire / 4)
	require.NoError(t, held.Close())
	assert.NoError(t, <-done)

	res, err := exec.ExecuteOnShardWithRetries(ctx, 0, 0, "SELECT 1 AS one")
	require.NoError(t, err)
	assert.Len(t, res.Rows, 1)
}
