package shard

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/shardsql/breaker"
	"github.com/ceyewan/shardsql/metrics"
)

func newTestExecutor(t *testing.T, n int, mutate func(*Config), opts ...Option) (*Executor, *fakeCluster) {
	t.Helper()
	reg, cluster := newTestRegistry(t, n, mutate)
	exec, err := NewExecutor(reg, opts...)
	require.NoError(t, err)
	return exec, cluster
}

func transientErrs(n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = syscall.ECONNREFUSED
	}
	return errs
}

func TestNewExecutor_NilRegistry(t *testing.T) {
	_, err := NewExecutor(nil)
	assert.Error(t, err)
}

func TestExecuteOnShard_Success(t *testing.T) {
	exec, cluster := newTestExecutor(t, 2, nil)
	cluster.backend(1).rows = []Row{{"user_id": "user-1", "name": "Alice"}}

	res, err := exec.ExecuteOnShard(context.Background(), 1, "SELECT * FROM users")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Alice", res.Rows[0]["name"])
	assert.EqualValues(t, 0, cluster.backend(0).calls.Load())
}

func TestExecuteOnShard_Exec(t *testing.T) {
	exec, cluster := newTestExecutor(t, 1, nil)
	cluster.backend(0).affected = 1

	res, err := exec.ExecuteOnShard(context.Background(), 0, "INSERT INTO users (user_id) VALUES (?)", "user-1")
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.EqualValues(t, 1, res.RowsAffected)
}

func TestExecuteOnShard_Retry(t *testing.T) {
	tests := []struct {
		name      string
		retries   int
		errs      []error
		dialErr   error
		wantErr   error
		wantCalls int32
		wantDials int32
	}{
		{"两次瞬时错误后成功", 3, transientErrs(2), nil, nil, 3, 3},
		{"预算耗尽", 2, transientErrs(10), nil, ErrTransientConnection, 3, 3},
		{"负数预算不重试", -1, transientErrs(1), nil, ErrTransientConnection, 1, 1},
		{"重连失败立即返回原错误", 3, transientErrs(1), syscall.ECONNREFUSED, ErrTransientConnection, 1, 2},
		{"查询错误不重试", 3, []error{errors.New("no such table: users")}, nil, ErrQuery, 1, 1},
		{"连接断开也可恢复", 1, []error{io.ErrUnexpectedEOF}, nil, nil, 2, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, cluster := newTestExecutor(t, 1, func(c *Config) { c.Retries = tt.retries })
			b := cluster.backend(0)
			b.setErrs(tt.errs...)
			b.setDialErr(tt.dialErr)

			_, err := exec.ExecuteOnShard(context.Background(), 0, "SELECT 1")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				var se *ShardError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, 0, se.Shard)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalls, b.calls.Load(), "执行次数")
			assert.Equal(t, tt.wantDials, b.dials.Load(), "拨号次数")
		})
	}
}

func TestExecuteOnShardWithRetries_ExplicitBudget(t *testing.T) {
	exec, cluster := newTestExecutor(t, 1, nil)
	b := cluster.backend(0)
	b.setErrs(transientErrs(10)...)

	_, err := exec.ExecuteOnShardWithRetries(context.Background(), 0, 1, "SELECT 1")
	assert.ErrorIs(t, err, ErrTransientConnection)
	assert.EqualValues(t, 2, b.calls.Load())
}

func TestExecuteOnShard_ReconnectGuardBusy(t *testing.T) {
	exec, cluster := newTestExecutor(t, 2, nil)

	// 另一个分片的重连占用全局保护
	release := make(chan struct{})
	cluster.backend(1).dialWait = release
	done := make(chan bool)
	go func() { done <- exec.reg.Reconnect(context.Background(), 1) }()
	require.Eventually(t, func() bool { return cluster.backend(1).dials.Load() == 2 }, time.Second, time.Millisecond)

	cluster.backend(0).setErrs(transientErrs(1)...)
	_, err := exec.ExecuteOnShard(context.Background(), 0, "SELECT 1")
	assert.ErrorIs(t, err, ErrTransientConnection)
	assert.EqualValues(t, 1, cluster.backend(0).calls.Load())

	close(release)
	assert.True(t, <-done)
}

func TestExecuteOnShard_CallerCanceled(t *testing.T) {
	exec, cluster := newTestExecutor(t, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.ExecuteOnShard(ctx, 0, "SELECT 1")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrCanceled)
	assert.NotErrorIs(t, err, ErrQuery)
	assert.EqualValues(t, 1, cluster.backend(0).dials.Load(), "取消的请求不触发重连")
}

func TestExecuteOnShard_InvalidShard(t *testing.T) {
	exec, _ := newTestExecutor(t, 2, nil)
	for _, idx := range []int{-1, 2} {
		_, err := exec.ExecuteOnShard(context.Background(), idx, "SELECT 1")
		assert.ErrorIs(t, err, ErrInvalidShard)
	}
}

func TestExecuteOnAll(t *testing.T) {
	for _, parallel := range []bool{false, true} {
		name := "sequential"
		if parallel {
			name = "parallel"
		}
		t.Run(name, func(t *testing.T) {
			exec, cluster := newTestExecutor(t, 3, func(c *Config) { c.ParallelFanOut = parallel })
			for i := 0; i < 3; i++ {
				cluster.backend(i).rows = []Row{{"shard": i, "n": 0}, {"shard": i, "n": 1}}
			}

			res, err := exec.ExecuteOnAll(context.Background(), "SELECT * FROM users")
			require.NoError(t, err)
			require.Len(t, res.Rows, 6)
			for i, row := range res.Rows {
				assert.Equal(t, i/2, row["shard"], "按分片顺序拼接")
				assert.Equal(t, i%2, row["n"], "分片内保持原顺序")
			}
			assert.Empty(t, res.Failures)
		})
	}
}

func TestExecuteOnAll_PartialFailure(t *testing.T) {
	exec, cluster := newTestExecutor(t, 3, func(c *Config) { c.Retries = -1 })
	cluster.backend(0).rows = []Row{{"id": "a"}}
	cluster.backend(2).rows = []Row{{"id": "c"}}
	cluster.backend(1).setErrs(syscall.ECONNREFUSED)

	res, err := exec.ExecuteOnAll(context.Background(), "SELECT * FROM users")
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)
	assert.Equal(t, "a", res.Rows[0]["id"])
	assert.Equal(t, "c", res.Rows[1]["id"])

	require.Len(t, res.Failures, 1)
	assert.Equal(t, 1, res.Failures[0].Shard)
	assert.ErrorIs(t, res.Failures[0].Err, ErrTransientConnection)
}

func TestExecuteOnAll_AllFailed(t *testing.T) {
	exec, cluster := newTestExecutor(t, 2, func(c *Config) { c.Retries = -1 })
	cluster.backend(0).setErrs(syscall.ECONNREFUSED)
	cluster.backend(1).setErrs(errors.New("no such table: users"))

	res, err := exec.ExecuteOnAll(context.Background(), "SELECT * FROM users")
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrAllShardsFailed)

	var fe *FanOutError
	require.ErrorAs(t, err, &fe)
	assert.Len(t, fe.Failures, 2)
}

func TestExecuteOnAll_EmptyIsNotFailure(t *testing.T) {
	exec, _ := newTestExecutor(t, 2, nil)

	res, err := exec.ExecuteOnAll(context.Background(), "SELECT * FROM users WHERE 1 = 0")
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.NotNil(t, res.Rows)
}

func TestExecuteOnAll_SumsRowsAffected(t *testing.T) {
	exec, cluster := newTestExecutor(t, 3, nil)
	for i := 0; i < 3; i++ {
		cluster.backend(i).affected = int64(i + 1)
	}

	res, err := exec.ExecuteOnAll(context.Background(), "DELETE FROM users WHERE user_id = ?", "user-1")
	require.NoError(t, err)
	assert.EqualValues(t, 6, res.RowsAffected)
}

func TestExecuteByKey(t *testing.T) {
	exec, cluster := newTestExecutor(t, 3, nil)
	assert.Equal(t, 3, exec.ShardCount())

	_, err := exec.ExecuteByKey(context.Background(), "user-bbbb2222", "SELECT 1")
	require.NoError(t, err)
	assert.Equal(t, 2, exec.Locate("user-bbbb2222"))
	assert.EqualValues(t, 1, cluster.backend(2).calls.Load())
	assert.EqualValues(t, 0, cluster.backend(0).calls.Load())
	assert.EqualValues(t, 0, cluster.backend(1).calls.Load())
}

func TestExecuteByKey_CustomLocator(t *testing.T) {
	exec, cluster := newTestExecutor(t, 3, nil, WithLocator(ModuloLocator))

	_, err := exec.ExecuteByKey(context.Background(), 7, "SELECT 1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, cluster.backend(1).calls.Load())
}

func TestExecutor_Breaker(t *testing.T) {
	exec, cluster := newTestExecutor(t, 2, func(c *Config) {
		c.Retries = -1
		c.Breaker = &breaker.Config{MinimumRequests: 2, FailureRatio: 0.5, Timeout: time.Minute}
	})
	b := cluster.backend(0)
	b.setErrs(transientErrs(10)...)

	for i := 0; i < 2; i++ {
		_, err := exec.ExecuteOnShard(context.Background(), 0, "SELECT 1")
		assert.ErrorIs(t, err, ErrTransientConnection)
	}

	_, err := exec.ExecuteOnShard(context.Background(), 0, "SELECT 1")
	assert.ErrorIs(t, err, breaker.ErrOpenState)
	var se *ShardError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 0, se.Shard)
	assert.EqualValues(t, 2, b.calls.Load(), "熔断后不再访问分片")

	// 熔断按分片隔离
	_, err = exec.ExecuteOnShard(context.Background(), 1, "SELECT 1")
	assert.NoError(t, err)
}

func TestExecutor_BreakerIgnoresQueryErrors(t *testing.T) {
	exec, cluster := newTestExecutor(t, 1, func(c *Config) {
		c.Breaker = &breaker.Config{MinimumRequests: 2, FailureRatio: 0.5, Timeout: time.Minute}
	})
	cluster.backend(0).setErrs(errors.New("syntax error"), errors.New("syntax error"), errors.New("syntax error"))

	for i := 0; i < 3; i++ {
		_, err := exec.ExecuteOnShard(context.Background(), 0, "SELEC 1")
		assert.ErrorIs(t, err, ErrQuery)
	}
	assert.EqualValues(t, 3, cluster.backend(0).calls.Load())
}

func TestExecutor_Metrics(t *testing.T) {
	meter, err := metrics.New(metrics.NewDevDefaultConfig("shardsql-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = meter.Shutdown(context.Background()) })

	cluster, cfg := newFakeCluster(1)
	reg, err := NewRegistry(cfg, WithDialer(cluster), WithMeter(meter))
	require.NoError(t, err)
	require.NoError(t, reg.Initialize(context.Background()))
	t.Cleanup(func() { _ = reg.Close() })

	exec, err := NewExecutor(reg, WithMeter(meter))
	require.NoError(t, err)

	cluster.backend(0).setErrs(syscall.ECONNRESET)
	_, err = exec.ExecuteOnShard(context.Background(), 0, "SELECT 1")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	meter.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	assert.Contains(t, body, "shardsql_queries_total")
	assert.Contains(t, body, `outcome="error"`)
	assert.Contains(t, body, `outcome="success"`)
	assert.Contains(t, body, "shardsql_reconnects_total")
	assert.Contains(t, body, "shardsql_query_duration_seconds_bucket")
}

func TestReturnsRows(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"SELECT * FROM users", true},
		{"  select 1", true},
		{"\n\tWITH t AS (SELECT 1) SELECT * FROM t", true},
		{"(SELECT 1) UNION (SELECT 2)", true},
		{"SHOW TABLES", true},
		{"PRAGMA table_info(users)", true},
		{"INSERT INTO users VALUES (?)", false},
		{"update users set name = ?", false},
		{"DELETE FROM orders", false},
		{"CREATE TABLE IF NOT EXISTS users (id TEXT)", false},
		{"SELECTED", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, returnsRows(tt.query))
		})
	}
}
