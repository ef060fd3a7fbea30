package shard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ceyewan/shardsql/metrics"
)

func TestMonitor_CheckNow(t *testing.T) {
	reg, cluster := newTestRegistry(t, 3, nil)
	mon := NewMonitor(reg)
	assert.Equal(t, DefaultHealthInterval, mon.Interval())
	assert.Zero(t, mon.Last().Total)

	s := mon.CheckNow(context.Background())
	assert.Equal(t, 3, s.Total)
	assert.Zero(t, s.Disconnected)
	assert.True(t, s.Healthy())
	for _, h := range s.Shards {
		assert.Equal(t, s.CheckedAt, h.LastHealthy)
	}

	cluster.backend(2).setPingErr(syscall.ECONNREFUSED)
	cluster.backend(2).setDialErr(syscall.ECONNREFUSED)
	firstHealthy := s.Shards[2].LastHealthy

	mon.CheckNow(context.Background())
	s = mon.CheckNow(context.Background())
	assert.Equal(t, 1, s.Disconnected)
	assert.False(t, s.Healthy())
	assert.False(t, s.Shards[2].Connected)
	assert.Equal(t, 2, s.Shards[2].ConsecutiveFails)
	assert.Equal(t, firstHealthy, s.Shards[2].LastHealthy)
	assert.Zero(t, s.Shards[0].ConsecutiveFails)

	cluster.backend(2).setPingErr(nil)
	s = mon.CheckNow(context.Background())
	assert.Zero(t, s.Disconnected)
	assert.Zero(t, s.Shards[2].ConsecutiveFails)
	assert.Equal(t, s, mon.Last())
}

func TestMonitor_CheckNowCanceledKeepsLastSummary(t *testing.T) {
	reg, cluster := newTestRegistry(t, 2, nil)
	mon := NewMonitor(reg)
	healthy := mon.CheckNow(context.Background())
	require.True(t, healthy.Healthy())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := mon.CheckNow(ctx)
	assert.Equal(t, healthy, s)
	assert.Equal(t, healthy, mon.Last())
	assert.True(t, mon.Last().Healthy())

	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, cluster.backend(0).dials.Load(), "没有触发重连")
}

func TestMonitor_Restart(t *testing.T) {
	reg, _ := newTestRegistry(t, 1, func(c *Config) { c.HealthInterval = 5 * time.Millisecond })
	mon := NewMonitor(reg)

	require.NoError(t, mon.Start(context.Background()))
	require.Eventually(t, func() bool { return mon.Last().Total == 1 }, time.Second, time.Millisecond)
	mon.Stop()

	first := mon.Last().CheckedAt
	require.NoError(t, mon.Start(context.Background()), "Stop 之后可以重新启动")
	require.Eventually(t, func() bool { return mon.Last().CheckedAt.After(first) }, time.Second, time.Millisecond)
	mon.Stop()
	mon.Stop()
}

func TestMonitor_StartStop(t *testing.T) {
	reg, cluster := newTestRegistry(t, 2, func(c *Config) { c.HealthInterval = 5 * time.Millisecond })
	cluster.backend(1).setPingErr(syscall.ECONNRESET)

	mon := NewMonitor(reg)
	require.NoError(t, mon.Start(context.Background()))
	assert.Error(t, mon.Start(context.Background()), "重复启动")

	require.Eventually(t, func() bool {
		return mon.Last().Disconnected == 1
	}, time.Second, 5*time.Millisecond)
	// 断开的分片由探测触发后台重连
	require.Eventually(t, func() bool { return cluster.backend(1).dials.Load() >= 2 }, time.Second, time.Millisecond)

	mon.Stop()
	mon.Stop()
	checked := mon.Last().CheckedAt
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, checked, mon.Last().CheckedAt, "Stop 之后不再探测")
}

func TestMonitor_DisconnectedGauge(t *testing.T) {
	meter, err := metrics.New(metrics.NewDevDefaultConfig("shardsql-test"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = meter.Shutdown(context.Background()) })

	reg, cluster := newTestRegistry(t, 2, nil)
	cluster.backend(0).setPingErr(syscall.ECONNREFUSED)

	mon := NewMonitor(reg, WithMeter(meter))
	mon.CheckNow(context.Background())

	rec := httptest.NewRecorder()
	meter.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Regexp(t, `shardsql_shards_disconnected(\{[^}]*\})? 1\n`, rec.Body.String())
}
