package shard

import (
	"context"
	"sync"
	"time"

	"github.com/ceyewan/shardsql/clog"
	"github.com/ceyewan/shardsql/metrics"
	"github.com/ceyewan/shardsql/xerrors"
)

const metricDisconnected = "shardsql_shards_disconnected"

// ShardHealth 单个分片的健康记录
type ShardHealth struct {
	Status
	LastCheck        time.Time `json:"last_check"`
	LastHealthy      time.Time `json:"last_healthy,omitempty"`
	ConsecutiveFails int       `json:"consecutive_fails"`
}

// Summary 一轮探测的汇总，只读快照
type Summary struct {
	CheckedAt    time.Time     `json:"checked_at"`
	Total        int           `json:"total"`
	Disconnected int           `json:"disconnected"`
	Shards       []ShardHealth `json:"shards"`
}

// Healthy 所有分片都连通
func (s Summary) Healthy() bool {
	return s.Total > 0 && s.Disconnected == 0
}

// Monitor 后台定期调用 Registry.CheckAll，不阻塞请求处理
type Monitor struct {
	reg      *Registry
	interval time.Duration
	logger   clog.Logger
	gauge    metrics.Gauge

	mu   sync.RWMutex
	last Summary

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewMonitor 创建 Monitor，间隔取 Config.HealthInterval（默认 30s）
func NewMonitor(reg *Registry, opts ...Option) *Monitor {
	o := applyOptions(opts)
	logger := o.logger.WithNamespace("monitor")

	gauge, err := o.meter.Gauge(metricDisconnected, "Number of shards failing the liveness check.")
	if err != nil {
		logger.Warn("create disconnected gauge failed", clog.Error(err))
		gauge, _ = metrics.Discard().Gauge(metricDisconnected, "")
	}

	return &Monitor{
		reg:      reg,
		interval: reg.cfg.HealthInterval,
		logger:   logger,
		gauge:    gauge,
	}
}

// Interval 探测间隔
func (m *Monitor) Interval() time.Duration {
	return m.interval
}

// Start 立即探测一次并启动后台探测协程，ctx 取消或调用 Stop 后退出
func (m *Monitor) Start(ctx context.Context) error {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.cancel != nil {
		return xerrors.Wrap(xerrors.ErrInvalidInput, "monitor already started")
	}
	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.loop(ctx)

	m.logger.Info("health monitor started", clog.Duration("interval", m.interval))
	return nil
}

// Stop 停止后台协程并等待退出，可重复调用，之后可以再次 Start
func (m *Monitor) Stop() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()

	if m.cancel == nil {
		return
	}
	m.cancel()
	m.cancel = nil
	m.wg.Wait()
	m.logger.Info("health monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	m.CheckNow(ctx)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckNow(ctx)
		}
	}
}

// CheckNow 立即执行一轮探测并更新快照。
// ctx 在探测期间结束时丢弃本轮结果，返回上一轮的快照。
func (m *Monitor) CheckNow(ctx context.Context) Summary {
	statuses := m.reg.CheckAll(ctx)
	if ctx.Err() != nil {
		m.logger.Debug("health check discarded", clog.Error(ctx.Err()))
		return m.Last()
	}
	now := time.Now()

	m.mu.Lock()
	prev := make(map[int]ShardHealth, len(m.last.Shards))
	for _, h := range m.last.Shards {
		prev[h.Shard] = h
	}

	summary := Summary{CheckedAt: now, Total: len(statuses), Shards: make([]ShardHealth, len(statuses))}
	for i, st := range statuses {
		h := ShardHealth{Status: st, LastCheck: now, LastHealthy: prev[st.Shard].LastHealthy}
		switch {
		case st.Connected:
			h.LastHealthy = now
		case st.Disconnected():
			h.ConsecutiveFails = prev[st.Shard].ConsecutiveFails + 1
			summary.Disconnected++
		default:
			h.ConsecutiveFails = prev[st.Shard].ConsecutiveFails
		}
		summary.Shards[i] = h
	}
	m.last = summary
	m.mu.Unlock()

	m.gauge.Set(ctx, float64(summary.Disconnected))
	if summary.Disconnected > 0 {
		m.logger.Warn("health check completed",
			clog.Int("disconnected", summary.Disconnected), clog.Int("total", summary.Total))
	} else {
		m.logger.Debug("health check completed", clog.Int("total", summary.Total))
	}
	return summary
}

// Last 最近一轮探测的快照，尚未探测时 Total 为 0
func (m *Monitor) Last() Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.last
	s.Shards = append([]ShardHealth(nil), m.last.Shards...)
	return s
}
