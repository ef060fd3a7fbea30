package shard

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ceyewan/shardsql/clog"
	"github.com/ceyewan/shardsql/metrics"
	"github.com/ceyewan/shardsql/xerrors"
)

const metricReconnects = "shardsql_reconnects_total"

// Status 单个分片的探测结果。
// 调用方 ctx 在探测期间结束时 Skipped 为 true，此时结果不代表分片状态。
type Status struct {
	Shard     int    `json:"shard"`
	Name      string `json:"name"`
	Connected bool   `json:"connected"`
	Skipped   bool   `json:"skipped,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Disconnected 探测确认分片不可用
func (s Status) Disconnected() bool {
	return !s.Connected && !s.Skipped
}

// Registry 持有每个分片的连接池和配置，负责建立连接和重连。
// 同一时刻每个分片只有一个活动连接池，只有 Registry 可以替换它。
type Registry struct {
	cfg      *Config
	dialer   Dialer
	logger   clog.Logger
	guard    reconnectGuard
	limiters []*rate.Limiter

	reconnects metrics.Counter

	mu     sync.RWMutex
	pools  []Pool
	closed bool

	// 后台重连任务
	bg       sync.WaitGroup
	bgCtx    context.Context
	bgCancel context.CancelFunc
}

// NewRegistry 校验配置并创建 Registry，此时还未建立任何连接
func NewRegistry(cfg *Config, opts ...Option) (*Registry, error) {
	if cfg == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "shard config is nil")
	}
	c := cfg.clone()
	if err := c.Validate(); err != nil {
		return nil, err
	}

	o := applyOptions(opts)
	dialer := o.dialer
	if dialer == nil {
		dialer = NewConnectorDialer()
	}

	reconnects, err := o.meter.Counter(metricReconnects, "Shard reconnect attempts by outcome.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create reconnect counter")
	}

	n := len(c.Shards)
	r := &Registry{
		cfg:        c,
		dialer:     dialer,
		logger:     o.logger.WithNamespace("registry"),
		guard:      newReconnectGuard(c.ReconnectScope, n),
		reconnects: reconnects,
	}
	if c.ReconnectRate > 0 {
		r.limiters = make([]*rate.Limiter, n)
		for i := range r.limiters {
			r.limiters[i] = rate.NewLimiter(rate.Limit(c.ReconnectRate), c.ReconnectBurst)
		}
	}
	r.bgCtx, r.bgCancel = context.WithCancel(context.Background())
	return r, nil
}

// Initialize 按顺序连接每个分片并执行 SELECT 1。
// 任一分片失败则关闭已打开的连接池并返回错误，不存在部分启动。
func (r *Registry) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRegistryClosed
	}
	if r.pools != nil {
		return nil
	}

	pools := make([]Pool, 0, len(r.cfg.Shards))
	for i := range r.cfg.Shards {
		p, err := r.dialWithRetry(ctx, i)
		if err != nil {
			for _, opened := range pools {
				_ = opened.Close()
			}
			r.logger.Error("shard initialization failed",
				clog.Int("shard", i), clog.String("name", r.cfg.Shards[i].Name), clog.Error(err))
			return xerrors.Wrapf(classify(i, err), "initialize shard %d", i)
		}
		pools = append(pools, p)
		r.logger.Info("shard connected", clog.Int("shard", i), clog.String("name", r.cfg.Shards[i].Name))
	}

	r.pools = pools
	r.logger.Info("all shards initialized", clog.Int("shards", len(pools)))
	return nil
}

// Pool 返回分片当前的连接池
func (r *Registry) Pool(index int) (Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if index < 0 || index >= len(r.cfg.Shards) {
		return nil, invalidShard(index, len(r.cfg.Shards))
	}
	if r.pools == nil {
		return nil, ErrNotInitialized
	}
	return r.pools[index], nil
}

// ShardCount 配置的分片数量，进程生命周期内不变
func (r *Registry) ShardCount() int {
	return len(r.cfg.Shards)
}

// Config 返回分片配置的副本
func (r *Registry) Config(index int) (ShardConfig, error) {
	if index < 0 || index >= len(r.cfg.Shards) {
		return ShardConfig{}, invalidShard(index, len(r.cfg.Shards))
	}
	return r.cfg.Shards[index], nil
}

// Settings 返回生效的分片层配置（已填充默认值）
func (r *Registry) Settings() Config {
	return *r.cfg.clone()
}

// Reconnect 为分片建立新的连接池并替换旧的。
// 保护已被占用、超出重连频率、或连接失败时返回 false，不会阻塞等待其他重连。
func (r *Registry) Reconnect(ctx context.Context, index int) bool {
	if index < 0 || index >= len(r.cfg.Shards) {
		return false
	}
	logger := r.logger.With(clog.Int("shard", index), clog.String("name", r.cfg.Shards[index].Name))

	if !r.guard.tryAcquire(index) {
		logger.Debug("reconnect skipped", clog.Error(ErrReconnectInProgress))
		r.reconnects.Inc(ctx, metrics.Shard(index), metrics.L(metrics.LabelOutcome, metrics.OutcomeRejected))
		return false
	}
	defer r.guard.release(index)

	if r.limiters != nil && !r.limiters[index].Allow() {
		logger.Warn("reconnect rate limited")
		r.reconnects.Inc(ctx, metrics.Shard(index), metrics.L(metrics.LabelOutcome, metrics.OutcomeRejected))
		return false
	}

	start := time.Now()
	p, err := r.dial(ctx, index)
	r.reconnects.Inc(ctx, metrics.Shard(index), metrics.Outcome(err))
	if err != nil {
		logger.Warn("reconnect failed", clog.Duration("elapsed", time.Since(start)), clog.Error(err))
		return false
	}

	r.mu.Lock()
	if r.closed || r.pools == nil {
		r.mu.Unlock()
		_ = p.Close()
		return false
	}
	old := r.pools[index]
	r.pools[index] = p
	r.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			logger.Warn("close replaced pool failed", clog.Error(err))
		}
	}
	logger.Info("shard reconnected", clog.Duration("elapsed", time.Since(start)))
	return true
}

// CheckAll 并发探测所有分片，对失败的分片在后台发起重连，不等待重连结果。
// 因调用方 ctx 取消或超时导致的探测失败标记为 Skipped，不触发重连。
func (r *Registry) CheckAll(ctx context.Context) []Status {
	n := len(r.cfg.Shards)
	statuses := make([]Status, n)

	r.mu.RLock()
	pools := append([]Pool(nil), r.pools...)
	unavailable := r.closed || r.pools == nil
	r.mu.RUnlock()

	if unavailable {
		err := ErrNotInitialized
		if r.isClosed() {
			err = ErrRegistryClosed
		}
		for i := range statuses {
			statuses[i] = Status{Shard: i, Name: r.cfg.Shards[i].Name, Error: err.Error()}
		}
		return statuses
	}

	var g errgroup.Group
	for i, p := range pools {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, r.cfg.Shards[i].AcquireTimeout)
			defer cancel()

			st := Status{Shard: i, Name: r.cfg.Shards[i].Name, Connected: true}
			if err := p.Ping(pctx); err != nil {
				st.Connected = false
				st.Error = err.Error()
				if ctx.Err() != nil {
					st.Skipped = true
					r.logger.Debug("liveness check abandoned", clog.Int("shard", i), clog.Error(ctx.Err()))
				} else {
					r.logger.Warn("liveness check failed", clog.Int("shard", i), clog.Error(err))
					r.reconnectInBackground(i)
				}
			}
			statuses[i] = st
			return nil
		})
	}
	_ = g.Wait()
	return statuses
}

// reconnectInBackground 独立的后台重连任务，自带超时和日志，Close 会等待它结束
func (r *Registry) reconnectInBackground(index int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}

	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		ctx, cancel := context.WithTimeout(r.bgCtx, r.cfg.ReconnectTimeout)
		defer cancel()

		if r.Reconnect(ctx, index) {
			r.logger.Info("background reconnect succeeded", clog.Int("shard", index))
			return
		}
		r.logger.Warn("background reconnect did not complete", clog.Int("shard", index))
	}()
}

// Close 停止后台重连并并发关闭所有连接池，幂等
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	pools := r.pools
	r.pools = nil
	r.mu.Unlock()

	r.bgCancel()
	r.bg.Wait()

	errs := make([]error, len(pools))
	var g errgroup.Group
	for i, p := range pools {
		g.Go(func() error {
			if err := p.Close(); err != nil {
				errs[i] = xerrors.Wrapf(err, "close shard %d", i)
			}
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("registry closed", clog.Int("shards", len(pools)))
	return xerrors.Combine(errs...)
}

func (r *Registry) isClosed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

// dial 建立连接池并执行 SELECT 1，失败时关闭已建立的连接池
func (r *Registry) dial(ctx context.Context, index int) (Pool, error) {
	cfg := r.cfg.Shards[index]
	p, err := r.dialer.Dial(ctx, cfg)
	if err != nil {
		return nil, err
	}
	pctx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()
	if err := p.Ping(pctx); err != nil {
		_ = p.Close()
		return nil, err
	}
	return p, nil
}

func (r *Registry) dialWithRetry(ctx context.Context, index int) (Pool, error) {
	var lastErr error
	for attempt := 0; attempt <= r.cfg.DialRetries; attempt++ {
		if attempt > 0 {
			r.logger.Warn("dial shard failed, retrying",
				clog.Int("shard", index), clog.Int("attempt", attempt), clog.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, xerrors.Join(lastErr, ctx.Err())
			case <-time.After(r.cfg.DialInterval):
			}
		}
		p, err := r.dial(ctx, index)
		if err == nil {
			return p, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
