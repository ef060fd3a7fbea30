package shard

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ceyewan/shardsql/connector"
)

// fakeBackend 模拟一个分片数据库，多次拨号共享同一个后端
type fakeBackend struct {
	mu       sync.Mutex
	rows     []Row
	affected int64
	errs     []error // 按顺序返回的执行错误，耗尽后成功
	pingErr  error
	dialErr  error
	dialWait chan struct{}

	dials atomic.Int32
	calls atomic.Int32
}

func (b *fakeBackend) setErrs(errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.errs = errs
}

func (b *fakeBackend) setPingErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pingErr = err
}

func (b *fakeBackend) setDialErr(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dialErr = err
}

func (b *fakeBackend) next() error {
	b.calls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.errs) == 0 {
		return nil
	}
	err := b.errs[0]
	b.errs = b.errs[1:]
	return err
}

type fakePool struct {
	b      *fakeBackend
	closed atomic.Bool
}

func (p *fakePool) Query(ctx context.Context, _ string, _ ...any) ([]Row, error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.b.next(); err != nil {
		return nil, err
	}
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	return append([]Row{}, p.b.rows...), nil
}

func (p *fakePool) Exec(ctx context.Context, _ string, _ ...any) (int64, error) {
	if p.closed.Load() {
		return 0, ErrPoolClosed
	}
	if err := p.b.next(); err != nil {
		return 0, err
	}
	return p.b.affected, nil
}

func (p *fakePool) Ping(ctx context.Context) error {
	if p.closed.Load() {
		return ErrPoolClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	p.b.mu.Lock()
	defer p.b.mu.Unlock()
	return p.b.pingErr
}

func (p *fakePool) Close() error {
	p.closed.Store(true)
	return nil
}

// fakeCluster 按分片名称路由拨号
type fakeCluster struct {
	backends map[string]*fakeBackend
	opened   []*fakePool
	mu       sync.Mutex
}

func newFakeCluster(n int) (*fakeCluster, *Config) {
	c := &fakeCluster{backends: make(map[string]*fakeBackend, n)}
	cfg := &Config{}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("shard%d", i)
		c.backends[name] = &fakeBackend{}
		cfg.Shards = append(cfg.Shards, ShardConfig{
			Config:         connector.Config{Name: name, Driver: connector.DriverSQLite, Path: name + ".db"},
			AcquireTimeout: time.Second,
		})
	}
	return c, cfg
}

func (c *fakeCluster) backend(i int) *fakeBackend {
	return c.backends[fmt.Sprintf("shard%d", i)]
}

func (c *fakeCluster) Dial(ctx context.Context, cfg ShardConfig) (Pool, error) {
	b := c.backends[cfg.Name]
	b.dials.Add(1)

	b.mu.Lock()
	wait, dialErr := b.dialWait, b.dialErr
	b.mu.Unlock()

	if wait != nil {
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if dialErr != nil {
		return nil, dialErr
	}
	p := &fakePool{b: b}
	c.mu.Lock()
	c.opened = append(c.opened, p)
	c.mu.Unlock()
	return p, nil
}

func (c *fakeCluster) openPools() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, p := range c.opened {
		if !p.closed.Load() {
			n++
		}
	}
	return n
}

// newTestRegistry 创建并初始化基于 fakeCluster 的 Registry
func newTestRegistry(t *testing.T, n int, mutate func(*Config)) (*Registry, *fakeCluster) {
	t.Helper()
	cluster, cfg := newFakeCluster(n)
	if mutate != nil {
		mutate(cfg)
	}
	reg, err := NewRegistry(cfg, WithDialer(cluster))
	require.NoError(t, err)
	require.NoError(t, reg.Initialize(context.Background()))
	t.Cleanup(func() { _ = reg.Close() })
	return reg, cluster
}
