package shard

import "sync/atomic"

// reconnectGuard 重连互斥，获取失败立即返回而不是等待
type reconnectGuard interface {
	tryAcquire(index int) bool
	release(index int)
}

// globalGuard 所有分片共用一个标志
type globalGuard struct {
	busy atomic.Bool
}

func (g *globalGuard) tryAcquire(int) bool { return g.busy.CompareAndSwap(false, true) }
func (g *globalGuard) release(int)         { g.busy.Store(false) }

// shardGuard 每个分片一个标志
type shardGuard struct {
	busy []atomic.Bool
}

func (g *shardGuard) tryAcquire(index int) bool { return g.busy[index].CompareAndSwap(false, true) }
func (g *shardGuard) release(index int)         { g.busy[index].Store(false) }

func newReconnectGuard(scope string, n int) reconnectGuard {
	if scope == ReconnectScopeShard {
		return &shardGuard{busy: make([]atomic.Bool, n)}
	}
	return &globalGuard{}
}
