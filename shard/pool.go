package shard

import (
	"context"
	"sync/atomic"

	"github.com/ceyewan/shardsql/connector"
)

// Pool 单个分片的连接池。Registry 是唯一的持有者，重连时整体替换。
type Pool interface {
	// Query 执行返回行的语句
	Query(ctx context.Context, query string, args ...any) ([]Row, error)
	// Exec 执行写语句，返回影响行数
	Exec(ctx context.Context, query string, args ...any) (int64, error)
	// Ping 连通性探测，执行 SELECT 1
	Ping(ctx context.Context) error
	Close() error
}

// Dialer 按分片配置建立新的连接池
type Dialer interface {
	Dial(ctx context.Context, cfg ShardConfig) (Pool, error)
}

// DialerFunc 函数适配器
type DialerFunc func(ctx context.Context, cfg ShardConfig) (Pool, error)

func (f DialerFunc) Dial(ctx context.Context, cfg ShardConfig) (Pool, error) {
	return f(ctx, cfg)
}

// ConnectorDialer 基于 connector 包（GORM）建立连接池
type ConnectorDialer struct {
	Options []connector.Option
}

// NewConnectorDialer opts 透传给每个连接器，例如 connector.WithTracer
func NewConnectorDialer(opts ...connector.Option) *ConnectorDialer {
	return &ConnectorDialer{Options: opts}
}

func (d *ConnectorDialer) Dial(ctx context.Context, cfg ShardConfig) (Pool, error) {
	conn, err := connector.New(&cfg.Config, d.Options...)
	if err != nil {
		return nil, err
	}
	if err := conn.Connect(ctx); err != nil {
		return nil, err
	}
	return &gormPool{conn: conn}, nil
}

// gormPool 用 GORM 执行原生 SQL，连接池由 database/sql 管理：
// 超过 MaxOpenConns 的调用方排队等待，直到 ctx 超时。
type gormPool struct {
	conn   connector.SQLConnector
	closed atomic.Bool
}

func (p *gormPool) Query(ctx context.Context, query string, args ...any) ([]Row, error) {
	db := p.conn.GetClient()
	if p.closed.Load() || db == nil {
		return nil, ErrPoolClosed
	}
	rows := make([]Row, 0)
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (p *gormPool) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	db := p.conn.GetClient()
	if p.closed.Load() || db == nil {
		return 0, ErrPoolClosed
	}
	tx := db.WithContext(ctx).Exec(query, args...)
	return tx.RowsAffected, tx.Error
}

func (p *gormPool) Ping(ctx context.Context) error {
	db := p.conn.GetClient()
	if p.closed.Load() || db == nil {
		return ErrPoolClosed
	}
	var one int
	return db.WithContext(ctx).Raw("SELECT 1").Scan(&one).Error
}

func (p *gormPool) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	return p.conn.Close()
}
