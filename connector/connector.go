// Package connector 管理单个 SQL 数据库连接（GORM），是分片连接池的底层实现。
//
// 支持 MySQL、PostgreSQL 和 SQLite，通过 Config.Driver 选择方言。
// NewXXX 只校验配置，Connect 时才建立连接并 Ping。
//
//	conn, err := connector.New(&connector.Config{
//		Name:     "shard0",
//		Driver:   connector.DriverMySQL,
//		Host:     "127.0.0.1",
//		Port:     3306,
//		Username: "root",
//		Database: "shard_db_0",
//	}, connector.WithLogger(logger))
//	if err := conn.Connect(ctx); err != nil { ... }
//	defer conn.Close()
//
//	db := conn.GetClient()
//
// 资源所有权：Connector 拥有底层 *sql.DB 的生命周期，借用 GetClient 的组件不应关闭它。
package connector

import (
	"context"

	"gorm.io/gorm"
)

// Driver 数据库方言
type Driver string

const (
	DriverMySQL    Driver = "mysql"
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

// Connector 连接器的通用行为，所有方法并发安全
type Connector interface {
	// Connect 建立连接，幂等
	Connect(ctx context.Context) error

	// Close 关闭连接，幂等。关闭后 GetClient 返回 nil。
	Close() error

	// HealthCheck 发送 Ping 并更新 IsHealthy 的缓存结果
	HealthCheck(ctx context.Context) error

	// IsHealthy 返回最近一次 HealthCheck 的结果，不阻塞
	IsHealthy() bool

	Name() string
}

// TypedConnector 提供类型安全的客户端访问
type TypedConnector[T any] interface {
	Connector
	GetClient() T
}

// SQLConnector 基于 GORM 的 SQL 连接器
type SQLConnector interface {
	TypedConnector[*gorm.DB]
	Driver() Driver
}

// New 按 cfg.Driver 创建连接器
func New(cfg *Config, opts ...Option) (SQLConnector, error) {
	if cfg == nil {
		return nil, ErrConfig
	}
	switch cfg.Driver {
	case DriverMySQL:
		return NewMySQL(cfg, opts...)
	case DriverPostgres:
		return NewPostgreSQL(cfg, opts...)
	case DriverSQLite:
		return NewSQLite(cfg, opts...)
	default:
		return nil, configError(cfg.Name, "unknown driver %q", cfg.Driver)
	}
}
