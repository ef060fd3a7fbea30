// Package clog 是 shardsql 的结构化日志组件，底层基于 log/slog。
//
// 特性：
//   - 抽象 Logger 接口，组件只依赖接口，不依赖 slog
//   - 层级命名空间，组件通过 WithNamespace 标识自身（shard、connector、service）
//   - 运行时调整级别（SetLevel），配合 config.Watch 实现热更新
//   - 支持从 Context 中提取请求级字段
//
// 基本使用：
//
//	logger, _ := clog.New(&clog.Config{Level: "info", Format: "json"})
//	logger.Info("shard connected", clog.Int("shard", 0), clog.String("host", "mysql-shard1"))
//
// 组件内部：
//
//	registry, _ := shard.NewRegistry(cfg, shard.WithLogger(logger))
//	// 日志中会带上 namespace=shard
package clog

import "fmt"

// New 创建 Logger 实例，config 为 nil 时使用开发环境默认配置。
func New(config *Config, opts ...Option) (Logger, error) {
	if config == nil {
		config = NewDevDefaultConfig()
	}
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return newLogger(config, applyOptions(opts...))
}
