package connector

import (
	"go.opentelemetry.io/otel/trace"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ceyewan/shardsql/clog"
)

type options struct {
	logger   clog.Logger
	tracer   trace.TracerProvider
	sqlLevel gormlogger.LogLevel
}

// Option 连接器选项
type Option func(*options)

func defaultOptions() *options {
	return &options{
		logger:   clog.Discard(),
		sqlLevel: gormlogger.Warn,
	}
}

// WithLogger 设置 Logger，SQL 日志也通过它输出
func WithLogger(logger clog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger.WithNamespace("connector")
		}
	}
}

// WithTracer 通过 otelgorm 为每条 SQL 生成 span
func WithTracer(tp trace.TracerProvider) Option {
	return func(o *options) {
		o.tracer = tp
	}
}

// WithSilentMode 关闭 SQL 日志
func WithSilentMode() Option {
	return func(o *options) {
		o.sqlLevel = gormlogger.Silent
	}
}

// WithSQLDebug 以 debug 级别输出每条 SQL
func WithSQLDebug() Option {
	return func(o *options) {
		o.sqlLevel = gormlogger.Info
	}
}
