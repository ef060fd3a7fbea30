package shard

import (
	"github.com/ceyewan/shardsql/breaker"
	"github.com/ceyewan/shardsql/clog"
	"github.com/ceyewan/shardsql/metrics"
)

// Option Registry、Executor、Monitor 共用的选项，各组件只读取自己关心的字段
type Option func(*options)

type options struct {
	logger  clog.Logger
	meter   metrics.Meter
	dialer  Dialer
	locator Locator
	breaker breaker.Breaker
}

func applyOptions(opts []Option) *options {
	o := &options{
		logger:  clog.Discard(),
		meter:   metrics.Discard(),
		locator: HashLocator,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithLogger 注入 Logger，自动添加 shard 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("shard")
		}
	}
}

// WithMeter 注入 Meter
func WithMeter(m metrics.Meter) Option {
	return func(o *options) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithDialer 替换建立连接池的方式，默认使用 connector 包
func WithDialer(d Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

// WithLocator 替换 Executor 的分片定位器
func WithLocator(l Locator) Option {
	return func(o *options) {
		if l != nil {
			o.locator = l
		}
	}
}

// WithBreaker 为 Executor 注入熔断器，优先于 Config.Breaker
func WithBreaker(b breaker.Breaker) Option {
	return func(o *options) {
		o.breaker = b
	}
}
