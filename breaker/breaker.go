// Package breaker 提供按 key 隔离的熔断器，基于 sony/gobreaker。
//
// shardsql 中以分片为 key：某个分片持续出现连接类故障时熔断，
// 请求快速失败，超时后进入半开状态探测恢复。
//
//	brk, _ := breaker.New(&breaker.Config{
//		Timeout:         30 * time.Second,
//		FailureRatio:    0.6,
//		MinimumRequests: 10,
//	}, breaker.WithLogger(logger), breaker.WithIsSuccessful(func(err error) bool {
//		return err == nil || !isTransient(err)
//	}))
//
//	_, err := brk.Execute(ctx, "shard-0", func() (any, error) { ... })
package breaker

import (
	"context"
	"time"
)

// Breaker 熔断器
type Breaker interface {
	// Execute 在 key 对应的熔断器保护下执行 fn。
	// 熔断打开时不执行 fn，返回 ErrOpenState 或降级函数的结果。
	Execute(ctx context.Context, key string, fn func() (any, error)) (any, error)

	// State 返回 key 当前状态，未使用过的 key 为 StateClosed
	State(key string) (State, error)
}

// State 熔断器状态
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half_open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
//
//	breaker:
//	  max_requests: 1        # 半开状态允许的探测请求数
//	  interval: 0s           # 闭合状态清空计数的周期，0 表示不清空
//	  timeout: 30s           # 打开状态持续时间
//	  failure_ratio: 0.6
//	  minimum_requests: 10
type Config struct {
	MaxRequests     uint32        `json:"max_requests" yaml:"max_requests" mapstructure:"max_requests"`
	Interval        time.Duration `json:"interval" yaml:"interval" mapstructure:"interval"`
	Timeout         time.Duration `json:"timeout" yaml:"timeout" mapstructure:"timeout"`
	FailureRatio    float64       `json:"failure_ratio" yaml:"failure_ratio" mapstructure:"failure_ratio"`
	MinimumRequests uint32        `json:"minimum_requests" yaml:"minimum_requests" mapstructure:"minimum_requests"`
}

func (c *Config) validate() error {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	if c.FailureRatio == 0 {
		c.FailureRatio = 0.6
	}
	if c.MinimumRequests == 0 {
		c.MinimumRequests = 10
	}
	if c.FailureRatio < 0 || c.FailureRatio > 1 {
		return ErrInvalidConfig
	}
	return nil
}

// New 创建熔断器
func New(cfg *Config, opts ...Option) (Breaker, error) {
	if cfg == nil {
		return nil, ErrConfigNil
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return newBreaker(&c, o), nil
}
