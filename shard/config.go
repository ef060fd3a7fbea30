package shard

import (
	"fmt"
	"time"

	"github.com/ceyewan/shardsql/breaker"
	"github.com/ceyewan/shardsql/connector"
	"github.com/ceyewan/shardsql/xerrors"
)

// 重连保护的范围
const (
	// ReconnectScopeGlobal 全局只允许一个重连，避免重连风暴，代价是不同分片的恢复被串行化
	ReconnectScopeGlobal = "global"
	// ReconnectScopeShard 每个分片各自一个保护，不同分片可以并行恢复
	ReconnectScopeShard = "shard"
)

const (
	DefaultRetries          = 3
	DefaultAcquireTimeout   = 10 * time.Second
	DefaultReconnectTimeout = 15 * time.Second
	DefaultHealthInterval   = 30 * time.Second
	DefaultDialInterval     = time.Second
)

// ShardConfig 单个分片的静态描述，加载后不再修改
type ShardConfig struct {
	connector.Config `mapstructure:",squash"`

	// AcquireTimeout 单次执行（含等待连接）的超时
	AcquireTimeout time.Duration `mapstructure:"acquire_timeout"`
}

// Config 分片层配置
//
//	shard:
//	  retries: 3
//	  reconnect_scope: global
//	  shards:
//	    - name: shard0
//	      driver: mysql
//	      host: 127.0.0.1
//	      port: 3306
//	      username: root
//	      database: shard_db_0
//	      max_open_conns: 10
//	      acquire_timeout: 10s
type Config struct {
	Shards []ShardConfig `mapstructure:"shards"`

	// Retries 瞬时错误的重试预算，0 取默认值 3，负数关闭重试
	Retries int `mapstructure:"retries"`

	ReconnectScope   string        `mapstructure:"reconnect_scope"`   // global | shard
	ReconnectTimeout time.Duration `mapstructure:"reconnect_timeout"` // 后台重连的超时
	// ReconnectRate 每个分片每秒允许的重连次数，0 表示不限制
	ReconnectRate  float64 `mapstructure:"reconnect_rate"`
	ReconnectBurst int     `mapstructure:"reconnect_burst"`

	// DialRetries 初始化时每个分片额外的拨号次数，DialInterval 为间隔
	DialRetries  int           `mapstructure:"dial_retries"`
	DialInterval time.Duration `mapstructure:"dial_interval"`

	HealthInterval time.Duration `mapstructure:"health_interval"`

	// ParallelFanOut 扇出查询并发执行，结果仍按分片顺序拼接
	ParallelFanOut bool `mapstructure:"parallel_fan_out"`

	// Breaker 非空时为每个分片启用熔断
	Breaker *breaker.Config `mapstructure:"breaker"`
}

func (c *Config) setDefaults() {
	if c.Retries == 0 {
		c.Retries = DefaultRetries
	}
	if c.Retries < 0 {
		c.Retries = 0
	}
	if c.ReconnectScope == "" {
		c.ReconnectScope = ReconnectScopeGlobal
	}
	if c.ReconnectTimeout <= 0 {
		c.ReconnectTimeout = DefaultReconnectTimeout
	}
	if c.ReconnectRate > 0 && c.ReconnectBurst <= 0 {
		c.ReconnectBurst = 1
	}
	if c.DialRetries > 0 && c.DialInterval <= 0 {
		c.DialInterval = DefaultDialInterval
	}
	if c.HealthInterval <= 0 {
		c.HealthInterval = DefaultHealthInterval
	}
	for i := range c.Shards {
		s := &c.Shards[i]
		if s.Name == "" {
			s.Name = fmt.Sprintf("shard%d", i)
		}
		if s.AcquireTimeout <= 0 {
			s.AcquireTimeout = DefaultAcquireTimeout
		}
	}
}

// Validate 填充默认值并校验每个分片
func (c *Config) Validate() error {
	c.setDefaults()
	if len(c.Shards) == 0 {
		return ErrNoShards
	}
	switch c.ReconnectScope {
	case ReconnectScopeGlobal, ReconnectScopeShard:
	default:
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "unknown reconnect_scope %q", c.ReconnectScope)
	}
	if c.ReconnectRate < 0 {
		return xerrors.Wrapf(xerrors.ErrInvalidInput, "negative reconnect_rate %v", c.ReconnectRate)
	}
	for i := range c.Shards {
		if err := c.Shards[i].Validate(); err != nil {
			return xerrors.Wrapf(err, "shard %d", i)
		}
	}
	return nil
}

// clone 深拷贝，Registry 持有自己的副本
func (c *Config) clone() *Config {
	cp := *c
	cp.Shards = append([]ShardConfig(nil), c.Shards...)
	if c.Breaker != nil {
		b := *c.Breaker
		cp.Breaker = &b
	}
	return &cp
}
