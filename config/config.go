// Package config 加载 shardsql 的配置，基于 Viper。
//
// 加载顺序（后者覆盖前者）：
//   - 基础配置文件 config.yaml
//   - 环境配置文件 config.<ENV>.yaml，ENV 取自 <PREFIX>_ENV
//   - .env 文件
//   - 环境变量 <PREFIX>_A_B，对应 key a.b
//
// 基本使用：
//
//	loader, err := config.New(&config.Config{Name: "config", Paths: []string{"."}})
//	if err := loader.Load(ctx); err != nil { ... }
//
//	var app AppConfig
//	_ = loader.Unmarshal(&app)
//
//	ch, _ := loader.Watch(ctx, "log.level")
//	for ev := range ch {
//		logger.SetLevel(...)
//	}
package config

import (
	"context"
	"strings"
	"time"

	"github.com/ceyewan/shardsql/clog"
)

// DefaultEnvPrefix 默认环境变量前缀
const DefaultEnvPrefix = "SHARDSQL"

// Loader 配置加载器
type Loader interface {
	// Load 从所有来源加载配置，并开始监听配置文件
	Load(ctx context.Context) error

	Get(key string) any
	Unmarshal(v any) error
	UnmarshalKey(key string, v any) error

	// Watch 监听某个 key 的变化，ctx 取消后通道关闭
	Watch(ctx context.Context, key string) (<-chan Event, error)

	Validate() error
}

// Event 配置变更事件
type Event struct {
	Key       string
	Value     any
	OldValue  any
	Source    string // "file"
	Timestamp time.Time
}

// Config 加载器配置
type Config struct {
	Name      string   // 配置文件名（不含扩展名），默认 config
	Paths     []string // 搜索路径，默认 [".", "./config"]
	FileType  string   // 默认 yaml
	EnvPrefix string   // 默认 SHARDSQL
}

func (c *Config) validate() error {
	if c.Name == "" {
		c.Name = "config"
	}
	if c.Paths == nil {
		c.Paths = []string{".", "./config"}
	}
	if c.FileType == "" {
		c.FileType = "yaml"
	}
	if c.EnvPrefix == "" {
		c.EnvPrefix = DefaultEnvPrefix
	}
	c.EnvPrefix = strings.ToUpper(c.EnvPrefix)
	return nil
}

// Option 加载器选项
type Option func(*options)

type options struct {
	logger   clog.Logger
	defaults map[string]any
}

// WithLogger 注入 Logger
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("config")
		}
	}
}

// WithDefault 设置 key 的默认值，优先级最低
func WithDefault(key string, value any) Option {
	return func(o *options) {
		o.defaults[key] = value
	}
}

// New 创建配置加载器，cfg 为 nil 时使用默认配置
func New(cfg *Config, opts ...Option) (Loader, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	o := &options{logger: clog.Discard(), defaults: make(map[string]any)}
	for _, opt := range opts {
		opt(o)
	}
	return newLoader(cfg, o), nil
}

// MustLoad 创建并加载配置，失败时 panic，用于 main 函数
func MustLoad(ctx context.Context, cfg *Config, opts ...Option) Loader {
	l, err := New(cfg, opts...)
	if err != nil {
		panic(err)
	}
	if err := l.Load(ctx); err != nil {
		panic(err)
	}
	return l
}
