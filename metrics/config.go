package metrics

import "fmt"

// Config 指标配置
//
//	metrics:
//	  enabled: true
//	  service_name: "shardsql"
//	  version: "v0.1.0"
//	  port: 9090        # > 0 时启动独立的 Prometheus HTTP 服务器
//	  path: "/metrics"
type Config struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
	Version     string `mapstructure:"version"`
	Port        int    `mapstructure:"port"`
	Path        string `mapstructure:"path"`
}

// NewDevDefaultConfig 开发环境默认配置，不启动独立端口
func NewDevDefaultConfig(serviceName string) *Config {
	return &Config{
		Enabled:     true,
		ServiceName: serviceName,
		Version:     "dev",
		Path:        "/metrics",
	}
}

func (c *Config) validate() error {
	if c.ServiceName == "" {
		c.ServiceName = "shardsql"
	}
	if c.Path == "" {
		c.Path = "/metrics"
	}
	if c.Path[0] != '/' {
		return fmt.Errorf("metrics path must start with '/': %s", c.Path)
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", c.Port)
	}
	return nil
}
