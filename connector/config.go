package connector

import "time"

// Config 单个数据库的连接配置
//
// MySQL/PostgreSQL 需要 Host、Username、Database（或直接给 DSN）；
// SQLite 需要 Path（或 DSN）。
type Config struct {
	Name   string `mapstructure:"name"`   // 连接器名称，用于日志
	Driver Driver `mapstructure:"driver"` // mysql | postgres | sqlite

	DSN      string `mapstructure:"dsn"` // 完整 DSN，优先级最高
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"` // 默认 MySQL 3306，PostgreSQL 5432
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	Path     string `mapstructure:"path"` // SQLite 文件路径或 file: URI

	Charset  string `mapstructure:"charset"`  // MySQL，默认 utf8mb4
	SSLMode  string `mapstructure:"ssl_mode"` // PostgreSQL，默认 disable
	Timezone string `mapstructure:"timezone"` // PostgreSQL，默认 UTC

	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 连接池上限，默认 10
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 默认 MaxOpenConns/2
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 默认 1h
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`   // Connect 中 Ping 的超时，默认 5s
}

func (c *Config) setDefaults() {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.Port == 0 {
		switch c.Driver {
		case DriverMySQL:
			c.Port = 3306
		case DriverPostgres:
			c.Port = 5432
		}
	}
	if c.Charset == "" {
		c.Charset = "utf8mb4"
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = max(1, c.MaxOpenConns/2)
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = time.Hour
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
}

// Validate 填充默认值并校验必填字段
func (c *Config) Validate() error {
	c.setDefaults()
	if c.DSN != "" {
		return nil
	}
	switch c.Driver {
	case DriverMySQL, DriverPostgres:
		if c.Host == "" {
			return configError(c.Name, "host is required")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return configError(c.Name, "invalid port %d", c.Port)
		}
		if c.Username == "" {
			return configError(c.Name, "username is required")
		}
		if c.Database == "" {
			return configError(c.Name, "database is required")
		}
	case DriverSQLite:
		if c.Path == "" {
			return configError(c.Name, "path is required")
		}
	default:
		return configError(c.Name, "unknown driver %q", c.Driver)
	}
	return nil
}
