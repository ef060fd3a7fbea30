package connector

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewPostgreSQL 创建 PostgreSQL 连接器
func NewPostgreSQL(cfg *Config, opts ...Option) (SQLConnector, error) {
	c := *cfg
	c.Driver = DriverPostgres
	return newGormConnector(&c, postgresDialector, opts)
}

func postgresDialector(cfg *Config) gorm.Dialector {
	return postgres.Open(PostgresDSN(cfg))
}

// PostgresDSN 由配置拼出 key=value 形式的 DSN
func PostgresDSN(cfg *Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s connect_timeout=%d",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, cfg.SSLMode, cfg.Timezone,
		int(cfg.ConnectTimeout.Seconds()))
}
