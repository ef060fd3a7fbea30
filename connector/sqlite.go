package connector

import (
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewSQLite 创建 SQLite 连接器。
// 内存库使用 "file:<name>?mode=memory&cache=shared"，同名共享一个库。
func NewSQLite(cfg *Config, opts ...Option) (SQLConnector, error) {
	c := *cfg
	c.Driver = DriverSQLite
	return newGormConnector(&c, sqliteDialector, opts)
}

func sqliteDialector(cfg *Config) gorm.Dialector {
	if cfg.DSN != "" {
		return sqlite.Open(cfg.DSN)
	}
	return sqlite.Open(cfg.Path)
}
