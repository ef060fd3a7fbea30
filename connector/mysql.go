package connector

import (
	"net"
	"strconv"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// NewMySQL 创建 MySQL 连接器
func NewMySQL(cfg *Config, opts ...Option) (SQLConnector, error) {
	c := *cfg
	c.Driver = DriverMySQL
	return newGormConnector(&c, mysqlDialector, opts)
}

func mysqlDialector(cfg *Config) gorm.Dialector {
	return mysql.Open(MySQLDSN(cfg))
}

// MySQLDSN 由配置拼出 DSN，cfg.DSN 非空时直接返回
func MySQLDSN(cfg *Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	mc := mysqldriver.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	mc.DBName = cfg.Database
	mc.ParseTime = true
	mc.Timeout = cfg.ConnectTimeout
	mc.Params = map[string]string{"charset": cfg.Charset}
	return mc.FormatDSN()
}
