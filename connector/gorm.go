package connector

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/uptrace/opentelemetry-go-extra/otelgorm"
	"gorm.io/gorm"

	"github.com/ceyewan/shardsql/clog"
	"github.com/ceyewan/shardsql/xerrors"
)

// gormConnector 三种方言共用的实现，差异只在 dialector
type gormConnector struct {
	cfg       *Config
	opts      *options
	dialector func(cfg *Config) gorm.Dialector
	logger    clog.Logger

	mu      sync.RWMutex
	db      *gorm.DB
	healthy atomic.Bool
}

func newGormConnector(cfg *Config, dialector func(*Config) gorm.Dialector, opts []Option) (*gormConnector, error) {
	c := *cfg
	if err := c.Validate(); err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &gormConnector{
		cfg:       &c,
		opts:      o,
		dialector: dialector,
		logger:    o.logger.With(clog.String("driver", string(c.Driver)), clog.String("name", c.Name)),
	}, nil
}

func (c *gormConnector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db != nil {
		return nil
	}

	c.logger.Debug("connecting", clog.String("target", c.target()))

	db, err := gorm.Open(c.dialector(c.cfg), &gorm.Config{
		Logger:                 newGormLogger(c.logger, c.opts.sqlLevel),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		c.logger.Error("open failed", clog.Error(err))
		return wrapCause(ErrConnection, c.cfg.Driver, c.cfg.Name, "open", err)
	}

	if c.opts.tracer != nil {
		plugin := otelgorm.NewPlugin(
			otelgorm.WithTracerProvider(c.opts.tracer),
			otelgorm.WithDBName(c.cfg.Name),
		)
		if err := db.Use(plugin); err != nil {
			c.logger.Warn("register otelgorm plugin failed", clog.Error(err))
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return wrapCause(ErrConnection, c.cfg.Driver, c.cfg.Name, "get db instance", err)
	}
	sqlDB.SetMaxOpenConns(c.cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(c.cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(c.cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		c.logger.Warn("ping failed", clog.Error(err))
		return wrapCause(ErrConnection, c.cfg.Driver, c.cfg.Name, "ping", err)
	}

	c.db = db
	c.healthy.Store(true)
	c.logger.Info("connected", clog.String("target", c.target()), clog.Int("max_open_conns", c.cfg.MaxOpenConns))
	return nil
}

func (c *gormConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.healthy.Store(false)
	if c.db == nil {
		return nil
	}

	sqlDB, err := c.db.DB()
	c.db = nil
	if err != nil {
		return xerrors.Wrapf(err, "%s connector[%s]: get db instance", c.cfg.Driver, c.cfg.Name)
	}
	if err := sqlDB.Close(); err != nil {
		c.logger.Error("close failed", clog.Error(err))
		return xerrors.Wrapf(err, "%s connector[%s]: close", c.cfg.Driver, c.cfg.Name)
	}

	c.logger.Debug("closed")
	return nil
}

func (c *gormConnector) HealthCheck(ctx context.Context) error {
	db := c.GetClient()
	if db == nil {
		c.healthy.Store(false)
		return xerrors.Wrapf(ErrClientNil, "%s connector[%s]", c.cfg.Driver, c.cfg.Name)
	}

	sqlDB, err := db.DB()
	if err != nil {
		c.healthy.Store(false)
		return wrapCause(ErrHealthCheck, c.cfg.Driver, c.cfg.Name, "get db instance", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		c.healthy.Store(false)
		return wrapCause(ErrHealthCheck, c.cfg.Driver, c.cfg.Name, "ping", err)
	}

	c.healthy.Store(true)
	return nil
}

func (c *gormConnector) IsHealthy() bool {
	return c.healthy.Load()
}

func (c *gormConnector) Name() string {
	return c.cfg.Name
}

func (c *gormConnector) Driver() Driver {
	return c.cfg.Driver
}

func (c *gormConnector) GetClient() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// target 日志中展示的连接目标，不含密码
func (c *gormConnector) target() string {
	switch {
	case c.cfg.Driver == DriverSQLite && c.cfg.Path != "":
		return c.cfg.Path
	case c.cfg.Host != "":
		return c.cfg.Host + "/" + c.cfg.Database
	default:
		return "dsn"
	}
}
