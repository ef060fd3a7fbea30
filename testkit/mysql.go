package testkit

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mysql"

	"github.com/ceyewan/shardsql/connector"
	"github.com/ceyewan/shardsql/shard"
)

const (
	mysqlUser     = "shardsql_user"
	mysqlPassword = "shardsql_password"
)

// NewMySQLContainerConfig 启动 MySQL 容器并返回连接配置，生命周期由 t.Cleanup 管理。
// 容器内除 shard_db_0 外再创建 shard_db_1..shard_db_{n-1}，每个库对应一个分片。
func NewMySQLContainerConfig(t *testing.T, databases int) []connector.Config {
	if testing.Short() {
		t.Skip("skipping mysql container in short mode")
	}
	ctx := context.Background()

	container, err := mysql.Run(ctx,
		"mysql:8.0",
		mysql.WithDatabase("shard_db_0"),
		mysql.WithUsername(mysqlUser),
		mysql.WithPassword(mysqlPassword),
	)
	require.NoError(t, err, "failed to start MySQL container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "3306")
	require.NoError(t, err)
	port, err := strconv.Atoi(mappedPort.Port())
	require.NoError(t, err)

	cfgs := make([]connector.Config, databases)
	for i := range cfgs {
		cfgs[i] = connector.Config{
			Name:            fmt.Sprintf("shard%d", i),
			Driver:          connector.DriverMySQL,
			Host:            host,
			Port:            port,
			Username:        mysqlUser,
			Password:        mysqlPassword,
			Database:        fmt.Sprintf("shard_db_%d", i),
			MaxIdleConns:    2,
			MaxOpenConns:    10,
			ConnMaxLifetime: time.Hour,
		}
	}

	// 额外的分片库需要 root 权限创建
	for i := 1; i < databases; i++ {
		code, _, err := container.Exec(ctx, []string{"mysql", "-uroot", "-p" + mysqlPassword, "-e",
			fmt.Sprintf("CREATE DATABASE IF NOT EXISTS shard_db_%d; GRANT ALL ON shard_db_%d.* TO '%s'@'%%';", i, i, mysqlUser)})
		require.NoError(t, err)
		require.Zero(t, code, "create database shard_db_%d", i)
	}
	return cfgs
}

// NewMySQLConnector 获取已连接的 MySQL 连接器（基于 testcontainers），生命周期由 t.Cleanup 管理
func NewMySQLConnector(t *testing.T) connector.SQLConnector {
	cfg := NewMySQLContainerConfig(t, 1)[0]
	conn, err := connector.NewMySQL(&cfg, connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create mysql connector")

	connectWithRetry(t, conn)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// NewMySQLShardConfig 每个分片一个 MySQL 库，同一个容器
func NewMySQLShardConfig(t *testing.T, n int) *shard.Config {
	cfg := &shard.Config{DialRetries: 10, DialInterval: 2 * time.Second}
	for _, c := range NewMySQLContainerConfig(t, n) {
		cfg.Shards = append(cfg.Shards, shard.ShardConfig{Config: c, AcquireTimeout: 10 * time.Second})
	}
	return cfg
}

// connectWithRetry 容器刚启动时可能还不接受连接
func connectWithRetry(t *testing.T, conn connector.Connector) {
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	for {
		err := conn.Connect(ctx)
		if err == nil {
			return
		}
		select {
		case <-ctx.Done():
			require.NoError(t, err, "timeout waiting for database to be ready")
		case <-time.After(2 * time.Second):
		}
	}
}
