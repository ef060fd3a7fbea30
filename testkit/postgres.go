package testkit

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/ceyewan/shardsql/connector"
)

// NewPostgreSQLContainerConfig 启动 PostgreSQL 容器并返回连接配置，生命周期由 t.Cleanup 管理
func NewPostgreSQLContainerConfig(t *testing.T) connector.Config {
	if testing.Short() {
		t.Skip("skipping postgres container in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:17-alpine",
		postgres.WithDatabase("shard_db_0"),
		postgres.WithUsername("shardsql_user"),
		postgres.WithPassword("shardsql_password"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	port, err := strconv.Atoi(mappedPort.Port())
	require.NoError(t, err)

	return connector.Config{
		Name:         "postgres",
		Driver:       connector.DriverPostgres,
		Host:         host,
		Port:         port,
		Username:     "shardsql_user",
		Password:     "shardsql_password",
		Database:     "shard_db_0",
		SSLMode:      "disable",
		MaxIdleConns: 2,
		MaxOpenConns: 10,
	}
}

// NewPostgreSQLConnector 获取已连接的 PostgreSQL 连接器，生命周期由 t.Cleanup 管理
func NewPostgreSQLConnector(t *testing.T) connector.SQLConnector {
	cfg := NewPostgreSQLContainerConfig(t)
	conn, err := connector.NewPostgreSQL(&cfg, connector.WithLogger(NewLogger()))
	require.NoError(t, err, "failed to create postgres connector")

	connectWithRetry(t, conn)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
