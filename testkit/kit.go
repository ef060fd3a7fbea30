package testkit

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ceyewan/shardsql/clog"
	"github.com/ceyewan/shardsql/metrics"
)

// Kit 测试通用依赖
type Kit struct {
	Ctx    context.Context
	Logger clog.Logger
	Meter  metrics.Meter
}

// NewKit 返回带默认依赖的测试工具包，Meter 在测试结束时关闭
func NewKit(t *testing.T) *Kit {
	meter := NewMeter()
	t.Cleanup(func() { _ = meter.Shutdown(context.Background()) })
	return &Kit{
		Ctx:    t.Context(),
		Logger: NewLogger(),
		Meter:  meter,
	}
}

// NewLogger 测试用 logger，设置 SHARDSQL_TEST_LOG=1 时输出到控制台
func NewLogger() clog.Logger {
	if !verbose() {
		return clog.Discard()
	}
	logger, err := clog.New(clog.NewDevDefaultConfig(), clog.WithNamespace("test"))
	if err != nil {
		return clog.Discard()
	}
	return logger
}

// NewMeter 测试用 meter，不启动独立端口，可通过 Handler 抓取
func NewMeter() metrics.Meter {
	meter, err := metrics.New(metrics.NewDevDefaultConfig("shardsql-test"))
	if err != nil {
		return metrics.Discard()
	}
	return meter
}

// NewContext 带超时的测试上下文
func NewContext(t *testing.T, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(t.Context(), timeout)
}

// NewID 唯一的测试 ID（UUID 前 8 位），用作库名或表名后缀
func NewID() string {
	return uuid.New().String()[0:8]
}

func verbose() bool {
	return os.Getenv("SHARDSQL_TEST_LOG") != ""
}
