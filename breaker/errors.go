package breaker

import "github.com/ceyewan/shardsql/xerrors"

var (
	ErrConfigNil     = xerrors.New("breaker: config is nil")
	ErrInvalidConfig = xerrors.New("breaker: failure_ratio must be within [0, 1]")
	ErrKeyEmpty      = xerrors.New("breaker: key is empty")

	// ErrOpenState 熔断打开或半开状态探测请求已满
	ErrOpenState = xerrors.New("breaker: circuit breaker is open")
)
