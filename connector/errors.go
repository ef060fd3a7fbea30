package connector

import (
	"fmt"

	"github.com/ceyewan/shardsql/xerrors"
)

var (
	ErrConfig      = xerrors.New("connector: invalid config")
	ErrConnection  = xerrors.New("connector: connection failed")
	ErrClientNil   = xerrors.New("connector: client is nil")
	ErrHealthCheck = xerrors.New("connector: health check failed")
)

func configError(name, format string, args ...any) error {
	return xerrors.Wrapf(ErrConfig, "connector[%s]: %s", name, fmt.Sprintf(format, args...))
}

// wrapCause 同时保留哨兵错误和驱动错误，调用方可以用 errors.Is 判断两者
func wrapCause(kind error, driver Driver, name, action string, cause error) error {
	return fmt.Errorf("%s connector[%s]: %s: %w: %w", driver, name, action, kind, cause)
}
