package shard

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/go-sql-driver/mysql"

	"github.com/ceyewan/shardsql/xerrors"
)

// MySQL 服务端返回的连接类错误码
var transientMySQLCodes = map[uint16]struct{}{
	1040: {}, // ER_CON_COUNT_ERROR
	1053: {}, // ER_SERVER_SHUTDOWN
	1152: {}, // ER_ABORTING_CONNECTION
	1158: {}, // ER_NET_READ_ERROR
	1159: {}, // ER_NET_READ_INTERRUPTED
	1160: {}, // ER_NET_ERROR_ON_WRITE
	1161: {}, // ER_NET_WRITE_INTERRUPTED
}

// IsTransient 判断错误是否可以通过重连恢复
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if xerrors.Is(err, ErrTransientConnection) {
		return true
	}
	if xerrors.Is(err, ErrQuery) || xerrors.Is(err, ErrInvalidShard) ||
		xerrors.Is(err, ErrCanceled) || xerrors.Is(err, context.Canceled) {
		return false
	}

	switch {
	case xerrors.Is(err, driver.ErrBadConn),
		xerrors.Is(err, sql.ErrConnDone),
		xerrors.Is(err, mysql.ErrInvalidConn),
		xerrors.Is(err, io.EOF),
		xerrors.Is(err, io.ErrUnexpectedEOF),
		xerrors.Is(err, syscall.ECONNREFUSED),
		xerrors.Is(err, syscall.ECONNRESET),
		xerrors.Is(err, syscall.EPIPE),
		xerrors.Is(err, context.DeadlineExceeded):
		return true
	}

	var myErr *mysql.MySQLError
	if xerrors.As(err, &myErr) {
		_, ok := transientMySQLCodes[myErr.Number]
		return ok
	}

	var netErr net.Error
	if xerrors.As(err, &netErr) {
		return true
	}

	// database/sql 关闭后返回的错误未导出
	return strings.Contains(err.Error(), "sql: database is closed")
}

// classify 把驱动错误包装为带分片信息的 ShardError
func classify(index int, err error) error {
	if err == nil {
		return nil
	}
	var se *ShardError
	if xerrors.As(err, &se) {
		return err
	}
	kind := ErrQuery
	switch {
	case xerrors.Is(err, context.Canceled):
		kind = ErrCanceled
	case IsTransient(err):
		kind = ErrTransientConnection
	}
	return &ShardError{Shard: index, Kind: kind, Err: err}
}
