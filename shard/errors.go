package shard

import (
	"fmt"
	"strings"

	"github.com/ceyewan/shardsql/xerrors"
)

var (
	// ErrInvalidShard 分片下标越界，不重试
	ErrInvalidShard = xerrors.New("shard: invalid shard index")

	// ErrTransientConnection 连接被拒绝、断开或超时，触发重连重试
	ErrTransientConnection = xerrors.New("shard: transient connection error")

	// ErrQuery 语法错误、约束冲突等，直接返回
	ErrQuery = xerrors.New("shard: query error")

	// ErrCanceled 调用方取消了请求，不计入查询错误，也不重试
	ErrCanceled = xerrors.New("shard: canceled by caller")

	// ErrAllShardsFailed 扇出查询没有任何行且至少一个分片失败
	ErrAllShardsFailed = xerrors.Wrap(xerrors.ErrUnavailable, "shard: all shards failed")

	// ErrReconnectInProgress 重连保护已被占用，Reconnect 因此返回 false
	ErrReconnectInProgress = xerrors.New("shard: reconnect already in progress")

	ErrNotInitialized = xerrors.New("shard: registry not initialized")
	ErrRegistryClosed = xerrors.Wrap(xerrors.ErrClosed, "shard: registry")
	ErrNoShards       = xerrors.New("shard: no shards configured")

	// ErrPoolClosed 连接池已被替换或关闭，按瞬时错误处理
	ErrPoolClosed = xerrors.Wrap(ErrTransientConnection, "pool closed")
)

// ShardError 某个分片上的执行错误。
// errors.Is 可同时匹配 Kind（ErrTransientConnection/ErrQuery/ErrCanceled）和驱动原始错误。
type ShardError struct {
	Shard int
	Kind  error
	Err   error
}

func (e *ShardError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("shard %d: %v", e.Shard, e.Kind)
	}
	return fmt.Sprintf("shard %d: %v: %v", e.Shard, e.Kind, e.Err)
}

func (e *ShardError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ShardFailure 扇出查询中失败的分片
type ShardFailure struct {
	Shard int
	Err   error
}

// FanOutError 扇出查询全部失败，匹配 ErrAllShardsFailed 以及每个分片的错误
type FanOutError struct {
	Failures []ShardFailure
}

func (e *FanOutError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Err.Error()
	}
	return fmt.Sprintf("%v: [%s]", ErrAllShardsFailed, strings.Join(parts, "; "))
}

func (e *FanOutError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrAllShardsFailed)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}

func invalidShard(index, n int) error {
	return xerrors.Wrapf(ErrInvalidShard, "index %d not in [0, %d)", index, n)
}
