package shard

import (
	"context"
	"strings"
	"time"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/ceyewan/shardsql/breaker"
	"github.com/ceyewan/shardsql/clog"
	"github.com/ceyewan/shardsql/metrics"
	"github.com/ceyewan/shardsql/xerrors"
)

const (
	metricQueries       = "shardsql_queries_total"
	metricQueryDuration = "shardsql_query_duration_seconds"
)

var queryDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// 返回结果集的语句首个关键字，其余语句按写语句执行
var rowVerbs = map[string]struct{}{
	"SELECT": {}, "SHOW": {}, "WITH": {}, "EXPLAIN": {},
	"DESCRIBE": {}, "DESC": {}, "PRAGMA": {}, "VALUES": {},
}

// Executor 在分片上执行 SQL
type Executor struct {
	reg      *Registry
	locator  Locator
	retries  int
	parallel bool
	brk      breaker.Breaker
	logger   clog.Logger

	queries  metrics.Counter
	duration metrics.Histogram
}

// NewExecutor 创建 Executor。Config.Breaker 非空或传入 WithBreaker 时启用分片熔断。
func NewExecutor(reg *Registry, opts ...Option) (*Executor, error) {
	if reg == nil {
		return nil, xerrors.Wrap(xerrors.ErrInvalidInput, "registry is nil")
	}
	o := applyOptions(opts)
	logger := o.logger.WithNamespace("executor")

	brk := o.breaker
	if brk == nil && reg.cfg.Breaker != nil {
		b, err := breaker.New(reg.cfg.Breaker,
			breaker.WithLogger(logger),
			breaker.WithMeter(o.meter),
			breaker.WithIsSuccessful(func(err error) bool { return !IsTransient(err) }),
		)
		if err != nil {
			return nil, xerrors.Wrap(err, "create shard breaker")
		}
		brk = b
	}

	queries, err := o.meter.Counter(metricQueries, "Shard query attempts by outcome.")
	if err != nil {
		return nil, xerrors.Wrap(err, "create query counter")
	}
	duration, err := o.meter.Histogram(metricQueryDuration, "Shard query latency in seconds.",
		metrics.WithUnit("s"), metrics.WithBuckets(queryDurationBuckets))
	if err != nil {
		return nil, xerrors.Wrap(err, "create query histogram")
	}

	return &Executor{
		reg:      reg,
		locator:  o.locator,
		retries:  reg.cfg.Retries,
		parallel: reg.cfg.ParallelFanOut,
		brk:      brk,
		logger:   logger,
		queries:  queries,
		duration: duration,
	}, nil
}

// ShardCount 分片数量
func (e *Executor) ShardCount() int {
	return e.reg.ShardCount()
}

// Locate 返回 key 所在的分片下标
func (e *Executor) Locate(key any) int {
	return e.locator.Locate(key, e.reg.ShardCount())
}

// ExecuteOnShard 使用配置的重试预算在分片上执行
func (e *Executor) ExecuteOnShard(ctx context.Context, index int, query string, args ...any) (*Result, error) {
	return e.ExecuteOnShardWithRetries(ctx, index, e.retries, query, args...)
}

// ExecuteOnShardWithRetries 在分片上执行 query。
// 瞬时连接错误且 retries > 0 时重连一次，成功则以 retries-1 重试；
// 重连失败或预算耗尽时返回原始错误。其他错误直接返回。调用方取消的 ctx 不重试。
func (e *Executor) ExecuteOnShardWithRetries(ctx context.Context, index, retries int, query string, args ...any) (*Result, error) {
	for {
		res, err := e.attempt(ctx, index, query, args)
		if err == nil {
			return res, nil
		}
		if !IsTransient(err) || retries <= 0 || ctx.Err() != nil {
			return nil, err
		}

		if !e.reg.Reconnect(ctx, index) {
			e.logger.Warn("reconnect unavailable, giving up",
				clog.Int("shard", index), clog.Int("retries_left", retries), clog.Error(err))
			return nil, err
		}
		retries--
		e.logger.Info("retrying after reconnect", clog.Int("shard", index), clog.Int("retries_left", retries))
	}
}

// ExecuteOnAll 依次（或并发）在每个分片上执行，按分片顺序拼接行。
// 单个分片失败记录在 Result.Failures 中并继续；没有任何行且有分片失败时返回 FanOutError。
func (e *Executor) ExecuteOnAll(ctx context.Context, query string, args ...any) (*Result, error) {
	n := e.reg.ShardCount()
	results := make([]*Result, n)
	errs := make([]error, n)

	if e.parallel {
		var g errgroup.Group
		for i := 0; i < n; i++ {
			g.Go(func() error {
				results[i], errs[i] = e.ExecuteOnShard(ctx, i, query, args...)
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := 0; i < n; i++ {
			results[i], errs[i] = e.ExecuteOnShard(ctx, i, query, args...)
		}
	}

	merged := &Result{Rows: make([]Row, 0)}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			e.logger.Warn("shard failed during fan-out", clog.Int("shard", i), clog.Error(errs[i]))
			merged.Failures = append(merged.Failures, ShardFailure{Shard: i, Err: errs[i]})
			continue
		}
		merged.Rows = append(merged.Rows, results[i].Rows...)
		merged.RowsAffected += results[i].RowsAffected
	}

	if len(merged.Rows) == 0 && len(merged.Failures) > 0 {
		return nil, &FanOutError{Failures: merged.Failures}
	}
	return merged, nil
}

// ExecuteByKey 按 key 定位分片后执行
func (e *Executor) ExecuteByKey(ctx context.Context, key any, query string, args ...any) (*Result, error) {
	return e.ExecuteOnShard(ctx, e.Locate(key), query, args...)
}

// attempt 单次执行，受分片的 acquire_timeout 约束
func (e *Executor) attempt(ctx context.Context, index int, query string, args []any) (*Result, error) {
	pool, err := e.reg.Pool(index)
	if err != nil {
		return nil, err
	}
	cfg, _ := e.reg.Config(index)

	actx, cancel := context.WithTimeout(ctx, cfg.AcquireTimeout)
	defer cancel()

	call := func() (any, error) {
		res, err := runStatement(actx, pool, query, args)
		if err != nil {
			return nil, classify(index, err)
		}
		return res, nil
	}

	start := time.Now()
	var v any
	if e.brk != nil {
		v, err = e.brk.Execute(ctx, cfg.Name, call)
		if xerrors.Is(err, breaker.ErrOpenState) {
			err = &ShardError{Shard: index, Kind: breaker.ErrOpenState}
		}
	} else {
		v, err = call()
	}

	shardLabel := metrics.Shard(index)
	e.queries.Inc(ctx, shardLabel, metrics.Outcome(err))
	e.duration.Record(ctx, time.Since(start).Seconds(), shardLabel)

	if err != nil {
		e.logger.Debug("shard query failed", clog.Int("shard", index), clog.Error(err))
		return nil, err
	}
	return v.(*Result), nil
}

func runStatement(ctx context.Context, pool Pool, query string, args []any) (*Result, error) {
	if returnsRows(query) {
		rows, err := pool.Query(ctx, query, args...)
		if err != nil {
			return nil, err
		}
		return &Result{Rows: rows}, nil
	}
	affected, err := pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return &Result{Rows: make([]Row, 0), RowsAffected: affected}, nil
}

// returnsRows 根据首个关键字判断语句是否返回结果集
func returnsRows(query string) bool {
	q := strings.TrimLeftFunc(query, func(r rune) bool { return unicode.IsSpace(r) || r == '(' })
	end := strings.IndexFunc(q, func(r rune) bool { return !unicode.IsLetter(r) })
	if end < 0 {
		end = len(q)
	}
	_, ok := rowVerbs[strings.ToUpper(q[:end])]
	return ok
}
