// Package service 在分片执行器之上实现用户、商品、订单的 CRUD。
//
// 路由规则：
//   - 用户按 user_id 分片，商品按 product_id 分片
//   - 订单按 user_id 分片，同一用户的订单落在同一个分片
//
// 按业务主键的点查询不知道所在分片，使用全分片扫描；写操作先扫描确认存在，
// 再按路由 key 定位到唯一的分片执行。
//
// 跨分片分页：每个分片按同一排序返回前 offset+limit 行，合并排序后再截取，
// 总数为各分片 COUNT(*) 之和。部分分片失败时返回可用分片的结果，并在
// FailedShards 中列出失败的分片。
package service

import (
	"context"
	"slices"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ceyewan/shardsql/clog"
	"github.com/ceyewan/shardsql/shard"
	"github.com/ceyewan/shardsql/xerrors"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = xerrors.ErrNotFound
	// ErrInvalidInput 参数校验失败
	ErrInvalidInput = xerrors.ErrInvalidInput
)

// Executor 服务依赖的分片执行能力，*shard.Executor 满足该接口
type Executor interface {
	ExecuteOnShard(ctx context.Context, index int, query string, args ...any) (*shard.Result, error)
	ExecuteOnAll(ctx context.Context, query string, args ...any) (*shard.Result, error)
	ExecuteByKey(ctx context.Context, key any, query string, args ...any) (*shard.Result, error)
	ShardCount() int
	Locate(key any) int
}

// Option 服务选项
type Option func(*options)

type options struct {
	logger clog.Logger
}

// WithLogger 注入 Logger，自动添加 service 命名空间
func WithLogger(l clog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l.WithNamespace("service")
		}
	}
}

func applyOptions(opts []Option) *options {
	o := &options{logger: clog.Discard()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Page 分页参数，Limit <= 0 表示不分页
type Page struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// NewPage 按页码（从 1 开始）和每页条数构造 Page
func NewPage(page, size int) Page {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		return Page{}
	}
	return Page{Limit: size, Offset: (page - 1) * size}
}

// window 每个分片需要返回的行数上限
func (p Page) window() (string, []any) {
	if p.Limit <= 0 {
		return "", nil
	}
	return " LIMIT ?", []any{max(p.Offset, 0) + p.Limit}
}

// PageResult 分页结果，Total 为所有可用分片上满足条件的记录数
type PageResult[T any] struct {
	Items        []T   `json:"items"`
	Total        int64 `json:"total"`
	Limit        int   `json:"limit"`
	Offset       int   `json:"offset"`
	FailedShards []int `json:"failed_shards,omitempty"`
}

// Pages 总页数，不分页时为 1（没有记录时为 0）
func (r PageResult[T]) Pages() int {
	if r.Total == 0 {
		return 0
	}
	if r.Limit <= 0 {
		return 1
	}
	return int((r.Total + int64(r.Limit) - 1) / int64(r.Limit))
}

// Services 汇总所有实体服务
type Services struct {
	Users    *UserService
	Products *ProductService
	Orders   *OrderService
}

// New 创建所有实体服务
func New(exec Executor, opts ...Option) *Services {
	return &Services{
		Users:    NewUserService(exec, opts...),
		Products: NewProductService(exec, opts...),
		Orders:   NewOrderService(exec, opts...),
	}
}

// Migrate 在每个分片上建表
func (s *Services) Migrate(ctx context.Context) error {
	return xerrors.Combine(
		s.Users.Migrate(ctx),
		s.Products.Migrate(ctx),
		s.Orders.Migrate(ctx),
	)
}

// newID 生成 <prefix>-xxxxxxxx 形式的业务主键
func newID(prefix string) string {
	return prefix + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// execOnAll DDL 等写语句必须在每个分片上成功
func execOnAll(ctx context.Context, exec Executor, query string, args ...any) error {
	res, err := exec.ExecuteOnAll(ctx, query, args...)
	if err != nil {
		return err
	}
	if len(res.Failures) > 0 {
		return &shard.FanOutError{Failures: res.Failures}
	}
	return nil
}

// decodeRows 弱类型解码：MySQL DECIMAL 以文本返回，SQLite 数值可能是 int64 或 float64
func decodeRows[T any](rows []shard.Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "db",
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(rows); err != nil {
		return nil, xerrors.Wrap(err, "decode rows")
	}
	return out, nil
}

// findOne 全分片扫描后取第一行，没有时返回 ErrNotFound
func findOne[T any](ctx context.Context, exec Executor, query string, args ...any) (T, error) {
	var zero T
	res, err := exec.ExecuteOnAll(ctx, query, args...)
	if err != nil {
		return zero, err
	}
	items, err := decodeRows[T](res.Rows)
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		// 有分片失败时无法断定记录不存在
		if len(res.Failures) > 0 {
			return zero, &shard.FanOutError{Failures: res.Failures}
		}
		return zero, ErrNotFound
	}
	return items[0], nil
}

// listQuery 描述一次跨分片分页查询。
// Select 和 Count 共用 Where 条件和参数，OrderBy 必须是全序。
type listQuery[T any] struct {
	Select  string
	Count   string
	Where   string
	Args    []any
	OrderBy string
	Compare func(a, b T) int
}

// listAll 在所有分片上执行分页查询并合并
func listAll[T any](ctx context.Context, exec Executor, q listQuery[T], page Page) (PageResult[T], error) {
	limit, limitArgs := page.window()
	res, err := exec.ExecuteOnAll(ctx, q.Select+q.Where+" ORDER BY "+q.OrderBy+limit, append(slices.Clone(q.Args), limitArgs...)...)
	if err != nil {
		return PageResult[T]{}, err
	}
	items, err := decodeRows[T](res.Rows)
	if err != nil {
		return PageResult[T]{}, err
	}
	slices.SortStableFunc(items, q.Compare)

	total, countFailed, err := countAll(ctx, exec, q.Count+q.Where, q.Args...)
	if err != nil {
		return PageResult[T]{}, err
	}

	return PageResult[T]{
		Items:        paginate(items, page),
		Total:        total,
		Limit:        page.Limit,
		Offset:       max(page.Offset, 0),
		FailedShards: lo.Union(failedShards(res), countFailed),
	}, nil
}

// listOne 在单个分片上分页，路由 key 决定分片
func listOne[T any](ctx context.Context, exec Executor, key any, q listQuery[T], page Page) (PageResult[T], error) {
	query, args := q.Select+q.Where+" ORDER BY "+q.OrderBy, slices.Clone(q.Args)
	if page.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, page.Limit, max(page.Offset, 0))
	}
	res, err := exec.ExecuteByKey(ctx, key, query, args...)
	if err != nil {
		return PageResult[T]{}, err
	}
	items, err := decodeRows[T](res.Rows)
	if err != nil {
		return PageResult[T]{}, err
	}

	counted, err := exec.ExecuteByKey(ctx, key, q.Count+q.Where, q.Args...)
	if err != nil {
		return PageResult[T]{}, err
	}
	total, err := sumTotals(counted.Rows)
	if err != nil {
		return PageResult[T]{}, err
	}
	return PageResult[T]{Items: items, Total: total, Limit: page.Limit, Offset: max(page.Offset, 0)}, nil
}

type countRow struct {
	Total int64 `db:"total"`
}

// countAll 汇总每个分片的 COUNT(*)，query 需要把计数命名为 total
func countAll(ctx context.Context, exec Executor, query string, args ...any) (int64, []int, error) {
	res, err := exec.ExecuteOnAll(ctx, query, args...)
	if err != nil {
		return 0, nil, err
	}
	total, err := sumTotals(res.Rows)
	return total, failedShards(res), err
}

func sumTotals(rows []shard.Row) (int64, error) {
	counts, err := decodeRows[countRow](rows)
	if err != nil {
		return 0, err
	}
	return lo.SumBy(counts, func(c countRow) int64 { return c.Total }), nil
}

// paginate 截取合并后的全局窗口
func paginate[T any](items []T, page Page) []T {
	if page.Limit <= 0 {
		return items
	}
	start := max(page.Offset, 0)
	return lo.Slice(items, start, start+page.Limit)
}

func failedShards(res *shard.Result) []int {
	if len(res.Failures) == 0 {
		return nil
	}
	return lo.Map(res.Failures, func(f shard.ShardFailure, _ int) int { return f.Shard })
}

// nullable 空字符串写入 NULL
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
