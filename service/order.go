package service

import (
	"cmp"
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/ceyewan/shardsql/clog"
	"github.com/ceyewan/shardsql/xerrors"
)

// 订单状态
const (
	OrderPending   = "pending"
	OrderPaid      = "paid"
	OrderShipped   = "shipped"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

var orderStatuses = []string{OrderPending, OrderPaid, OrderShipped, OrderDelivered, OrderCancelled}

const (
	createOrdersTable = `CREATE TABLE IF NOT EXISTS orders (
	order_id   VARCHAR(64) PRIMARY KEY,
	user_id    VARCHAR(64) NOT NULL,
	amount     DECIMAL(12,2) NOT NULL,
	status     VARCHAR(32) NOT NULL,
	created_at BIGINT NOT NULL
)`
	selectOrders = "SELECT order_id, user_id, amount, status, created_at FROM orders"
	countOrders  = "SELECT COUNT(*) AS total FROM orders"
)

// dayBucket 把 created_at 截断到 UTC 零点，不依赖方言的日期函数
var dayBucket = "created_at - created_at % " + strconv.Itoa(24*60*60)

// Order 订单，按 user_id 分片
type Order struct {
	OrderID   string  `db:"order_id" json:"order_id"`
	UserID    string  `db:"user_id" json:"user_id"`
	Amount    float64 `db:"amount" json:"amount"`
	Status    string  `db:"status" json:"status"`
	CreatedAt int64   `db:"created_at" json:"created_at"`
}

// StatusSales 某个状态下的订单统计
type StatusSales struct {
	Status  string  `db:"status" json:"status"`
	Orders  int64   `db:"orders" json:"orders"`
	Revenue float64 `db:"revenue" json:"revenue"`
}

// SalesSummary 全分片按状态汇总
type SalesSummary struct {
	Orders       int64         `json:"orders"`
	Revenue      float64       `json:"revenue"`
	ByStatus     []StatusSales `json:"by_status"`
	FailedShards []int         `json:"failed_shards,omitempty"`
}

// DailySales 某一天（UTC）的销售额
type DailySales struct {
	Date              string  `json:"date"`
	Orders            int64   `json:"orders"`
	Sales             float64 `json:"sales"`
	AverageOrderValue float64 `json:"average_order_value"`
}

// SalesAnalytics 时间范围内的销售统计，平均客单价按订单数加权
type SalesAnalytics struct {
	Orders            int64        `json:"orders"`
	Sales             float64      `json:"sales"`
	AverageOrderValue float64      `json:"average_order_value"`
	Daily             []DailySales `json:"daily"`
	FailedShards      []int        `json:"failed_shards,omitempty"`
}

type daySales struct {
	Day    int64   `db:"day"`
	Orders int64   `db:"orders"`
	Sales  float64 `db:"sales"`
}

// OrderService 订单服务
type OrderService struct {
	exec   Executor
	logger clog.Logger
	now    func() time.Time
}

// NewOrderService 创建订单服务
func NewOrderService(exec Executor, opts ...Option) *OrderService {
	o := applyOptions(opts)
	return &OrderService{exec: exec, logger: o.logger.WithNamespace("order"), now: time.Now}
}

// Migrate 在每个分片上创建 orders 表
func (s *OrderService) Migrate(ctx context.Context) error {
	return execOnAll(ctx, s.exec, createOrdersTable)
}

// Create 订单与用户落在同一个分片，初始状态 pending
func (s *OrderService) Create(ctx context.Context, userID string, amount float64) (Order, error) {
	if userID == "" {
		return Order{}, xerrors.Wrap(ErrInvalidInput, "user_id is required")
	}
	if amount < 0 {
		return Order{}, xerrors.Wrapf(ErrInvalidInput, "negative amount %v", amount)
	}

	o := Order{
		OrderID:   newID("order"),
		UserID:    userID,
		Amount:    amount,
		Status:    OrderPending,
		CreatedAt: s.now().Unix(),
	}
	if _, err := s.exec.ExecuteByKey(ctx, userID,
		"INSERT INTO orders (order_id, user_id, amount, status, created_at) VALUES (?, ?, ?, ?, ?)",
		o.OrderID, o.UserID, o.Amount, o.Status, o.CreatedAt); err != nil {
		return Order{}, err
	}
	s.logger.Info("order created",
		clog.String("order_id", o.OrderID), clog.String("user_id", userID), clog.Int("shard", s.exec.Locate(userID)))
	return o, nil
}

// Get 订单号不含路由信息，需要扫描所有分片
func (s *OrderService) Get(ctx context.Context, orderID string) (Order, error) {
	return findOne[Order](ctx, s.exec, selectOrders+" WHERE order_id = ?", orderID)
}

// ListByUser 只查询用户所在的分片，按创建时间倒序
func (s *OrderService) ListByUser(ctx context.Context, userID string, page Page) ([]Order, error) {
	query := selectOrders + " WHERE user_id = ? ORDER BY created_at DESC, order_id"
	args := []any{userID}
	if page.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, page.Limit, max(page.Offset, 0))
	}

	res, err := s.exec.ExecuteByKey(ctx, userID, query, args...)
	if err != nil {
		return nil, err
	}
	return decodeRows[Order](res.Rows)
}

// List 按创建时间倒序分页。userID 非空时只查询该用户所在的分片，否则跨分片合并。
func (s *OrderService) List(ctx context.Context, userID string, page Page) (PageResult[Order], error) {
	q := listQuery[Order]{
		Select:  selectOrders,
		Count:   countOrders,
		OrderBy: "created_at DESC, order_id",
		Compare: func(a, b Order) int {
			if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
				return c
			}
			return cmp.Compare(a.OrderID, b.OrderID)
		},
	}
	if userID = strings.TrimSpace(userID); userID != "" {
		q.Where, q.Args = " WHERE user_id = ?", []any{userID}
		return listOne(ctx, s.exec, userID, q, page)
	}
	return listAll(ctx, s.exec, q, page)
}

// UpdateStatus 修改订单状态，status 必须是已知状态
func (s *OrderService) UpdateStatus(ctx context.Context, orderID, status string) (Order, error) {
	if !lo.Contains(orderStatuses, status) {
		return Order{}, xerrors.Wrapf(ErrInvalidInput, "unknown order status %q", status)
	}
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}

	if _, err := s.exec.ExecuteByKey(ctx, o.UserID,
		"UPDATE orders SET status = ? WHERE order_id = ?", status, orderID); err != nil {
		return Order{}, err
	}
	s.logger.Info("order status updated",
		clog.String("order_id", orderID), clog.String("from", o.Status), clog.String("to", status))
	o.Status = status
	return o, nil
}

// Delete 删除订单，不存在时返回 ErrNotFound
func (s *OrderService) Delete(ctx context.Context, orderID string) error {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return err
	}
	_, err = s.exec.ExecuteByKey(ctx, o.UserID, "DELETE FROM orders WHERE order_id = ?", orderID)
	return err
}

// SalesSummary 每个分片按状态聚合，再合并各分片的结果
func (s *OrderService) SalesSummary(ctx context.Context) (SalesSummary, error) {
	res, err := s.exec.ExecuteOnAll(ctx,
		"SELECT status, COUNT(*) AS orders, COALESCE(SUM(amount), 0) AS revenue FROM orders GROUP BY status")
	if err != nil {
		return SalesSummary{}, err
	}
	parts, err := decodeRows[StatusSales](res.Rows)
	if err != nil {
		return SalesSummary{}, err
	}

	grouped := lo.GroupBy(parts, func(p StatusSales) string { return p.Status })
	byStatus := make([]StatusSales, 0, len(grouped))
	for _, status := range orderStatuses {
		items, ok := grouped[status]
		if !ok {
			continue
		}
		byStatus = append(byStatus, StatusSales{
			Status:  status,
			Orders:  lo.SumBy(items, func(p StatusSales) int64 { return p.Orders }),
			Revenue: lo.SumBy(items, func(p StatusSales) float64 { return p.Revenue }),
		})
	}

	return SalesSummary{
		Orders:       lo.SumBy(byStatus, func(p StatusSales) int64 { return p.Orders }),
		Revenue:      lo.SumBy(byStatus, func(p StatusSales) float64 { return p.Revenue }),
		ByStatus:     byStatus,
		FailedShards: failedShards(res),
	}, nil
}

// SalesAnalytics 统计 [from, to] 内每天的订单数和销售额，零值表示不限制。
// 每个分片按天聚合，合并时重新计算平均客单价。
func (s *OrderService) SalesAnalytics(ctx context.Context, from, to time.Time) (SalesAnalytics, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return SalesAnalytics{}, xerrors.Wrapf(ErrInvalidInput, "range end %s before start %s", to, from)
	}

	var conds []string
	var args []any
	if !from.IsZero() {
		conds, args = append(conds, "created_at >= ?"), append(args, from.Unix())
	}
	if !to.IsZero() {
		conds, args = append(conds, "created_at <= ?"), append(args, to.Unix())
	}
	query := "SELECT " + dayBucket + " AS day, COUNT(*) AS orders, COALESCE(SUM(amount), 0) AS sales FROM orders"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " GROUP BY " + dayBucket

	res, err := s.exec.ExecuteOnAll(ctx, query, args...)
	if err != nil {
		return SalesAnalytics{}, err
	}
	parts, err := decodeRows[daySales](res.Rows)
	if err != nil {
		return SalesAnalytics{}, err
	}

	grouped := lo.GroupBy(parts, func(d daySales) int64 { return d.Day })
	days := lo.Keys(grouped)
	slices.Sort(days)

	out := SalesAnalytics{Daily: make([]DailySales, 0, len(days)), FailedShards: failedShards(res)}
	for _, day := range days {
		items := grouped[day]
		d := DailySales{
			Date:   time.Unix(day, 0).UTC().Format(time.DateOnly),
			Orders: lo.SumBy(items, func(d daySales) int64 { return d.Orders }),
			Sales:  lo.SumBy(items, func(d daySales) float64 { return d.Sales }),
		}
		d.AverageOrderValue = averageOf(d.Sales, d.Orders)
		out.Daily = append(out.Daily, d)
		out.Orders += d.Orders
		out.Sales += d.Sales
	}
	out.AverageOrderValue = averageOf(out.Sales, out.Orders)
	return out, nil
}

func averageOf(total float64, n int64) float64 {
	if n == 0 {
		return 0
	}
	return total / float64(n)
}
