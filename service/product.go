package service

import (
	"cmp"
	"context"
	"strings"

	"github.com/ceyewan/shardsql/clog"
	"github.com/ceyewan/shardsql/xerrors"
)

const (
	createProductsTable = `CREATE TABLE IF NOT EXISTS products (
	product_id VARCHAR(64) PRIMARY KEY,
	name       VARCHAR(255) NOT NULL,
	category   VARCHAR(64) NOT NULL DEFAULT '',
	price      DECIMAL(12,2) NOT NULL
)`
	selectProducts = "SELECT product_id, name, category, price FROM products"
	countProducts  = "SELECT COUNT(*) AS total FROM products"
)

// Product 商品，按 product_id 分片
type Product struct {
	ProductID string  `db:"product_id" json:"product_id"`
	Name      string  `db:"name" json:"name"`
	Category  string  `db:"category" json:"category,omitempty"`
	Price     float64 `db:"price" json:"price"`
}

// ProductUpdate 非 nil 的字段才会被更新
type ProductUpdate struct {
	Name     *string  `json:"name,omitempty"`
	Category *string  `json:"category,omitempty"`
	Price    *float64 `json:"price,omitempty"`
}

// ProductService 商品服务
type ProductService struct {
	exec   Executor
	logger clog.Logger
}

// NewProductService 创建商品服务
func NewProductService(exec Executor, opts ...Option) *ProductService {
	o := applyOptions(opts)
	return &ProductService{exec: exec, logger: o.logger.WithNamespace("product")}
}

// Migrate 在每个分片上创建 products 表
func (s *ProductService) Migrate(ctx context.Context) error {
	return execOnAll(ctx, s.exec, createProductsTable)
}

// List 跨分片分页，category 非空时只返回该分类，按 product_id 排序
func (s *ProductService) List(ctx context.Context, category string, page Page) (PageResult[Product], error) {
	q := listQuery[Product]{
		Select:  selectProducts,
		Count:   countProducts,
		OrderBy: "product_id",
		Compare: func(a, b Product) int { return cmp.Compare(a.ProductID, b.ProductID) },
	}
	if category = strings.TrimSpace(category); category != "" {
		q.Where, q.Args = " WHERE category = ?", []any{category}
	}
	return listAll(ctx, s.exec, q, page)
}

// Get 扫描所有分片查找商品，不存在时返回 ErrNotFound
func (s *ProductService) Get(ctx context.Context, productID string) (Product, error) {
	return findOne[Product](ctx, s.exec, selectProducts+" WHERE product_id = ?", productID)
}

// Create 缺少 product_id 时生成 product-xxxxxxxx
func (s *ProductService) Create(ctx context.Context, p Product) (Product, error) {
	p.Name, p.Category = strings.TrimSpace(p.Name), strings.TrimSpace(p.Category)
	if p.Name == "" {
		return Product{}, xerrors.Wrap(ErrInvalidInput, "name is required")
	}
	if p.Price < 0 {
		return Product{}, xerrors.Wrapf(ErrInvalidInput, "negative price %v", p.Price)
	}
	if p.ProductID == "" {
		p.ProductID = newID("product")
	}

	if _, err := s.exec.ExecuteByKey(ctx, p.ProductID,
		"INSERT INTO products (product_id, name, category, price) VALUES (?, ?, ?, ?)",
		p.ProductID, p.Name, p.Category, p.Price); err != nil {
		return Product{}, err
	}
	s.logger.Info("product created", clog.String("product_id", p.ProductID), clog.Int("shard", s.exec.Locate(p.ProductID)))
	return p, nil
}

// Update 合并非 nil 字段后写回商品所在的分片
func (s *ProductService) Update(ctx context.Context, productID string, upd ProductUpdate) (Product, error) {
	if upd.Price != nil && *upd.Price < 0 {
		return Product{}, xerrors.Wrapf(ErrInvalidInput, "negative price %v", *upd.Price)
	}
	p, err := s.Get(ctx, productID)
	if err != nil {
		return Product{}, err
	}
	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Category != nil {
		p.Category = strings.TrimSpace(*upd.Category)
	}
	if upd.Price != nil {
		p.Price = *upd.Price
	}

	if _, err := s.exec.ExecuteByKey(ctx, productID,
		"UPDATE products SET name = ?, category = ?, price = ? WHERE product_id = ?",
		p.Name, p.Category, p.Price, productID); err != nil {
		return Product{}, err
	}
	return p, nil
}

// Delete 删除商品，不存在时返回 ErrNotFound
func (s *ProductService) Delete(ctx context.Context, productID string) error {
	if _, err := s.Get(ctx, productID); err != nil {
		return err
	}
	_, err := s.exec.ExecuteByKey(ctx, productID, "DELETE FROM products WHERE product_id = ?", productID)
	return err
}
