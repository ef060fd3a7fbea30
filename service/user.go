package service

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/samber/lo"

	"github.com/ceyewan/shardsql/clog"
	"github.com/ceyewan/shardsql/xerrors"
)

const (
	createUsersTable = `CREATE TABLE IF NOT EXISTS users (
	user_id VARCHAR(64) PRIMARY KEY,
	name    VARCHAR(255) NOT NULL,
	email   VARCHAR(255),
	country VARCHAR(64)
)`
	selectUsers = "SELECT user_id, name, email, country FROM users"
	countUsers  = "SELECT COUNT(*) AS total FROM users"
)

// User 用户，按 user_id 分片。Email 和 Country 可以为空，空值以 NULL 存储。
type User struct {
	UserID  string `db:"user_id" json:"user_id"`
	Name    string `db:"name" json:"name"`
	Email   string `db:"email" json:"email,omitempty"`
	Country string `db:"country" json:"country,omitempty"`
}

// UserUpdate 非 nil 的字段才会被更新
type UserUpdate struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Country *string `json:"country,omitempty"`
}

// CountryUsers 某个国家的用户数，未填写国家的用户归入空字符串
type CountryUsers struct {
	Country string `db:"country" json:"country"`
	Users   int64  `db:"users" json:"users"`
}

// UserAnalytics 全分片用户统计
type UserAnalytics struct {
	Total        int64          `json:"total"`
	ByCountry    []CountryUsers `json:"by_country"`
	FailedShards []int          `json:"failed_shards,omitempty"`
}

// UserService 用户服务
type UserService struct {
	exec   Executor
	logger clog.Logger
}

// NewUserService 创建用户服务
func NewUserService(exec Executor, opts ...Option) *UserService {
	o := applyOptions(opts)
	return &UserService{exec: exec, logger: o.logger.WithNamespace("user")}
}

// Migrate 在每个分片上创建 users 表
func (s *UserService) Migrate(ctx context.Context) error {
	return execOnAll(ctx, s.exec, createUsersTable)
}

// List 跨分片分页，按 user_id 排序
func (s *UserService) List(ctx context.Context, page Page) (PageResult[User], error) {
	return listAll(ctx, s.exec, listQuery[User]{
		Select:  selectUsers,
		Count:   countUsers,
		OrderBy: "user_id",
		Compare: func(a, b User) int { return cmp.Compare(a.UserID, b.UserID) },
	}, page)
}

// Get 扫描所有分片查找用户，不存在时返回 ErrNotFound
func (s *UserService) Get(ctx context.Context, userID string) (User, error) {
	return findOne[User](ctx, s.exec, selectUsers+" WHERE user_id = ?", userID)
}

// Create 只要求 name，缺少 user_id 时生成 user-xxxxxxxx
func (s *UserService) Create(ctx context.Context, u User) (User, error) {
	u.Name, u.Email, u.Country = strings.TrimSpace(u.Name), strings.TrimSpace(u.Email), strings.TrimSpace(u.Country)
	if u.Name == "" {
		return User{}, xerrors.Wrap(ErrInvalidInput, "name is required")
	}
	if u.UserID == "" {
		u.UserID = newID("user")
	}

	if _, err := s.exec.ExecuteByKey(ctx, u.UserID,
		"INSERT INTO users (user_id, name, email, country) VALUES (?, ?, ?, ?)",
		u.UserID, u.Name, nullable(u.Email), nullable(u.Country)); err != nil {
		return User{}, err
	}
	s.logger.Info("user created", clog.String("user_id", u.UserID), clog.Int("shard", s.exec.Locate(u.UserID)))
	return u, nil
}

// Update 合并非 nil 字段后写回用户所在的分片
func (s *UserService) Update(ctx context.Context, userID string, upd UserUpdate) (User, error) {
	if upd.Name != nil && strings.TrimSpace(*upd.Name) == "" {
		return User{}, xerrors.Wrap(ErrInvalidInput, "name must not be empty")
	}
	u, err := s.Get(ctx, userID)
	if err != nil {
		return User{}, err
	}
	if upd.Name != nil {
		u.Name = strings.TrimSpace(*upd.Name)
	}
	if upd.Email != nil {
		u.Email = strings.TrimSpace(*upd.Email)
	}
	if upd.Country != nil {
		u.Country = strings.TrimSpace(*upd.Country)
	}

	if _, err := s.exec.ExecuteByKey(ctx, userID,
		"UPDATE users SET name = ?, email = ?, country = ? WHERE user_id = ?",
		u.Name, nullable(u.Email), nullable(u.Country), userID); err != nil {
		return User{}, err
	}
	return u, nil
}

// Delete 删除用户，不存在时返回 ErrNotFound
func (s *UserService) Delete(ctx context.Context, userID string) error {
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}
	_, err := s.exec.ExecuteByKey(ctx, userID, "DELETE FROM users WHERE user_id = ?", userID)
	if err == nil {
		s.logger.Info("user deleted", clog.String("user_id", userID))
	}
	return err
}

// Analytics 每个分片按国家计数，合并后按国家排序
func (s *UserService) Analytics(ctx context.Context) (UserAnalytics, error) {
	res, err := s.exec.ExecuteOnAll(ctx,
		"SELECT COALESCE(country, '') AS country, COUNT(*) AS users FROM users GROUP BY COALESCE(country, '')")
	if err != nil {
		return UserAnalytics{}, err
	}
	parts, err := decodeRows[CountryUsers](res.Rows)
	if err != nil {
		return UserAnalytics{}, err
	}

	byCountry := lo.MapToSlice(
		lo.GroupBy(parts, func(c CountryUsers) string { return c.Country }),
		func(country string, items []CountryUsers) CountryUsers {
			return CountryUsers{Country: country, Users: lo.SumBy(items, func(c CountryUsers) int64 { return c.Users })}
		},
	)
	slices.SortFunc(byCountry, func(a, b CountryUsers) int { return cmp.Compare(a.Country, b.Country) })

	return UserAnalytics{
		Total:        lo.SumBy(byCountry, func(c CountryUsers) int64 { return c.Users }),
		ByCountry:    byCountry,
		FailedShards: failedShards(res),
	}, nil
}
