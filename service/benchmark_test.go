package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ceyewan/shardsql/testkit"
)

const benchShards = 2

func newBenchServices(b *testing.B) *Services {
	b.Helper()
	s := testkit.NewSQLiteShards(b, benchShards)
	svc := New(s.Executor)
	if err := svc.Migrate(context.Background()); err != nil {
		b.Fatal(err)
	}
	return svc
}

// seedBenchUsers 写入 n 个用户，每个用户 ordersPerUser 个订单
func seedBenchUsers(b *testing.B, svc *Services, n, ordersPerUser int) []string {
	b.Helper()
	ctx := context.Background()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		u, err := svc.Users.Create(ctx, User{
			Name:    fmt.Sprintf("bench_user%d", i),
			Email:   fmt.Sprintf("bench_user%d@example.com", i),
			Country: fmt.Sprintf("Country%d", i%10),
		})
		if err != nil {
			b.Fatal(err)
		}
		for j := 0; j < ordersPerUser; j++ {
			if _, err := svc.Orders.Create(ctx, u.UserID, float64(10*(j+1))); err != nil {
				b.Fatal(err)
			}
		}
		ids = append(ids, u.UserID)
	}
	return ids
}

// ========================================
// 写入
// ========================================

func BenchmarkUserService_Create(b *testing.B) {
	svc := newBenchServices(b)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Users.Create(ctx, User{Name: fmt.Sprintf("bench_user%d", i)}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkOrderService_Create(b *testing.B) {
	svc := newBenchServices(b)
	ids := seedBenchUsers(b, svc, 100, 0)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Orders.Create(ctx, ids[i%len(ids)], 42); err != nil {
			b.Fatal(err)
		}
	}
}

// ========================================
// 读取：单分片与全分片
// ========================================

func BenchmarkOrderService_ListByUser(b *testing.B) {
	svc := newBenchServices(b)
	ids := seedBenchUsers(b, svc, 100, 2)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Orders.ListByUser(ctx, ids[i%len(ids)], Page{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkUserService_Get(b *testing.B) {
	svc := newBenchServices(b)
	ids := seedBenchUsers(b, svc, 100, 0)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Users.Get(ctx, ids[i%len(ids)]); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkUserService_List(b *testing.B) {
	svc := newBenchServices(b)
	seedBenchUsers(b, svc, 200, 0)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Users.List(ctx, NewPage(i%10+1, 20)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkOrderService_SalesAnalytics(b *testing.B) {
	svc := newBenchServices(b)
	seedBenchUsers(b, svc, 100, 2)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Orders.SalesAnalytics(ctx, time.Time{}, time.Time{}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkUserService_Analytics(b *testing.B) {
	svc := newBenchServices(b)
	seedBenchUsers(b, svc, 200, 0)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Users.Analytics(ctx); err != nil {
			b.Fatal(err)
		}
	}
}
