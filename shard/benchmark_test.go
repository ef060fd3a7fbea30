package shard

import (
	"context"
	"strconv"
	"testing"
)

// ========================================
// Locator
// ========================================

func BenchmarkLocate(b *testing.B) {
	keys := make([]string, 1024)
	for i := range keys {
		keys[i] = "user-" + strconv.Itoa(i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Locate(keys[i%len(keys)], 4)
	}
}

func BenchmarkLocateByModulo(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		LocateByModulo(i, 4)
	}
}

// ========================================
// Executor（fake 后端，只衡量执行层自身的开销）
// ========================================

func BenchmarkExecuteByKey(b *testing.B) {
	cluster, cfg := newFakeCluster(4)
	reg, err := NewRegistry(cfg, WithDialer(cluster))
	if err != nil {
		b.Fatal(err)
	}
	if err := reg.Initialize(context.Background()); err != nil {
		b.Fatal(err)
	}
	defer func() { _ = reg.Close() }()
	exec, err := NewExecutor(reg)
	if err != nil {
		b.Fatal(err)
	}

	ctx := context.Background()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := exec.ExecuteByKey(ctx, i, "SELECT 1"); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}

func BenchmarkExecuteOnAll(b *testing.B) {
	for _, parallel := range []bool{false, true} {
		b.Run("parallel="+strconv.FormatBool(parallel), func(b *testing.B) {
			cluster, cfg := newFakeCluster(8)
			cfg.ParallelFanOut = parallel
			reg, err := NewRegistry(cfg, WithDialer(cluster))
			if err != nil {
				b.Fatal(err)
			}
			if err := reg.Initialize(context.Background()); err != nil {
				b.Fatal(err)
			}
			defer func() { _ = reg.Close() }()
			exec, err := NewExecutor(reg)
			if err != nil {
				b.Fatal(err)
			}

			ctx := context.Background()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := exec.ExecuteOnAll(ctx, "SELECT 1"); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
