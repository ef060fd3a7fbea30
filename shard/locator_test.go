package shard

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate_KnownValues(t *testing.T) {
	tests := []struct {
		key  any
		n    int
		want int
	}{
		{"user-aaaa1111", 2, 0},
		{"user-aaaa1111", 3, 0},
		{"user-aaaa1111", 4, 2},
		{"user-bbbb2222", 3, 2},
		{"order-1", 2, 1},
		{"order-1", 4, 1},
		{"", 3, 1},
		{42, 3, 1},
		{"42", 3, 1},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v/%d", tt.key, tt.n), func(t *testing.T) {
			assert.Equal(t, tt.want, Locate(tt.key, tt.n))
		})
	}
}

func TestLocate_Deterministic(t *testing.T) {
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("user-%04d", i)
		first := Locate(key, 5)
		for j := 0; j < 3; j++ {
			assert.Equal(t, first, Locate(key, 5), key)
		}
	}
}

func TestLocate_InRange(t *testing.T) {
	keys := []any{"a", "user-aaaa1111", 0, -1, int64(1 << 40), 3.14, struct{ ID int }{7}, nil}
	for n := 1; n <= 16; n++ {
		for _, k := range keys {
			got := Locate(k, n)
			assert.GreaterOrEqual(t, got, 0)
			assert.Less(t, got, n)
		}
	}
	assert.Equal(t, 0, Locate("x", 1))
	assert.Equal(t, 0, Locate("x", 0))
	assert.Equal(t, 0, Locate("x", -3))
}

func TestLocateByModulo(t *testing.T) {
	tests := []struct {
		name string
		key  any
		n    int
		want int
	}{
		{"正整数", 10, 3, 1},
		{"负整数取绝对值", -7, 3, 1},
		{"uint64", uint64(9), 4, 1},
		{"数字字符串", "15", 4, 3},
		{"小数字符串截断", "12.9", 5, 2},
		{"浮点截断", 3.7, 2, 1},
		{"普通字符串按字符码之和", "abc", 4, 294 % 4},
		{"非法 n", 5, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, LocateByModulo(tt.key, tt.n))
		})
	}
}

func TestDistribution(t *testing.T) {
	keys := make([]any, 0, 1000)
	for i := 0; i < 1000; i++ {
		keys = append(keys, fmt.Sprintf("user-%d", i))
	}

	counts := Distribution(HashLocator, keys, 4)
	require.Len(t, counts, 4)
	total := 0
	for _, c := range counts {
		// MD5 分布足够均匀，每个分片不会偏离均值太多
		assert.InDelta(t, 250, c, 80)
		total += c
	}
	assert.Equal(t, 1000, total)

	assert.Equal(t, []int{2, 1}, Distribution(ModuloLocator, []any{0, 1, 2}, 2))
	assert.Equal(t, []int{1}, Distribution(nil, []any{"k"}, 1))
	assert.Nil(t, Distribution(HashLocator, keys, 0))
}
