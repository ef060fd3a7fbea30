package shard

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
)

// Locator 把路由 key 映射到 [0, n) 的分片下标
type Locator interface {
	Locate(key any, n int) int
}

// LocatorFunc 函数适配器
type LocatorFunc func(key any, n int) int

func (f LocatorFunc) Locate(key any, n int) int { return f(key, n) }

var (
	// HashLocator 默认定位器
	HashLocator Locator = LocatorFunc(Locate)
	// ModuloLocator 整数 key 直接取模，其余按字符码之和取模
	ModuloLocator Locator = LocatorFunc(LocateByModulo)
)

// Locate 取 fmt.Sprint(key) 的 MD5，前 4 字节按大端解释为 uint32 后对 n 取模。
// 结果只依赖 key 和 n，跨进程稳定。n <= 0 时返回 0。
func Locate(key any, n int) int {
	if n <= 0 {
		return 0
	}
	sum := md5.Sum([]byte(fmt.Sprint(key)))
	return int(binary.BigEndian.Uint32(sum[:4]) % uint32(n))
}

// LocateByModulo 整数（含可解析为数字的字符串，小数截断）取 |k| % n，否则取字符码之和 % n
func LocateByModulo(key any, n int) int {
	if n <= 0 {
		return 0
	}
	if k, ok := integerKey(key); ok {
		if k < 0 {
			k = -k
		}
		if k < 0 { // math.MinInt64
			k = math.MaxInt64
		}
		return int(k % int64(n))
	}

	var sum uint64
	for _, r := range fmt.Sprint(key) {
		sum += uint64(r)
	}
	return int(sum % uint64(n))
}

func integerKey(key any) (int64, bool) {
	switch k := key.(type) {
	case int:
		return int64(k), true
	case int8:
		return int64(k), true
	case int16:
		return int64(k), true
	case int32:
		return int64(k), true
	case int64:
		return k, true
	case uint:
		return int64(k & math.MaxInt64), true
	case uint8:
		return int64(k), true
	case uint16:
		return int64(k), true
	case uint32:
		return int64(k), true
	case uint64:
		return int64(k & math.MaxInt64), true
	case float32:
		return truncFloat(float64(k))
	case float64:
		return truncFloat(k)
	case string:
		if i, err := strconv.ParseInt(k, 10, 64); err == nil {
			return i, true
		}
		if f, err := strconv.ParseFloat(k, 64); err == nil {
			return truncFloat(f)
		}
	}
	return 0, false
}

func truncFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// Distribution 统计 keys 落在每个分片上的数量
func Distribution(l Locator, keys []any, n int) []int {
	if n <= 0 {
		return nil
	}
	if l == nil {
		l = HashLocator
	}
	counts := make([]int, n)
	for _, k := range keys {
		counts[l.Locate(k, n)]++
	}
	return counts
}
