// Package cache 提供报价与价格的短时缓存。过期在读取时惰性判断，没有后台清理协程。
package cache

import (
	"context"
	"math/big"
	"strings"
	"time"
)

const (
	// QuoteTTL 是报价缓存的默认有效期。
	QuoteTTL = 10 * time.Second
	// PriceTTL 是价格缓存的默认有效期。
	PriceTTL = 30 * time.Second
)

// Entry 记录缓存值及其写入时间与有效期。
type Entry[V any] struct {
	Value    V             `json:"value"`
	StoredAt time.Time     `json:"storedAt"`
	TTL      time.Duration `json:"ttl"`
}

// Fresh 判断 now - StoredAt < TTL。
func (e Entry[V]) Fresh(now time.Time) bool {
	return now.Sub(e.StoredAt) < e.TTL
}

// Store 是缓存后端的统一接口。Put 为最后写入者胜出的覆盖写。
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Put(ctx context.Context, key string, value V)
}

// QuoteKey 生成报价缓存键。滑点只影响执行容忍度，不参与键的计算。
func QuoteKey(from, to string, amount *big.Int) string {
	return strings.ToLower(strings.TrimSpace(from)) + "|" +
		strings.ToLower(strings.TrimSpace(to)) + "|" + amount.String()
}

// PriceKey 生成价格缓存键，地址大小写不敏感。
func PriceKey(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
