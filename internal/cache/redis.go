package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"NOLA-Exchange/pkg/logger"
)

// Redis 是多实例共享的缓存后端。值以 JSON 编码的 Entry 存储，
// Redis 侧过期时间与 TTL 一致，读取时仍按 StoredAt 判断新鲜度。
type Redis[V any] struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// NewRedis 创建 Redis 缓存。prefix 通常形如 "nola:cache:quote:"。
func NewRedis[V any](client redis.Cmdable, prefix string, ttl time.Duration) *Redis[V] {
	return &Redis[V]{client: client, prefix: prefix, ttl: ttl, now: time.Now}
}

// WithNow 替换时钟，返回自身便于链式调用。
func (r *Redis[V]) WithNow(now func() time.Time) *Redis[V] {
	if now != nil {
		r.now = now
	}
	return r
}

// Get 读取缓存。Redis 故障按未命中处理并记录日志。
func (r *Redis[V]) Get(ctx context.Context, key string) (V, bool) {
	var zero V
	raw, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Named("cache").Warn("读取 Redis 缓存失败", slog.String("key", key), slog.Any("error", err))
		}
		return zero, false
	}
	var entry Entry[V]
	if err := json.Unmarshal(raw, &entry); err != nil {
		logger.Named("cache").Warn("Redis 缓存内容无法解析", slog.String("key", key), slog.Any("error", err))
		return zero, false
	}
	if !entry.Fresh(r.now()) {
		return zero, false
	}
	return entry.Value, true
}

// Put 写入缓存，失败只记录日志。
func (r *Redis[V]) Put(ctx context.Context, key string, value V) {
	entry := Entry[V]{Value: value, StoredAt: r.now(), TTL: r.ttl}
	raw, err := json.Marshal(entry)
	if err != nil {
		logger.Named("cache").Warn("缓存值序列化失败", slog.String("key", key), slog.Any("error", err))
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, raw, r.ttl).Err(); err != nil {
		logger.Named("cache").Warn("写入 Redis 缓存失败", slog.String("key", key), slog.Any("error", err))
	}
}
