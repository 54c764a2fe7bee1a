package cache

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Memory 是进程内缓存。maxEntries > 0 时按 LRU 淘汰，否则只受 TTL 约束。
type Memory[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	bounded *lru.Cache[string, Entry[V]]
	entries map[string]Entry[V]
}

// MemoryOption 自定义内存缓存。
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	maxEntries int
	now        func() time.Time
}

// WithMaxEntries 限制缓存条目数量。
func WithMaxEntries(n int) MemoryOption {
	return func(o *memoryOptions) { o.maxEntries = n }
}

// WithClock 注入时钟。
func WithClock(now func() time.Time) MemoryOption {
	return func(o *memoryOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewMemory 创建内存缓存。
func NewMemory[V any](ttl time.Duration, opts ...MemoryOption) (*Memory[V], error) {
	options := memoryOptions{now: time.Now}
	for _, opt := range opts {
		opt(&options)
	}
	m := &Memory[V]{ttl: ttl, now: options.now}
	if options.maxEntries > 0 {
		bounded, err := lru.New[string, Entry[V]](options.maxEntries)
		if err != nil {
			return nil, err
		}
		m.bounded = bounded
	} else {
		m.entries = make(map[string]Entry[V])
	}
	return m, nil
}

// Get 返回未过期的值；过期条目被视为未命中并移除。
func (m *Memory[V]) Get(_ context.Context, key string) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero V
	entry, ok := m.lookup(key)
	if !ok {
		return zero, false
	}
	if !entry.Fresh(m.now()) {
		m.remove(key)
		return zero, false
	}
	return entry.Value, true
}

// Put 无条件覆盖写入。
func (m *Memory[V]) Put(_ context.Context, key string, value V) {
	entry := Entry[V]{Value: value, StoredAt: m.now(), TTL: m.ttl}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bounded != nil {
		m.bounded.Add(key, entry)
		return
	}
	m.entries[key] = entry
}

// Len 返回当前条目数（包括尚未被读取淘汰的过期条目）。
func (m *Memory[V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.bounded != nil {
		return m.bounded.Len()
	}
	return len(m.entries)
}

func (m *Memory[V]) lookup(key string) (Entry[V], bool) {
	if m.bounded != nil {
		return m.bounded.Get(key)
	}
	entry, ok := m.entries[key]
	return entry, ok
}

func (m *Memory[V]) remove(key string) {
	if m.bounded != nil {
		m.bounded.Remove(key)
		return
	}
	delete(m.entries, key)
}
