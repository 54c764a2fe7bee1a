package intent

import (
	"context"
	"sort"
	"sync"
	"time"

	xerrors "NOLA-Exchange/internal/errors"
	"NOLA-Exchange/internal/swap"
)

// MemoryStore 以内存方式保存意图，适用于单实例部署与测试。
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
	now     func() time.Time
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record), now: time.Now}
}

// Create 实现 Store 接口。
func (m *MemoryStore) Create(_ context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return xerrors.InvalidInput("id", "意图 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; ok {
		return ErrIntentConflict
	}
	now := m.now().UnixMilli()
	if rec.CreatedAt == 0 {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt == 0 {
		rec.UpdatedAt = now
	}
	m.records[rec.ID] = cloneRecord(rec)
	return nil
}

// Get 返回意图。
func (m *MemoryStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	return cloneRecord(rec), nil
}

// Claim 实现 Store 接口。
func (m *MemoryStore) Claim(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	if rec.Claimed || rec.State != swap.StateIdle {
		return cloneRecord(rec), ErrIntentConflict
	}
	rec.Claimed = true
	return cloneRecord(rec), nil
}

// Save 实现 Store 接口。
func (m *MemoryStore) Save(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.records[rec.ID]
	if !ok {
		return ErrIntentNotFound
	}
	stored.State = rec.State
	stored.Reason = rec.Reason
	stored.ErrorCode = rec.ErrorCode
	stored.ApprovalTx = rec.ApprovalTx
	stored.SwapTx = rec.SwapTx
	stored.UpdatedAt = rec.UpdatedAt
	if stored.UpdatedAt == 0 {
		stored.UpdatedAt = m.now().UnixMilli()
	}
	return nil
}

// List 按更新时间倒序返回意图。
func (m *MemoryStore) List(_ context.Context, opts ListOptions) ([]*Record, error) {
	opts.applyDefaults()
	m.mu.RLock()
	matched := make([]*Record, 0, len(m.records))
	for _, rec := range m.records {
		if opts.matches(rec) {
			matched = append(matched, cloneRecord(rec))
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].UpdatedAt == matched[j].UpdatedAt {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].UpdatedAt > matched[j].UpdatedAt
	})
	if opts.Offset >= len(matched) {
		return []*Record{}, nil
	}
	end := opts.Offset + opts.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[opts.Offset:end], nil
}

// Stats 实现 Store 接口。
func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := Stats{ByState: make(map[swap.State]int)}
	for _, rec := range m.records {
		stats.add(rec.State, 1, rec.UpdatedAt, rec.UpdatedAt)
	}
	return stats, nil
}

// Close 实现 Store 接口。
func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
