package intent

import "context"

// Store 抽象了意图状态的持久化接口。
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	// Claim 领取一个尚未执行的 Idle 意图，重复领取返回 ErrIntentConflict。
	Claim(ctx context.Context, id string) (*Record, error)
	// Save 写回状态、原因、错误码与交易哈希。
	Save(ctx context.Context, rec *Record) error
	List(ctx context.Context, opts ListOptions) ([]*Record, error)
	// Stats 统计各状态的意图数量与更新时间范围。
	Stats(ctx context.Context) (Stats, error)
	Close() error
}
