package intent

import "context"

// Handler 处理来自队列的意图 ID。
type Handler func(ctx context.Context, intentID string) error

// Producer 负责向队列投递意图。
type Producer interface {
	Publish(ctx context.Context, intentID string) error
	Close() error
}

// Consumer 负责从队列中消费意图。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
