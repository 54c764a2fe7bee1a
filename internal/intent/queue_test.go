package intent

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisQueueDeliversInPublishOrder(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	q := NewRedisQueueWithClient(client, "test:intents", time.Second)
	defer q.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range []string{"first", "second"} {
		if err := q.Publish(ctx, id); err != nil {
			t.Fatalf("publish %s: %v", id, err)
		}
	}

	received := make(chan string, 2)
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, 1, func(_ context.Context, id string) error {
			received <- id
			return nil
		})
	}()

	for _, want := range []string{"first", "second"} {
		select {
		case got := <-received:
			if got != want {
				t.Fatalf("got %s, want %s", got, want)
			}
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("consumer did not stop after cancel")
	}
}

func TestMemoryQueueRejectsAfterClose(t *testing.T) {
	q := NewMemoryQueue(1)
	if err := q.Publish(context.Background(), "a"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	_ = q.Close()
	if err := q.Publish(context.Background(), "b"); err == nil {
		t.Fatalf("expected publish on closed queue to fail")
	}
}

func TestNewQueuesValidateConfig(t *testing.T) {
	if _, err := NewRedisQueue(context.Background(), RedisQueueConfig{}); err == nil {
		t.Fatalf("expected redis address error")
	}
	if _, err := NewRabbitMQQueue(RabbitMQConfig{}); err == nil {
		t.Fatalf("expected rabbitmq url error")
	}
}
