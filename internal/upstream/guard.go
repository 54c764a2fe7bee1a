package upstream

import (
	"context"
	"errors"
	"time"
)

// DefaultTimeout 是报价与价格请求的固定截止时间。
const DefaultTimeout = 3 * time.Second

// Guard 为每次外呼加上硬截止时间。超时后取消请求并返回 ReasonTimeout。
type Guard struct {
	timeout time.Duration
}

// NewGuard 创建超时守卫，timeout <= 0 时使用 DefaultTimeout。
func NewGuard(timeout time.Duration) *Guard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guard{timeout: timeout}
}

// Timeout 返回守卫的截止时间。
func (g *Guard) Timeout() time.Duration { return g.timeout }

type guardResult struct {
	body []byte
	err  error
}

// Do 在截止时间内运行 fn。fn 收到的 context 在 Do 返回前一定被取消，
// 即使 fn 没有及时响应取消，Do 也会在截止时间到达时返回。
func (g *Guard) Do(ctx context.Context, provider string, fn func(ctx context.Context) ([]byte, error)) ([]byte, *Unavailable) {
	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan guardResult, 1)
	go func() {
		body, err := fn(cctx)
		done <- guardResult{body: body, err: err}
	}()

	select {
	case <-cctx.Done():
		return nil, Fail(provider, ReasonTimeout, "no answer within %s", g.timeout)
	case res := <-done:
		if res.err == nil {
			return res.body, nil
		}
		if cctx.Err() != nil || errors.Is(res.err, context.DeadlineExceeded) {
			return nil, Fail(provider, ReasonTimeout, "no answer within %s", g.timeout)
		}
		var u *Unavailable
		if errors.As(res.err, &u) {
			return nil, u
		}
		return nil, Fail(provider, ReasonTransport, "%v", res.err)
	}
}
