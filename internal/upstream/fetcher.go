package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const defaultMaxBody = 2 << 20

// HTTPFetcher 负责以统一方式请求上游 JSON 接口：限流、超时守卫、状态码检查与包体大小限制。
type HTTPFetcher struct {
	provider   string
	guard      *Guard
	httpClient *http.Client
	limiter    *rate.Limiter
	headers    http.Header
	maxBody    int64
}

// FetcherOption 自定义 HTTPFetcher。
type FetcherOption func(*HTTPFetcher)

// WithHTTPClient 替换底层 HTTP 客户端。
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithRateLimit 设置每秒请求数与突发容量，rps <= 0 表示不限流。
func WithRateLimit(rps float64, burst int) FetcherOption {
	return func(f *HTTPFetcher) {
		if rps <= 0 {
			f.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithHeader 为每个请求附加固定头，空值会被忽略。
func WithHeader(key, value string) FetcherOption {
	return func(f *HTTPFetcher) {
		if strings.TrimSpace(value) == "" {
			return
		}
		f.headers.Set(key, value)
	}
}

// NewHTTPFetcher 创建请求器。
func NewHTTPFetcher(provider string, guard *Guard, opts ...FetcherOption) *HTTPFetcher {
	if guard == nil {
		guard = NewGuard(0)
	}
	f := &HTTPFetcher{
		provider:   provider,
		guard:      guard,
		httpClient: &http.Client{},
		headers:    make(http.Header),
		maxBody:    defaultMaxBody,
	}
	f.headers.Set("Accept", "application/json")
	for _, opt := range opts {
		if opt != nil {
			opt(f)
		}
	}
	return f
}

// Provider 返回上游名称。
func (f *HTTPFetcher) Provider() string { return f.provider }

// GetJSON 发送 GET 请求并返回合法 JSON 的原始字节。
func (f *HTTPFetcher) GetJSON(ctx context.Context, endpoint string, query url.Values) ([]byte, *Unavailable) {
	target := endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	return f.guard.Do(ctx, f.provider, func(ctx context.Context) ([]byte, error) {
		if f.limiter != nil {
			if err := f.limiter.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, Fail(f.provider, ReasonRateLimited, "local rate limit: %v", err)
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, Fail(f.provider, ReasonTransport, "build request: %v", err)
		}
		req.Header = f.headers.Clone()

		resp, err := f.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBody+1))
		if err != nil {
			return nil, err
		}
		if int64(len(body)) > f.maxBody {
			return nil, Fail(f.provider, ReasonMalformed, "response exceeds %d bytes", f.maxBody)
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, Fail(f.provider, ReasonRateLimited, "status %d", resp.StatusCode)
		case resp.StatusCode < 200 || resp.StatusCode >= 300:
			return nil, Fail(f.provider, ReasonBadStatus, "status %d: %s", resp.StatusCode, snippet(body))
		}
		if !gjson.ValidBytes(body) {
			return nil, Fail(f.provider, ReasonMalformed, "invalid json: %s", snippet(body))
		}
		return body, nil
	})
}

func snippet(body []byte) string {
	const limit = 160
	s := strings.TrimSpace(string(body))
	if len(s) > limit {
		return fmt.Sprintf("%s...", s[:limit])
	}
	return s
}
