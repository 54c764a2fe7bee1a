package aggregator

import (
	"context"
	"log/slog"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	xerrors "NOLA-Exchange/internal/errors"
	"NOLA-Exchange/internal/cache"
	"NOLA-Exchange/internal/observability/metrics"
	"NOLA-Exchange/internal/token"
	"NOLA-Exchange/internal/upstream"
	"NOLA-Exchange/pkg/logger"
)

const (
	// DefaultSlippage 是未指定滑点时使用的百分比。
	DefaultSlippage = 1.0
	// MaxSlippage 是允许的最大滑点百分比。
	MaxSlippage = 50.0
)

// QuoteAggregator 是报价管道：X（1inch）→ Y（0x）。
type QuoteAggregator struct {
	providers []upstream.QuoteProvider
	cache     cache.Store[upstream.Quote]
	group     singleflight.Group
	log       *slog.Logger
}

// NewQuoteAggregator 创建报价聚合器，providers 的顺序即优先级。
func NewQuoteAggregator(store cache.Store[upstream.Quote], providers ...upstream.QuoteProvider) *QuoteAggregator {
	return &QuoteAggregator{
		providers: providers,
		cache:     store,
		log:       logger.Named("aggregator"),
	}
}

// ParseQuoteRequest 从字符串参数构建报价请求，空滑点使用默认值。
func ParseQuoteRequest(from, to, amount, slippage string) (upstream.QuoteRequest, error) {
	req := upstream.QuoteRequest{From: from, To: to, Slippage: DefaultSlippage}
	if strings.TrimSpace(amount) == "" {
		return req, xerrors.InvalidInput("amount", "数量不能为空")
	}
	parsed, err := token.ParseAmount(amount)
	if err != nil {
		return req, err
	}
	req.Amount = parsed
	if s := strings.TrimSpace(slippage); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return req, xerrors.InvalidInput("slippage", "滑点必须是数字")
		}
		req.Slippage = v
	}
	return ValidateQuoteRequest(req)
}

// ValidateQuoteRequest 校验并规范化报价请求，在任何网络调用之前完成。
func ValidateQuoteRequest(req upstream.QuoteRequest) (upstream.QuoteRequest, error) {
	from, err := token.NormalizeAddress(req.From)
	if err != nil {
		return req, xerrors.InvalidInput("from", "请选择有效的卖出代币")
	}
	to, err := token.NormalizeAddress(req.To)
	if err != nil {
		return req, xerrors.InvalidInput("to", "请选择有效的买入代币")
	}
	if from == to {
		return req, xerrors.InvalidInput("to", "卖出与买入代币不能相同")
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return req, xerrors.InvalidInput("amount", "数量必须为正数")
	}
	if req.Slippage == 0 {
		req.Slippage = DefaultSlippage
	}
	if math.IsNaN(req.Slippage) || req.Slippage < 0 || req.Slippage > MaxSlippage {
		return req, xerrors.InvalidInput("slippage", "滑点必须在 (0, 50] 区间内")
	}
	req.From = from
	req.To = to
	req.Amount = new(big.Int).Set(req.Amount)
	return req, nil
}

type quoteOutcome struct {
	quote upstream.Quote
	ok    bool
}

// GetQuote 返回第一个成功的报价；全部失败时返回 ErrQuoteUnavailable。
// 缓存键不含滑点，返回的报价仅用于展示，执行请使用 ExecutableQuote。
func (a *QuoteAggregator) GetQuote(ctx context.Context, req upstream.QuoteRequest) (upstream.Quote, error) {
	req, err := ValidateQuoteRequest(req)
	if err != nil {
		return upstream.Quote{}, err
	}
	key := cache.QuoteKey(req.From, req.To, req.Amount)
	if q, ok := a.cache.Get(ctx, key); ok {
		metrics.ObserveCacheLookup(pipelineQuote, true)
		return q, nil
	}
	metrics.ObserveCacheLookup(pipelineQuote, false)

	v, _, _ := a.group.Do(key, func() (any, error) {
		// 共享的上游调用不随首个调用方取消，单次调用仍受 Guard 超时约束。
		shared := context.WithoutCancel(ctx)
		if q, ok := a.cache.Get(shared, key); ok {
			return quoteOutcome{quote: q, ok: true}, nil
		}
		out := a.fetch(shared, req)
		if out.ok {
			a.cache.Put(shared, key, out.quote)
		}
		return out, nil
	})
	out := v.(quoteOutcome)
	if !out.ok {
		return upstream.Quote{}, ErrQuoteUnavailable
	}
	return out.quote, nil
}

// ExecutableQuote 绕过缓存，按请求自身的滑点向上游获取可执行报价。
// 路由调用数据依赖滑点，因此结果既不读取也不写入缓存。
func (a *QuoteAggregator) ExecutableQuote(ctx context.Context, req upstream.QuoteRequest) (upstream.Quote, error) {
	req, err := ValidateQuoteRequest(req)
	if err != nil {
		return upstream.Quote{}, err
	}
	out := a.fetch(ctx, req)
	if !out.ok {
		return upstream.Quote{}, ErrQuoteUnavailable
	}
	return out.quote, nil
}

func (a *QuoteAggregator) fetch(ctx context.Context, req upstream.QuoteRequest) quoteOutcome {
	for _, p := range a.providers {
		start := time.Now()
		res := p.GetQuote(ctx, req)
		observe(a.log, p.Name(), start, res.Err)
		if !res.OK() {
			continue
		}
		return quoteOutcome{quote: res.Quote, ok: true}
	}
	metrics.ObservePipelineExhausted(pipelineQuote)
	a.log.Warn("所有报价上游均不可用",
		slog.String("from", req.From),
		slog.String("to", req.To),
		slog.String("amount", req.Amount.String()))
	return quoteOutcome{}
}
