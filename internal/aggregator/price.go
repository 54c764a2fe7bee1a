package aggregator

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	xerrors "NOLA-Exchange/internal/errors"
	"NOLA-Exchange/internal/cache"
	"NOLA-Exchange/internal/observability/metrics"
	"NOLA-Exchange/internal/token"
	"NOLA-Exchange/internal/upstream"
	"NOLA-Exchange/pkg/logger"
)

// PriceAggregator 是价格管道：A（报价推导）→ B（聚合指数）→ C（池子价格）。
type PriceAggregator struct {
	providers []upstream.PriceProvider
	cache     cache.Store[upstream.PricePoint]
	group     singleflight.Group
	log       *slog.Logger
}

// NewPriceAggregator 创建价格聚合器，providers 的顺序即优先级。
func NewPriceAggregator(store cache.Store[upstream.PricePoint], providers ...upstream.PriceProvider) *PriceAggregator {
	return &PriceAggregator{
		providers: providers,
		cache:     store,
		log:       logger.Named("aggregator"),
	}
}

type priceOutcome struct {
	point upstream.PricePoint
	ok    bool
}

// GetTokenPriceUSD 返回代币美元价格。所有上游都失败时返回 ok=false 且 err 为 nil，
// 这是一个正常的业务状态。只有地址非法时才返回错误。
func (a *PriceAggregator) GetTokenPriceUSD(ctx context.Context, address string) (upstream.PricePoint, bool, error) {
	addr, err := token.NormalizeAddress(address)
	if err != nil {
		return upstream.PricePoint{}, false, err
	}
	key := cache.PriceKey(addr)
	if point, ok := a.cache.Get(ctx, key); ok {
		metrics.ObserveCacheLookup(pipelinePrice, true)
		return point, true, nil
	}
	metrics.ObserveCacheLookup(pipelinePrice, false)

	v, _, _ := a.group.Do(key, func() (any, error) {
		// 共享的上游调用不随首个调用方取消，单次调用仍受 Guard 超时约束。
		shared := context.WithoutCancel(ctx)
		if point, ok := a.cache.Get(shared, key); ok {
			return priceOutcome{point: point, ok: true}, nil
		}
		return a.fetch(shared, key, addr), nil
	})
	out := v.(priceOutcome)
	return out.point, out.ok, nil
}

func (a *PriceAggregator) fetch(ctx context.Context, key, addr string) priceOutcome {
	for _, p := range a.providers {
		start := time.Now()
		res := p.GetPrice(ctx, addr)
		if res.OK() && !res.Point.Valid() {
			res = upstream.PriceFailed(upstream.Fail(p.Name(), upstream.ReasonInvalidValue, "price %v", res.Point.USD))
		}
		observe(a.log, p.Name(), start, res.Err)
		if !res.OK() {
			continue
		}
		point := res.Point
		point.Token = addr
		a.cache.Put(ctx, key, point)
		return priceOutcome{point: point, ok: true}
	}

	metrics.ObservePipelineExhausted(pipelinePrice)
	a.log.Info("没有可用的价格",
		slog.String("token", addr),
		slog.String("code", string(xerrors.CodeNoPrice)))
	return priceOutcome{}
}
