// Package dexscreener 从 Dexscreener 交易对列表中选取代币的美元价格。
package dexscreener

import (
	"context"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"NOLA-Exchange/internal/upstream"
)

// Name 是该上游在配置与日志中的标识。
const Name = "dexscreener"

// Client 查询 /latest/dex/tokens/{address}。
type Client struct {
	baseURL string
	fetcher *upstream.HTTPFetcher
	now     func() time.Time
}

// NewClient 创建客户端。
func NewClient(baseURL string, fetcher *upstream.HTTPFetcher) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), fetcher: fetcher, now: time.Now}
}

// Name 实现 upstream.PriceProvider。
func (c *Client) Name() string { return Name }

// GetPrice 遍历 pairs，返回第一个为正且有限的 priceUsd（缺失时回退到 price）。
func (c *Client) GetPrice(ctx context.Context, address string) upstream.PriceResult {
	addr := strings.ToLower(address)
	body, u := c.fetcher.GetJSON(ctx, c.baseURL+"/latest/dex/tokens/"+addr, nil)
	if u != nil {
		return upstream.PriceFailed(u)
	}

	pairs := gjson.GetBytes(body, "pairs")
	if !pairs.IsArray() || len(pairs.Array()) == 0 {
		return upstream.PriceFailed(upstream.Fail(Name, upstream.ReasonMissingField, "no pairs for %s", addr))
	}
	for _, pair := range pairs.Array() {
		field := pair.Get("priceUsd")
		if !field.Exists() || field.Type == gjson.Null || field.String() == "" {
			field = pair.Get("price")
		}
		if v, ok := upstream.PositiveFloat(field); ok {
			return upstream.PriceOK(upstream.PricePoint{Token: addr, USD: v, Timestamp: c.now()})
		}
	}
	return upstream.PriceFailed(upstream.Fail(Name, upstream.ReasonInvalidValue, "no positive price among %d pairs", len(pairs.Array())))
}
