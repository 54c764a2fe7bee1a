// Package coingecko 实现 CoinGecko 合约地址价格查询。
package coingecko

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"NOLA-Exchange/internal/upstream"
)

// Name 是该上游在配置与日志中的标识。
const Name = "coingecko"

const (
	DemoKeyHeader = "x-cg-demo-api-key"
	ProKeyHeader  = "x-cg-pro-api-key"
)

// KeyHeader 返回与套餐匹配的 API key 请求头。
func KeyHeader(pro bool) string {
	if pro {
		return ProKeyHeader
	}
	return DemoKeyHeader
}

// Client 查询 /simple/token_price/{platform}。
type Client struct {
	baseURL  string
	platform string
	fetcher  *upstream.HTTPFetcher
	now      func() time.Time
}

// NewClient 创建客户端，platform 例如 polygon-pos。
func NewClient(baseURL, platform string, fetcher *upstream.HTTPFetcher) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		platform: platform,
		fetcher:  fetcher,
		now:      time.Now,
	}
}

// Name 实现 upstream.PriceProvider。
func (c *Client) Name() string { return Name }

// GetPrice 返回合约地址对应的美元价格。响应以小写地址为键。
func (c *Client) GetPrice(ctx context.Context, address string) upstream.PriceResult {
	addr := strings.ToLower(address)
	query := url.Values{}
	query.Set("contract_addresses", addr)
	query.Set("vs_currencies", "usd")

	body, u := c.fetcher.GetJSON(ctx, c.baseURL+"/simple/token_price/"+c.platform, query)
	if u != nil {
		return upstream.PriceFailed(u)
	}

	field := gjson.GetBytes(body, addr+".usd")
	if !field.Exists() {
		return upstream.PriceFailed(upstream.Fail(Name, upstream.ReasonMissingField, "%s.usd missing", addr))
	}
	v, ok := upstream.PositiveFloat(field)
	if !ok || field.Type != gjson.Number {
		return upstream.PriceFailed(upstream.Fail(Name, upstream.ReasonInvalidValue, "usd=%s", field.Raw))
	}
	return upstream.PriceOK(upstream.PricePoint{Token: addr, USD: v, Timestamp: c.now()})
}
