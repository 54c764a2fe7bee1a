// Package oneinch 实现 1inch 聚合器的报价与基于报价推导的价格查询。
package oneinch

import (
	"context"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"NOLA-Exchange/internal/token"
	"NOLA-Exchange/internal/upstream"
)

// Name 是该上游在配置与日志中的标识。
const Name = "oneinch"

const usdcDecimals = 6

// DecimalsFunc 返回代币精度，通常由代币注册表提供。
type DecimalsFunc func(address string) int32

// Config 描述 1inch 客户端参数。
type Config struct {
	BaseURL string
	ChainID int64
	// USDC 是价格推导使用的计价代币。
	USDC string
	// FromAddress 非空时使用 /swap 接口，返回可直接执行的交易数据。
	FromAddress string
}

// Client 封装 1inch v5 API。
type Client struct {
	cfg      Config
	fetcher  *upstream.HTTPFetcher
	decimals DecimalsFunc
	now      func() time.Time
}

// Option 自定义客户端。
type Option func(*Client)

// WithClock 注入时钟，便于测试。
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// NewClient 创建客户端。decimals 为空时所有代币按 18 位精度处理。
func NewClient(cfg Config, fetcher *upstream.HTTPFetcher, decimals DecimalsFunc, opts ...Option) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if decimals == nil {
		decimals = func(string) int32 { return token.DefaultDecimals }
	}
	c := &Client{cfg: cfg, fetcher: fetcher, decimals: decimals, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name 实现 upstream.QuoteProvider。
func (c *Client) Name() string { return Name }

// GetQuote 请求 1inch 报价。
func (c *Client) GetQuote(ctx context.Context, req upstream.QuoteRequest) upstream.QuoteResult {
	query := url.Values{}
	query.Set("fromTokenAddress", req.From)
	query.Set("toTokenAddress", req.To)
	query.Set("amount", req.Amount.String())

	endpoint := "quote"
	if c.cfg.FromAddress != "" {
		endpoint = "swap"
		query.Set("fromAddress", c.cfg.FromAddress)
		query.Set("slippage", strconv.FormatFloat(req.Slippage, 'f', -1, 64))
		query.Set("disableEstimate", "true")
	}

	body, u := c.fetcher.GetJSON(ctx, c.endpoint(endpoint), query)
	if u != nil {
		return upstream.QuoteFailed(u)
	}
	doc := gjson.ParseBytes(body)
	if u := errorPayload(doc); u != nil {
		return upstream.QuoteFailed(u)
	}

	toAmount, u := upstream.PositiveInt(Name, doc.Get("toTokenAmount"), "toTokenAmount")
	if u != nil {
		return upstream.QuoteFailed(u)
	}

	q := upstream.Quote{
		Source:     Name,
		FromToken:  req.From,
		ToToken:    req.To,
		FromAmount: new(big.Int).Set(req.Amount),
		ToAmount:   toAmount,
		CreatedAt:  c.now(),
	}
	if gas := doc.Get("estimatedGas"); gas.Exists() {
		q.GasEstimate = gas.Uint()
	}
	if tx := doc.Get("tx"); tx.IsObject() {
		q.To = strings.ToLower(tx.Get("to").String())
		q.Data = tx.Get("data").String()
		q.Value = upstream.OptionalInt(tx.Get("value"))
		q.Spender = q.To
		if gas := tx.Get("gas").Uint(); gas > 0 && q.GasEstimate == 0 {
			q.GasEstimate = gas
		}
	}
	return upstream.QuoteOK(q)
}

// GetPrice 以 1 个完整代币兑换 USDC 的报价推导美元价格。
func (c *Client) GetPrice(ctx context.Context, address string) upstream.PriceResult {
	decimals := c.decimals(address)
	query := url.Values{}
	query.Set("fromTokenAddress", address)
	query.Set("toTokenAddress", c.cfg.USDC)
	query.Set("amount", token.OneUnit(decimals).String())

	body, u := c.fetcher.GetJSON(ctx, c.endpoint("quote"), query)
	if u != nil {
		return upstream.PriceFailed(u)
	}
	doc := gjson.ParseBytes(body)
	if u := errorPayload(doc); u != nil {
		return upstream.PriceFailed(u)
	}
	toAmount, u := upstream.PositiveInt(Name, doc.Get("toTokenAmount"), "toTokenAmount")
	if u != nil {
		return upstream.PriceFailed(u)
	}

	point := upstream.PricePoint{
		Token:     strings.ToLower(address),
		USD:       token.ScaleToFloat(toAmount, usdcDecimals),
		Timestamp: c.now(),
	}
	if !point.Valid() {
		return upstream.PriceFailed(upstream.Fail(Name, upstream.ReasonInvalidValue, "derived price %v", point.USD))
	}
	return upstream.PriceOK(point)
}

func (c *Client) endpoint(name string) string {
	return fmt.Sprintf("%s/%d/%s", c.cfg.BaseURL, c.cfg.ChainID, name)
}

// errorPayload 识别 200 响应中携带的 {statusCode, description} 错误体。
func errorPayload(doc gjson.Result) *upstream.Unavailable {
	status := doc.Get("statusCode")
	if !status.Exists() {
		return nil
	}
	desc := doc.Get("description").String()
	if desc == "" {
		desc = doc.Get("error").String()
	}
	return upstream.Fail(Name, upstream.ReasonBadStatus, "statusCode %s: %s", status.Raw, desc)
}
