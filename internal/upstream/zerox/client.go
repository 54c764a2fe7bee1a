// Package zerox 实现 0x Swap API 报价客户端。
package zerox

import (
	"context"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"NOLA-Exchange/internal/upstream"
)

// Name 是该上游在配置与日志中的标识。
const Name = "zerox"

// APIKeyHeader 是 0x 要求的鉴权头。
const APIKeyHeader = "0x-api-key"

// Client 封装 0x /swap/v1/quote。API key 由 HTTPFetcher 以请求头形式附加。
type Client struct {
	baseURL string
	taker   string
	fetcher *upstream.HTTPFetcher
	now     func() time.Time
}

// NewClient 创建客户端。taker 非空时作为 takerAddress 传给 0x 以获得可执行报价。
func NewClient(baseURL, taker string, fetcher *upstream.HTTPFetcher) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		taker:   taker,
		fetcher: fetcher,
		now:     time.Now,
	}
}

// Name 实现 upstream.QuoteProvider。
func (c *Client) Name() string { return Name }

// GetQuote 请求 0x 报价，滑点以小数形式传递（1% → 0.01）。
func (c *Client) GetQuote(ctx context.Context, req upstream.QuoteRequest) upstream.QuoteResult {
	query := url.Values{}
	query.Set("sellToken", req.From)
	query.Set("buyToken", req.To)
	query.Set("sellAmount", req.Amount.String())
	query.Set("slippagePercentage", strconv.FormatFloat(req.Slippage/100, 'f', -1, 64))
	if c.taker != "" {
		query.Set("takerAddress", c.taker)
	}

	body, u := c.fetcher.GetJSON(ctx, c.baseURL+"/swap/v1/quote", query)
	if u != nil {
		return upstream.QuoteFailed(u)
	}
	doc := gjson.ParseBytes(body)
	if errs := doc.Get("validationErrors"); errs.IsArray() && len(errs.Array()) > 0 {
		reason := errs.Get("0.reason").String()
		return upstream.QuoteFailed(upstream.Fail(Name, upstream.ReasonBadStatus, "validation: %s", reason))
	}

	buyAmount, u := upstream.PositiveInt(Name, doc.Get("buyAmount"), "buyAmount")
	if u != nil {
		return upstream.QuoteFailed(u)
	}

	q := upstream.Quote{
		Source:     Name,
		FromToken:  req.From,
		ToToken:    req.To,
		FromAmount: new(big.Int).Set(req.Amount),
		ToAmount:   buyAmount,
		To:         strings.ToLower(doc.Get("to").String()),
		Data:       doc.Get("data").String(),
		Value:      upstream.OptionalInt(doc.Get("value")),
		Spender:    strings.ToLower(doc.Get("allowanceTarget").String()),
		CreatedAt:  c.now(),
	}
	if gas := doc.Get("estimatedGas").Uint(); gas > 0 {
		q.GasEstimate = gas
	} else {
		q.GasEstimate = doc.Get("gas").Uint()
	}
	return upstream.QuoteOK(q)
}
