package upstream

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	xerrors "NOLA-Exchange/internal/errors"
)

// Reason 描述单个上游无法给出结果的原因。
type Reason string

const (
	ReasonTimeout      Reason = "timeout"
	ReasonBadStatus    Reason = "bad_status"
	ReasonMalformed    Reason = "malformed"
	ReasonMissingField Reason = "missing_field"
	ReasonInvalidValue Reason = "invalid_value"
	ReasonTransport    Reason = "transport"
	ReasonRateLimited  Reason = "rate_limited"
)

var errUnavailable = xerrors.New(xerrors.CodeUnavailable, "")

// Unavailable 是上游的软失败信号，只在聚合器内部流转，不会直接暴露给调用方。
type Unavailable struct {
	Provider string
	Reason   Reason
	Detail   string
}

// Fail 构造一个软失败结果。
func Fail(provider string, reason Reason, format string, args ...any) *Unavailable {
	return &Unavailable{Provider: provider, Reason: reason, Detail: fmt.Sprintf(format, args...)}
}

func (u *Unavailable) Error() string {
	if u.Detail == "" {
		return fmt.Sprintf("%s unavailable: %s", u.Provider, u.Reason)
	}
	return fmt.Sprintf("%s unavailable: %s: %s", u.Provider, u.Reason, u.Detail)
}

// Unwrap 使 xerrors.CodeOf 返回 UNAVAILABLE。
func (u *Unavailable) Unwrap() error { return errUnavailable }

// QuoteRequest 是经过校验的报价请求，Amount 为原始整数单位。
type QuoteRequest struct {
	From     string
	To       string
	Amount   *big.Int
	Slippage float64
}

// Quote 是某个上游给出的不可变报价。
type Quote struct {
	Source      string    `json:"source"`
	FromToken   string    `json:"fromToken"`
	ToToken     string    `json:"toToken"`
	FromAmount  *big.Int  `json:"fromAmount"`
	ToAmount    *big.Int  `json:"toAmount"`
	To          string    `json:"to,omitempty"`
	Data        string    `json:"data,omitempty"`
	Value       *big.Int  `json:"value,omitempty"`
	Spender     string    `json:"spender,omitempty"`
	GasEstimate uint64    `json:"gasEstimate,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// PricePoint 是代币的美元价格。
type PricePoint struct {
	Token     string    `json:"token"`
	USD       float64   `json:"usd"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid 要求价格为正且有限。
func (p PricePoint) Valid() bool {
	return p.USD > 0 && !math.IsInf(p.USD, 0) && !math.IsNaN(p.USD)
}

// QuoteResult 是 Ok(Quote) | Unavailable 的标签联合。
type QuoteResult struct {
	Quote Quote
	Err   *Unavailable
}

// OK 判断结果是否可用。
func (r QuoteResult) OK() bool { return r.Err == nil }

// QuoteOK 构造成功结果。
func QuoteOK(q Quote) QuoteResult { return QuoteResult{Quote: q} }

// QuoteFailed 构造失败结果。
func QuoteFailed(u *Unavailable) QuoteResult { return QuoteResult{Err: u} }

// PriceResult 是 Ok(PricePoint) | Unavailable 的标签联合。
type PriceResult struct {
	Point PricePoint
	Err   *Unavailable
}

// OK 判断结果是否可用。
func (r PriceResult) OK() bool { return r.Err == nil }

// PriceOK 构造成功结果。
func PriceOK(p PricePoint) PriceResult { return PriceResult{Point: p} }

// PriceFailed 构造失败结果。
func PriceFailed(u *Unavailable) PriceResult { return PriceResult{Err: u} }

// QuoteProvider 是报价上游的统一接口。实现不得返回会中断调用方的错误。
type QuoteProvider interface {
	Name() string
	GetQuote(ctx context.Context, req QuoteRequest) QuoteResult
}

// PriceProvider 是价格上游的统一接口。
type PriceProvider interface {
	Name() string
	GetPrice(ctx context.Context, address string) PriceResult
}
