package intent

import (
	"math/big"
	"strings"
	"time"

	xerrors "NOLA-Exchange/internal/errors"
	"NOLA-Exchange/internal/swap"
	"NOLA-Exchange/internal/upstream"
)

// Record 是持久化的兑换意图。Amount 以十进制字符串保存，避免精度丢失。
type Record struct {
	ID         string         `json:"id"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Amount     string         `json:"amount"`
	Slippage   float64        `json:"slippage"`
	Quote      upstream.Quote `json:"quote"`
	State      swap.State     `json:"state"`
	Reason     string         `json:"reason,omitempty"`
	ErrorCode  string         `json:"errorCode,omitempty"`
	ApprovalTx string         `json:"approvalTx,omitempty"`
	SwapTx     string         `json:"swapTx,omitempty"`
	Claimed    bool           `json:"-"`
	CreatedAt  int64          `json:"createdAt"`
	UpdatedAt  int64          `json:"updatedAt"`
}

const (
	CodeIntentNotFound xerrors.Code = "INTENT_NOT_FOUND"
	CodeIntentConflict xerrors.Code = "INTENT_CONFLICT"
	CodeIntentPublish  xerrors.Code = "INTENT_PUBLISH_FAILED"
	CodeQuoteExpired   xerrors.Code = "QUOTE_EXPIRED"
)

var (
	// ErrIntentNotFound 表示指定的意图不存在。
	ErrIntentNotFound = xerrors.New(CodeIntentNotFound, "intent not found")
	// ErrIntentConflict 表示意图已被领取或已结束。
	ErrIntentConflict = xerrors.New(CodeIntentConflict, "intent conflict", xerrors.WithSeverity(xerrors.SeverityWarning))
)

func init() {
	xerrors.Register(CodeIntentNotFound, xerrors.Attributes{
		Message:   "intent not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeIntentConflict, xerrors.Attributes{
		Message:   "intent conflict",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeIntentPublish, xerrors.Attributes{
		Message:   "failed to publish intent",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeQuoteExpired, xerrors.Attributes{
		Message:   "quote expired before submission",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
}

// FromIntent 把状态机中的意图转换为持久化记录。
func FromIntent(in *swap.Intent) *Record {
	rec := &Record{
		ID:         in.ID,
		From:       in.From,
		To:         in.To,
		Slippage:   in.Slippage,
		Quote:      in.Quote,
		State:      in.State,
		Reason:     in.Reason,
		ApprovalTx: in.ApprovalTx,
		SwapTx:     in.SwapTx,
		CreatedAt:  in.CreatedAt.UnixMilli(),
		UpdatedAt:  in.UpdatedAt.UnixMilli(),
	}
	if in.Amount != nil {
		rec.Amount = in.Amount.String()
	}
	return rec
}

// Intent 还原出可交给 Sequencer 执行的意图。
func (r *Record) Intent() (*swap.Intent, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(r.Amount), 10)
	if !ok {
		return nil, xerrors.InvalidInput("amount", "记录中的数量无法解析")
	}
	return &swap.Intent{
		ID:         r.ID,
		From:       r.From,
		To:         r.To,
		Amount:     amount,
		Slippage:   r.Slippage,
		Quote:      r.Quote,
		State:      r.State,
		Reason:     r.Reason,
		ApprovalTx: r.ApprovalTx,
		SwapTx:     r.SwapTx,
		CreatedAt:  time.UnixMilli(r.CreatedAt),
		UpdatedAt:  time.UnixMilli(r.UpdatedAt),
	}, nil
}

// apply 把意图的可变字段写回记录。
func (r *Record) apply(in swap.Intent) {
	r.State = in.State
	r.Reason = in.Reason
	r.ApprovalTx = in.ApprovalTx
	r.SwapTx = in.SwapTx
	r.UpdatedAt = in.UpdatedAt.UnixMilli()
}

func cloneRecord(r *Record) *Record {
	clone := *r
	return &clone
}

// ListOptions 控制列表查询。
type ListOptions struct {
	Limit  int
	Offset int
	States []swap.State
}

func (opts *ListOptions) applyDefaults() {
	if opts.Limit <= 0 {
		opts.Limit = 20
	}
	if opts.Limit > 100 {
		opts.Limit = 100
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
}

// ListOption mutates ListOptions.
type ListOption func(*ListOptions)

// WithLimit limits the number of intents returned.
func WithLimit(limit int) ListOption {
	return func(opts *ListOptions) { opts.Limit = limit }
}

// WithOffset skips the first n matching intents.
func WithOffset(offset int) ListOption {
	return func(opts *ListOptions) { opts.Offset = offset }
}

// WithStates filters intents by state.
func WithStates(states ...swap.State) ListOption {
	return func(opts *ListOptions) { opts.States = append(opts.States[:0], states...) }
}

func buildListOptions(opts []ListOption) ListOptions {
	var options ListOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	options.applyDefaults()
	return options
}

func (opts ListOptions) matches(r *Record) bool {
	if len(opts.States) == 0 {
		return true
	}
	for _, s := range opts.States {
		if r.State == s {
			return true
		}
	}
	return false
}
