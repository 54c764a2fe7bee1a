package swap

import (
	"math"
	"math/big"
	"strings"
	"time"

	xerrors "NOLA-Exchange/internal/errors"
	"NOLA-Exchange/internal/token"
	"NOLA-Exchange/internal/upstream"
)

// State 是兑换意图在状态机中的位置。
type State string

const (
	StateIdle       State = "Idle"
	StateApproving  State = "Approving"
	StateApproved   State = "Approved"
	StateSubmitting State = "Submitting"
	StateSubmitted  State = "Submitted"
	StateConfirmed  State = "Confirmed"
	StateFailed     State = "Failed"
)

// Terminal 判断是否为终态。
func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

const (
	CodeApprovalRejectedOrReverted xerrors.Code = "APPROVAL_REJECTED_OR_REVERTED"
	CodeSwapReverted               xerrors.Code = "SWAP_REVERTED"
	CodeSwapTimedOut               xerrors.Code = "SWAP_TIMED_OUT"
	CodeSignerBusy                 xerrors.Code = "SIGNER_BUSY"
)

var (
	ErrApprovalRejectedOrReverted = xerrors.New(CodeApprovalRejectedOrReverted, "")
	ErrSwapReverted               = xerrors.New(CodeSwapReverted, "")
	ErrSwapTimedOut               = xerrors.New(CodeSwapTimedOut, "")
	ErrSignerBusy                 = xerrors.New(CodeSignerBusy, "")
)

func init() {
	xerrors.Register(CodeApprovalRejectedOrReverted, xerrors.Attributes{
		Message:   "approval rejected or reverted",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeSwapReverted, xerrors.Attributes{
		Message:   "swap transaction reverted",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeSwapTimedOut, xerrors.Attributes{
		Message:   "swap confirmation timed out",
		Severity:  xerrors.SeverityCritical,
		Retryable: false,
		Alert:     true,
	})
	xerrors.Register(CodeSignerBusy, xerrors.Attributes{
		Message:   "signer is busy with another swap",
		Severity:  xerrors.SeverityInfo,
		Retryable: true,
		Alert:     false,
	})
}

// DefaultSlippage 是未指定时的滑点百分比。
const DefaultSlippage = 1.0

// Intent 是一次兑换请求及其执行进度。同一时刻只被一个执行流程持有。
type Intent struct {
	ID         string         `json:"id"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Amount     *big.Int       `json:"amount"`
	Slippage   float64        `json:"slippage"`
	Quote      upstream.Quote `json:"quote"`
	State      State          `json:"state"`
	Reason     string         `json:"reason,omitempty"`
	ApprovalTx string         `json:"approvalTx,omitempty"`
	SwapTx     string         `json:"swapTx,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// NewIntent 校验输入并创建处于 Idle 状态的意图，slippage 为 0 时取 1%。
func NewIntent(id, from, to string, amount *big.Int, slippage float64, quote upstream.Quote, now time.Time) (*Intent, error) {
	fromAddr, err := token.NormalizeAddress(from)
	if err != nil {
		return nil, xerrors.InvalidInput("from", "请选择有效的卖出代币")
	}
	toAddr, err := token.NormalizeAddress(to)
	if err != nil {
		return nil, xerrors.InvalidInput("to", "请选择有效的买入代币")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, xerrors.InvalidInput("amount", "数量必须为正数")
	}
	if slippage == 0 {
		slippage = DefaultSlippage
	}
	if slippage < 0 || slippage > 50 || math.IsNaN(slippage) {
		return nil, xerrors.InvalidInput("slippage", "滑点必须在 (0, 50] 区间内")
	}
	if quote.ToAmount == nil || !strings.EqualFold(quote.FromToken, fromAddr) || !strings.EqualFold(quote.ToToken, toAddr) {
		return nil, xerrors.InvalidInput("quote", "报价与兑换代币不匹配")
	}
	return &Intent{
		ID:        id,
		From:      fromAddr,
		To:        toAddr,
		Amount:    new(big.Int).Set(amount),
		Slippage:  slippage,
		Quote:     quote,
		State:     StateIdle,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// MaxGasEstimate 是可接受的报价 gas 估算上限，超过即视为上游数据异常。
const MaxGasEstimate uint64 = 30_000_000

// GasLimit 在报价估算的基础上增加 20% 余量并向下取整，结果在 uint64 上饱和。
func GasLimit(estimate uint64) uint64 {
	if estimate > math.MaxUint64/12 {
		return math.MaxUint64
	}
	return estimate * 12 / 10
}

// MinOutput 返回考虑滑点后的最少可得数量：toAmount * (100 - slippage) / 100。
func MinOutput(quote upstream.Quote, slippage float64) *big.Int {
	if quote.ToAmount == nil {
		return new(big.Int)
	}
	bps := int64(math.Round(slippage * 100))
	out := new(big.Int).Mul(quote.ToAmount, big.NewInt(10_000-bps))
	return out.Quo(out, big.NewInt(10_000))
}
