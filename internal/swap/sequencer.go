// Package swap 驱动 授权 → 兑换 的两阶段链上流程。每个状态迁移只尝试一次，
// 失败立即返回，是否重新报价由调用方决定。
package swap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "NOLA-Exchange/internal/errors"
	"NOLA-Exchange/internal/token"
	"NOLA-Exchange/pkg/logger"
)

const (
	// DefaultGasEstimate 用于报价没有给出 gas 估算的情况。
	DefaultGasEstimate uint64 = 300_000
	// DefaultConfirmTimeout 是等待交易上链的默认时长。
	DefaultConfirmTimeout = 3 * time.Minute
)

// Tx 是待签名发送的交易。
type Tx struct {
	To       string
	Data     []byte
	Value    *big.Int
	GasLimit uint64
}

// Receipt 是链上回执的最小视图。Status 为 0 表示回滚。
type Receipt struct {
	Hash        string
	Status      uint64
	BlockNumber uint64
	GasUsed     uint64
}

// Pending 是已广播但未确认的交易。
type Pending interface {
	Hash() string
	Wait(ctx context.Context) (Receipt, error)
}

// Chain 是签名者边界，密钥托管不在本包内。
type Chain interface {
	Account() string
	Allowance(ctx context.Context, token, owner, spender string) (*big.Int, error)
	Approve(ctx context.Context, token, spender string, amount *big.Int) (Pending, error)
	Send(ctx context.Context, tx Tx) (Pending, error)
}

// Config 描述执行参数。
type Config struct {
	NativeToken        string
	DefaultSpender     string
	DefaultGasEstimate uint64
	ConfirmTimeout     time.Duration
	// RejectWhenBusy 为 true 时签名者忙碌直接返回 ErrSignerBusy，否则排队等待。
	RejectWhenBusy bool
}

// Sequencer 是单个签名者上的串行执行器。
type Sequencer struct {
	chain     Chain
	cfg       Config
	mu        sync.Mutex
	observers []Observer
	now       func() time.Time
	log       *slog.Logger
}

// Option 自定义 Sequencer。
type Option func(*Sequencer)

// WithObserver 注册状态迁移观察者。
func WithObserver(obs Observer) Option {
	return func(s *Sequencer) {
		if obs != nil {
			s.observers = append(s.observers, obs)
		}
	}
}

// WithClock 注入时钟。
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSequencer 创建执行器。
func NewSequencer(chain Chain, cfg Config, opts ...Option) *Sequencer {
	if cfg.DefaultGasEstimate == 0 {
		cfg.DefaultGasEstimate = DefaultGasEstimate
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = DefaultConfirmTimeout
	}
	cfg.NativeToken = strings.ToLower(cfg.NativeToken)
	cfg.DefaultSpender = strings.ToLower(cfg.DefaultSpender)
	s := &Sequencer{chain: chain, cfg: cfg, now: time.Now, log: logger.Named("swap")}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Account 返回签名者地址。
func (s *Sequencer) Account() string { return s.chain.Account() }

// Execute 执行一个 Idle 状态的意图直至终态。返回的错误与 intent.Reason 一致。
func (s *Sequencer) Execute(ctx context.Context, in *Intent) error {
	if s.cfg.RejectWhenBusy {
		if !s.mu.TryLock() {
			return ErrSignerBusy
		}
	} else {
		s.mu.Lock()
	}
	defer s.mu.Unlock()

	if in.State != StateIdle {
		return xerrors.New(xerrors.CodeConflict, fmt.Sprintf("意图 %s 已处于 %s 状态", in.ID, in.State))
	}
	tx, err := s.buildSwapTx(in)
	if err != nil {
		return err
	}

	if token.SameAddress(in.From, s.cfg.NativeToken) {
		s.transition(ctx, in, StateSubmitting)
	} else {
		if err := s.approve(ctx, in); err != nil {
			return err
		}
		s.transition(ctx, in, StateSubmitting)
	}
	return s.submit(ctx, in, tx)
}

// approve 在授权额度不足时发送授权并等待确认。
func (s *Sequencer) approve(ctx context.Context, in *Intent) error {
	spender := in.Quote.Spender
	if spender == "" {
		spender = in.Quote.To
	}
	if spender == "" {
		spender = s.cfg.DefaultSpender
	}

	allowance, err := s.chain.Allowance(ctx, in.From, s.chain.Account(), spender)
	if err != nil {
		return s.fail(ctx, in, CodeApprovalRejectedOrReverted, err, "读取授权额度失败")
	}
	if allowance != nil && allowance.Cmp(in.Amount) >= 0 {
		s.transition(ctx, in, StateApproved)
		return nil
	}

	s.transition(ctx, in, StateApproving)
	pending, err := s.chain.Approve(ctx, in.From, spender, in.Amount)
	if err != nil {
		return s.fail(ctx, in, CodeApprovalRejectedOrReverted, err, "授权交易被拒绝")
	}
	in.ApprovalTx = pending.Hash()

	receipt, err := s.wait(ctx, pending)
	if err != nil {
		return s.fail(ctx, in, CodeApprovalRejectedOrReverted, err, "等待授权确认失败")
	}
	if receipt.Status == 0 {
		return s.fail(ctx, in, CodeApprovalRejectedOrReverted, nil, "授权交易回滚 "+receipt.Hash)
	}
	s.transition(ctx, in, StateApproved)
	return nil
}

func (s *Sequencer) submit(ctx context.Context, in *Intent, tx Tx) error {
	pending, err := s.chain.Send(ctx, tx)
	if err != nil {
		return s.fail(ctx, in, CodeSwapReverted, err, "兑换交易提交失败")
	}
	in.SwapTx = pending.Hash()
	s.transition(ctx, in, StateSubmitted)

	receipt, err := s.wait(ctx, pending)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return s.fail(ctx, in, CodeSwapTimedOut, err, "等待兑换确认超时")
		}
		return s.fail(ctx, in, CodeSwapReverted, err, "等待兑换确认失败")
	}
	if receipt.Status == 0 {
		return s.fail(ctx, in, CodeSwapReverted, nil, "兑换交易回滚 "+receipt.Hash)
	}
	s.transition(ctx, in, StateConfirmed)
	return nil
}

func (s *Sequencer) wait(ctx context.Context, pending Pending) (Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.ConfirmTimeout)
	defer cancel()
	receipt, err := pending.Wait(waitCtx)
	if err != nil && waitCtx.Err() != nil {
		return receipt, waitCtx.Err()
	}
	return receipt, err
}

// buildSwapTx 根据报价构建兑换交易，校验在任何状态迁移之前完成。
func (s *Sequencer) buildSwapTx(in *Intent) (Tx, error) {
	q := in.Quote
	if q.To == "" {
		return Tx{}, xerrors.InvalidInput("quote", "报价缺少可执行的路由合约")
	}
	if _, err := token.NormalizeAddress(q.To); err != nil {
		return Tx{}, xerrors.InvalidInput("quote", "报价路由合约地址非法")
	}
	var data []byte
	if q.Data != "" {
		decoded, err := hexutil.Decode(q.Data)
		if err != nil {
			return Tx{}, xerrors.InvalidInput("quote", "报价调用数据非法")
		}
		data = decoded
	}
	estimate := q.GasEstimate
	if estimate == 0 {
		estimate = s.cfg.DefaultGasEstimate
	}
	if estimate > MaxGasEstimate {
		return Tx{}, xerrors.InvalidInput("quote", fmt.Sprintf("报价 gas 估算 %d 超过上限 %d", estimate, MaxGasEstimate))
	}
	value := new(big.Int)
	if q.Value != nil {
		value.Set(q.Value)
	}
	return Tx{To: q.To, Data: data, Value: value, GasLimit: GasLimit(estimate)}, nil
}

func (s *Sequencer) transition(ctx context.Context, in *Intent, next State) {
	prev := in.State
	in.State = next
	in.UpdatedAt = s.now()
	s.log.Debug("状态迁移",
		slog.String("intent_id", in.ID),
		slog.String("from", string(prev)),
		slog.String("to", string(next)))
	for _, obs := range s.observers {
		obs.OnTransition(ctx, *in, prev)
	}
}

func (s *Sequencer) fail(ctx context.Context, in *Intent, code xerrors.Code, cause error, message string) error {
	err := xerrors.Wrap(code, cause, message, xerrors.WithMetadata("intent_id", in.ID))
	if cause == nil {
		err = xerrors.New(code, message, xerrors.WithMetadata("intent_id", in.ID))
	}
	in.Reason = err.Error()
	s.transition(ctx, in, StateFailed)
	return err
}
