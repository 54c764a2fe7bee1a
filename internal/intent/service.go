package intent

import (
	"context"
	stdErrors "errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"NOLA-Exchange/internal/aggregator"
	xerrors "NOLA-Exchange/internal/errors"
	"NOLA-Exchange/internal/swap"
	"NOLA-Exchange/internal/token"
	"NOLA-Exchange/internal/upstream"
	"NOLA-Exchange/pkg/logger"
)

// Quoter 为新意图获取按意图自身滑点生成、未经缓存的可执行报价。
type Quoter interface {
	ExecutableQuote(ctx context.Context, req upstream.QuoteRequest) (upstream.Quote, error)
}

var _ Quoter = (*aggregator.QuoteAggregator)(nil)

// SubmitRequest 是提交兑换意图的参数。ID 为空时自动生成，非空时用于幂等提交。
type SubmitRequest struct {
	ID       string  `json:"id,omitempty"`
	From     string  `json:"from"`
	To       string  `json:"to"`
	Amount   string  `json:"amount"`
	Slippage float64 `json:"slippage,omitempty"`
}

// Service 负责意图的创建与查询。
type Service struct {
	store    Store
	producer Producer
	quoter   Quoter
	now      func() time.Time
}

// ServiceOption 定义可选配置。
type ServiceOption func(*Service)

// WithServiceClock 替换时钟，测试使用。
func WithServiceClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService 构造意图服务。
func NewService(store Store, producer Producer, quoter Quoter, opts ...ServiceOption) *Service {
	s := &Service{store: store, producer: producer, quoter: quoter, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit 校验参数、重新询价、创建意图并推送到队列。
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Record, error) {
	if s.store == nil || s.producer == nil || s.quoter == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "意图服务未初始化")
	}
	amount, err := token.ParseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	qreq, err := aggregator.ValidateQuoteRequest(upstream.QuoteRequest{
		From:     req.From,
		To:       req.To,
		Amount:   amount,
		Slippage: req.Slippage,
	})
	if err != nil {
		return nil, err
	}

	id := strings.TrimSpace(req.ID)
	if id != "" {
		existing, err := s.store.Get(ctx, id)
		if err == nil {
			return existing, nil
		}
		if !stdErrors.Is(err, ErrIntentNotFound) {
			return nil, err
		}
	} else {
		id = uuid.NewString()
	}

	quote, err := s.quoter.ExecutableQuote(ctx, qreq)
	if err != nil {
		return nil, err
	}
	in, err := swap.NewIntent(id, qreq.From, qreq.To, qreq.Amount, qreq.Slippage, quote, s.now())
	if err != nil {
		return nil, err
	}
	rec := FromIntent(in)
	if err := s.store.Create(ctx, rec); err != nil {
		if stdErrors.Is(err, ErrIntentConflict) {
			if existing, getErr := s.store.Get(ctx, id); getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	if err := s.producer.Publish(ctx, id); err != nil {
		logger.L().Error("意图入队失败", slog.Any("error", err), slog.String("intent_id", id))
		wrapped := xerrors.Wrap(CodeIntentPublish, err, "发布意图到队列失败")
		rec.State = swap.StateFailed
		rec.Reason = wrapped.Error()
		rec.ErrorCode = string(CodeIntentPublish)
		rec.UpdatedAt = s.now().UnixMilli()
		_ = s.store.Save(ctx, rec)
		return nil, wrapped
	}
	logger.Audit().Info("兑换意图入队",
		slog.String("intent_id", id),
		slog.String("token_in", rec.From),
		slog.String("token_out", rec.To),
		slog.String("amount", rec.Amount),
		slog.Float64("slippage", rec.Slippage),
		slog.String("source", quote.Source),
	)
	return rec, nil
}

// Get 返回指定意图。
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "意图存储未初始化")
	}
	return s.store.Get(ctx, strings.TrimSpace(id))
}

// List 返回符合过滤条件的意图列表。
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Record, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "意图存储未初始化")
	}
	return s.store.List(ctx, buildListOptions(opts))
}

// Stats 返回意图的状态分布。
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	if s.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeInitializationFailure, "意图存储未初始化")
	}
	return s.store.Stats(ctx)
}

// WaitUntilFinal 轮询直到意图进入终态或 ctx 结束。
func (s *Service) WaitUntilFinal(ctx context.Context, id string, interval time.Duration) (*Record, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if rec.State.Terminal() {
			return rec, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close 释放资源。
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return stdErrors.Join(errs...)
}
