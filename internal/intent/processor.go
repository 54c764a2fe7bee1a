package intent

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "NOLA-Exchange/internal/errors"
	"NOLA-Exchange/internal/observability/alerting"
	"NOLA-Exchange/internal/swap"
	"NOLA-Exchange/pkg/logger"
)

// DefaultMaxQuoteAge 是排队意图可接受的最大报价年龄。
const DefaultMaxQuoteAge = 30 * time.Second

// Executor 定义了处理器所需的执行能力，由 swap.Sequencer 实现。
type Executor interface {
	Execute(ctx context.Context, in *swap.Intent) error
}

// Processor 从队列消费意图并交给 Sequencer 执行。同一签名者只有一个消费协程，保证 nonce 顺序。
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	maxQuoteAge time.Duration
	now         func() time.Time
	logger      *slog.Logger
	alerter     alerting.Dispatcher
}

// ProcessorOption 定义可选配置。
type ProcessorOption func(*Processor)

// WithMaxQuoteAge 设置报价过期阈值。
func WithMaxQuoteAge(d time.Duration) ProcessorOption {
	return func(p *Processor) {
		if d > 0 {
			p.maxQuoteAge = d
		}
	}
}

// WithProcessorClock 替换时钟，测试使用。
func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithAlertDispatcher 配置告警派发器。
func WithAlertDispatcher(dispatcher alerting.Dispatcher) ProcessorOption {
	return func(p *Processor) {
		p.alerter = dispatcher
	}
}

// NewProcessor 构造 Processor。
func NewProcessor(executor Executor, store Store, consumer Consumer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		maxQuoteAge: DefaultMaxQuoteAge,
		now:         time.Now,
		logger:      logger.Named("intent"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start 启动消费循环，直到 ctx 结束。
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "未配置意图消费者")
	}
	return p.consumer.Consume(ctx, 1, p.Handle)
}

// Handle 执行单个意图。失败的意图保持失败状态，不会自动重试。
func (p *Processor) Handle(ctx context.Context, id string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "处理器未初始化")
	}
	rec, err := p.store.Claim(ctx, id)
	if err != nil {
		if stdErrors.Is(err, ErrIntentNotFound) || stdErrors.Is(err, ErrIntentConflict) {
			p.logger.Debug("跳过意图", slog.String("intent_id", id), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("领取意图失败", slog.Any("error", err), slog.String("intent_id", id))
		return err
	}

	in, err := rec.Intent()
	if err != nil {
		return p.finish(ctx, rec, nil, err)
	}
	if created := in.Quote.CreatedAt; !created.IsZero() {
		if age := p.now().Sub(created); age > p.maxQuoteAge {
			expired := xerrors.New(CodeQuoteExpired,
				fmt.Sprintf("报价已过期 %s，超过 %s", age.Truncate(time.Millisecond), p.maxQuoteAge),
				xerrors.WithMetadata("intent_id", in.ID))
			return p.finish(ctx, rec, in, expired)
		}
	}

	execErr := p.executor.Execute(ctx, in)
	return p.finish(ctx, rec, in, execErr)
}

// finish 持久化终态、写审计日志并按需告警。
func (p *Processor) finish(ctx context.Context, rec *Record, in *swap.Intent, execErr error) error {
	if in != nil {
		rec.apply(*in)
	}
	if execErr != nil {
		if rec.State != swap.StateFailed {
			rec.State = swap.StateFailed
			rec.Reason = execErr.Error()
			rec.UpdatedAt = p.now().UnixMilli()
		}
		rec.ErrorCode = string(xerrors.CodeOf(execErr))
	}

	persistCtx := context.WithoutCancel(ctx)
	if err := p.store.Save(persistCtx, rec); err != nil {
		p.logger.Error("保存意图终态失败", slog.Any("error", err), slog.String("intent_id", rec.ID))
		return err
	}

	if execErr == nil {
		logger.Audit().Info("兑换意图完成",
			slog.String("intent_id", rec.ID),
			slog.String("state", string(rec.State)),
			slog.String("swap_tx", rec.SwapTx),
		)
		return nil
	}
	logger.Audit().Warn("兑换意图失败",
		slog.String("intent_id", rec.ID),
		slog.String("state", string(rec.State)),
		slog.String("error_code", rec.ErrorCode),
		slog.String("error", execErr.Error()),
	)
	if xerrors.ShouldAlert(execErr) {
		p.emitAlert(persistCtx, rec, execErr)
	}
	return nil
}

func (p *Processor) emitAlert(ctx context.Context, rec *Record, cause error) {
	if p.alerter == nil {
		return
	}
	metadata := map[string]string{
		"token_in":  rec.From,
		"token_out": rec.To,
		"amount":    rec.Amount,
		"source":    rec.Quote.Source,
	}
	if rec.ApprovalTx != "" {
		metadata["approval_tx"] = rec.ApprovalTx
	}
	if rec.SwapTx != "" {
		metadata["swap_tx"] = rec.SwapTx
	}
	event := alerting.Event{
		Code:       xerrors.CodeOf(cause),
		Message:    cause.Error(),
		Severity:   xerrors.SeverityOf(cause),
		IntentID:   rec.ID,
		State:      string(rec.State),
		Metadata:   metadata,
		OccurredAt: p.now(),
	}
	if err := p.alerter.Notify(ctx, event); err != nil {
		p.logger.Error("告警通知失败", slog.Any("error", err), slog.String("intent_id", rec.ID))
	}
}

// PersistObserver 在每次状态迁移后写回存储，使查询接口能看到中间状态。
func PersistObserver(store Store) swap.Observer {
	log := logger.Named("intent")
	return swap.ObserverFunc(func(ctx context.Context, in swap.Intent, _ swap.State) {
		rec := &Record{ID: in.ID}
		rec.apply(in)
		if err := store.Save(context.WithoutCancel(ctx), rec); err != nil {
			log.Warn("保存状态迁移失败",
				slog.String("intent_id", in.ID),
				slog.String("state", string(in.State)),
				slog.Any("error", err))
		}
	})
}
