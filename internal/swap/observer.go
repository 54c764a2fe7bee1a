package swap

import (
	"context"
	"log/slog"

	"NOLA-Exchange/internal/observability/metrics"
	"NOLA-Exchange/pkg/logger"
)

// Observer 接收每一次状态迁移。intent 是迁移后的快照。
type Observer interface {
	OnTransition(ctx context.Context, intent Intent, from State)
}

// ObserverFunc 让普通函数实现 Observer。
type ObserverFunc func(ctx context.Context, intent Intent, from State)

// OnTransition 实现 Observer。
func (f ObserverFunc) OnTransition(ctx context.Context, intent Intent, from State) {
	f(ctx, intent, from)
}

// AuditObserver 把迁移写入审计日志并计数。
type AuditObserver struct{}

// OnTransition 实现 Observer。
func (AuditObserver) OnTransition(_ context.Context, in Intent, from State) {
	metrics.ObserveSwapTransition(string(in.State))
	attrs := []any{
		slog.String("intent_id", in.ID),
		slog.String("from_state", string(from)),
		slog.String("state", string(in.State)),
		slog.String("token_in", in.From),
		slog.String("token_out", in.To),
		slog.String("amount", in.Amount.String()),
		slog.String("source", in.Quote.Source),
	}
	if in.ApprovalTx != "" {
		attrs = append(attrs, slog.String("approval_tx", in.ApprovalTx))
	}
	if in.SwapTx != "" {
		attrs = append(attrs, slog.String("swap_tx", in.SwapTx))
	}
	if in.Reason != "" {
		attrs = append(attrs, slog.String("reason", in.Reason))
	}
	logger.Audit().Info("swap_transition", attrs...)
}
