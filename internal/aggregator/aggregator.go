// Package aggregator 按优先级依次调用上游，返回第一个可用的价格或报价。
// 每条管道先查缓存，上游成功后先写缓存再返回；单个上游的失败只在本包内消化。
package aggregator

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	xerrors "NOLA-Exchange/internal/errors"
	"NOLA-Exchange/internal/observability/metrics"
	"NOLA-Exchange/internal/upstream"
)

const (
	pipelinePrice = "price"
	pipelineQuote = "quote"
)

// ErrQuoteUnavailable 表示所有报价上游都未能给出结果，调用方可以稍后重试。
var ErrQuoteUnavailable = xerrors.New(xerrors.CodeQuoteUnavailable, "no route")

type named interface {
	Name() string
}

// Select 按配置顺序挑选上游，名称未知时返回错误。
func Select[P named](order []string, available ...P) ([]P, error) {
	byName := make(map[string]P, len(available))
	for _, p := range available {
		byName[p.Name()] = p
	}
	selected := make([]P, 0, len(order))
	for _, name := range order {
		p, ok := byName[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("未知的上游: %s", name)
		}
		selected = append(selected, p)
	}
	if len(selected) == 0 {
		return nil, fmt.Errorf("上游列表为空")
	}
	return selected, nil
}

func observe(log *slog.Logger, provider string, start time.Time, u *upstream.Unavailable) {
	outcome := "ok"
	if u != nil {
		outcome = string(u.Reason)
		log.Warn("上游不可用",
			slog.String("provider", provider),
			slog.String("reason", string(u.Reason)),
			slog.String("detail", u.Detail))
	}
	metrics.ObserveUpstreamCall(provider, outcome, time.Since(start))
}
