package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"NOLA-Exchange/internal/intent"
	"NOLA-Exchange/internal/marketdata"
	"NOLA-Exchange/internal/observability/metrics"
	"NOLA-Exchange/internal/token"
	"NOLA-Exchange/internal/upstream"
	"NOLA-Exchange/internal/web3"
)

// TokenDirectory 提供代币搜索与精度查询。
type TokenDirectory interface {
	Search(query string) []token.Token
	DecimalsOf(addr string) int32
}

// PriceSource 返回代币美元价格。
type PriceSource interface {
	GetTokenPriceUSD(ctx context.Context, address string) (upstream.PricePoint, bool, error)
}

// QuoteSource 返回兑换报价。
type QuoteSource interface {
	GetQuote(ctx context.Context, req upstream.QuoteRequest) (upstream.Quote, error)
}

// IntentService 管理兑换意图。
type IntentService interface {
	Submit(ctx context.Context, req intent.SubmitRequest) (*intent.Record, error)
	Get(ctx context.Context, id string) (*intent.Record, error)
	List(ctx context.Context, opts ...intent.ListOption) ([]*intent.Record, error)
	Stats(ctx context.Context) (intent.Stats, error)
}

// SnapshotReader 读取行情快照。
type SnapshotReader interface {
	Read(name string) (marketdata.Snapshot, error)
}

// Deps 汇总 API 依赖。Intents 与 Chain 可以为空，此时对应接口返回 503。
type Deps struct {
	Tokens  TokenDirectory
	Prices  PriceSource
	Quotes  QuoteSource
	Intents IntentService
	Market  SnapshotReader
	Chain   web3.Client
}

// Server 负责暴露 REST 接口。
type Server struct {
	addr string
	deps Deps
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, deps Deps) *Server {
	return &Server{addr: addr, deps: deps}
}

// Handler 返回注册了全部路由的处理器。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "GET /api/v1/tokens", "tokens", s.handleTokens)
	s.route(mux, "GET /api/v1/price", "price", s.handlePrice)
	s.route(mux, "GET /api/v1/quote", "quote", s.handleQuote)
	s.route(mux, "POST /api/v1/swaps", "swap_submit", s.handleSubmitSwap)
	s.route(mux, "GET /api/v1/swaps", "swap_list", s.handleListSwaps)
	s.route(mux, "GET /api/v1/swaps/{id}", "swap_detail", s.handleSwapDetail)
	s.route(mux, "GET /api/v1/market/{name}", "market", s.handleMarket)
	s.route(mux, "GET /healthz", "healthz", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// route 注册处理器并记录请求指标。
func (s *Server) route(mux *http.ServeMux, pattern, name string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		metrics.ObserveHTTPRequest(name, r.Method, rec.status, time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
