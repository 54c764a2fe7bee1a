package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"NOLA-Exchange/internal/aggregator"
	xerrors "NOLA-Exchange/internal/errors"
	"NOLA-Exchange/internal/intent"
	"NOLA-Exchange/internal/marketdata"
	"NOLA-Exchange/internal/swap"
	"NOLA-Exchange/internal/token"
	"NOLA-Exchange/internal/web3"
	"NOLA-Exchange/pkg/logger"
)

const maxBodyBytes = 64 << 10

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	body := errorBody{Code: string(xerrors.CodeOf(err)), Message: err.Error()}
	if e, ok := xerrors.From(err); ok {
		body.Message = e.Message()
		body.Details = e.Metadata()
	}
	if status >= http.StatusInternalServerError {
		logger.L().Error("请求处理失败", slog.Any("error", err))
	}
	writeJSON(w, status, map[string]any{"error": body})
}

func statusOf(err error) int {
	switch xerrors.CodeOf(err) {
	case xerrors.CodeInvalidInput:
		return http.StatusBadRequest
	case xerrors.CodeNotFound, intent.CodeIntentNotFound, xerrors.CodeQuoteUnavailable:
		return http.StatusNotFound
	case xerrors.CodeConflict, intent.CodeIntentConflict, swap.CodeSignerBusy:
		return http.StatusConflict
	case marketdata.CodeNotYetAvailable, xerrors.CodeInitializationFailure:
		return http.StatusServiceUnavailable
	case xerrors.CodeUnavailable, xerrors.CodeTimeout:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func unavailable(what string) error {
	return xerrors.New(xerrors.CodeInitializationFailure, what+" 未配置")
}

func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	if s.deps.Tokens == nil {
		writeError(w, unavailable("代币列表"))
		return
	}
	tokens := s.deps.Tokens.Search(r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

type priceResponse struct {
	Token     string   `json:"token"`
	Price     *float64 `json:"price"`
	Timestamp *int64   `json:"timestamp"`
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prices == nil {
		writeError(w, unavailable("价格服务"))
		return
	}
	addr := r.URL.Query().Get("token")
	point, ok, err := s.deps.Prices.GetTokenPriceUSD(r.Context(), addr)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := priceResponse{Token: strings.ToLower(strings.TrimSpace(addr))}
	if ok {
		price := point.USD
		ts := point.Timestamp.UnixMilli()
		resp.Price = &price
		resp.Timestamp = &ts
	}
	writeJSON(w, http.StatusOK, resp)
}

type quoteResponse struct {
	Source         string  `json:"source"`
	FromToken      string  `json:"fromToken"`
	ToToken        string  `json:"toToken"`
	FromAmount     string  `json:"fromAmount"`
	ToAmount       string  `json:"toAmount"`
	ToAmountHuman  string  `json:"toAmountHuman"`
	MinOutput      string  `json:"minOutput"`
	MinOutputHuman string  `json:"minOutputHuman"`
	Slippage       float64 `json:"slippage"`
	To             string  `json:"to,omitempty"`
	Data           string  `json:"data,omitempty"`
	Value          string  `json:"value,omitempty"`
	Spender        string  `json:"spender,omitempty"`
	GasEstimate    uint64  `json:"gasEstimate,omitempty"`
	CreatedAt      int64   `json:"createdAt"`
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	if s.deps.Quotes == nil {
		writeError(w, unavailable("报价服务"))
		return
	}
	q := r.URL.Query()
	req, err := aggregator.ParseQuoteRequest(q.Get("from"), q.Get("to"), q.Get("amount"), q.Get("slippage"))
	if err != nil {
		writeError(w, err)
		return
	}
	quote, err := s.deps.Quotes.GetQuote(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}

	var decimals int32 = token.DefaultDecimals
	if s.deps.Tokens != nil {
		decimals = s.deps.Tokens.DecimalsOf(quote.ToToken)
	}
	minOut := swap.MinOutput(quote, req.Slippage)
	resp := quoteResponse{
		Source:         quote.Source,
		FromToken:      quote.FromToken,
		ToToken:        quote.ToToken,
		FromAmount:     bigString(quote.FromAmount),
		ToAmount:       bigString(quote.ToAmount),
		ToAmountHuman:  token.FormatUnits(quote.ToAmount, decimals),
		MinOutput:      minOut.String(),
		MinOutputHuman: token.FormatUnits(minOut, decimals),
		Slippage:       req.Slippage,
		To:             quote.To,
		Data:           quote.Data,
		Spender:        quote.Spender,
		GasEstimate:    quote.GasEstimate,
		CreatedAt:      quote.CreatedAt.UnixMilli(),
	}
	if quote.Value != nil && quote.Value.Sign() > 0 {
		resp.Value = quote.Value.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmitSwap(w http.ResponseWriter, r *http.Request) {
	if s.deps.Intents == nil {
		writeError(w, unavailable("签名者"))
		return
	}
	var req intent.SubmitRequest
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, xerrors.InvalidInput("body", "请求体解析失败"))
		return
	}
	rec, err := s.deps.Intents.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func (s *Server) handleSwapDetail(w http.ResponseWriter, r *http.Request) {
	if s.deps.Intents == nil {
		writeError(w, unavailable("签名者"))
		return
	}
	rec, err := s.deps.Intents.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleListSwaps(w http.ResponseWriter, r *http.Request) {
	if s.deps.Intents == nil {
		writeError(w, unavailable("签名者"))
		return
	}
	q := r.URL.Query()
	var opts []intent.ListOption
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			writeError(w, xerrors.InvalidInput("limit", "limit 必须是正整数"))
			return
		}
		opts = append(opts, intent.WithLimit(limit))
	}
	if raw := q.Get("offset"); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			writeError(w, xerrors.InvalidInput("offset", "offset 必须是非负整数"))
			return
		}
		opts = append(opts, intent.WithOffset(offset))
	}
	if raw := q.Get("state"); raw != "" {
		var states []swap.State
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				states = append(states, swap.State(part))
			}
		}
		opts = append(opts, intent.WithStates(states...))
	}
	records, err := s.deps.Intents.List(r.Context(), opts...)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"swaps": records})
}

func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	if s.deps.Market == nil {
		writeError(w, marketdata.ErrNotYetAvailable)
		return
	}
	snap, err := s.deps.Market.Read(r.PathValue("name"))
	if err != nil {
		if errors.Is(err, marketdata.ErrNotYetAvailable) {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "msg": "no cache yet"})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":        true,
		"source":    "cache",
		"timestamp": snap.Timestamp,
		"data":      snap.Payload,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.deps.Chain != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		snapshot, err := s.deps.Chain.FetchChainSnapshot(ctx)
		if err != nil {
			resp["status"] = "degraded"
			resp["chain_error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["chain"] = chainView(snapshot)
	}
	if s.deps.Intents != nil {
		stats, err := s.deps.Intents.Stats(r.Context())
		if err != nil {
			resp["status"] = "degraded"
			resp["intents_error"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
		resp["intents"] = stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func chainView(s web3.ChainSnapshot) map[string]string {
	return map[string]string{
		"name":         s.Name,
		"chain_id":     s.ChainID,
		"block_number": s.BlockNumber,
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

var _ QuoteSource = (*aggregator.QuoteAggregator)(nil)
var _ PriceSource = (*aggregator.PriceAggregator)(nil)
var _ IntentService = (*intent.Service)(nil)
var _ SnapshotReader = (*marketdata.Reader)(nil)
