package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fundingvault/native/funding"
	"fundingvault/native/payqueue"
	"fundingvault/observability"
)

const (
	jsonRPCVersion  = "2.0"
	maxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeUnauthorized   = -32001
	codeServerError    = -32000
)

// PriceReader exposes the read side of the oracle at a requested precision.
type PriceReader interface {
	IssuancePrice(decimals uint8) (*big.Int, error)
	RedemptionPrice(decimals uint8) (*big.Int, error)
}

// Server fronts the funding engine with a JSON-RPC 2.0 endpoint.
type Server struct {
	engine    *funding.Engine
	queue     *payqueue.Queue
	prices    PriceReader
	logger    *slog.Logger
	authToken string
}

// NewServer wires the gateway against the engine and its queue. An empty
// auth token leaves write methods open; intended only for local development.
func NewServer(engine *funding.Engine, queue *payqueue.Queue, prices PriceReader, logger *slog.Logger, authToken string) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:    engine,
		queue:     queue,
		prices:    prices,
		logger:    logger,
		authToken: strings.TrimSpace(authToken),
	}
}

// Router assembles the HTTP surface: the RPC endpoint plus health and
// metrics.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/", s.handle)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// Start serves HTTP on addr until the context is cancelled, then drains
// in-flight requests before returning.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- server.ListenAndServe() }()
	s.logger.Info("starting JSON-RPC gateway", "addr", addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("shutting down gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      interface{}       `json:"id"`
}

type RPCResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func errorStatus(code int) int {
	switch code {
	case codeUnauthorized:
		return http.StatusUnauthorized
	case codeMethodNotFound:
		return http.StatusNotFound
	case codeParseError, codeInvalidRequest, codeInvalidParams:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, status int, id interface{}, rpcErr *RPCError) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: rpcErr})
}

func writeResult(w http.ResponseWriter, id interface{}, result interface{}) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	supplied := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return subtle.ConstantTimeCompare([]byte(supplied), []byte(s.authToken)) == 1
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	requestID := uuid.NewString()
	w.Header().Set("Content-Type", "application/json")

	req := &RPCRequest{}
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := decoder.Decode(req); err != nil {
		writeError(w, http.StatusBadRequest, nil, &RPCError{Code: codeParseError, Message: "invalid JSON payload", Data: err.Error()})
		observability.Gateway().Observe("unknown", http.StatusBadRequest, time.Since(started))
		return
	}
	if req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, &RPCError{Code: codeInvalidRequest, Message: "unsupported jsonrpc version", Data: req.JSONRPC})
		observability.Gateway().Observe("unknown", http.StatusBadRequest, time.Since(started))
		return
	}
	method := strings.TrimSpace(req.Method)
	if method == "" {
		writeError(w, http.StatusBadRequest, req.ID, &RPCError{Code: codeInvalidRequest, Message: "method required"})
		observability.Gateway().Observe("unknown", http.StatusBadRequest, time.Since(started))
		return
	}

	if writeMethod(method) && !s.authorized(r) {
		writeError(w, http.StatusUnauthorized, req.ID, &RPCError{Code: codeUnauthorized, Message: "unauthorized"})
		s.logger.Warn("rejected unauthorized request", "method", method, "requestId", requestID)
		observability.Gateway().Observe(method, http.StatusUnauthorized, time.Since(started))
		return
	}

	result, rpcErr := s.dispatch(req)
	status := http.StatusOK
	if rpcErr != nil {
		status = errorStatus(rpcErr.Code)
		writeError(w, status, req.ID, rpcErr)
		s.logger.Warn("request failed", "method", method, "requestId", requestID, "code", rpcErr.Code, "message", rpcErr.Message)
	} else {
		writeResult(w, req.ID, result)
		s.logger.Info("request served", "method", method, "requestId", requestID)
	}
	observability.Gateway().Observe(method, status, time.Since(started))
}

// writeMethod reports whether the method mutates engine state and therefore
// needs the bearer token.
func writeMethod(method string) bool {
	switch method {
	case "funding_sell", "funding_buy", "funding_depositReserve", "funding_executeQueue",
		"funding_claimUnclaimable", "funding_cancel",
		"oracle_setIssuancePrice", "oracle_setRedemptionPrice":
		return true
	}
	return false
}

func (s *Server) dispatch(req *RPCRequest) (interface{}, *RPCError) {
	switch req.Method {
	case "funding_sell":
		return s.handleSell(req)
	case "funding_buy":
		return s.handleBuy(req)
	case "funding_depositReserve":
		return s.handleDepositReserve(req)
	case "funding_executeQueue":
		return s.handleExecuteQueue(req)
	case "funding_claimUnclaimable":
		return s.handleClaimUnclaimable(req)
	case "funding_unclaimable":
		return s.handleUnclaimable(req)
	case "funding_cancel":
		return s.handleCancel(req)
	case "funding_openRedemption":
		return s.handleOpenRedemption(req)
	case "queue_head":
		return s.handleQueueHead(req)
	case "queue_tail":
		return s.handleQueueTail(req)
	case "queue_size":
		return s.handleQueueSize(req)
	case "queue_order":
		return s.handleQueueOrder(req)
	case "oracle_setIssuancePrice":
		return s.handleSetPrice(req, true)
	case "oracle_setRedemptionPrice":
		return s.handleSetPrice(req, false)
	case "oracle_prices":
		return s.handlePrices(req)
	default:
		return nil, &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method %s", req.Method)}
	}
}
