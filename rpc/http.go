package rpc

import (
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"reservehook/core/state"
	"reservehook/crypto"
	"reservehook/native/reserve"
	"reservehook/native/router"
	"reservehook/observability"
)

// Server exposes the ledger and the swap coordinator over HTTP. Mutating
// requests are serialised and bracketed with a state snapshot so a failed
// handler leaves no partial writes behind.
type Server struct {
	mu     sync.Mutex
	state  *state.Manager
	ledger *reserve.Engine
	swaps  *router.Router
	log    *slog.Logger
}

func NewServer(st *state.Manager, ledger *reserve.Engine, swaps *router.Router, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{state: st, ledger: ledger, swaps: swaps, log: log}
}

// Router builds the HTTP routing table.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Route("/reserve", func(r chi.Router) {
			r.Post("/deposit", s.handleDeposit)
			r.Post("/withdraw", s.handleWithdraw)
			r.Post("/harvest", s.handleHarvest)
			r.Post("/rebalance", s.handleRebalance)
			r.Get("/status", s.handleStatus)
		})
		r.Post("/swap", s.handleSwap)
	})
	return r
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-Id"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", requestID)
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)
		s.log.Info("http request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", recorder.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

type depositRequest struct {
	Caller        string `json:"caller"`
	NativeAmount  string `json:"nativeAmount"`
	WrappedAmount string `json:"wrappedAmount,omitempty"`
}

type withdrawRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

type swapRequest struct {
	Requester       string `json:"requester"`
	ZeroForOne      bool   `json:"zeroForOne"`
	AmountSpecified string `json:"amountSpecified"`
	Referrer        string `json:"referrer,omitempty"`
}

type amountResponse struct {
	Amount string `json:"amount"`
}

type swapResponse struct {
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
}

type statusResponse struct {
	TotalIssued       string `json:"totalIssued"`
	IdleReserve       string `json:"idleReserve"`
	UnderlyingBalance string `json:"underlyingBalance"`
	YieldAccumulated  string `json:"yieldAccumulated"`
	ThresholdWad      string `json:"thresholdWad"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := crypto.DecodeAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	nativeAmount, err := parseAmount(req.NativeAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var wrappedAmount *big.Int
	if strings.TrimSpace(req.WrappedAmount) != "" {
		if wrappedAmount, err = parseAmount(req.WrappedAmount); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}

	minted, err := s.commitOp(func() (*big.Int, error) {
		return s.ledger.Deposit(caller, nativeAmount, wrappedAmount)
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	observability.Reserve().RecordDeposit()
	s.recordSupply()
	writeJSON(w, http.StatusOK, amountResponse{Amount: minted.String()})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	caller, err := crypto.DecodeAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	paid, err := s.commitOp(func() (*big.Int, error) {
		return s.ledger.Withdraw(caller, amount)
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	observability.Reserve().RecordWithdraw()
	s.recordSupply()
	writeJSON(w, http.StatusOK, amountResponse{Amount: paid.String()})
}

func (s *Server) handleHarvest(w http.ResponseWriter, r *http.Request) {
	harvested, err := s.commitOp(func() (*big.Int, error) {
		return s.ledger.Harvest()
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	observability.Reserve().RecordHarvest()
	writeJSON(w, http.StatusOK, amountResponse{Amount: harvested.String()})
}

func (s *Server) handleRebalance(w http.ResponseWriter, r *http.Request) {
	moved, err := s.commitOp(func() (*big.Int, error) {
		return s.ledger.Rebalance()
	})
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	if moved.Sign() > 0 {
		observability.Reserve().RecordRebalance()
	}
	s.recordSupply()
	writeJSON(w, http.StatusOK, amountResponse{Amount: moved.String()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, err := s.ledger.Account()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	idle, err := s.ledger.IdleReserve()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	underlying, err := s.ledger.UnderlyingBalance()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	accrued, err := s.ledger.YieldAccumulated()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		TotalIssued:       account.TotalIssued.String(),
		IdleReserve:       idle.String(),
		UnderlyingBalance: underlying.String(),
		YieldAccumulated:  accrued.String(),
		ThresholdWad:      account.ThresholdWad.String(),
	})
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req swapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	requester, err := crypto.DecodeAddress(req.Requester)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amountSpecified, ok := new(big.Int).SetString(strings.TrimSpace(req.AmountSpecified), 10)
	if !ok || amountSpecified.Sign() == 0 {
		writeError(w, http.StatusBadRequest, errInvalidAmount)
		return
	}

	direction := "oneForZero"
	if req.ZeroForOne {
		direction = "zeroForOne"
	}
	start := time.Now()

	s.mu.Lock()
	snapshot := s.state.Snapshot()
	result, err := s.swaps.ExecuteSwap(requester, req.ZeroForOne, amountSpecified, req.Referrer)
	if err == nil {
		if err = s.state.Commit(); err != nil {
			s.state.RevertToSnapshot(snapshot)
		}
	}
	s.mu.Unlock()

	observability.Swap().Observe(direction, err, time.Since(start))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	s.recordSupply()
	writeJSON(w, http.StatusOK, swapResponse{
		Amount0: result.Amount0.String(),
		Amount1: result.Amount1.String(),
	})
}

// commitOp runs one mutating ledger operation under the server mutex,
// reverting to the pre-operation snapshot on failure and committing on
// success.
func (s *Server) commitOp(op func() (*big.Int, error)) (*big.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.Snapshot()
	result, err := op()
	if err != nil {
		s.state.RevertToSnapshot(snapshot)
		return nil, err
	}
	if err := s.state.Commit(); err != nil {
		s.state.RevertToSnapshot(snapshot)
		return nil, err
	}
	return result, nil
}

func (s *Server) recordSupply() {
	s.mu.Lock()
	defer s.mu.Unlock()
	total, err := s.ledger.TotalIssued()
	if err != nil {
		return
	}
	idle, err := s.ledger.IdleReserve()
	if err != nil {
		return
	}
	observability.Reserve().SetSupply(total, idle)
}

var errInvalidAmount = errors.New("rpc: amount must be a positive base-10 integer")

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || amount.Sign() <= 0 {
		return nil, errInvalidAmount
	}
	return amount, nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
