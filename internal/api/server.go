// Package api exposes the administrative HTTP surface: webhook signal
// intake, the manual sweep/close escape hatches, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"risk_go/internal/service"
)

// Server is the admin HTTP server.
type Server struct {
	signals   *service.Signals
	execution *service.Execution
	market    *service.Market
	httpSrv   *http.Server
	logger    *slog.Logger
}

// NewServer builds the server and its routes.
func NewServer(addr string, signals *service.Signals, execution *service.Execution, market *service.Market) *Server {
	s := &Server{
		signals:   signals,
		execution: execution,
		market:    market,
		logger:    slog.Default().With("module", "api"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/webhook/signal", s.handleSignal).Methods(http.MethodPost)
	r.HandleFunc("/admin/execute", s.handleExecute).Methods(http.MethodPost)
	r.HandleFunc("/admin/close", s.handleClose).Methods(http.MethodPost)
	r.HandleFunc("/admin/quote", s.handleQuote).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("admin server listening", slog.String("addr", s.httpSrv.Addr))
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleSignal(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}

	var payload service.SignalPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "malformed JSON")
		return
	}

	id, err := s.signals.Accept(r.Context(), payload, string(body))
	if err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]string{"id": id})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	s.execution.RunNow(r.Context())
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "sweep triggered"})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SymbolOrToken string `json:"symbol_or_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SymbolOrToken == "" {
		s.writeError(w, http.StatusBadRequest, "symbol_or_token is required")
		return
	}

	if err := s.execution.ClosePositionBySymbolOrToken(r.Context(), req.SymbolOrToken); err != nil {
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	exchange := r.URL.Query().Get("exchange")
	token := r.URL.Query().Get("token")
	if exchange == "" || token == "" {
		s.writeError(w, http.StatusBadRequest, "exchange and token are required")
		return
	}

	quote, err := s.market.GetQuote(r.Context(), exchange, token)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", slog.Any("error", err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, msg string) {
	s.writeJSON(w, code, map[string]string{"error": msg})
}
