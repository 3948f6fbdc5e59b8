// Package api exposes the ledger over HTTP. Authentication happens upstream;
// requests arrive with trusted identity headers that the middleware converts
// into a context identity for the engine's authorization gate.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"demobank/internal/ledger"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "demobank_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "demobank_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type Handler struct {
	engine *ledger.Engine
}

func NewHandler(engine *ledger.Engine) *Handler {
	return &Handler{engine: engine}
}

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if payload != nil {
		json.NewEncoder(w).Encode(payload)
	}
}

func respondWithError(w http.ResponseWriter, code int, message, method, endpoint string) {
	respondWithJSON(w, code, map[string]string{"error": message}, method, endpoint)
}

// respondDomainError translates engine sentinels into HTTP statuses. Unknown
// errors become opaque 500s; their detail goes to the log, not the client.
func respondDomainError(w http.ResponseWriter, err error, method, endpoint string) {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		respondWithError(w, http.StatusForbidden, "Forbidden", method, endpoint)
	case errors.Is(err, ledger.ErrNotFound):
		respondWithError(w, http.StatusNotFound, "Not found", method, endpoint)
	case errors.Is(err, ledger.ErrValidation):
		respondWithError(w, http.StatusBadRequest, err.Error(), method, endpoint)
	case errors.Is(err, ledger.ErrInvalidState):
		respondWithError(w, http.StatusConflict, err.Error(), method, endpoint)
	case errors.Is(err, ledger.ErrConflict):
		respondWithError(w, http.StatusConflict, "Concurrent update, retry", method, endpoint)
	case errors.Is(err, ledger.ErrInsufficientFunds):
		respondWithError(w, http.StatusUnprocessableEntity, "Insufficient funds", method, endpoint)
	case errors.Is(err, ledger.ErrWithdrawalsFrozen):
		respondWithError(w, http.StatusUnprocessableEntity, "Withdrawals are frozen for this account", method, endpoint)
	default:
		zap.L().Error("Unhandled error in request",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error", method, endpoint)
	}
}
