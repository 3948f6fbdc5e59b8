package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires all routes. Admin routes share the same identity
// middleware; the engine enforces the role, not the router.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheckHandler).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(IdentityMiddleware)

	v1.HandleFunc("/accounts", h.CreateAccountHandler).Methods("POST")
	v1.HandleFunc("/accounts", h.ListAccountsHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id}", h.GetAccountHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id}/transactions", h.ListTransactionsHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id}/replay", h.ReplayBalanceHandler).Methods("GET")
	v1.HandleFunc("/accounts/{id}/deposits", h.DepositHandler).Methods("POST")
	v1.HandleFunc("/accounts/{id}/withdrawals", h.RequestWithdrawalHandler).Methods("POST")
	v1.HandleFunc("/transactions/{id}", h.GetTransactionHandler).Methods("GET")

	v1.HandleFunc("/admin/accounts", h.AdminListAccountsHandler).Methods("GET")
	v1.HandleFunc("/admin/transactions", h.AdminListTransactionsHandler).Methods("GET")
	v1.HandleFunc("/admin/transactions/pending", h.AdminPendingTransactionsHandler).Methods("GET")
	v1.HandleFunc("/admin/transactions/{id}/approve", h.ApproveTransactionHandler).Methods("POST")
	v1.HandleFunc("/admin/transactions/{id}/reject", h.RejectTransactionHandler).Methods("POST")
	v1.HandleFunc("/admin/transactions/{id}/date", h.SetTransactionDateHandler).Methods("PUT")
	v1.HandleFunc("/admin/accounts/{id}/entries", h.AdminEntryHandler).Methods("POST")
	v1.HandleFunc("/admin/accounts/{id}/balance", h.SetBalanceHandler).Methods("PUT")
	v1.HandleFunc("/admin/accounts/{id}/withdrawals", h.SetWithdrawalsHandler).Methods("PUT")
	v1.HandleFunc("/admin/accounts/{id}/status", h.SetAccountStatusHandler).Methods("PUT")

	return r
}
