package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"demobank/internal/models"
	"demobank/internal/money"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
)

type createAccountRequest struct {
	UserID      string `json:"user_id"`
	AccountType string `json:"account_type"`
	Currency    string `json:"currency"`
}

type operationRequest struct {
	Amount      string `json:"amount"`
	Description string `json:"description"`
}

type approveRequest struct {
	CustomDate string `json:"custom_date"`
}

type adminEntryRequest struct {
	Type        string `json:"type"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	DisplayDate string `json:"display_date"`
}

type setBalanceRequest struct {
	Balance string `json:"balance"`
}

type setWithdrawalsRequest struct {
	Allowed bool `json:"allowed"`
}

type setStatusRequest struct {
	Status string `json:"status"`
}

type setDateRequest struct {
	DisplayDate string `json:"display_date"`
}

type replayResponse struct {
	AccountID      string       `json:"account_id"`
	ReplayedAmount money.Amount `json:"replayed_balance"`
}

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/accounts")
		return
	}

	account, err := h.engine.CreateAccount(r.Context(), req.UserID, models.AccountType(req.AccountType), req.Currency)
	if err != nil {
		respondDomainError(w, err, "POST", "/accounts")
		return
	}
	respondWithJSON(w, http.StatusCreated, account, "POST", "/accounts")
}

func (h *Handler) ListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.engine.Accounts(r.Context())
	if err != nil {
		respondDomainError(w, err, "GET", "/accounts")
		return
	}
	respondWithJSON(w, http.StatusOK, accounts, "GET", "/accounts")
}

func (h *Handler) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	account, err := h.engine.GetAccount(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, err, "GET", "/accounts/{id}")
		return
	}
	respondWithJSON(w, http.StatusOK, account, "GET", "/accounts/{id}")
}

func (h *Handler) GetTransactionHandler(w http.ResponseWriter, r *http.Request) {
	tx, err := h.engine.GetTransaction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, err, "GET", "/transactions/{id}")
		return
	}
	respondWithJSON(w, http.StatusOK, tx, "GET", "/transactions/{id}")
}

func (h *Handler) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := h.engine.ListTransactions(r.Context(), mux.Vars(r)["id"], limit)
	if err != nil {
		respondDomainError(w, err, "GET", "/accounts/{id}/transactions")
		return
	}
	respondWithJSON(w, http.StatusOK, txs, "GET", "/accounts/{id}/transactions")
}

func (h *Handler) ReplayBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["id"]
	replayed, err := h.engine.ReplayBalance(r.Context(), accountID)
	if err != nil {
		respondDomainError(w, err, "GET", "/accounts/{id}/replay")
		return
	}
	respondWithJSON(w, http.StatusOK, replayResponse{
		AccountID:      accountID,
		ReplayedAmount: replayed,
	}, "GET", "/accounts/{id}/replay")
}

func (h *Handler) DepositHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/accounts/{id}/deposits"))
	defer timer.ObserveDuration()

	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/accounts/{id}/deposits")
		return
	}
	amount, err := money.ParseOperationAmount(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), "POST", "/accounts/{id}/deposits")
		return
	}

	result, err := h.engine.Deposit(r.Context(), mux.Vars(r)["id"], amount, req.Description)
	if err != nil {
		respondDomainError(w, err, "POST", "/accounts/{id}/deposits")
		return
	}
	respondWithJSON(w, http.StatusCreated, result, "POST", "/accounts/{id}/deposits")
}

func (h *Handler) RequestWithdrawalHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/accounts/{id}/withdrawals"))
	defer timer.ObserveDuration()

	var req operationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/accounts/{id}/withdrawals")
		return
	}
	amount, err := money.ParseOperationAmount(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), "POST", "/accounts/{id}/withdrawals")
		return
	}

	tx, err := h.engine.RequestWithdrawal(r.Context(), mux.Vars(r)["id"], amount, req.Description)
	if err != nil {
		respondDomainError(w, err, "POST", "/accounts/{id}/withdrawals")
		return
	}
	respondWithJSON(w, http.StatusAccepted, tx, "POST", "/accounts/{id}/withdrawals")
}

func (h *Handler) AdminListAccountsHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.engine.AllAccounts(r.Context())
	if err != nil {
		respondDomainError(w, err, "GET", "/admin/accounts")
		return
	}
	respondWithJSON(w, http.StatusOK, accounts, "GET", "/admin/accounts")
}

func (h *Handler) AdminListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	txs, err := h.engine.AllTransactions(r.Context(), limit)
	if err != nil {
		respondDomainError(w, err, "GET", "/admin/transactions")
		return
	}
	respondWithJSON(w, http.StatusOK, txs, "GET", "/admin/transactions")
}

func (h *Handler) AdminPendingTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	txs, err := h.engine.PendingTransactions(r.Context())
	if err != nil {
		respondDomainError(w, err, "GET", "/admin/transactions/pending")
		return
	}
	respondWithJSON(w, http.StatusOK, txs, "GET", "/admin/transactions/pending")
}

func (h *Handler) ApproveTransactionHandler(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/admin/transactions/{id}/approve"))
	defer timer.ObserveDuration()

	var req approveRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/admin/transactions/{id}/approve")
			return
		}
	}

	tx, err := h.engine.ApproveTransaction(r.Context(), mux.Vars(r)["id"], req.CustomDate)
	if err != nil {
		respondDomainError(w, err, "POST", "/admin/transactions/{id}/approve")
		return
	}
	respondWithJSON(w, http.StatusOK, tx, "POST", "/admin/transactions/{id}/approve")
}

func (h *Handler) RejectTransactionHandler(w http.ResponseWriter, r *http.Request) {
	tx, err := h.engine.RejectTransaction(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondDomainError(w, err, "POST", "/admin/transactions/{id}/reject")
		return
	}
	respondWithJSON(w, http.StatusOK, tx, "POST", "/admin/transactions/{id}/reject")
}

func (h *Handler) AdminEntryHandler(w http.ResponseWriter, r *http.Request) {
	var req adminEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/admin/accounts/{id}/entries")
		return
	}
	amount, err := money.ParseOperationAmount(req.Amount)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), "POST", "/admin/accounts/{id}/entries")
		return
	}

	tx, err := h.engine.AdminCustomEntry(r.Context(), mux.Vars(r)["id"],
		models.TransactionType(req.Type), amount, req.Description, req.DisplayDate)
	if err != nil {
		respondDomainError(w, err, "POST", "/admin/accounts/{id}/entries")
		return
	}
	respondWithJSON(w, http.StatusCreated, tx, "POST", "/admin/accounts/{id}/entries")
}

func (h *Handler) SetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	var req setBalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "PUT", "/admin/accounts/{id}/balance")
		return
	}
	balance, err := money.Parse(req.Balance)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error(), "PUT", "/admin/accounts/{id}/balance")
		return
	}

	account, err := h.engine.SetAccountBalance(r.Context(), mux.Vars(r)["id"], balance)
	if err != nil {
		respondDomainError(w, err, "PUT", "/admin/accounts/{id}/balance")
		return
	}
	respondWithJSON(w, http.StatusOK, account, "PUT", "/admin/accounts/{id}/balance")
}

func (h *Handler) SetWithdrawalsHandler(w http.ResponseWriter, r *http.Request) {
	var req setWithdrawalsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "PUT", "/admin/accounts/{id}/withdrawals")
		return
	}

	account, err := h.engine.ToggleWithdrawals(r.Context(), mux.Vars(r)["id"], req.Allowed)
	if err != nil {
		respondDomainError(w, err, "PUT", "/admin/accounts/{id}/withdrawals")
		return
	}
	respondWithJSON(w, http.StatusOK, account, "PUT", "/admin/accounts/{id}/withdrawals")
}

func (h *Handler) SetAccountStatusHandler(w http.ResponseWriter, r *http.Request) {
	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "PUT", "/admin/accounts/{id}/status")
		return
	}

	account, err := h.engine.SetAccountStatus(r.Context(), mux.Vars(r)["id"], models.AccountStatus(req.Status))
	if err != nil {
		respondDomainError(w, err, "PUT", "/admin/accounts/{id}/status")
		return
	}
	respondWithJSON(w, http.StatusOK, account, "PUT", "/admin/accounts/{id}/status")
}

func (h *Handler) SetTransactionDateHandler(w http.ResponseWriter, r *http.Request) {
	var req setDateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Malformed JSON body", "PUT", "/admin/transactions/{id}/date")
		return
	}
	if req.DisplayDate == "" {
		respondWithError(w, http.StatusBadRequest, "display_date is required", "PUT", "/admin/transactions/{id}/date")
		return
	}

	tx, err := h.engine.UpdateTransactionDate(r.Context(), mux.Vars(r)["id"], req.DisplayDate)
	if err != nil {
		respondDomainError(w, err, "PUT", "/admin/transactions/{id}/date")
		return
	}
	respondWithJSON(w, http.StatusOK, tx, "PUT", "/admin/transactions/{id}/date")
}
