package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/lucifers-0666/zenopay/internal/domain"
	"github.com/lucifers-0666/zenopay/internal/notify"
	"github.com/lucifers-0666/zenopay/internal/repository"
	"github.com/lucifers-0666/zenopay/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics
var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "wallet_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	movementOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wallet_movement_outcomes_total",
		Help: "Money-movement attempts by kind and outcome",
	}, []string{"kind", "outcome"})
)

type Handler struct {
	store      repository.Store
	transfers  *service.TransferService
	refunds    *service.RefundService
	challenges *service.ChallengeService
	merchants  *service.MerchantResolver
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
}

func NewHandler(
	store repository.Store,
	transfers *service.TransferService,
	refunds *service.RefundService,
	challenges *service.ChallengeService,
	merchants *service.MerchantResolver,
	dispatcher *notify.Dispatcher,
	logger *slog.Logger,
) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		store:      store,
		transfers:  transfers,
		refunds:    refunds,
		challenges: challenges,
		merchants:  merchants,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/accounts", h.CreateAccount).Methods("POST")
	api.HandleFunc("/accounts/{id}", h.GetAccount).Methods("GET")
	api.HandleFunc("/accounts/{id}/transactions", h.ListAccountTransactions).Methods("GET")
	api.HandleFunc("/transfers/initiate", h.InitiateTransfer).Methods("POST")
	api.HandleFunc("/transfers/confirm", h.ConfirmTransfer).Methods("POST")
	api.HandleFunc("/transfers", h.CreateTransfer).Methods("POST")
	api.HandleFunc("/transactions/{id}", h.GetTransaction).Methods("GET")
	api.HandleFunc("/refunds", h.CreateRefund).Methods("POST")
	api.HandleFunc("/merchants", h.EnrollMerchant).Methods("POST")
	api.HandleFunc("/payments/initiate", h.InitiatePayment).Methods("POST")
	api.HandleFunc("/payments", h.CapturePayment).Methods("POST")
}

// response is the canonical API envelope.
type response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type createAccountRequest struct {
	OwnerID     string `json:"owner_id"`
	BankName    string `json:"bank_name"`
	RoutingCode string `json:"routing_code"`
	Balance     int64  `json:"balance"`
}

type transferRequest struct {
	SenderID    uint64 `json:"sender_account_id"`
	ReceiverID  uint64 `json:"receiver_account_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Code        string `json:"code,omitempty"`
	Contact     string `json:"contact,omitempty"`
}

type initiateRequest struct {
	SenderID uint64 `json:"sender_account_id"`
	Contact  string `json:"contact"`
}

type refundRequest struct {
	TransactionID uint64 `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Reason        string `json:"reason"`
}

type enrollRequest struct {
	OwnerID             string `json:"owner_id"`
	SettlementAccountID uint64 `json:"settlement_account_id"`
}

type paymentRequest struct {
	APIKey      string `json:"api_key,omitempty"`
	APISecret   string `json:"api_secret,omitempty"`
	PayerID     uint64 `json:"payer_account_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Code        string `json:"code,omitempty"`
	Contact     string `json:"contact,omitempty"`
}

func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/accounts", nil)
		return
	}
	if req.OwnerID == "" {
		h.respondError(w, http.StatusUnprocessableEntity, "owner_id is required", "POST", "/accounts", nil)
		return
	}
	if req.Balance < 0 {
		h.respondError(w, http.StatusUnprocessableEntity, "balance cannot be negative", "POST", "/accounts", nil)
		return
	}

	account := &domain.Account{
		OwnerID:     req.OwnerID,
		BankName:    req.BankName,
		RoutingCode: req.RoutingCode,
		Balance:     req.Balance,
		Status:      domain.AccountActive,
	}
	if _, err := h.store.CreateAccount(r.Context(), account); err != nil {
		h.respondError(w, http.StatusInternalServerError, "System error creating account", "POST", "/accounts", nil)
		return
	}
	h.respond(w, http.StatusCreated, response{Success: true, Message: "Account created", Data: account}, "POST", "/accounts")
}

func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h, "/accounts/{id}")
	if !ok {
		return
	}
	account, err := h.store.GetAccount(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "Account not found", "GET", "/accounts/{id}", nil)
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", "/accounts/{id}", nil)
		return
	}
	h.respond(w, http.StatusOK, response{Success: true, Message: "OK", Data: account}, "GET", "/accounts/{id}")
}

func (h *Handler) ListAccountTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h, "/accounts/{id}/transactions")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	txns, err := h.store.ListAccountTransactions(r.Context(), id, limit, offset)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", "/accounts/{id}/transactions", nil)
		return
	}
	h.respond(w, http.StatusOK, response{Success: true, Message: "OK", Data: txns}, "GET", "/accounts/{id}/transactions")
}

func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, h, "/transactions/{id}")
	if !ok {
		return
	}
	txn, err := h.store.GetTransaction(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "Transaction not found", "GET", "/transactions/{id}", nil)
			return
		}
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", "/transactions/{id}", nil)
		return
	}
	h.respond(w, http.StatusOK, response{Success: true, Message: "OK", Data: txn}, "GET", "/transactions/{id}")
}

// InitiateTransfer issues an authorization code for the sender and hands it
// to the notifier. The transfer itself happens on confirm.
func (h *Handler) InitiateTransfer(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/transfers/initiate", nil)
		return
	}
	if _, err := h.store.GetAccount(r.Context(), req.SenderID); err != nil {
		h.respondError(w, http.StatusNotFound, "Account not found", "POST", "/transfers/initiate", nil)
		return
	}

	if _, err := h.challenges.Issue(r.Context(), transferSubject(req.SenderID), req.Contact); err != nil {
		h.respondError(w, http.StatusInternalServerError, "Could not issue verification code", "POST", "/transfers/initiate", nil)
		return
	}
	h.respond(w, http.StatusOK, response{Success: true, Message: "Verification code sent"}, "POST", "/transfers/initiate")
}

// ConfirmTransfer verifies the sender's authorization code, then executes
// the transfer. A funds or limit rejection after the code was accepted is
// recorded as a failed audit row whose id is returned to the caller.
func (h *Handler) ConfirmTransfer(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/transfers/confirm"))
	defer timer.ObserveDuration()

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/transfers/confirm", nil)
		return
	}
	if err := h.challenges.Verify(r.Context(), transferSubject(req.SenderID), req.Code); err != nil {
		h.respondServiceError(w, err, "POST", "/transfers/confirm", nil)
		return
	}

	txn, err := h.transfers.Transfer(r.Context(), req.SenderID, req.ReceiverID, req.Amount, req.Description)
	if err != nil {
		h.rejectMovement(w, r, err, req.SenderID, req.ReceiverID, req.Amount, req.Description,
			domain.KindTransfer, "POST", "/transfers/confirm")
		return
	}

	movementOutcomes.WithLabelValues(string(domain.KindTransfer), "success").Inc()
	h.notifyReceipt(req.Contact, txn)
	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%d", txn.ID))
	h.respond(w, http.StatusCreated, response{Success: true, Message: "Transfer completed", Data: txn}, "POST", "/transfers/confirm")
}

// CreateTransfer is the trusted server-to-server path without an OTP gate.
func (h *Handler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/transfers"))
	defer timer.ObserveDuration()

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/transfers", nil)
		return
	}

	txn, err := h.transfers.Transfer(r.Context(), req.SenderID, req.ReceiverID, req.Amount, req.Description)
	if err != nil {
		movementOutcomes.WithLabelValues(string(domain.KindTransfer), "rejected").Inc()
		h.respondServiceError(w, err, "POST", "/transfers", nil)
		return
	}

	movementOutcomes.WithLabelValues(string(domain.KindTransfer), "success").Inc()
	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%d", txn.ID))
	h.respond(w, http.StatusCreated, response{Success: true, Message: "Transfer completed", Data: txn}, "POST", "/transfers")
}

func (h *Handler) CreateRefund(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/refunds"))
	defer timer.ObserveDuration()

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/refunds", nil)
		return
	}

	txn, err := h.refunds.Refund(r.Context(), req.TransactionID, req.Amount, req.Reason)
	if err != nil {
		movementOutcomes.WithLabelValues(string(domain.KindRefund), "rejected").Inc()
		h.respondServiceError(w, err, "POST", "/refunds", nil)
		return
	}

	movementOutcomes.WithLabelValues(string(domain.KindRefund), "success").Inc()
	h.respond(w, http.StatusCreated, response{Success: true, Message: "Refund completed", Data: txn}, "POST", "/refunds")
}

func (h *Handler) EnrollMerchant(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/merchants", nil)
		return
	}
	if req.OwnerID == "" {
		h.respondError(w, http.StatusUnprocessableEntity, "owner_id is required", "POST", "/merchants", nil)
		return
	}

	cred, err := h.merchants.Enroll(r.Context(), req.OwnerID, req.SettlementAccountID)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/merchants", nil)
		return
	}
	// The secret is only ever shown once, on enrollment.
	h.respond(w, http.StatusCreated, response{Success: true, Message: "Merchant enrolled", Data: map[string]interface{}{
		"api_key":               cred.APIKey,
		"api_secret":            cred.Secret,
		"settlement_account_id": cred.SettlementAccountID,
	}}, "POST", "/merchants")
}

// InitiatePayment is the merchant-authenticated first leg of a capture: it
// issues an authorization code to the paying customer.
func (h *Handler) InitiatePayment(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Stream read error", "POST", "/payments/initiate", nil)
		return
	}
	var req paymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/payments/initiate", nil)
		return
	}
	if _, err := h.authenticateMerchant(r, body, req); err != nil {
		h.respondServiceError(w, err, "POST", "/payments/initiate", nil)
		return
	}
	if _, err := h.store.GetAccount(r.Context(), req.PayerID); err != nil {
		h.respondError(w, http.StatusNotFound, "Account not found", "POST", "/payments/initiate", nil)
		return
	}

	if _, err := h.challenges.Issue(r.Context(), paymentSubject(req.PayerID), req.Contact); err != nil {
		h.respondError(w, http.StatusInternalServerError, "Could not issue verification code", "POST", "/payments/initiate", nil)
		return
	}
	h.respond(w, http.StatusOK, response{Success: true, Message: "Verification code sent"}, "POST", "/payments/initiate")
}

// CapturePayment resolves the merchant's settlement account, verifies the
// payer's authorization code and moves the funds.
func (h *Handler) CapturePayment(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpRequestDuration.WithLabelValues("POST", "/payments"))
	defer timer.ObserveDuration()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.respondError(w, http.StatusInternalServerError, "Stream read error", "POST", "/payments", nil)
		return
	}
	var req paymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Malformed JSON body", "POST", "/payments", nil)
		return
	}

	settlement, err := h.authenticateMerchant(r, body, req)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/payments", nil)
		return
	}
	if err := h.challenges.Verify(r.Context(), paymentSubject(req.PayerID), req.Code); err != nil {
		h.respondServiceError(w, err, "POST", "/payments", nil)
		return
	}

	txn, err := h.transfers.Capture(r.Context(), req.PayerID, settlement.ID, req.Amount, req.Description)
	if err != nil {
		h.rejectMovement(w, r, err, req.PayerID, settlement.ID, req.Amount, req.Description,
			domain.KindPayment, "POST", "/payments")
		return
	}

	movementOutcomes.WithLabelValues(string(domain.KindPayment), "success").Inc()
	h.notifyReceipt(req.Contact, txn)
	h.respond(w, http.StatusCreated, response{Success: true, Message: "Payment captured", Data: txn}, "POST", "/payments")
}

// authenticateMerchant accepts either an api_key/api_secret pair in the
// body or an X-Api-Key header with an X-Signature HMAC over the raw body.
func (h *Handler) authenticateMerchant(r *http.Request, body []byte, req paymentRequest) (*domain.Account, error) {
	if apiKey := r.Header.Get("X-Api-Key"); apiKey != "" {
		return h.merchants.ResolveSigned(r.Context(), apiKey, body, r.Header.Get("X-Signature"))
	}
	if req.APIKey != "" {
		return h.merchants.Resolve(r.Context(), req.APIKey, req.APISecret)
	}
	return nil, service.ErrInvalidCredential
}

// rejectMovement maps a post-authorization rejection to a response and, for
// funds/limit failures, records a failed audit row whose id the caller gets
// back.
func (h *Handler) rejectMovement(w http.ResponseWriter, r *http.Request, cause error,
	senderID, receiverID uint64, amount int64, description string,
	kind domain.TransactionKind, method, endpoint string) {

	movementOutcomes.WithLabelValues(string(kind), "rejected").Inc()

	var data interface{}
	if errors.Is(cause, service.ErrInsufficientFunds) || errors.Is(cause, service.ErrDailyLimitExceeded) {
		audit, err := h.transfers.RecordFailure(r.Context(), senderID, receiverID, amount, description, kind)
		if err != nil {
			h.logger.Error("audit row write failed", slog.String("error", err.Error()))
		} else {
			data = map[string]uint64{"transaction_id": audit.ID}
		}
	}
	h.respondServiceError(w, cause, method, endpoint, data)
}

func (h *Handler) notifyReceipt(contact string, txn *domain.Transaction) {
	if h.dispatcher == nil || contact == "" {
		return
	}
	h.dispatcher.Enqueue(contact, "Transaction receipt",
		fmt.Sprintf("Transaction %d for %s completed.", txn.ID, domain.FormatAmount(txn.Amount)))
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, method, endpoint string, data interface{}) {
	var code int
	switch {
	case errors.Is(err, service.ErrAccountNotFound),
		errors.Is(err, service.ErrTransactionNotFound):
		code = http.StatusNotFound
	case errors.Is(err, service.ErrInvalidCredential),
		errors.Is(err, service.ErrChallengeNotFound),
		errors.Is(err, service.ErrChallengeExpired),
		errors.Is(err, service.ErrCodeMismatch):
		code = http.StatusUnauthorized
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrSelfTransfer),
		errors.Is(err, service.ErrAccountInactive),
		errors.Is(err, service.ErrInsufficientFunds),
		errors.Is(err, service.ErrDailyLimitExceeded),
		errors.Is(err, service.ErrNotRefundable),
		errors.Is(err, service.ErrRefundExceedsRemaining):
		code = http.StatusUnprocessableEntity
	case errors.Is(err, service.ErrConflict):
		code = http.StatusConflict
	default:
		h.logger.Error("unhandled service error", slog.String("error", err.Error()))
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", method, endpoint, nil)
		return
	}
	h.respondError(w, code, err.Error(), method, endpoint, data)
}

func (h *Handler) respond(w http.ResponseWriter, code int, resp response, method, endpoint string) {
	httpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(resp)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, message, method, endpoint string, data interface{}) {
	h.respond(w, code, response{Success: false, Message: message, Data: data}, method, endpoint)
}

func pathID(w http.ResponseWriter, r *http.Request, h *Handler, endpoint string) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid id", r.Method, endpoint, nil)
		return 0, false
	}
	return id, true
}

func transferSubject(accountID uint64) string {
	return fmt.Sprintf("transfer:%d", accountID)
}

func paymentSubject(accountID uint64) string {
	return fmt.Sprintf("payment:%d", accountID)
}
