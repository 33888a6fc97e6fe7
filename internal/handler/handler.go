package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/mlebedev/payflow/internal/export"
	"github.com/mlebedev/payflow/internal/middleware"
	"github.com/mlebedev/payflow/internal/models"
	"github.com/mlebedev/payflow/internal/service"
)

type Handler struct {
	svc *service.Service
}

func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Email == "" || req.Password == "" {
		http.Error(w, "username, email and password are required", http.StatusBadRequest)
		return
	}

	user, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		http.Error(w, "Failed to register user", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusCreated, user)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles user authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	token, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"token": token})
}

type depositRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// Deposit credits the attached amount to the caller's balance
func (h *Handler) Deposit(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Amount.IsNegative() {
		http.Error(w, "amount must not be negative", http.StatusBadRequest)
		return
	}

	balance, err := h.svc.Deposit(r.Context(), account, req.Amount)
	if err != nil {
		http.Error(w, "Failed to deposit", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account": account,
		"balance": balance,
	})
}

type addScheduleRequest struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Frequency int64           `json:"frequency"`
	StartTime int64           `json:"start_time"`
	EndTime   *int64          `json:"end_time,omitempty"`
}

// AddSchedule appends a payment schedule to the caller's sequence
func (h *Handler) AddSchedule(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req addScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Recipient == "" {
		http.Error(w, "recipient is required", http.StatusBadRequest)
		return
	}
	if req.Amount.IsNegative() || req.Frequency < 0 {
		http.Error(w, "amount and frequency must not be negative", http.StatusBadRequest)
		return
	}

	if err := h.svc.AddSchedule(r.Context(), account, req.Recipient, req.Amount, req.Frequency, req.StartTime, req.EndTime); err != nil {
		http.Error(w, "Failed to add schedule", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// CancelSchedule removes the schedule at the given index. An out-of-range
// index is a no-op; the response is 204 either way.
func (h *Handler) CancelSchedule(w http.ResponseWriter, r *http.Request) {
	account, ok := middleware.AccountFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		http.Error(w, "Invalid schedule index", http.StatusBadRequest)
		return
	}

	if err := h.svc.CancelSchedule(r.Context(), account, index); err != nil {
		http.Error(w, "Failed to cancel schedule", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExecutePayments triggers one settlement pass; any caller may invoke it
func (h *Handler) ExecutePayments(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ExecutePayments(r.Context())
	if err != nil {
		http.Error(w, "Settlement pass failed", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{
		"owners":    len(res.Owners),
		"transfers": len(res.Transfers),
	})
}

// GetBalance returns the account balance, zero for an unknown account
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	balance, err := h.svc.Balance(r.Context(), account)
	if err != nil {
		http.Error(w, "Failed to load balance", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"account": account,
		"balance": balance,
	})
}

// GetSchedules returns the account's full schedule sequence
func (h *Handler) GetSchedules(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	schedules, err := h.svc.Schedules(r.Context(), account)
	if err != nil {
		http.Error(w, "Failed to load schedules", http.StatusInternalServerError)
		return
	}
	if schedules == nil {
		schedules = []models.PaymentSchedule{}
	}
	respondJSON(w, http.StatusOK, schedules)
}

// GetSchedule returns the schedule at the given index, 404 when absent
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	account := vars["account"]
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		http.Error(w, "Invalid schedule index", http.StatusBadRequest)
		return
	}

	schedule, ok, err := h.svc.Schedule(r.Context(), account, index)
	if err != nil {
		http.Error(w, "Failed to load schedule", http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "Schedule not found", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, schedule)
}

// GetLastTransaction returns the account's most recent payment record,
// 404 when the account never paid
func (h *Handler) GetLastTransaction(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	rec, err := h.svc.LastTransaction(r.Context(), account)
	if err != nil {
		http.Error(w, "Failed to load transaction record", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		http.Error(w, "No transaction record", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// GetStatement renders the account's XML statement
func (h *Handler) GetStatement(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	ctx := r.Context()

	balance, err := h.svc.Balance(ctx, account)
	if err != nil {
		http.Error(w, "Failed to load balance", http.StatusInternalServerError)
		return
	}
	schedules, err := h.svc.Schedules(ctx, account)
	if err != nil {
		http.Error(w, "Failed to load schedules", http.StatusInternalServerError)
		return
	}
	last, err := h.svc.LastTransaction(ctx, account)
	if err != nil {
		http.Error(w, "Failed to load transaction record", http.StatusInternalServerError)
		return
	}

	doc := export.BuildStatement(account, balance, schedules, last, time.Now())
	doc.Indent(2)

	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	if _, err := doc.WriteTo(w); err != nil {
		http.Error(w, "Failed to write statement", http.StatusInternalServerError)
	}
}

// Health reports service liveness
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}
