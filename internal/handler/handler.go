// Package handler содержит HTTP-обработчики API сервиса столовой.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/messops/mess-system/internal/identity"
	"github.com/messops/mess-system/internal/middleware"
	"github.com/messops/mess-system/internal/model"
	"github.com/messops/mess-system/internal/repository"
	"github.com/messops/mess-system/internal/service"
)

const dateLayout = "2006-01-02"

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterCustomer(ctx context.Context, reg service.Registration) (int64, string, error)
	AuthenticateCustomer(ctx context.Context, username, password string) (*model.Customer, error)
	GetCustomer(ctx context.Context, id int64) (*model.Customer, error)
	ListCustomers(ctx context.Context, search string) ([]model.Customer, error)
	DeleteAccount(ctx context.Context, customerID int64) error
	AdmitMeal(ctx context.Context, memberRef, mealType string) (*model.AdmissionResult, error)
	GetAttendance(ctx context.Context, customerID int64) ([]model.AttendanceRecord, error)
	GetSubscriptionStatus(ctx context.Context, customerID int64) (*service.SubscriptionStatus, error)
	SubmitPayment(ctx context.Context, customerID int64, reference string) (*model.PaymentRequest, error)
	SettlePayment(ctx context.Context, requestID int64, approve bool) (*model.PaymentRequest, error)
	GetPayments(ctx context.Context, customerID int64) ([]model.PaymentRequest, error)
	ListPendingPayments(ctx context.Context) ([]model.PaymentRequest, error)
	SubmitMealRequest(ctx context.Context, customerID int64, content string) (*model.MealRequest, error)
	SettleMealRequest(ctx context.Context, requestID int64, approve bool) (*model.MealRequest, error)
	GetMealRequests(ctx context.Context, customerID int64) ([]model.MealRequest, error)
	ListPendingMealRequests(ctx context.Context) ([]model.MealRequest, error)
	SubmitLeave(ctx context.Context, customerID int64, startDate time.Time, days int, reason string) (*model.LeaveRequest, error)
	SettleLeave(ctx context.Context, requestID int64, approve bool) (*model.LeaveRequest, error)
	GetLeaves(ctx context.Context, customerID int64) ([]model.LeaveRequest, error)
	ListPendingLeaves(ctx context.Context) ([]model.LeaveRequest, error)
	GetReport(ctx context.Context) (*service.Report, error)
	UpdateMenu(ctx context.Context, entry model.MenuEntry) error
	GetMenu(ctx context.Context) ([]model.MenuEntry, error)
	SendNotification(ctx context.Context, title, message string, toCustomerID *int64) error
	GetNotifications(ctx context.Context, customerID int64) ([]model.Notification, error)
	SubmitFeedback(ctx context.Context, customerID int64, content string) error
	ListFeedback(ctx context.Context) ([]model.Feedback, error)
}

// Handler реализует HTTP-обработчики API сервиса столовой.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Name        string `json:"name"`
	Phone       string `json:"phone"`
	Password    string `json:"password"`
	AdminCode   string `json:"admin_code,omitempty"`
	Gender      string `json:"gender,omitempty"`
	Plan        string `json:"plan,omitempty"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
}

type registerResponse struct {
	ID          int64  `json:"id"`
	MemberToken string `json:"member_token"`
}

// Register обрабатывает регистрацию нового клиента столовой.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var dob *time.Time
	if req.DateOfBirth != "" {
		parsed, err := time.Parse(dateLayout, req.DateOfBirth)
		if err != nil {
			http.Error(w, "invalid date_of_birth, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		dob = &parsed
	}

	id, token, err := h.service.RegisterCustomer(r.Context(), service.Registration{
		Username:    req.Username,
		Email:       req.Email,
		Name:        req.Name,
		Phone:       req.Phone,
		Password:    req.Password,
		AdminCode:   req.AdminCode,
		Gender:      model.Gender(req.Gender),
		Plan:        model.PlanType(req.Plan),
		DateOfBirth: dob,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidUsername), errors.Is(err, service.ErrWeakPassword):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, service.ErrInvalidAdminCode):
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		case errors.Is(err, repository.ErrCustomerExists), errors.Is(err, repository.ErrOwnerExists):
			http.Error(w, http.StatusText(http.StatusConflict), http.StatusConflict)
		case errors.Is(err, identity.ErrCapacityExhausted):
			http.Error(w, "membership capacity exhausted", http.StatusConflict)
		default:
			h.logger.Error("register customer error", zap.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, registerResponse{ID: id, MemberToken: token})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	MemberToken string `json:"member_token"`
}

// Login выполняет аутентификацию клиента и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := h.service.AuthenticateCustomer(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login customer error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, middleware.Identity{CustomerID: c.ID, Role: c.Role})
	h.writeJSON(w, http.StatusOK, loginResponse{
		ID:          c.ID,
		Username:    c.Username,
		Role:        string(c.Role),
		MemberToken: c.MemberToken,
	})
}

// Logout сбрасывает cookie авторизации.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}

type customerResponse struct {
	ID          int64    `json:"id"`
	MemberToken string   `json:"member_token"`
	Username    string   `json:"username"`
	Email       string   `json:"email,omitempty"`
	Name        string   `json:"name,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Gender      string   `json:"gender"`
	Plan        string   `json:"plan"`
	DateOfBirth *string  `json:"date_of_birth,omitempty"`
	Monthly     float64  `json:"monthly_charge"`
	CostPerMeal float64  `json:"cost_per_meal"`
	Balance     float64  `json:"balance"`
}

func toCustomerResponse(c *model.Customer) customerResponse {
	resp := customerResponse{
		ID:          c.ID,
		MemberToken: c.MemberToken,
		Username:    c.Username,
		Email:       c.Email,
		Name:        c.Name,
		Phone:       c.Phone,
		Gender:      string(c.Gender),
		Plan:        string(c.Plan),
		Monthly:     c.MonthlyCharge,
		CostPerMeal: c.CostPerMeal,
		Balance:     c.Balance,
	}
	if c.DateOfBirth != nil {
		dob := c.DateOfBirth.Format(dateLayout)
		resp.DateOfBirth = &dob
	}
	return resp
}

// GetProfile возвращает профиль текущего клиента вместе с балансом.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	c, err := h.service.GetCustomer(r.Context(), ident.CustomerID)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get profile error", zap.Error(err), zap.Int64("customerID", ident.CustomerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

// DeleteAccount удаляет учётную запись текущего клиента.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	if err := h.service.DeleteAccount(r.Context(), ident.CustomerID); err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("delete account error", zap.Error(err), zap.Int64("customerID", ident.CustomerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.ClearAuthCookie(w)
	w.WriteHeader(http.StatusOK)
}

type qrResponse struct {
	MemberToken string `json:"member_token"`
}

// GetQRPayload возвращает членский токен клиента как содержимое QR-кода.
func (h *Handler) GetQRPayload(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	c, err := h.service.GetCustomer(r.Context(), ident.CustomerID)
	if err != nil {
		h.logger.Error("get qr payload error", zap.Error(err), zap.Int64("customerID", ident.CustomerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, qrResponse{MemberToken: c.MemberToken})
}

type subscriptionResponse struct {
	Active        bool    `json:"active"`
	StartDate     *string `json:"start_date,omitempty"`
	EndDate       *string `json:"end_date,omitempty"`
	DaysRemaining int     `json:"days_remaining"`
}

// GetSubscription возвращает состояние абонемента текущего клиента.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	st, err := h.service.GetSubscriptionStatus(r.Context(), ident.CustomerID)
	if err != nil {
		h.logger.Error("get subscription error", zap.Error(err), zap.Int64("customerID", ident.CustomerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	resp := subscriptionResponse{
		Active:        st.Valid,
		DaysRemaining: st.DaysRemaining,
	}
	if st.Subscription != nil {
		start := st.Subscription.StartDate.Format(dateLayout)
		end := st.Subscription.EndDate.Format(dateLayout)
		resp.StartDate = &start
		resp.EndDate = &end
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type attendanceResponse struct {
	MealType  string `json:"meal_type"`
	Timestamp string `json:"timestamp"`
}

// GetAttendance возвращает историю посещений текущего клиента.
func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	records, err := h.service.GetAttendance(r.Context(), ident.CustomerID)
	if err != nil {
		h.logger.Error("get attendance error", zap.Error(err), zap.Int64("customerID", ident.CustomerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(records) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]attendanceResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, attendanceResponse{
			MealType:  rec.MealType,
			Timestamp: rec.Timestamp.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type paymentRequestBody struct {
	Reference string `json:"reference"`
}

type paymentResponse struct {
	ID          int64   `json:"id"`
	Amount      float64 `json:"amount"`
	Reference   string  `json:"reference"`
	Status      string  `json:"status"`
	SubmittedAt string  `json:"submitted_at"`
}

func toPaymentResponse(p *model.PaymentRequest) paymentResponse {
	return paymentResponse{
		ID:          p.ID,
		Amount:      p.Amount,
		Reference:   p.Reference,
		Status:      string(p.Status),
		SubmittedAt: p.SubmittedAt.Format(time.RFC3339),
	}
}

// SubmitPayment создаёт платёжную заявку текущего клиента.
func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req paymentRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Reference == "" {
		http.Error(w, "payment reference must not be empty", http.StatusBadRequest)
		return
	}

	p, err := h.service.SubmitPayment(r.Context(), ident.CustomerID, req.Reference)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicatePending) {
			http.Error(w, "payment reference already pending", http.StatusConflict)
			return
		}
		h.logger.Error("submit payment error", zap.Error(err), zap.Int64("customerID", ident.CustomerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, toPaymentResponse(p))
}

// GetPayments возвращает историю платёжных заявок текущего клиента.
func (h *Handler) GetPayments(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	payments, err := h.service.GetPayments(r.Context(), ident.CustomerID)
	if err != nil {
		h.logger.Error("get payments error", zap.Error(err), zap.Int64("customerID", ident.CustomerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(payments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for i := range payments {
		resp = append(resp, toPaymentResponse(&payments[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type leaveRequestBody struct {
	StartDate string `json:"start_date"`
	Days      int    `json:"days"`
	Reason    string `json:"reason,omitempty"`
}

type leaveResponse struct {
	ID          int64  `json:"id"`
	StartDate   string `json:"start_date"`
	Days        int    `json:"days"`
	Reason      string `json:"reason,omitempty"`
	Status      string `json:"status"`
	RequestedAt string `json:"requested_at"`
}

func toLeaveResponse(l *model.LeaveRequest) leaveResponse {
	return leaveResponse{
		ID:          l.ID,
		StartDate:   l.StartDate.Format(dateLayout),
		Days:        l.Days,
		Reason:      l.Reason,
		Status:      string(l.Status),
		RequestedAt: l.RequestedAt.Format(time.RFC3339),
	}
}

// SubmitLeave создаёт заявку текущего клиента на отпуск.
func (h *Handler) SubmitLeave(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req leaveRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Days <= 0 {
		http.Error(w, "leave days must be positive", http.StatusBadRequest)
		return
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		http.Error(w, "invalid start_date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	l, err := h.service.SubmitLeave(r.Context(), ident.CustomerID, start, req.Days, req.Reason)
	if err != nil {
		h.logger.Error("submit leave error", zap.Error(err), zap.Int64("customerID", ident.CustomerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, toLeaveResponse(l))
}

// GetLeaves возвращает заявки текущего клиента на отпуск.
func (h *Handler) GetLeaves(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	leaves, err := h.service.GetLeaves(r.Context(), ident.CustomerID)
	if err != nil {
		h.logger.Error("get leaves error", zap.Error(err), zap.Int64("customerID", ident.CustomerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(leaves) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]leaveResponse, 0, len(leaves))
	for i := range leaves {
		resp = append(resp, toLeaveResponse(&leaves[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type mealRequestBody struct {
	Content string `json:"content"`
}

type mealRequestResponse struct {
	ID          int64  `json:"id"`
	Content     string `json:"content"`
	Status      string `json:"status"`
	RequestedAt string `json:"requested_at"`
}

func toMealRequestResponse(m *model.MealRequest) mealRequestResponse {
	return mealRequestResponse{
		ID:          m.ID,
		Content:     m.Content,
		Status:      string(m.Status),
		RequestedAt: m.RequestedAt.Format(time.RFC3339),
	}
}

// SubmitMealRequest создаёт пожелание текущего клиента по питанию.
func (h *Handler) SubmitMealRequest(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req mealRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Content == "" {
		http.Error(w, "meal request content must not be empty", http.StatusBadRequest)
		return
	}

	m, err := h.service.SubmitMealRequest(r.Context(), ident.CustomerID, req.Content)
	if err != nil {
		h.logger.Error("submit meal request error", zap.Error(err), zap.Int64("customerID", ident.CustomerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusAccepted, toMealRequestResponse(m))
}

// GetMealRequests возвращает пожелания текущего клиента по питанию.
func (h *Handler) GetMealRequests(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	requests, err := h.service.GetMealRequests(r.Context(), ident.CustomerID)
	if err != nil {
		h.logger.Error("get meal requests error", zap.Error(err), zap.Int64("customerID", ident.CustomerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(requests) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]mealRequestResponse, 0, len(requests))
	for i := range requests {
		resp = append(resp, toMealRequestResponse(&requests[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// SettleMealRequest одобряет или отклоняет пожелание по питанию.
func (h *Handler) SettleMealRequest(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	m, err := h.service.SettleMealRequest(r.Context(), id, req.Approve)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRequestNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrAlreadySettled):
			http.Error(w, "request already settled", http.StatusConflict)
		default:
			h.logger.Error("settle meal request error", zap.Error(err), zap.Int64("requestID", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, toMealRequestResponse(m))
}

// ListPendingMealRequests возвращает пожелания, ожидающие решения владельца.
func (h *Handler) ListPendingMealRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListPendingMealRequests(r.Context())
	if err != nil {
		h.logger.Error("list pending meal requests error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(requests) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	type pendingMealRequest struct {
		mealRequestResponse
		CustomerID int64 `json:"customer_id"`
	}

	resp := make([]pendingMealRequest, 0, len(requests))
	for i := range requests {
		resp = append(resp, pendingMealRequest{
			mealRequestResponse: toMealRequestResponse(&requests[i]),
			CustomerID:          requests[i].CustomerID,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type notificationResponse struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Date    string `json:"date"`
}

// GetNotifications возвращает уведомления текущего клиента.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	notifications, err := h.service.GetNotifications(r.Context(), ident.CustomerID)
	if err != nil {
		h.logger.Error("get notifications error", zap.Error(err), zap.Int64("customerID", ident.CustomerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(notifications) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		resp = append(resp, notificationResponse{
			Title:   n.Title,
			Message: n.Message,
			Date:    n.Date.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type menuEntryBody struct {
	Day    string `json:"day"`
	Lunch  string `json:"lunch"`
	Dinner string `json:"dinner"`
}

// GetMenu возвращает меню столовой на неделю.
func (h *Handler) GetMenu(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.GetMenu(r.Context())
	if err != nil {
		h.logger.Error("get menu error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(entries) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]menuEntryBody, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, menuEntryBody{Day: e.Day, Lunch: e.Lunch, Dinner: e.Dinner})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type feedbackRequestBody struct {
	Content string `json:"content"`
}

// SubmitFeedback сохраняет отзыв текущего клиента.
func (h *Handler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	ident, ok := middleware.GetIdentityFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}

	var req feedbackRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Content == "" {
		http.Error(w, "feedback content must not be empty", http.StatusBadRequest)
		return
	}

	if err := h.service.SubmitFeedback(r.Context(), ident.CustomerID, req.Content); err != nil {
		h.logger.Error("submit feedback error", zap.Error(err), zap.Int64("customerID", ident.CustomerID))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type scanRequest struct {
	MemberRef string `json:"member_ref"`
	MealType  string `json:"meal_type"`
}

type scanResponse struct {
	Success  bool   `json:"success"`
	Username string `json:"username,omitempty"`
	// Баланс не опускается даже при нуле: оператор сканера всегда видит его.
	Balance float64 `json:"balance"`
	Message string  `json:"message,omitempty"`
	Error   string  `json:"error,omitempty"`
}

// Scan проводит пропуск клиента на приём пищи по членскому токену.
// Ответ всегда в формате JSON: фронт сканера показывает его оператору.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, scanResponse{Error: "invalid request body"})
		return
	}

	res, err := h.service.AdmitMeal(r.Context(), req.MemberRef, req.MealType)
	if err != nil {
		status, msg := admissionDenialStatus(err)
		if status == http.StatusInternalServerError {
			h.logger.Error("scan error", zap.Error(err), zap.String("memberRef", req.MemberRef))
		}
		h.writeJSON(w, status, scanResponse{Error: msg})
		return
	}

	h.writeJSON(w, http.StatusOK, scanResponse{
		Success:  true,
		Username: res.CustomerName,
		Balance:  res.Balance,
		Message:  res.Message,
	})
}

// admissionDenialStatus переводит отказ в пропуске в HTTP-статус и сообщение
// для оператора сканера.
func admissionDenialStatus(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrUnknownMember):
		return http.StatusNotFound, "member not found"
	case errors.Is(err, repository.ErrSubscriptionExpired):
		return http.StatusForbidden, "subscription expired"
	case errors.Is(err, repository.ErrDailyLimitReached):
		return http.StatusConflict, "daily meal limit reached"
	case errors.Is(err, repository.ErrDuplicateMeal):
		return http.StatusConflict, "meal already marked today"
	case errors.Is(err, repository.ErrInsufficientBalance):
		return http.StatusPaymentRequired, "insufficient balance"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// ListCustomers возвращает клиентов по необязательному поисковому фильтру.
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.service.ListCustomers(r.Context(), r.URL.Query().Get("search"))
	if err != nil {
		h.logger.Error("list customers error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(customers) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]customerResponse, 0, len(customers))
	for i := range customers {
		resp = append(resp, toCustomerResponse(&customers[i]))
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// GetCustomerByID возвращает учётную запись клиента по идентификатору.
func (h *Handler) GetCustomerByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	c, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("get customer error", zap.Error(err), zap.Int64("customerID", id))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, toCustomerResponse(c))
}

type settleRequest struct {
	Approve bool `json:"approve"`
}

// SettlePayment одобряет или отклоняет платёжную заявку.
func (h *Handler) SettlePayment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	p, err := h.service.SettlePayment(r.Context(), id, req.Approve)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRequestNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrAlreadySettled):
			http.Error(w, "request already settled", http.StatusConflict)
		default:
			h.logger.Error("settle payment error", zap.Error(err), zap.Int64("requestID", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

// SettleLeave одобряет или отклоняет заявку на отпуск.
func (h *Handler) SettleLeave(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	l, err := h.service.SettleLeave(r.Context(), id, req.Approve)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRequestNotFound):
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
		case errors.Is(err, repository.ErrAlreadySettled):
			http.Error(w, "request already settled", http.StatusConflict)
		case errors.Is(err, repository.ErrNoActiveSubscription):
			http.Error(w, "customer has no active subscription", http.StatusConflict)
		default:
			h.logger.Error("settle leave error", zap.Error(err), zap.Int64("requestID", id))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, toLeaveResponse(l))
}

// ListPendingPayments возвращает платёжные заявки, ожидающие решения владельца.
func (h *Handler) ListPendingPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPendingPayments(r.Context())
	if err != nil {
		h.logger.Error("list pending payments error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(payments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	type pendingPayment struct {
		paymentResponse
		CustomerID int64 `json:"customer_id"`
	}

	resp := make([]pendingPayment, 0, len(payments))
	for i := range payments {
		resp = append(resp, pendingPayment{
			paymentResponse: toPaymentResponse(&payments[i]),
			CustomerID:      payments[i].CustomerID,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// ListPendingLeaves возвращает заявки на отпуск, ожидающие решения владельца.
func (h *Handler) ListPendingLeaves(w http.ResponseWriter, r *http.Request) {
	leaves, err := h.service.ListPendingLeaves(r.Context())
	if err != nil {
		h.logger.Error("list pending leaves error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(leaves) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	type pendingLeave struct {
		leaveResponse
		CustomerID int64 `json:"customer_id"`
	}

	resp := make([]pendingLeave, 0, len(leaves))
	for i := range leaves {
		resp = append(resp, pendingLeave{
			leaveResponse: toLeaveResponse(&leaves[i]),
			CustomerID:    leaves[i].CustomerID,
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}

type reportResponse struct {
	Customers       int64   `json:"customers"`
	MealsServed     int64   `json:"meals_served"`
	MealsToday      int64   `json:"meals_today"`
	Revenue         float64 `json:"revenue"`
	PendingPayments int64   `json:"pending_payments"`
	PendingLeaves   int64   `json:"pending_leaves"`
}

// GetReport возвращает сводную статистику для панели владельца.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	report, err := h.service.GetReport(r.Context())
	if err != nil {
		h.logger.Error("get report error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, reportResponse{
		Customers:       report.Customers,
		MealsServed:     report.MealsServed,
		MealsToday:      report.MealsToday,
		Revenue:         report.Revenue,
		PendingPayments: report.PendingPayments,
		PendingLeaves:   report.PendingLeaves,
	})
}

// UpdateMenu создаёт или обновляет меню на день недели.
func (h *Handler) UpdateMenu(w http.ResponseWriter, r *http.Request) {
	var req menuEntryBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateMenu(r.Context(), model.MenuEntry{
		Day:    req.Day,
		Lunch:  req.Lunch,
		Dinner: req.Dinner,
	}); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type notificationRequestBody struct {
	Title        string `json:"title"`
	Message      string `json:"message"`
	ToCustomerID *int64 `json:"to_customer_id,omitempty"`
}

// SendNotification сохраняет уведомление владельца: адресное или
// широковещательное при пустом получателе.
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Title == "" || req.Message == "" {
		http.Error(w, "notification title and message must not be empty", http.StatusBadRequest)
		return
	}

	if err := h.service.SendNotification(r.Context(), req.Title, req.Message, req.ToCustomerID); err != nil {
		if errors.Is(err, repository.ErrCustomerNotFound) {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		h.logger.Error("send notification error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

type feedbackResponse struct {
	CustomerID int64  `json:"customer_id"`
	Content    string `json:"content"`
	Date       string `json:"date"`
}

// ListFeedback возвращает отзывы всех клиентов.
func (h *Handler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	feedback, err := h.service.ListFeedback(r.Context())
	if err != nil {
		h.logger.Error("list feedback error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	if len(feedback) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]feedbackResponse, 0, len(feedback))
	for _, f := range feedback {
		resp = append(resp, feedbackResponse{
			CustomerID: f.CustomerID,
			Content:    f.Content,
			Date:       f.Date.Format(time.RFC3339),
		})
	}

	h.writeJSON(w, http.StatusOK, resp)
}
